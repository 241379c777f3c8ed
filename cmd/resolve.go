package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matbeedotcom/media-transparency-sub001/internal/resolver"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Entity resolution maintenance",
}

var (
	dupType  string
	dupLimit int
)

var resolveDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Scan for probable duplicate entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		pairs, err := env.resolver.FindDuplicates(cmd.Context(), dupType, dupLimit)
		if err != nil {
			return err
		}
		return printJSON(pairs)
	},
}

var resolveMergeCmd = &cobra.Command{
	Use:   "merge <source-id> <target-id>",
	Short: "Merge the source entity into the target",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		outcome, err := env.resolver.MergeEntities(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if outcome.Degraded {
			zap.L().Warn("merge completed without relationship transfer",
				zap.String("source_id", outcome.SourceID),
				zap.String("target_id", outcome.TargetID),
			)
		}
		return printJSON(outcome)
	},
}

var (
	cjName       string
	cjEntityType string
	cjCity       string
	cjRegion     string
	cjPostal     string
	cjTarget     string
)

var resolveCrossJurisdictionCmd = &cobra.Command{
	Use:   "cross-jurisdiction <foreign-entity-id>",
	Short: "Match a foreign-jurisdiction entity against local records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		rec := resolver.ForeignRecord{
			Name:       cjName,
			EntityType: cjEntityType,
			City:       cjCity,
			Region:     cjRegion,
			PostalCode: cjPostal,
		}
		outcome, err := env.crossJuris.Resolve(cmd.Context(), args[0], rec, cjTarget)
		if err != nil {
			return err
		}
		return printJSON(outcome)
	},
}

func init() {
	resolveDuplicatesCmd.Flags().StringVar(&dupType, "type", "organization", "entity type to scan")
	resolveDuplicatesCmd.Flags().IntVar(&dupLimit, "limit", 500, "max entities to scan")

	resolveCrossJurisdictionCmd.Flags().StringVar(&cjName, "name", "", "foreign record name")
	resolveCrossJurisdictionCmd.Flags().StringVar(&cjEntityType, "type", "organization", "foreign record entity type")
	resolveCrossJurisdictionCmd.Flags().StringVar(&cjCity, "city", "", "foreign record city")
	resolveCrossJurisdictionCmd.Flags().StringVar(&cjRegion, "region", "", "foreign record region")
	resolveCrossJurisdictionCmd.Flags().StringVar(&cjPostal, "postal", "", "foreign record postal code")
	resolveCrossJurisdictionCmd.Flags().StringVar(&cjTarget, "jurisdiction", "", "local jurisdiction to match against")
	_ = resolveCrossJurisdictionCmd.MarkFlagRequired("name")
	_ = resolveCrossJurisdictionCmd.MarkFlagRequired("jurisdiction")

	resolveCmd.AddCommand(resolveDuplicatesCmd, resolveMergeCmd, resolveCrossJurisdictionCmd)
	rootCmd.AddCommand(resolveCmd)
}
