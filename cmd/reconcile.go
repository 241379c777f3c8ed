package main

import (
	"github.com/spf13/cobra"

	"github.com/matbeedotcom/media-transparency-sub001/internal/resolver"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Review queue for ambiguous entity matches",
}

var (
	reconcileStatus string
	reconcileLimit  int
)

var reconcileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reconciliation tasks by priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		tasks, err := env.tasks.List(cmd.Context(), resolver.TaskStatus(reconcileStatus), reconcileLimit)
		if err != nil {
			return err
		}
		return printJSON(tasks)
	},
}

var claimReviewer string

var reconcileClaimCmd = &cobra.Command{
	Use:   "claim <task-id>",
	Short: "Claim a pending task for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		return env.tasks.Claim(cmd.Context(), args[0], claimReviewer)
	},
}

var (
	applyReviewer string
	applyNotes    string
)

var reconcileApplyCmd = &cobra.Command{
	Use:   "apply <task-id> <action>",
	Short: "Apply a reviewer decision to a task",
	Long: `Apply a reviewer decision to a reconciliation task.

Actions: same_entity, different, merge_left, merge_right, skip.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, err := resolver.ParseAction(args[1])
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		outcome, err := env.reconciler.Apply(cmd.Context(), args[0], action, applyReviewer, applyNotes)
		if err != nil {
			return err
		}
		if outcome != nil {
			return printJSON(outcome)
		}
		return nil
	},
}

func init() {
	reconcileListCmd.Flags().StringVar(&reconcileStatus, "status", "pending", "task status filter")
	reconcileListCmd.Flags().IntVar(&reconcileLimit, "limit", 50, "max tasks to list")
	reconcileClaimCmd.Flags().StringVar(&claimReviewer, "reviewer", "", "reviewer identifier")
	reconcileApplyCmd.Flags().StringVar(&applyReviewer, "reviewer", "", "reviewer identifier")
	reconcileApplyCmd.Flags().StringVar(&applyNotes, "notes", "", "review notes")
	_ = reconcileClaimCmd.MarkFlagRequired("reviewer")
	_ = reconcileApplyCmd.MarkFlagRequired("reviewer")

	reconcileCmd.AddCommand(reconcileListCmd, reconcileClaimCmd, reconcileApplyCmd)
	rootCmd.AddCommand(reconcileCmd)
}
