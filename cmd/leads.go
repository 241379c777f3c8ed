package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and steer the lead queue",
}

var leadsStatsCmd = &cobra.Command{
	Use:   "stats <session-id>",
	Short: "Queue statistics for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.queue.Stats(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var leadsListLimit int

var leadsListCmd = &cobra.Command{
	Use:   "list <session-id>",
	Short: "List pending leads in dequeue order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		pending, err := env.queue.ListPending(cmd.Context(), args[0], leadsListLimit)
		if err != nil {
			return err
		}
		return printJSON(pending)
	},
}

var leadsSetPriorityCmd = &cobra.Command{
	Use:   "set-priority <lead-id> <priority>",
	Short: "Reprioritize a pending lead",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority, err := strconv.Atoi(args[1])
		if err != nil {
			return eris.Wrap(err, "cmd: parse priority")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.queue.SetPriority(cmd.Context(), args[0], priority)
	},
}

var requeuePriority int

var leadsRequeueCmd = &cobra.Command{
	Use:   "requeue <lead-id>",
	Short: "Reset a failed or skipped lead to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var priority *int
		if cmd.Flags().Changed("priority") {
			priority = &requeuePriority
		}
		return env.queue.Requeue(cmd.Context(), args[0], priority)
	},
}

func init() {
	leadsListCmd.Flags().IntVar(&leadsListLimit, "limit", 50, "max leads to list")
	leadsRequeueCmd.Flags().IntVar(&requeuePriority, "priority", 0, "new priority for the requeued lead")

	leadsCmd.AddCommand(leadsStatsCmd, leadsListCmd, leadsSetPriorityCmd, leadsRequeueCmd)
	rootCmd.AddCommand(leadsCmd)
}
