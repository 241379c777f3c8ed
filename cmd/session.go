package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matbeedotcom/media-transparency-sub001/internal/engine"
	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage discovery sessions",
}

var (
	createName       string
	createScheme     string
	createConfigPath string
)

var sessionCreateCmd = &cobra.Command{
	Use:   "create <entry-point>",
	Short: "Create a session seeded with one entry-point lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		scheme, err := entity.ParseScheme(createScheme)
		if err != nil {
			return err
		}

		sessCfg := session.DefaultConfig()
		if createConfigPath != "" {
			if sessCfg, err = session.LoadConfigFile(createConfigPath); err != nil {
				return err
			}
		}

		name := createName
		if name == "" {
			name = args[0]
		}

		sess, err := env.manager.Create(cmd.Context(), name, scheme, args[0], sessCfg)
		if err != nil {
			return err
		}
		return printJSON(sess)
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Show a session and its statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.manager.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if sess == nil {
			return eris.Errorf("session %s not found", args[0])
		}
		return printJSON(sess)
	},
}

var listLimit int

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		sessions, err := env.manager.List(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		return printJSON(sessions)
	},
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause <session-id>",
	Short: "Request a cooperative pause",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		return env.manager.Pause(cmd.Context(), args[0])
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a paused session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		return env.manager.Resume(cmd.Context(), args[0])
	},
}

var runIterations int

var sessionRunCmd = &cobra.Command{
	Use:   "run <session-id>",
	Short: "Drive a session's discovery loop in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Interrupts cancel ctx between batches, which pauses the
		// session rather than abandoning in-flight leads.
		status, err := env.engine.Run(ctx, args[0],
			engine.RunOptions{MaxIterations: runIterations})
		if err != nil {
			return err
		}
		zap.L().Info("run finished",
			zap.String("session_id", args[0]),
			zap.String("status", string(status)),
		)
		return nil
	},
}

var sessionCompleteCmd = &cobra.Command{
	Use:   "complete <session-id>",
	Short: "Mark a running session completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		return env.manager.Complete(cmd.Context(), args[0])
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and everything attached to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		return env.manager.Delete(cmd.Context(), args[0])
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	sessionCreateCmd.Flags().StringVar(&createName, "name", "", "session name (default: the entry point)")
	sessionCreateCmd.Flags().StringVar(&createScheme, "scheme", "name", "entry-point identifier scheme")
	sessionCreateCmd.Flags().StringVar(&createConfigPath, "config", "", "session config YAML file")
	sessionListCmd.Flags().IntVar(&listLimit, "limit", 20, "max sessions to list")
	sessionRunCmd.Flags().IntVar(&runIterations, "iterations", 0, "batch cap for bounded runs (0 = unbounded)")

	sessionCmd.AddCommand(sessionCreateCmd, sessionGetCmd, sessionListCmd,
		sessionPauseCmd, sessionResumeCmd, sessionRunCmd,
		sessionCompleteCmd, sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}
