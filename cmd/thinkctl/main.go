// Command thinkctl is the operator CLI: schema migration and conversation
// inspection and repair.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garywanggali/think-first/internal/app"
	"github.com/garywanggali/think-first/internal/config"
	"github.com/garywanggali/think-first/internal/db"
	"github.com/garywanggali/think-first/internal/dialogue"
	"github.com/garywanggali/think-first/internal/logging"
)

var (
	offline bool
	userID  uint64
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "thinkctl",
	Short:         "Operate a think-first deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's conversations",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		if userID == 0 {
			return fmt.Errorf("--user is required")
		}
		convs, err := a.Service.ListConversations(ctx, userID, 0)
		if err != nil {
			return err
		}
		for _, c := range convs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", c.ConversationID, c.Phase, c.UpdatedAt.Format(time.RFC3339), c.Topic)
		}
		return nil
	}),
}

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation with its log",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		uid, err := owner(ctx, a, args[0])
		if err != nil {
			return err
		}
		view, err := a.Service.GetConversation(ctx, uid, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, view)
	}),
}

var retryCmd = &cobra.Command{
	Use:   "retry <conversation-id>",
	Short: "Regenerate the reply to the last unanswered turn",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		uid, err := owner(ctx, a, args[0])
		if err != nil {
			return err
		}
		out, err := a.Service.Retry(ctx, uid, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	}),
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <conversation-id> <interaction-id>",
	Short: "Delete every turn after an interaction",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid interaction id %q", args[1])
		}
		uid, err := owner(ctx, a, args[0])
		if err != nil {
			return err
		}
		conv, err := a.Service.Rollback(ctx, uid, args[0], id)
		if err != nil {
			return err
		}
		return printJSON(cmd, conv)
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation with its log and review",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		uid, err := owner(ctx, a, args[0])
		if err != nil {
			return err
		}
		if err := a.Service.DeleteConversation(ctx, uid, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
		return nil
	}),
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use the deterministic mock providers")
	rootCmd.PersistentFlags().Uint64Var(&userID, "user", 0, "Act as this user (default: the conversation owner)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(migrateCmd, listCmd, showCmd, retryCmd, rollbackCmd, deleteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "thinkctl:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	if offline {
		cfg.ReasoningProvider = "mock"
		cfg.ArtifactProvider = "mock"
	}
	log, err := logging.New(cfg.LogLevel, true)
	return cfg, log, err
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := db.Migrate(gdb.WithContext(cmd.Context())); err != nil {
		return err
	}
	log.Info("migrated")
	return nil
}

type appRunE func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error

func withApp(fn appRunE) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, cmd, args)
	}
}

// owner returns --user when set, otherwise the conversation's owner.
func owner(ctx context.Context, a *app.App, conversationID string) (uint64, error) {
	if userID != 0 {
		return userID, nil
	}
	c, err := dialogue.NewRepo(a.DB).GetConversation(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("conversation %s: %w", conversationID, err)
	}
	return c.UserID, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
