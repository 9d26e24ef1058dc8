package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hitoshi/blog/internal/password"
)

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンドを省略した場合はserveとして起動する。
// SIGINTまたはSIGTERMを受信すると実行中のコマンドのcontextをキャンセルする。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand はblogコマンドのルートを生成する。
// wはログの出力先で、コマンドの標準出力はcobraのOutOrStdoutに書き込む。
func NewRootCommand(w io.Writer) *cobra.Command {
	serve := newServeCommand(w)

	root := &cobra.Command{
		Use:           "blog",
		Short:         "Session-authenticated blog server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
	}

	root.AddCommand(
		serve,
		newMigrateCommand(w),
		newHealthcheckCommand(),
		newCleanupSessionsCommand(w),
		newHashPasswordCommand(),
		newCreateAdminCommand(w),
	)

	return root
}

func newServeCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply all pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runMigrate(cfg)
		},
	}
}

// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
func newHealthcheckCommand() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the local server's /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port == "" {
				port = os.Getenv("SERVER_PORT")
			}
			if port == "" {
				port = "3000"
			}
			return runHealthcheck(cmd.Context(), fmt.Sprintf("http://localhost:%s/health", port))
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "server port (default $SERVER_PORT or 3000)")

	return cmd
}

func newCleanupSessionsCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-sessions",
		Short: "Delete expired sessions once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runCleanupSessions(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

// hash-password はDBや設定を必要としない
func newHashPasswordCommand() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password <plaintext>",
		Short: "Print a bcrypt digest for the given password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHashPassword(args[0], cost, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&cost, "cost", password.DefaultCost, "bcrypt cost")

	return cmd
}

func newCreateAdminCommand(w io.Writer) *cobra.Command {
	var username, plaintext string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runCreateAdmin(cmd.Context(), cfg, username, plaintext, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&plaintext, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
