// Package cli implements connectctl, the operator tool for a connect
// deployment. It reads the same environment as the server.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ruet-connect/connect/services/connect/config"
	"github.com/ruet-connect/connect/services/connect/internal/app"
	"github.com/ruet-connect/connect/services/connect/internal/database"
	"github.com/ruet-connect/connect/services/connect/internal/resolver"
	"github.com/ruet-connect/connect/services/connect/pkg/identity"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root := newRootCmd(os.Stdout)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type rootOptions struct {
	out     io.Writer
	output  string
	dbPath  string
	backend string
	verbose bool

	cfg *config.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}

	rootCmd := &cobra.Command{
		Use:           "connectctl",
		Short:         "Operate a RUET Connect deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("--output must be text or json, got %q", opts.output)
			}
			opts.cfg = config.Load()
			if opts.dbPath != "" {
				opts.cfg.DB.Path = opts.dbPath
			}
			if opts.backend != "" {
				opts.cfg.Backend = opts.backend
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "Storage backend: sqlite or firebase (overrides BACKEND)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log service activity to stderr")

	rootCmd.AddCommand(
		newShortIDCmd(opts),
		newProvisionDemoCmd(opts),
		newPendingCmd(opts),
		newMigrateCmd(opts),
		newPurgeOrphansCmd(opts),
		newVersionCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) open(ctx context.Context) (*app.App, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if o.verbose {
		logger = app.NewLogger(o.cfg)
	}
	return app.New(ctx, o.cfg, logger)
}

// print writes v as indented JSON, or text via the fallback.
func (o *rootOptions) print(v interface{}, text string) error {
	if o.output == "json" {
		enc := json.NewEncoder(o.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(o.out, text)
	return err
}

func newShortIDCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "short-id <email-or-student-id>",
		Short: "Show the short id, role and admin flag an address resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := identity.StudentEmail(args[0])
			shortID, err := identity.DeriveShortID(email)
			if err != nil {
				return err
			}
			admins := resolver.New(nil, resolver.Options{AdminEmails: opts.cfg.Auth.AdminEmails})
			result := struct {
				Email   string `json:"email"`
				ShortID string `json:"short_id"`
				Role    string `json:"role"`
				IsAdmin bool   `json:"is_admin"`
			}{
				Email:   email,
				ShortID: shortID,
				Role:    string(identity.RoleForEmail(email)),
				IsAdmin: admins.IsAdminEmail(email),
			}
			return opts.print(result, fmt.Sprintf("%s\t%s\trole=%s admin=%t", result.Email, result.ShortID, result.Role, result.IsAdmin))
		},
	}
}

func newProvisionDemoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "provision-demo",
		Short: "Create the demo account if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !opts.cfg.Demo.Enabled {
				return errors.New("demo account is disabled (DEMO_ENABLED=false)")
			}
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.ProvisionDemo(cmd.Context())
			if err != nil {
				return err
			}
			return opts.print(snap.User, fmt.Sprintf("demo account %s ready (id %s)", snap.User.ShortID, snap.User.ID))
		},
	}
}

func newPendingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending <owner-id>",
		Short: "Count pending claim requests on an owner's items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Claims.PendingCountFor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.print(map[string]interface{}{"owner_id": args[0], "pending": n}, fmt.Sprint(n))
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfg.Backend != config.BackendSQLite {
				return fmt.Errorf("migrations apply to the sqlite backend only, BACKEND is %q", opts.cfg.Backend)
			}
			db, err := database.New(opts.cfg.DB.Path)
			if err != nil {
				return err
			}
			if err := db.Close(); err != nil {
				return err
			}
			return opts.print(map[string]string{"database": opts.cfg.DB.Path, "status": "migrated"},
				fmt.Sprintf("migrations applied to %s", opts.cfg.DB.Path))
		},
	}
}

func newPurgeOrphansCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-orphans",
		Short: "Delete profiles whose sign-in account no longer exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Accounts.PurgeOrphanedProfiles(cmd.Context())
			if err != nil {
				return err
			}
			tokens, err := a.PurgeExpiredTokens(cmd.Context())
			if err != nil {
				return err
			}
			return opts.print(map[string]int{"purged": n, "expired_tokens": tokens},
				fmt.Sprintf("purged %d orphaned profile(s), %d expired token(s)", n, tokens))
		},
	}
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.print(map[string]string{"version": version, "commit": commit},
				fmt.Sprintf("connectctl version %s (commit: %s)", version, commit))
		},
	}
}
