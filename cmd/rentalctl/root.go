package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/activity"
	"github.com/rentaldesk/rentals/internal/app"
	"github.com/rentaldesk/rentals/internal/auth"
	"github.com/rentaldesk/rentals/internal/config"
	"github.com/rentaldesk/rentals/internal/logging"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/seed"
	"github.com/rentaldesk/rentals/internal/store"
)

type options struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "rentalctl",
		Short:         "Administer the rentals service database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a CUE config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newCreateUserCmd(opts),
		newDashboardCmd(opts),
	)
	return root
}

func (o *options) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.New(cfg.Env, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withApp runs fn against a fully wired App.
func (o *options) withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	if cfg.Database.Driver == "memory" {
		return errors.New("rentalctl needs a persistent database; database.driver is \"memory\"")
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return migrate(cmd.Context(), cfg.Database, logger, cmd.OutOrStdout())
		},
	}
}

func migrate(ctx context.Context, db config.DatabaseConfig, logger *zap.Logger, out io.Writer) error {
	if db.Driver == "memory" {
		return errors.New("nothing to migrate for the memory driver")
	}
	s, err := store.Open(db.Driver, db.DSN, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	if err := activity.NewSQLStore(s.Driver()).Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "migrated %s database\n", db.Driver)
	return nil
}

func newSeedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo owners, tenants, properties and contracts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				res, err := seed.Demo(cmd.Context(), a.Store, a.Generator, time.Now(), a.Logger)
				if err != nil {
					return err
				}
				if res.Skipped {
					fmt.Fprintln(cmd.OutOrStdout(), "database already has data; nothing seeded")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d owners, %d tenants, %d properties, %d contracts (%d installments)\n",
					res.Owners, res.Tenants, res.Properties, res.Contracts, res.Installments)
				return nil
			})
		},
	}
}

func newCreateUserCmd(opts *options) *cobra.Command {
	var (
		in    auth.NewUser
		admin bool
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an operator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Role = model.RoleUser
			if admin {
				in.Role = model.RoleAdmin
			}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				u, err := a.Auth.CreateUser(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s user %q (id %d)\n", u.Role, u.Username, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "login name")
	cmd.Flags().StringVar(&in.Password, "password", "", "password, at least 6 characters")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newDashboardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Print the contract and payment summary as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				s, err := a.Dashboard.Summary(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			})
		},
	}
}
