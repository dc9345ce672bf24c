package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/changewatch/internal/app"
	"github.com/pratik-mahalle/changewatch/internal/repository/postgres"
	"github.com/pratik-mahalle/changewatch/migrations"
)

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}

	cmd.Flags().Int("port", 8080, "HTTP port")
	_ = opts.v.BindPFlag("server_port", cmd.Flags().Lookup("port"))

	return cmd
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := postgres.New(opts.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			schema, err := migrations.GetFS(db.Driver)
			if err != nil {
				return fmt.Errorf("no migrations for driver %s: %w", db.Driver, err)
			}
			applied, err := postgres.RunMigrations(db, schema)
			if err != nil {
				return err
			}

			fmt.Fprintf(opts.out, "Applied %d migration(s) to %s\n", applied, db.Driver)
			return nil
		},
	}
}
