package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/pratik-mahalle/changewatch/internal/app"
	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
)

// options carries the state shared by every command of one invocation
type options struct {
	v      *viper.Viper
	out    io.Writer
	cfg    *config.Config
	logger *logger.Logger
}

// Execute runs the CLI with the process arguments
func Execute() error {
	return NewRootCmd(os.Stdout).Execute()
}

// NewRootCmd builds the command tree writing results to out
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &options{v: viper.New(), out: out}
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "changewatch",
		Short: "changewatch - change detection and alerting for tracked entities",
		Long: `changewatch periodically analyses tracked entities, stores compressed
snapshots, detects changes and statistical anomalies, and alerts on what matters.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				opts.v.SetConfigFile(cfgFile)
				if err := opts.v.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read config file: %w", err)
				}
			}
			cfg, err := config.LoadFrom(opts.v)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			// stdout carries command output only
			output := cfg.Logging.OutputPath
			if output == "" || output == "stdout" {
				output = "stderr"
			}
			format := cfg.Logging.Format
			if output == "stderr" && !cmd.Flags().Changed("log-format") && os.Getenv("LOG_FORMAT") == "" &&
				term.IsTerminal(int(os.Stderr.Fd())) {
				format = "console"
			}
			opts.logger = logger.New(logger.Config{
				Level:      cfg.Logging.Level,
				Format:     format,
				OutputPath: output,
			})
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.StringP("output", "o", "table", "output format: table, json, yaml")
	flags.String("user", "cli", "user ID that owns the monitors")
	flags.String("db-driver", "sqlite", "database driver: sqlite or postgres")
	flags.String("db-path", "./changewatch.db", "sqlite database path")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "json", "log format: json or console")

	bind := map[string]string{
		"output":     "output",
		"user":       "user_id",
		"db-driver":  "db_driver",
		"db-path":    "db_path",
		"log-level":  "log_level",
		"log-format": "log_format",
	}
	for flag, key := range bind {
		_ = opts.v.BindPFlag(key, flags.Lookup(flag))
	}

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newMonitorCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newCleanupCmd(opts))
	cmd.AddCommand(newAlertsCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))

	return cmd
}

// withApp wires the application for a one-shot command and closes it after
func (o *options) withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, o.cfg, o.logger)
	if err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.Close(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (o *options) userID() string {
	return o.v.GetString("user_id")
}

func (o *options) outputFormat() string {
	return o.v.GetString("output")
}
