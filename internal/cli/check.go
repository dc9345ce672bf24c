package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/changewatch/internal/app"
)

func newCheckCmd(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "check <monitor-id>",
		Short: "Run a check now and print its outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				if _, err := a.Monitors.Get(cmd.Context(), opts.userID(), args[0]); err != nil {
					return err
				}
				result, err := a.Coordinator.RunCheck(cmd.Context(), args[0], force)
				if err != nil {
					return err
				}
				// deliveries run in the background
				a.Notifier.Wait()

				if format := opts.outputFormat(); format != "table" {
					return printOutput(opts.out, format, result)
				}

				fmt.Fprintf(opts.out, "Status:   %s\n", formatStatus(result.Status))
				if result.Baseline {
					fmt.Fprintln(opts.out, "Baseline: first snapshot stored")
				}
				fmt.Fprintf(opts.out, "Changes:  %d\n", result.Changes)
				for _, reason := range result.Reasons {
					fmt.Fprintf(opts.out, "Reason:   %s\n", reason)
				}
				switch {
				case result.Alert != nil:
					fmt.Fprintf(opts.out, "Alert:    %s (%s, priority %.1f)\n",
						result.Alert.Title, formatUrgency(result.Alert.Urgency), result.Alert.Priority)
				case result.Suppressed != "":
					fmt.Fprintf(opts.out, "Alert:    suppressed (%s)\n", result.Suppressed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "also check a paused monitor")

	return cmd
}

func newCleanupCmd(opts *options) *cobra.Command {
	var (
		monitorID string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete snapshots older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Cleaner.Run(cmd.Context(), monitorID, dryRun)
				if err != nil {
					return fmt.Errorf("cleanup failed: %w", err)
				}

				if format := opts.outputFormat(); format != "table" {
					return printOutput(opts.out, format, report)
				}

				ids := make([]string, 0, len(report.ByMonitor))
				for id := range report.ByMonitor {
					ids = append(ids, id)
				}
				sort.Strings(ids)

				t := NewTable(opts.out, "MONITOR", "SNAPSHOTS")
				for _, id := range ids {
					t.AddRow(id, strconv.Itoa(report.ByMonitor[id]))
				}
				t.Render()

				verb := "Deleted"
				if report.DryRun {
					verb = "Would delete"
				}
				fmt.Fprintf(opts.out, "%s %d snapshot(s) older than %d days\n", verb, report.Total, opts.cfg.Retention.Days)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&monitorID, "monitor", "", "only clean this monitor")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count without deleting")
	cmd.Flags().Int("retention-days", 90, "retention period in days")
	_ = opts.v.BindPFlag("retention_days", cmd.Flags().Lookup("retention-days"))

	return cmd
}
