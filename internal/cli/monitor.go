package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/changewatch/internal/app"
	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
)

func newMonitorCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Manage monitors",
	}

	cmd.AddCommand(newMonitorCreateCmd(opts))
	cmd.AddCommand(newMonitorListCmd(opts))
	cmd.AddCommand(newMonitorTransitionCmd(opts, "pause", "Stop scheduled checks of a monitor"))
	cmd.AddCommand(newMonitorTransitionCmd(opts, "resume", "Reactivate a paused or errored monitor"))
	cmd.AddCommand(newMonitorTransitionCmd(opts, "delete", "Delete a monitor"))

	return cmd
}

func newMonitorCreateCmd(opts *options) *cobra.Command {
	var (
		input     monitor.CreateInput
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "create <entity>",
		Short: "Create a monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Entity = args[0]
			if cmd.Flags().Changed("threshold") {
				input.AlertThreshold = &threshold
			}

			return opts.withApp(cmd.Context(), func(a *app.App) error {
				m, err := a.Monitors.Create(cmd.Context(), opts.userID(), input)
				if err != nil {
					return fmt.Errorf("failed to create monitor: %w", err)
				}
				return printMonitors(opts, m)
			})
		},
	}

	cmd.Flags().StringVar(&input.Frequency, "frequency", monitor.FrequencyDaily, "check frequency: hourly, daily, weekly, monthly")
	cmd.Flags().StringVar(&input.Category, "category", "", "entity category")
	cmd.Flags().StringSliceVar(&input.Frameworks, "framework", nil, "analysis framework (repeatable)")
	cmd.Flags().StringSliceVar(&input.NotificationChannels, "channel", nil, "notification channel, e.g. slack, log, webhook:<url>, nats:<subject> (repeatable)")
	cmd.Flags().Float64Var(&threshold, "threshold", monitor.DefaultAlertThreshold, "minimum signal confidence for alerting")

	return cmd
}

func newMonitorListCmd(opts *options) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List monitors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				monitors, _, err := a.Monitors.List(cmd.Context(), opts.userID(), monitor.Filter{Status: status}, limit, 0)
				if err != nil {
					return fmt.Errorf("failed to list monitors: %w", err)
				}
				return printMonitors(opts, monitors...)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of monitors")

	return cmd
}

func newMonitorTransitionCmd(opts *options, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <monitor-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				ctx, user, id := cmd.Context(), opts.userID(), args[0]

				var m *monitor.Monitor
				var err error
				switch action {
				case "pause":
					m, err = a.Monitors.Pause(ctx, user, id)
				case "resume":
					m, err = a.Monitors.Resume(ctx, user, id)
				default:
					err = a.Monitors.Delete(ctx, user, id)
				}
				if err != nil {
					return fmt.Errorf("failed to %s monitor: %w", action, err)
				}

				if m == nil {
					fmt.Fprintf(opts.out, "Monitor %s deleted\n", id)
					return nil
				}
				return printMonitors(opts, m)
			})
		},
	}
}

func printMonitors(opts *options, monitors ...*monitor.Monitor) error {
	if format := opts.outputFormat(); format != "table" {
		return printOutput(opts.out, format, monitors)
	}

	t := NewTable(opts.out, "ID", "ENTITY", "FREQUENCY", "STATUS", "THRESHOLD", "NEXT CHECK", "ERRORS")
	for _, m := range monitors {
		t.AddRow(
			m.ID,
			truncate(m.Entity, 40),
			m.Frequency,
			formatStatus(m.Status),
			strconv.FormatFloat(m.AlertThreshold, 'f', 2, 64),
			formatTime(m.NextCheck),
			strconv.Itoa(m.ConsecutiveErrorCount),
		)
	}
	t.Render()
	return nil
}
