package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/changewatch/internal/app"
	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
)

func newAlertsCmd(opts *options) *cobra.Command {
	var (
		filter alert.Filter
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "alerts <monitor-id>",
		Short: "List the alerts of a monitor, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				alerts, total, err := a.Alerts.ListByMonitor(cmd.Context(), opts.userID(), args[0], filter, limit, 0)
				if err != nil {
					return fmt.Errorf("failed to list alerts: %w", err)
				}

				if format := opts.outputFormat(); format != "table" {
					return printOutput(opts.out, format, alerts)
				}

				t := NewTable(opts.out, "ID", "URGENCY", "PRIORITY", "CREATED", "READ", "TITLE")
				for _, al := range alerts {
					created := al.CreatedAt
					t.AddRow(
						al.ID,
						formatUrgency(al.Urgency),
						strconv.FormatFloat(al.Priority, 'f', 1, 64),
						formatTime(&created),
						strconv.FormatBool(al.Read),
						truncate(al.Title, 60),
					)
				}
				t.Render()
				fmt.Fprintf(opts.out, "%d of %d alert(s)\n", len(alerts), total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.Urgency, "urgency", "", "filter by urgency")
	cmd.Flags().BoolVar(&filter.UnreadOnly, "unread", false, "only unread alerts")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of alerts")

	return cmd
}
