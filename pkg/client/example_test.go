package client_test

import (
	"context"
	"fmt"
	"log"

	"github.com/pratik-mahalle/changewatch/pkg/client"
)

// Example demonstrates creating a monitor and running its first check
func Example() {
	c := client.NewClient(client.Config{
		BaseURL: "http://localhost:8080",
		UserID:  "alice",
	})

	ctx := context.Background()

	m, err := c.Monitors().Create(ctx, client.CreateMonitorRequest{
		Entity:               "Acme Corp",
		Frequency:            "daily",
		NotificationChannels: []string{"slack"},
	})
	if err != nil {
		log.Fatal(err)
	}

	resp, err := c.Monitors().Check(ctx, m.ID, false)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Check status: %s, baseline: %v\n", resp.Result.Status, resp.Result.Baseline)
}

// ExampleAlertService_ListByMonitor demonstrates triaging unread alerts
func ExampleAlertService_ListByMonitor() {
	c := client.NewClient(client.Config{
		BaseURL: "http://localhost:8080",
		Token:   "eyJ...",
	})

	ctx := context.Background()

	page, err := c.Alerts().ListByMonitor(ctx, "monitor-id", &client.AlertListOptions{
		ListOptions: client.ListOptions{PageSize: 50},
		UnreadOnly:  true,
	})
	if err != nil {
		log.Fatal(err)
	}

	for _, a := range page.Data {
		fmt.Printf("[%s] %s (priority %.1f)\n", a.Urgency, a.Title, a.Priority)
		if err := c.Alerts().MarkRead(ctx, a.ID); err != nil {
			log.Fatal(err)
		}
	}
}

// ExampleAPIError demonstrates handling API errors
func ExampleAPIError() {
	c := client.NewClient(client.Config{
		BaseURL: "http://localhost:8080",
		UserID:  "alice",
	})

	_, err := c.Monitors().Pause(context.Background(), "monitor-id")
	if apiErr, ok := client.AsAPIError(err); ok {
		switch {
		case apiErr.IsNotFound():
			fmt.Println("Monitor not found")
		case apiErr.IsConflict():
			fmt.Println("Monitor is not active")
		default:
			fmt.Printf("API error: %v\n", apiErr)
		}
	}
}
