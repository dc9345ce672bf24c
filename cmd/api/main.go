package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pratik-mahalle/changewatch/internal/app"
	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.ErrorWithErr(err, "Failed to start changewatch")
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		log.ErrorWithErr(err, "Server stopped with error")
		os.Exit(1)
	}
}
