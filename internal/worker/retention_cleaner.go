package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
)

// RetentionStore is the part of the snapshot store used for cleanup
type RetentionStore interface {
	Cleanup(ctx context.Context, monitorID string, retentionDays int, dryRun bool) (int, error)
	MonitorIDs(ctx context.Context) ([]string, error)
}

// RetentionCleaner periodically removes snapshots past the retention period
type RetentionCleaner struct {
	store     RetentionStore
	cfg       config.RetentionConfig
	logger    *logger.Logger
	scheduler *cron.Cron
}

// CleanupReport summarises one retention run
type CleanupReport struct {
	DryRun    bool           `json:"dry_run"`
	Total     int            `json:"total"`
	ByMonitor map[string]int `json:"by_monitor"`
}

// NewRetentionCleaner creates a new retention cleaner
func NewRetentionCleaner(store RetentionStore, cfg config.RetentionConfig, log *logger.Logger) *RetentionCleaner {
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}
	return &RetentionCleaner{
		store:     store,
		cfg:       cfg,
		logger:    log,
		scheduler: cron.New(),
	}
}

// Start schedules cleanup runs until Stop is called
func (r *RetentionCleaner) Start(ctx context.Context) error {
	_, err := r.scheduler.AddFunc(r.cfg.Schedule, func() {
		if _, err := r.Run(ctx, "", false); err != nil {
			r.logger.ErrorWithErr(err, "Retention cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", r.cfg.Schedule, err)
	}
	r.scheduler.Start()
	r.logger.WithFields(map[string]interface{}{
		"schedule":       r.cfg.Schedule,
		"retention_days": r.cfg.Days,
	}).Info("Retention cleaner started")
	return nil
}

// Stop stops scheduling and waits for a running cleanup
func (r *RetentionCleaner) Stop() {
	<-r.scheduler.Stop().Done()
}

// Run cleans one monitor, or every monitor with snapshots when monitorID
// is empty. A dry run only counts.
func (r *RetentionCleaner) Run(ctx context.Context, monitorID string, dryRun bool) (*CleanupReport, error) {
	start := time.Now()

	ids := []string{monitorID}
	if monitorID == "" {
		var err error
		if ids, err = r.store.MonitorIDs(ctx); err != nil {
			return nil, err
		}
	}

	report := &CleanupReport{DryRun: dryRun, ByMonitor: make(map[string]int, len(ids))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		g.Go(func() error {
			n, err := r.store.Cleanup(gctx, id, r.cfg.Days, dryRun)
			if err != nil {
				return fmt.Errorf("cleanup of monitor %s: %w", id, err)
			}
			mu.Lock()
			report.ByMonitor[id] = n
			report.Total += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	r.logger.WithFields(map[string]interface{}{
		"monitors": len(ids),
		"total":    report.Total,
		"dry_run":  dryRun,
		"duration": time.Since(start).String(),
	}).Info("Retention cleanup finished")

	return report, nil
}
