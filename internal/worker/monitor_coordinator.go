package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/pratik-mahalle/changewatch/internal/bus"
	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/domain/aggregation"
	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/domain/anomaly"
	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/domain/notification"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
	"github.com/pratik-mahalle/changewatch/internal/pkg/metrics"
	"github.com/pratik-mahalle/changewatch/internal/producer"
)

// ChangeDetector compares two consecutive payloads
type ChangeDetector interface {
	Detect(previous, current *snapshot.Payload) []alert.Change
}

// Scorer decides whether a check's signals produce an alert
type Scorer interface {
	Score(mon *monitor.Monitor, changes []alert.Change, anomalies []anomaly.Score, recent []*alert.Alert, now time.Time) alert.Decision
}

// Dependencies are the collaborators of a MonitorCoordinator
type Dependencies struct {
	Monitors   monitor.Repository
	Alerts     alert.Repository
	Store      snapshot.Store
	Aggregator aggregation.Service
	Changes    ChangeDetector
	Anomalies  anomaly.Detector
	Scorer     Scorer
	Dispatcher notification.Dispatcher
	Producer   producer.Producer
}

// MonitorCoordinator schedules and runs monitor checks. At most one check
// per monitor runs at a time and the total is bounded by the worker pool.
type MonitorCoordinator struct {
	deps    Dependencies
	cfg     config.CoordinatorConfig
	logger  *logger.Logger
	now     func() time.Time
	leases  *xsync.Map[string, struct{}]
	pool    *semaphore.Weighted
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	scheduler *cron.Cron
	stopOnce  sync.Once
}

// NewMonitorCoordinator creates a coordinator; call Start to begin scheduling
func NewMonitorCoordinator(deps Dependencies, cfg config.CoordinatorConfig, log *logger.Logger) *MonitorCoordinator {
	if cfg.MaxConcurrentChecks < 1 {
		cfg.MaxConcurrentChecks = 5
	}
	if cfg.ProducerTimeout <= 0 {
		cfg.ProducerTimeout = 60 * time.Second
	}
	if cfg.ErrorThreshold < 1 {
		cfg.ErrorThreshold = 3
	}
	if cfg.HistoryDepth < 1 {
		cfg.HistoryDepth = 60
	}
	if cfg.TickSchedule == "" {
		cfg.TickSchedule = "@every 1m"
	}

	limit := rate.Inf
	if cfg.ProducerRPS > 0 {
		limit = rate.Limit(cfg.ProducerRPS)
	}
	burst := max(cfg.ProducerBurst, 1)

	ctx, cancel := context.WithCancel(context.Background())
	return &MonitorCoordinator{
		deps:      deps,
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
		leases:    xsync.NewMap[string, struct{}](),
		pool:      semaphore.NewWeighted(int64(cfg.MaxConcurrentChecks)),
		limiter:   rate.NewLimiter(limit, burst),
		ctx:       ctx,
		cancel:    cancel,
		scheduler: cron.New(),
	}
}

// Start registers the due-monitor tick and starts the scheduler. The
// coordinator stops when ctx is cancelled or Stop is called.
func (c *MonitorCoordinator) Start(ctx context.Context) error {
	if _, err := c.scheduler.AddFunc(c.cfg.TickSchedule, c.tick); err != nil {
		return fmt.Errorf("invalid tick schedule %q: %w", c.cfg.TickSchedule, err)
	}
	c.scheduler.Start()

	c.logger.WithFields(map[string]interface{}{
		"schedule":        c.cfg.TickSchedule,
		"max_concurrency": c.cfg.MaxConcurrentChecks,
	}).Info("Monitor coordinator started")

	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.ctx.Done():
		}
	}()
	return nil
}

// Stop stops scheduling, waits for in-flight checks and releases resources
func (c *MonitorCoordinator) Stop() {
	c.stopOnce.Do(func() {
		<-c.scheduler.Stop().Done()
		c.wg.Wait()
		c.cancel()
		c.logger.Info("Monitor coordinator stopped")
	})
}

// Wait blocks until every triggered check has finished
func (c *MonitorCoordinator) Wait() {
	c.wg.Wait()
}

// tick triggers every monitor that is due
func (c *MonitorCoordinator) tick() {
	due, err := c.deps.Monitors.ListDue(c.ctx, c.now())
	if err != nil {
		c.logger.ErrorWithErr(err, "Failed to list due monitors")
		return
	}
	for _, m := range due {
		if err := c.Trigger(c.ctx, m.ID); err != nil && !errors.IsCode(err, errors.ErrCodeCheckInProgress) {
			c.logger.WithFields(map[string]interface{}{
				"monitor_id": m.ID,
			}).ErrorWithErr(err, "Failed to trigger check")
		}
	}
}

// Trigger starts a check in the background and returns immediately. A
// monitor whose check is still running is not triggered again.
func (c *MonitorCoordinator) Trigger(ctx context.Context, monitorID string) error {
	if err := c.ctx.Err(); err != nil {
		return errors.ServiceUnavailable("Coordinator is stopped")
	}
	if !c.acquire(monitorID) {
		return errors.CheckInProgress(monitorID)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(monitorID)

		if err := c.pool.Acquire(c.ctx, 1); err != nil {
			return
		}
		defer c.pool.Release(1)

		if _, err := c.check(c.ctx, monitorID, false); err != nil {
			c.logger.WithFields(map[string]interface{}{
				"monitor_id": monitorID,
			}).WarnWithErr(err, "Check not run")
		}
	}()
	return nil
}

// HandleTrigger adapts Trigger to bus trigger events
func (c *MonitorCoordinator) HandleTrigger(evt bus.TriggerEvent) {
	if err := c.Trigger(c.ctx, evt.MonitorID); err != nil && !errors.IsCode(err, errors.ErrCodeCheckInProgress) {
		c.logger.WithFields(map[string]interface{}{
			"monitor_id": evt.MonitorID,
		}).ErrorWithErr(err, "Failed to trigger check from bus")
	}
}

// RunCheck runs a check synchronously. With force a paused monitor is
// checked too.
func (c *MonitorCoordinator) RunCheck(ctx context.Context, monitorID string, force bool) (*monitor.CheckResult, error) {
	if !c.acquire(monitorID) {
		return nil, errors.CheckInProgress(monitorID)
	}
	defer c.release(monitorID)

	if err := c.pool.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.pool.Release(1)

	return c.check(ctx, monitorID, force)
}

func (c *MonitorCoordinator) acquire(monitorID string) bool {
	_, held := c.leases.LoadOrStore(monitorID, struct{}{})
	if held {
		metrics.RecordSkippedTrigger()
		c.logger.WithFields(map[string]interface{}{
			"monitor_id": monitorID,
		}).Debug("Check already in progress, skipping trigger")
	}
	return !held
}

func (c *MonitorCoordinator) release(monitorID string) {
	c.leases.Delete(monitorID)
}

// check runs one cycle for a monitor while the caller holds its lease. An
// error means the check could not start; failures during the cycle are
// reported in the result.
func (c *MonitorCoordinator) check(ctx context.Context, monitorID string, force bool) (*monitor.CheckResult, error) {
	m, err := c.deps.Monitors.GetByID(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	switch {
	case m.Status == monitor.StatusActive:
	case force && m.Status == monitor.StatusPaused:
	default:
		return nil, errors.InvalidState(m.Status, "check")
	}

	start := time.Now()
	defer metrics.CheckStarted()()

	result := &monitor.CheckResult{MonitorID: m.ID, Status: monitor.CheckOK}
	c.cycle(ctx, m, result)

	metrics.RecordCheck(result.Status, time.Since(start))

	fields := c.logger.WithFields(map[string]interface{}{
		"monitor_id": m.ID,
		"entity":     m.Entity,
		"status":     result.Status,
		"baseline":   result.Baseline,
		"changes":    result.Changes,
		"duration":   time.Since(start).String(),
	})
	switch {
	case result.Status == monitor.CheckFailed:
		fields.Warnf("Check failed: %v", result.Reasons)
	case result.Alert != nil:
		fields.With("alert_id", result.Alert.ID).Info("Check completed with alert")
	default:
		fields.With("suppressed", result.Suppressed).Info("Check completed")
	}
	return result, nil
}

func (c *MonitorCoordinator) cycle(ctx context.Context, m *monitor.Monitor, result *monitor.CheckResult) {
	payload, err := c.produce(ctx, m)
	if err != nil {
		c.fail(ctx, m, result, errors.ProducerError(m.Entity, err))
		return
	}

	previous, err := c.deps.Store.Latest(ctx, m.ID)
	if err != nil {
		c.fail(ctx, m, result, err)
		return
	}

	now := c.now().UTC()
	ack, err := c.deps.Store.Store(ctx, &snapshot.Snapshot{
		ID:        uuid.New().String(),
		MonitorID: m.ID,
		Timestamp: now,
		Payload:   payload,
	})
	if err != nil {
		c.fail(ctx, m, result, err)
		return
	}
	if err := c.deps.Store.Flush(ctx); err != nil {
		// A snapshot that was never scored must not become the next baseline
		if c.deps.Store.Discard(ack.SnapshotID) {
			c.fail(ctx, m, result, err)
			return
		}
		c.logger.WithFields(map[string]interface{}{
			"monitor_id":  m.ID,
			"snapshot_id": ack.SnapshotID,
		}).WarnWithErr(err, "Flush failed after the snapshot was persisted")
	}
	result.SnapshotID = ack.SnapshotID

	history, err := c.deps.Store.Recent(ctx, m.ID, now, c.cfg.HistoryDepth)
	if err != nil {
		c.fail(ctx, m, result, err)
		return
	}
	for _, period := range aggregation.Periods {
		if _, err := c.deps.Aggregator.Aggregate(ctx, m.ID, period, now); err != nil {
			c.fail(ctx, m, result, err)
			return
		}
	}

	if previous == nil {
		result.Baseline = true
		c.succeed(ctx, m, result, now)
		return
	}

	changes := c.deps.Changes.Detect(previous.Payload, payload)
	result.Changes = len(changes)
	scores := c.scoreMetrics(m, history, payload, result)

	recent, err := c.deps.Alerts.ListSince(ctx, m.ID, now.Add(-24*time.Hour))
	if err != nil {
		c.fail(ctx, m, result, errors.StorageError("Failed to load recent alerts", err))
		return
	}

	decision := c.deps.Scorer.Score(m, changes, scores, recent, now)
	if decision.Alert == nil {
		result.Suppressed = decision.Suppressed
		metrics.RecordSuppressed(decision.Suppressed)
		c.succeed(ctx, m, result, now)
		return
	}

	if err := c.deps.Alerts.Create(ctx, decision.Alert); err != nil {
		c.fail(ctx, m, result, errors.StorageError("Failed to persist alert", err))
		return
	}
	result.Alert = decision.Alert
	metrics.RecordAlert(decision.Alert.Urgency)

	if len(m.NotificationChannels) > 0 {
		c.deps.Dispatcher.Dispatch(ctx, decision.Alert, m.NotificationChannels)
	}
	c.succeed(ctx, m, result, now)
}

// produce calls the producer under the rate limit and the per-check timeout.
// The timeout holds even when the producer ignores its context.
func (c *MonitorCoordinator) produce(ctx context.Context, m *monitor.Monitor) (*snapshot.Payload, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, c.cfg.ProducerTimeout)
	defer cancel()

	type produced struct {
		payload *snapshot.Payload
		err     error
	}
	ch := make(chan produced, 1)
	go func() {
		p, err := c.deps.Producer.Produce(pctx, m.Entity, m.Category, m.Frameworks)
		ch <- produced{p, err}
	}()

	var r produced
	select {
	case r = <-ch:
	case <-pctx.Done():
	}
	switch err := pctx.Err(); {
	case err == context.DeadlineExceeded && ctx.Err() == nil:
		return nil, fmt.Errorf("producer timed out after %s: %w", c.cfg.ProducerTimeout, err)
	case err != nil:
		return nil, err
	}
	if r.err == nil && r.payload == nil {
		return nil, fmt.Errorf("producer returned no payload")
	}
	return r.payload, r.err
}

// scoreMetrics scores every numeric metric of the new payload against its
// own history. Skipped metrics degrade the result.
func (c *MonitorCoordinator) scoreMetrics(m *monitor.Monitor, history []*snapshot.Snapshot, payload *snapshot.Payload, result *monitor.CheckResult) []anomaly.Score {
	season := monitor.SeasonLength(m.Frequency)
	names := payload.MetricNames()
	scores := make([]anomaly.Score, 0, len(names))

	for _, name := range names {
		series := snapshot.Values(snapshot.Series(history, name))
		score := c.deps.Anomalies.ScoreSeasonal(m.ID, name, series, payload.Metrics[name], season)
		switch {
		case score.Skipped():
			metrics.RecordAnomalySkipped(score.SkipReason)
			result.Degrade(errors.AnomalyModelError(name, score.SkipReason).Message)
		case score.IsAnomaly:
			metrics.RecordAnomaly(score.AnomalyType)
		}
		scores = append(scores, score)
	}
	return scores
}

func (c *MonitorCoordinator) succeed(ctx context.Context, m *monitor.Monitor, result *monitor.CheckResult, checkedAt time.Time) {
	ctx = context.WithoutCancel(ctx)
	next := checkedAt.Add(monitor.Interval(m.Frequency))
	if err := c.deps.Monitors.RecordSuccess(ctx, m.ID, checkedAt, next); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"monitor_id": m.ID,
		}).ErrorWithErr(err, "Failed to record check success")
		result.Degrade("failed to record check: " + err.Error())
	}
}

// fail records the failure and moves the monitor to error once the
// threshold is reached. The status change only applies to a monitor that
// is still active, so a concurrent pause or delete wins.
func (c *MonitorCoordinator) fail(ctx context.Context, m *monitor.Monitor, result *monitor.CheckResult, cause error) {
	result.Fail(cause.Error())

	ctx = context.WithoutCancel(ctx)
	now := c.now().UTC()
	count, err := c.deps.Monitors.RecordFailure(ctx, m.ID, cause.Error(), now.Add(monitor.Interval(m.Frequency)))
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"monitor_id": m.ID,
		}).ErrorWithErr(err, "Failed to record check failure")
		return
	}
	if count < c.cfg.ErrorThreshold {
		return
	}

	moved, err := c.deps.Monitors.TransitionStatus(ctx, m.ID, monitor.StatusActive, monitor.StatusError)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"monitor_id": m.ID,
		}).ErrorWithErr(err, "Failed to move monitor to error")
		return
	}
	if moved {
		metrics.RecordStateTransition(monitor.StatusError)
		c.logger.WithFields(map[string]interface{}{
			"monitor_id":         m.ID,
			"consecutive_errors": count,
		}).Warn("Monitor moved to error after repeated failures")
	}
}
