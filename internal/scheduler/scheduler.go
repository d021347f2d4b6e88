// Package scheduler owns the notification job queue: a fixed-period dispatch
// tick that delivers due jobs, and fixed-cadence generators that populate the
// queue from user preferences and upcoming matches.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/delivery"
	"github.com/lalithlochan/pitchside/internal/job"
	"github.com/lalithlochan/pitchside/internal/metrics"
)

// DedupGuard suppresses duplicate generator enqueues. Reserve returns false
// when the key was already claimed; Release gives a reservation back when
// the enqueue it covered did not happen, so the next cadence can retry. A
// nil guard disables suppression; the daily cadence then bounds duplication
// on its own.
type DedupGuard interface {
	Reserve(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Config tunes the scheduler's cadences. Zero values fall back to defaults.
type Config struct {
	DispatchInterval time.Duration // dispatch tick period
	AlertInterval    time.Duration // match-alert generation period
	DailyTriggerAt   string        // "HH:MM" UTC, digest generation + retention
	DigestHour       int           // local wall-clock hour digests land at
	AlertLead        time.Duration // how long before kickoff an alert fires
	AlertLookahead   time.Duration // event scan horizon
	RetentionDays    int
}

// Status is the scheduler's operational summary.
type Status struct {
	IsRunning    bool `json:"is_running"`
	PendingCount int  `json:"pending_count"`
}

// Scheduler maintains the job queue and runs the dispatch and generator
// ticks. All collaborators are injected; the scheduler itself holds no
// transport or storage knowledge.
type Scheduler struct {
	store     job.Store
	deliverer delivery.Deliverer
	source    UserSource
	guard     DedupGuard // nil disables dedup
	cfg       Config
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// dispatchInFlight keeps a slow tick from overlapping the next one.
	dispatchInFlight atomic.Bool

	now func() time.Time
}

// New creates a scheduler. guard may be nil.
func New(store job.Store, deliverer delivery.Deliverer, source UserSource, guard DedupGuard, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = time.Minute
	}
	if cfg.AlertInterval <= 0 {
		cfg.AlertInterval = 10 * time.Minute
	}
	if _, err := time.Parse("15:04", cfg.DailyTriggerAt); err != nil {
		cfg.DailyTriggerAt = "04:00"
	}
	if cfg.DigestHour <= 0 {
		cfg.DigestHour = 7
	}
	if cfg.AlertLead <= 0 {
		cfg.AlertLead = 30 * time.Minute
	}
	if cfg.AlertLookahead <= 0 {
		cfg.AlertLookahead = 24 * time.Hour
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}

	return &Scheduler{
		store:     store,
		deliverer: deliverer,
		source:    source,
		guard:     guard,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Start registers the dispatch and generator ticks. Calling Start on a
// running scheduler is a logged no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("scheduler already running, ignoring Start")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(3)
	go s.runDispatch(ctx)
	go s.runAlertGenerator(ctx)
	go s.runDailyTasks(ctx)

	s.logger.Info("scheduler started",
		zap.Duration("dispatch_interval", s.cfg.DispatchInterval),
		zap.Duration("alert_interval", s.cfg.AlertInterval),
		zap.String("daily_trigger_at", s.cfg.DailyTriggerAt),
	)
}

// Stop cancels all registered ticks and waits for an in-flight tick to
// finish. The queue is left untouched. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Debug("scheduler not running, ignoring Stop")
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// ScheduleNotification inserts a pending job into the queue. No
// deduplication is performed here; callers own that.
func (s *Scheduler) ScheduleNotification(ctx context.Context, n *job.Notification) error {
	if err := s.store.Insert(ctx, n); err != nil {
		return fmt.Errorf("schedule notification: %w", err)
	}

	metrics.RecordJobScheduled(string(n.Type))
	s.logger.Info("notification scheduled",
		zap.String("job_id", n.ID.String()),
		zap.String("user_id", n.UserID),
		zap.String("type", string(n.Type)),
		zap.Time("scheduled_for", n.ScheduledFor),
	)
	return nil
}

// GetPendingNotifications returns a read-only snapshot of pending jobs.
func (s *Scheduler) GetPendingNotifications(ctx context.Context) ([]*job.Notification, error) {
	return s.store.Pending(ctx)
}

// ClearOldNotifications removes terminal jobs older than the retention
// horizon and returns the removed count. Pending jobs are never removed.
func (s *Scheduler) ClearOldNotifications(ctx context.Context, retentionDays int) (int, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	removed, err := s.store.PruneTerminal(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear old notifications: %w", err)
	}

	if removed > 0 {
		metrics.RecordJobsPruned(removed)
		s.logger.Info("old notifications cleared",
			zap.Int("removed", removed),
			zap.Int("retention_days", retentionDays),
		)
	}
	return removed, nil
}

// GetStatus reports whether the scheduler is running and the pending count.
func (s *Scheduler) GetStatus(ctx context.Context) Status {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	count, err := s.store.PendingCount(ctx)
	if err != nil {
		s.logger.Error("failed to count pending jobs", zap.Error(err))
	}

	return Status{
		IsRunning:    running,
		PendingCount: count,
	}
}

func (s *Scheduler) runDispatch(ctx context.Context) {
	defer s.wg.Done()

	// Stop cancels ctx to end the loop, but an already-running tick must
	// finish its deliveries undisturbed; a cancelled delivery would mark a
	// deliverable job Failed, which is irreversible. Stop's wg.Wait provides
	// the drain.
	workCtx := context.WithoutCancel(ctx)

	ticker := time.NewTicker(s.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processDue(workCtx)
		}
	}
}

// processDue is one dispatch tick: deliver every due pending job. A job's
// failure is recorded on the job and never aborts the batch.
func (s *Scheduler) processDue(ctx context.Context) {
	if !s.dispatchInFlight.CompareAndSwap(false, true) {
		s.logger.Warn("previous dispatch tick still in flight, skipping")
		return
	}
	defer s.dispatchInFlight.Store(false)

	start := s.now()
	due, err := s.store.Due(ctx, start)
	if err != nil {
		s.logger.Error("failed to select due jobs", zap.Error(err))
		return
	}

	delivered := 0
	for _, n := range due {
		if err := s.deliverer.Deliver(ctx, n); err != nil {
			s.logger.Error("delivery failed",
				zap.String("job_id", n.ID.String()),
				zap.String("user_id", n.UserID),
				zap.Error(err),
			)
			if markErr := s.store.MarkFailed(ctx, n.ID, err.Error()); markErr != nil {
				s.logger.Error("failed to record delivery failure",
					zap.String("job_id", n.ID.String()),
					zap.Error(markErr),
				)
			}
			metrics.RecordJobProcessed(string(job.StatusFailed), string(n.Type))
			continue
		}

		if markErr := s.store.MarkDelivered(ctx, n.ID, s.now()); markErr != nil {
			s.logger.Error("failed to record delivery",
				zap.String("job_id", n.ID.String()),
				zap.Error(markErr),
			)
		}
		delivered++
		metrics.RecordJobProcessed(string(job.StatusDelivered), string(n.Type))
	}

	if len(due) > 0 {
		s.logger.Info("dispatch tick complete",
			zap.Int("attempted", len(due)),
			zap.Int("delivered", delivered),
		)
	}
	metrics.RecordDispatchTick(time.Since(start))

	if count, err := s.store.PendingCount(ctx); err == nil {
		metrics.SetJobsPending(count)
	}
}

func (s *Scheduler) runAlertGenerator(ctx context.Context) {
	defer s.wg.Done()

	workCtx := context.WithoutCancel(ctx)

	ticker := time.NewTicker(s.cfg.AlertInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.generateMatchAlerts(workCtx)
		}
	}
}

// runDailyTasks fires once per day at the configured UTC wall-clock time:
// digest generation, then retention pruning.
func (s *Scheduler) runDailyTasks(ctx context.Context) {
	defer s.wg.Done()

	workCtx := context.WithoutCancel(ctx)

	for {
		trigger := s.nextDailyTrigger()
		timer := time.NewTimer(trigger.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.generateDailyDigests(workCtx)
		if _, err := s.ClearOldNotifications(workCtx, s.cfg.RetentionDays); err != nil {
			s.logger.Error("retention run failed", zap.Error(err))
		}
	}
}

// nextDailyTrigger returns the next UTC occurrence of cfg.DailyTriggerAt.
func (s *Scheduler) nextDailyTrigger() time.Time {
	at, _ := time.Parse("15:04", s.cfg.DailyTriggerAt)

	now := s.now().UTC()
	trigger := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, time.UTC)
	if !trigger.After(now) {
		trigger = trigger.AddDate(0, 0, 1)
	}
	return trigger
}
