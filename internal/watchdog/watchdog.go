// Package watchdog supervises the external prediction service: it probes the
// service on a fixed cadence and restarts it, within a bounded budget, when
// probes fail repeatedly.
package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/metrics"
)

// Probe checks liveness of the supervised service.
type Probe interface {
	Check(ctx context.Context) error
}

// Handle identifies a launched child process.
type Handle interface {
	PID() int
}

// Launcher starts a fresh instance of the supervised service.
type Launcher interface {
	Launch(ctx context.Context) (Handle, error)
}

// Derived health states reported by Health. They are computed from the
// counters, never stored.
const (
	StateHealthy        = "healthy"
	StateDegrading      = "degrading"
	StateRestartPending = "restart_pending"
	StateCooling        = "cooling"
	StateExhausted      = "exhausted"
)

// Config tunes the supervision loop. Zero values fall back to defaults.
type Config struct {
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	FailureThreshold int           // consecutive failures before a restart
	MaxRestarts      int           // lifetime restart budget, never reset
	RestartCooldown  time.Duration // minimum gap between restart attempts
	GracePeriod      time.Duration // post-launch settle time, extended once
}

// Health is the watchdog's externally visible state.
type Health struct {
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	RestartAttempts     int        `json:"restart_attempts"`
	MaxRestarts         int        `json:"max_restarts"`
	LastProbeAt         *time.Time `json:"last_probe_at,omitempty"`
	LastProbeError      string     `json:"last_probe_error,omitempty"`
	LastRestartAt       *time.Time `json:"last_restart_at,omitempty"`
	ChildPID            int        `json:"child_pid,omitempty"`
}

// Watchdog runs the probe loop and owns the restart decision. A probe
// failure only matters when consecutive; any success resets the failure
// streak but never the restart budget.
type Watchdog struct {
	probe    Probe
	launcher Launcher
	cfg      Config
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// probeInFlight keeps the tick from stacking probes behind a slow check
	// or an in-progress restart.
	probeInFlight atomic.Bool

	stateMu             sync.Mutex
	consecutiveFailures int
	restartAttempts     int
	lastProbeAt         time.Time
	lastProbeErr        string
	lastRestartAt       time.Time
	child               Handle

	now func() time.Time
}

func New(probe Probe, launcher Launcher, cfg Config, logger *zap.Logger) *Watchdog {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = 2
	}
	if cfg.RestartCooldown <= 0 {
		cfg.RestartCooldown = time.Minute
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Second
	}

	return &Watchdog{
		probe:    probe,
		launcher: launcher,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins supervision with an immediate first probe. Calling Start on a
// running watchdog is a logged no-op.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.logger.Warn("watchdog already running, ignoring Start")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true
	metrics.SetWatchdogExhausted(false)

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("watchdog started",
		zap.Duration("probe_interval", w.cfg.ProbeInterval),
		zap.Int("failure_threshold", w.cfg.FailureThreshold),
		zap.Int("max_restarts", w.cfg.MaxRestarts),
	)
}

// Stop halts supervision. The child process, if any, is left running; the
// watchdog supervises, it does not own the service lifecycle.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("watchdog stopped")
}

// Health returns a snapshot of the supervision state.
func (w *Watchdog) Health() Health {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	h := Health{
		State:               w.deriveStateLocked(),
		ConsecutiveFailures: w.consecutiveFailures,
		RestartAttempts:     w.restartAttempts,
		MaxRestarts:         w.cfg.MaxRestarts,
		LastProbeError:      w.lastProbeErr,
	}
	if !w.lastProbeAt.IsZero() {
		t := w.lastProbeAt
		h.LastProbeAt = &t
	}
	if !w.lastRestartAt.IsZero() {
		t := w.lastRestartAt
		h.LastRestartAt = &t
	}
	if w.child != nil {
		h.ChildPID = w.child.PID()
	}
	return h
}

func (w *Watchdog) deriveStateLocked() string {
	if w.consecutiveFailures == 0 {
		return StateHealthy
	}
	if w.consecutiveFailures >= w.cfg.FailureThreshold {
		if w.restartAttempts >= w.cfg.MaxRestarts {
			return StateExhausted
		}
		if !w.lastRestartAt.IsZero() && w.now().Sub(w.lastRestartAt) < w.cfg.RestartCooldown {
			return StateCooling
		}
		return StateRestartPending
	}
	return StateDegrading
}

func (w *Watchdog) run(ctx context.Context) {
	defer w.wg.Done()

	w.runProbe(ctx)

	ticker := time.NewTicker(w.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runProbe(ctx)
		}
	}
}

// runProbe executes one probe and, past the failure threshold, a restart.
// The in-flight guard makes ticks that land during a slow probe or an active
// restart no-ops.
func (w *Watchdog) runProbe(ctx context.Context) {
	if !w.probeInFlight.CompareAndSwap(false, true) {
		w.logger.Debug("probe already in flight, skipping tick")
		return
	}
	defer w.probeInFlight.Store(false)

	err := w.checkOnce(ctx)

	w.stateMu.Lock()
	w.lastProbeAt = w.now()
	if err == nil {
		if w.consecutiveFailures > 0 {
			w.logger.Info("prediction service recovered",
				zap.Int("failures_cleared", w.consecutiveFailures),
			)
		}
		w.consecutiveFailures = 0
		w.lastProbeErr = ""
		w.stateMu.Unlock()
		return
	}

	w.consecutiveFailures++
	w.lastProbeErr = err.Error()
	failures := w.consecutiveFailures
	w.stateMu.Unlock()

	metrics.RecordProbeFailure()
	w.logger.Warn("prediction service probe failed",
		zap.Int("consecutive_failures", failures),
		zap.Int("failure_threshold", w.cfg.FailureThreshold),
		zap.Error(err),
	)

	if failures >= w.cfg.FailureThreshold {
		w.attemptRestart(ctx)
	}
}

func (w *Watchdog) checkOnce(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	defer cancel()
	return w.probe.Check(probeCtx)
}

// attemptRestart relaunches the service if the lifetime budget and cooldown
// allow it. The attempt is counted even when the launch itself fails.
func (w *Watchdog) attemptRestart(ctx context.Context) {
	w.stateMu.Lock()
	if w.restartAttempts >= w.cfg.MaxRestarts {
		w.stateMu.Unlock()
		metrics.SetWatchdogExhausted(true)
		w.logger.Error("restart budget exhausted, manual intervention required",
			zap.Int("restart_attempts", w.restartAttempts),
			zap.Int("max_restarts", w.cfg.MaxRestarts),
		)
		return
	}
	if !w.lastRestartAt.IsZero() && w.now().Sub(w.lastRestartAt) < w.cfg.RestartCooldown {
		remaining := w.cfg.RestartCooldown - w.now().Sub(w.lastRestartAt)
		w.stateMu.Unlock()
		w.logger.Warn("restart suppressed by cooldown",
			zap.Duration("cooldown_remaining", remaining),
		)
		return
	}
	w.restartAttempts++
	w.lastRestartAt = w.now()
	attempt := w.restartAttempts
	w.stateMu.Unlock()

	metrics.RecordRestartAttempt()
	w.logger.Info("restarting prediction service",
		zap.Int("attempt", attempt),
		zap.Int("max_restarts", w.cfg.MaxRestarts),
	)

	handle, err := w.launcher.Launch(ctx)
	if err != nil {
		w.logger.Error("failed to launch prediction service", zap.Error(err))
		return
	}

	w.stateMu.Lock()
	w.child = handle
	w.stateMu.Unlock()

	if !w.settle(ctx) {
		w.logger.Warn("service not responding after grace period, extending once",
			zap.Duration("grace_period", w.cfg.GracePeriod),
		)
		if !w.settle(ctx) {
			w.logger.Error("prediction service failed to come up after restart",
				zap.Int("pid", handle.PID()),
			)
			return
		}
	}

	w.stateMu.Lock()
	w.consecutiveFailures = 0
	w.lastProbeErr = ""
	w.stateMu.Unlock()

	w.logger.Info("prediction service back up",
		zap.Int("pid", handle.PID()),
		zap.Int("attempt", attempt),
	)
}

// settle waits out the grace period then probes once.
func (w *Watchdog) settle(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(w.cfg.GracePeriod):
	}
	return w.checkOnce(ctx) == nil
}
