package watchdog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

var errProbeDown = errors.New("connection refused")

// scriptProbe returns scripted results in order, then the fallback.
type scriptProbe struct {
	mu       sync.Mutex
	script   []error
	fallback error
}

func (p *scriptProbe) Check(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.script) > 0 {
		err := p.script[0]
		p.script = p.script[1:]
		return err
	}
	return p.fallback
}

type fakeLauncher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *fakeLauncher) Launch(ctx context.Context) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return processHandle{pid: 4321}, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func testConfig() Config {
	return Config{
		ProbeInterval:    time.Hour, // ticks driven manually in tests
		ProbeTimeout:     time.Second,
		FailureThreshold: 3,
		MaxRestarts:      2,
		RestartCooldown:  time.Minute,
		GracePeriod:      time.Millisecond,
	}
}

func newTestWatchdog(probe Probe, launcher Launcher, cfg Config) *Watchdog {
	w := New(probe, launcher, cfg, zap.NewNop())
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }
	return w
}

func TestHealthyProbesNeverRestart(t *testing.T) {
	launcher := &fakeLauncher{}
	w := newTestWatchdog(&scriptProbe{}, launcher, testConfig())

	for i := 0; i < 5; i++ {
		w.runProbe(context.Background())
	}

	if got := launcher.launchCount(); got != 0 {
		t.Errorf("launch count = %d, want 0", got)
	}
	h := w.Health()
	if h.State != StateHealthy {
		t.Errorf("state = %q, want %q", h.State, StateHealthy)
	}
	if h.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d, want 0", h.ConsecutiveFailures)
	}
}

func TestFailuresBelowThresholdOnlyDegrade(t *testing.T) {
	probe := &scriptProbe{script: []error{errProbeDown, errProbeDown}}
	launcher := &fakeLauncher{}
	w := newTestWatchdog(probe, launcher, testConfig())

	w.runProbe(context.Background())
	w.runProbe(context.Background())

	if got := launcher.launchCount(); got != 0 {
		t.Errorf("launch count = %d, want 0", got)
	}
	h := w.Health()
	if h.State != StateDegrading {
		t.Errorf("state = %q, want %q", h.State, StateDegrading)
	}
	if h.ConsecutiveFailures != 2 {
		t.Errorf("consecutive failures = %d, want 2", h.ConsecutiveFailures)
	}
}

func TestThresholdTriggersExactlyOneRestart(t *testing.T) {
	probe := &scriptProbe{script: []error{errProbeDown, errProbeDown, errProbeDown}}
	launcher := &fakeLauncher{}
	w := newTestWatchdog(probe, launcher, testConfig())

	for i := 0; i < 3; i++ {
		w.runProbe(context.Background())
	}

	if got := launcher.launchCount(); got != 1 {
		t.Fatalf("launch count = %d, want 1", got)
	}
	h := w.Health()
	if h.ConsecutiveFailures != 0 {
		t.Errorf("failures should reset after successful restart, got %d", h.ConsecutiveFailures)
	}
	if h.RestartAttempts != 1 {
		t.Errorf("restart attempts = %d, want 1", h.RestartAttempts)
	}
	if h.ChildPID != 4321 {
		t.Errorf("child pid = %d, want 4321", h.ChildPID)
	}
}

func TestSuccessResetsFailuresButNotAttempts(t *testing.T) {
	probe := &scriptProbe{script: []error{errProbeDown, errProbeDown, errProbeDown}}
	launcher := &fakeLauncher{}
	w := newTestWatchdog(probe, launcher, testConfig())

	for i := 0; i < 3; i++ {
		w.runProbe(context.Background())
	}
	w.runProbe(context.Background()) // healthy again

	h := w.Health()
	if h.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d, want 0", h.ConsecutiveFailures)
	}
	if h.RestartAttempts != 1 {
		t.Errorf("restart attempts = %d, want 1; the budget is lifetime", h.RestartAttempts)
	}
	if h.State != StateHealthy {
		t.Errorf("state = %q, want %q", h.State, StateHealthy)
	}
}

func TestCooldownSuppressesSecondRestart(t *testing.T) {
	probe := &scriptProbe{script: []error{
		errProbeDown, errProbeDown, errProbeDown, // first streak
		nil,                                      // settle after restart
		errProbeDown, errProbeDown, errProbeDown, // second streak within cooldown
	}}
	launcher := &fakeLauncher{}
	w := newTestWatchdog(probe, launcher, testConfig())

	for i := 0; i < 6; i++ {
		w.runProbe(context.Background())
	}

	if got := launcher.launchCount(); got != 1 {
		t.Errorf("launch count = %d, want 1; cooldown must gate the second attempt", got)
	}
	h := w.Health()
	if h.State != StateCooling {
		t.Errorf("state = %q, want %q", h.State, StateCooling)
	}
}

func TestExhaustedBudgetNeverLaunches(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRestarts = 1
	probe := &scriptProbe{script: []error{
		errProbeDown, errProbeDown, errProbeDown,
		nil, // settle after restart
		errProbeDown, errProbeDown, errProbeDown,
	}}
	launcher := &fakeLauncher{}
	w := newTestWatchdog(probe, launcher, cfg)

	for i := 0; i < 6; i++ {
		w.runProbe(context.Background())
	}

	if got := launcher.launchCount(); got != 1 {
		t.Errorf("launch count = %d, want 1; budget of 1 is spent", got)
	}
	h := w.Health()
	if h.State != StateExhausted {
		t.Errorf("state = %q, want %q", h.State, StateExhausted)
	}
}

func TestGracePeriodExtendedOnce(t *testing.T) {
	probe := &scriptProbe{script: []error{
		errProbeDown, errProbeDown, errProbeDown,
		errProbeDown, // first settle probe still down
		nil,          // second settle probe is up
	}}
	launcher := &fakeLauncher{}
	w := newTestWatchdog(probe, launcher, testConfig())

	for i := 0; i < 3; i++ {
		w.runProbe(context.Background())
	}

	if got := launcher.launchCount(); got != 1 {
		t.Fatalf("launch count = %d, want 1", got)
	}
	h := w.Health()
	if h.ConsecutiveFailures != 0 {
		t.Errorf("failures should reset after the extended grace succeeded, got %d", h.ConsecutiveFailures)
	}
}

func TestFailedRestartKeepsFailureStreak(t *testing.T) {
	probe := &scriptProbe{
		script:   []error{errProbeDown, errProbeDown, errProbeDown},
		fallback: errProbeDown, // both settle probes fail too
	}
	launcher := &fakeLauncher{}
	w := newTestWatchdog(probe, launcher, testConfig())

	for i := 0; i < 3; i++ {
		w.runProbe(context.Background())
	}

	h := w.Health()
	if h.ConsecutiveFailures != 3 {
		t.Errorf("consecutive failures = %d, want 3", h.ConsecutiveFailures)
	}
	if h.RestartAttempts != 1 {
		t.Errorf("restart attempts = %d, want 1; a failed restart still spends budget", h.RestartAttempts)
	}
}

func TestLaunchErrorStillSpendsBudget(t *testing.T) {
	probe := &scriptProbe{fallback: errProbeDown}
	launcher := &fakeLauncher{err: errors.New("binary not found")}
	w := newTestWatchdog(probe, launcher, testConfig())

	for i := 0; i < 3; i++ {
		w.runProbe(context.Background())
	}

	h := w.Health()
	if h.RestartAttempts != 1 {
		t.Errorf("restart attempts = %d, want 1", h.RestartAttempts)
	}
	if h.ChildPID != 0 {
		t.Errorf("child pid = %d, want 0 when launch failed", h.ChildPID)
	}
}

func TestStartProbesImmediately(t *testing.T) {
	probed := make(chan struct{}, 1)
	probe := &signalProbe{probed: probed}
	w := New(probe, &fakeLauncher{}, testConfig(), zap.NewNop())

	w.Start()
	defer w.Stop()

	select {
	case <-probed:
	case <-time.After(2 * time.Second):
		t.Fatal("first probe did not fire immediately after Start")
	}
}

type signalProbe struct {
	probed chan struct{}
}

func (p *signalProbe) Check(ctx context.Context) error {
	select {
	case p.probed <- struct{}{}:
	default:
	}
	return nil
}

func TestStartStopIdempotent(t *testing.T) {
	w := New(&scriptProbe{}, &fakeLauncher{}, testConfig(), zap.NewNop())

	w.Start()
	w.Start()
	w.Stop()
	w.Stop()
}
