package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/soldalen/heatpumpctl/internal/errors"
	"github.com/soldalen/heatpumpctl/internal/logger"
	"github.com/soldalen/heatpumpctl/internal/store"
)

const defaultWindow = 24 * time.Hour

// Config bounds calls to the quota-constrained upstream.
type Config struct {
	// SafetyThreshold is the maximum calls allowed inside the rolling
	// window. Keep it strictly below the vendor cap to leave margin for
	// retries and restarts.
	SafetyThreshold int

	// Window is the rolling budget window, 24h unless overridden.
	Window time.Duration

	// Cooldown is how long calls stay denied after the upstream reports
	// too many requests, independent of the window count.
	Cooldown time.Duration
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.SafetyThreshold <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "safety threshold must be positive")
	}
	if c.Cooldown <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "cooldown must be positive")
	}

	return nil
}

// Governor tracks calls to the upstream inside a rolling window and gates
// new ones. The window is persisted, so a restart resumes the spent budget
// instead of resetting it. Any persistence failure latches the governor
// closed: under-polling is recoverable, a vendor ban is not.
type Governor struct {
	mu sync.Mutex

	repo store.Store
	cfg  Config

	calls         []time.Time
	cooldownUntil time.Time
	failed        bool
}

// New reconstructs the rolling window from the store.
func New(repo store.Store, cfg Config) (*Governor, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}

	now := time.Now().UTC()
	calls, err := repo.LoadRateWindow(context.Background(), now.Add(-cfg.Window))
	if err != nil {
		return nil, errFactory.Wrap(ErrLoadWindow, err)
	}

	logger.Debug().
		Int("calls_in_window", len(calls)).
		Int("threshold", cfg.SafetyThreshold).
		Msg("Rate limit window reconstructed")

	return &Governor{repo: repo, cfg: cfg, calls: calls}, nil
}

// CanCall reports whether one more upstream call fits the budget.
func (g *Governor) CanCall(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.admissible(now)
}

// TryAcquire checks the budget and counts the call under one mutex hold,
// so two cadences racing at threshold-1 cannot both get through. False
// with a nil error is a denial (budget spent or cooling down); an error
// means persistence failed and the governor is latched closed.
func (g *Governor) TryAcquire(ctx context.Context, now time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failed {
		return false, errors.New().WithMessage(ErrPersist, "rate limit governor lost persistence")
	}
	if !g.admissible(now) {
		return false, nil
	}

	if err := g.record(ctx, now); err != nil {
		return false, err
	}

	return true, nil
}

// RecordCall counts one upstream call and persists it. A persistence
// failure latches the governor closed and is returned to the caller, which
// should treat it as fatal.
func (g *Governor) RecordCall(ctx context.Context, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.record(ctx, now)
}

// admissible reports whether a call fits right now. Callers hold the mutex.
func (g *Governor) admissible(now time.Time) bool {
	if g.failed {
		return false
	}
	if now.Before(g.cooldownUntil) {
		return false
	}

	g.prune(now)

	return len(g.calls) < g.cfg.SafetyThreshold
}

// record counts and persists one call. Callers hold the mutex.
func (g *Governor) record(ctx context.Context, now time.Time) error {
	g.prune(now)
	g.calls = append(g.calls, now)

	if err := g.repo.RecordRateCall(ctx, now); err != nil {
		g.failed = true
		return errors.New().Wrap(ErrPersist, err)
	}
	if err := g.repo.PruneRateCalls(ctx, now.Add(-g.cfg.Window)); err != nil {
		g.failed = true
		return errors.New().Wrap(ErrPersist, err)
	}

	return nil
}

// CallsInWindow returns the number of calls inside the trailing window.
func (g *Governor) CallsInWindow(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prune(now)

	return len(g.calls)
}

// SignalUpstreamLimit enters the cooldown after an upstream "too many
// requests" response.
func (g *Governor) SignalUpstreamLimit(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cooldownUntil = now.Add(g.cfg.Cooldown)

	logger.Warn().
		Time("until", g.cooldownUntil).
		Msg("Upstream rate limit signalled, entering cooldown")
}

// InCooldown reports whether the post-429 backoff is still active.
func (g *Governor) InCooldown(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return now.Before(g.cooldownUntil)
}

// Healthy is false once a persistence failure has latched the governor
// closed.
func (g *Governor) Healthy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return !g.failed
}

// prune drops calls older than the window. Callers hold the mutex.
func (g *Governor) prune(now time.Time) {
	cutoff := now.Add(-g.cfg.Window)
	i := 0
	for i < len(g.calls) && g.calls[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		g.calls = append(g.calls[:0], g.calls[i:]...)
	}
}
