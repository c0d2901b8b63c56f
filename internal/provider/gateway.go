package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/interviewd/internal/logging"
)

// RateLimit bounds the call rate against one backend. Zero RPS disables
// limiting.
type RateLimit struct {
	RPS   float64
	Burst int
}

// GatewayConfig tunes fallback behavior.
type GatewayConfig struct {
	// AttemptTimeout bounds a single generation attempt against one
	// backend. The attempt is cancelled, not awaited, when exceeded.
	AttemptTimeout time.Duration
	// ProbeTimeout bounds a single health-check probe.
	ProbeTimeout time.Duration
	// Limits holds optional per-backend rate limits, keyed by name.
	Limits map[string]RateLimit
}

// Gateway fans a generation request across an ordered list of backends.
//
// Selection is deterministic: backends are attempted strictly in the
// order they were registered, skipping any currently marked unavailable.
// The first success wins. Any call-time failure is authoritative and
// marks the backend unavailable until a later successful probe or call.
type Gateway struct {
	backends []Backend
	limiters map[string]*rate.Limiter

	mu     sync.RWMutex
	health map[string]*Health

	attemptTimeout time.Duration
	probeTimeout   time.Duration

	logger *logging.Logger
}

// NewGateway creates a gateway over the given backends. The slice order
// is the fallback priority order. All backends start available.
func NewGateway(backends []Backend, cfg GatewayConfig, logger *logging.Logger) (*Gateway, error) {
	if len(backends) == 0 {
		return nil, ErrNoProviders
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}

	g := &Gateway{
		backends:       backends,
		limiters:       make(map[string]*rate.Limiter),
		health:         make(map[string]*Health, len(backends)),
		attemptTimeout: attemptTimeout,
		probeTimeout:   probeTimeout,
		logger:         logger.Named("gateway"),
	}

	now := time.Now().UTC()
	for i, b := range backends {
		g.health[b.Name()] = &Health{
			Name:        b.Name(),
			Priority:    i,
			Available:   true,
			LastChecked: now,
		}
		ProviderUp.WithLabelValues(b.Name()).Set(1)
		if lim, ok := cfg.Limits[b.Name()]; ok && lim.RPS > 0 {
			burst := lim.Burst
			if burst < 1 {
				burst = 1
			}
			g.limiters[b.Name()] = rate.NewLimiter(rate.Limit(lim.RPS), burst)
		}
	}

	return g, nil
}

// Generate attempts the backends in priority order and returns the first
// success. If every candidate fails the call fails with an
// *ExhaustedError matching ErrAllProvidersExhausted; backends skipped as
// unavailable are reported with ErrUnavailable.
func (g *Gateway) Generate(ctx context.Context, frags []Fragment) (*Result, error) {
	if len(frags) == 0 {
		return nil, ErrEmptyPrompt
	}

	tracer := otel.Tracer("interviewd/provider")
	ctx, span := tracer.Start(ctx, "gateway.generate")
	defer span.End()

	failures := make(map[string]error, len(g.backends))

	for i, b := range g.backends {
		name := b.Name()
		if !g.available(name) {
			failures[name] = ErrUnavailable
			continue
		}

		text, elapsed, err := g.attempt(ctx, b, frags)
		if err != nil {
			failures[name] = err
			g.markUnavailable(name)
			g.logger.Warn(ctx, "generation attempt failed",
				zap.String("provider", name),
				zap.Error(err),
			)
			continue
		}

		g.markAvailable(name)
		if i > 0 {
			Fallbacks.Inc()
		}
		span.SetAttributes(
			attribute.String("provider", name),
			attribute.Int("fallback_depth", i),
		)
		g.logger.Debug(ctx, "generation succeeded",
			zap.String("provider", name),
			zap.Duration("elapsed", elapsed),
			zap.Int("fallback_depth", i),
		)
		return &Result{Text: text, Provider: name, Elapsed: elapsed}, nil
	}

	Exhaustions.Inc()
	err := &ExhaustedError{Failures: failures}
	span.SetStatus(codes.Error, "all providers exhausted")
	g.logger.Error(ctx, "all providers exhausted", zap.Error(err))
	return nil, err
}

// attempt runs one bounded generation against a single backend.
func (g *Gateway) attempt(ctx context.Context, b Backend, frags []Fragment) (string, time.Duration, error) {
	name := b.Name()

	attemptCtx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
	defer cancel()

	if lim, ok := g.limiters[name]; ok {
		if err := lim.Wait(attemptCtx); err != nil {
			GenerationAttempts.WithLabelValues(name, "timeout").Inc()
			return "", 0, err
		}
	}

	start := time.Now()
	text, err := b.Generate(attemptCtx, frags)
	elapsed := time.Since(start)
	GenerationDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		result := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
		GenerationAttempts.WithLabelValues(name, result).Inc()
		return "", elapsed, err
	}

	GenerationAttempts.WithLabelValues(name, "success").Inc()
	return text, elapsed, nil
}

// HealthCheck probes every backend concurrently and updates the health
// table. One failing probe does not affect its siblings. The returned
// slice is ordered by priority.
func (g *Gateway) HealthCheck(ctx context.Context) []Health {
	var wg sync.WaitGroup
	for _, b := range g.backends {
		wg.Add(1)
		go func(b Backend) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, g.probeTimeout)
			defer cancel()

			if err := b.Probe(probeCtx); err != nil {
				HealthChecks.WithLabelValues(b.Name(), "error").Inc()
				g.markUnavailable(b.Name())
				g.logger.Warn(ctx, "health probe failed",
					zap.String("provider", b.Name()),
					zap.Error(err),
				)
				return
			}
			HealthChecks.WithLabelValues(b.Name(), "success").Inc()
			g.markAvailable(b.Name())
		}(b)
	}
	wg.Wait()

	return g.Snapshot()
}

// Snapshot returns a copy of the health table ordered by priority.
func (g *Gateway) Snapshot() []Health {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Health, 0, len(g.backends))
	for _, b := range g.backends {
		out = append(out, *g.health[b.Name()])
	}
	return out
}

func (g *Gateway) available(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.health[name]
	return ok && h.Available
}

func (g *Gateway) markAvailable(name string) {
	g.setAvailability(name, true)
}

func (g *Gateway) markUnavailable(name string) {
	g.setAvailability(name, false)
}

func (g *Gateway) setAvailability(name string, available bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.health[name]
	if !ok {
		return
	}
	h.Available = available
	h.LastChecked = time.Now().UTC()
	if available {
		ProviderUp.WithLabelValues(name).Set(1)
	} else {
		ProviderUp.WithLabelValues(name).Set(0)
	}
}
