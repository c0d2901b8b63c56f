package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a scriptable in-memory backend for gateway tests.
type fakeBackend struct {
	name     string
	text     string
	err      error
	delay    time.Duration
	probeErr error
	calls    atomic.Int32
	probes   atomic.Int32
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Generate(ctx context.Context, frags []Fragment) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeBackend) Probe(ctx context.Context) error {
	f.probes.Add(1)
	return f.probeErr
}

func prompt() []Fragment {
	return []Fragment{
		{Role: RoleSystem, Content: "You are an interviewer."},
		{Role: RoleUser, Content: "I have 3 years of experience."},
	}
}

func newTestGateway(t *testing.T, backends ...Backend) *Gateway {
	t.Helper()
	g, err := NewGateway(backends, GatewayConfig{
		AttemptTimeout: 200 * time.Millisecond,
		ProbeTimeout:   100 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return g
}

func TestNewGatewayRequiresBackends(t *testing.T) {
	_, err := NewGateway(nil, GatewayConfig{}, nil)
	require.ErrorIs(t, err, ErrNoProviders)
}

func TestGeneratePrimarySuccess(t *testing.T) {
	primary := &fakeBackend{name: "primary", text: "Tell me about a challenging bug"}
	secondary := &fakeBackend{name: "secondary", text: "unused"}
	g := newTestGateway(t, primary, secondary)

	res, err := g.Generate(context.Background(), prompt())
	require.NoError(t, err)
	assert.Equal(t, "Tell me about a challenging bug", res.Text)
	assert.Equal(t, "primary", res.Provider)
	assert.Equal(t, int32(0), secondary.calls.Load())
}

func TestGenerateEmptyPrompt(t *testing.T) {
	g := newTestGateway(t, &fakeBackend{name: "p", text: "x"})
	_, err := g.Generate(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestGenerateFallsBackOnFailure(t *testing.T) {
	primary := &fakeBackend{name: "primary", err: errors.New("boom")}
	secondary := &fakeBackend{name: "secondary", text: "from secondary"}
	g := newTestGateway(t, primary, secondary)

	res, err := g.Generate(context.Background(), prompt())
	require.NoError(t, err)
	assert.Equal(t, "secondary", res.Provider)
	assert.Equal(t, "from secondary", res.Text)

	// Primary is now marked unavailable and skipped on the next call.
	snap := g.Snapshot()
	require.Len(t, snap, 2)
	assert.False(t, snap[0].Available)
	assert.True(t, snap[1].Available)

	before := primary.calls.Load()
	_, err = g.Generate(context.Background(), prompt())
	require.NoError(t, err)
	assert.Equal(t, before, primary.calls.Load(), "unavailable primary must be skipped")
}

func TestGenerateTimeoutTriggersFallback(t *testing.T) {
	slow := &fakeBackend{name: "slow", text: "late", delay: time.Second}
	fast := &fakeBackend{name: "fast", text: "on time"}
	g := newTestGateway(t, slow, fast)

	start := time.Now()
	res, err := g.Generate(context.Background(), prompt())
	require.NoError(t, err)
	assert.Equal(t, "fast", res.Provider)
	assert.Less(t, time.Since(start), time.Second, "slow attempt must be cancelled, not awaited")

	snap := g.Snapshot()
	assert.False(t, snap[0].Available)
}

func TestGenerateAllProvidersExhausted(t *testing.T) {
	a := &fakeBackend{name: "a", err: errors.New("down")}
	b := &fakeBackend{name: "b", err: errors.New("also down")}
	g := newTestGateway(t, a, b)

	_, err := g.Generate(context.Background(), prompt())
	require.ErrorIs(t, err, ErrAllProvidersExhausted)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Failures, 2)
	assert.EqualError(t, exhausted.Failures["a"], "down")
	assert.EqualError(t, exhausted.Failures["b"], "also down")
}

func TestGenerateSkippedProvidersReportedAsUnavailable(t *testing.T) {
	a := &fakeBackend{name: "a", err: errors.New("down")}
	b := &fakeBackend{name: "b", err: errors.New("down too")}
	g := newTestGateway(t, a, b)

	_, err := g.Generate(context.Background(), prompt())
	require.Error(t, err)

	// Both are now unavailable; the next call exhausts without attempting.
	aCalls, bCalls := a.calls.Load(), b.calls.Load()
	_, err = g.Generate(context.Background(), prompt())
	require.ErrorIs(t, err, ErrAllProvidersExhausted)
	assert.Equal(t, aCalls, a.calls.Load())
	assert.Equal(t, bCalls, b.calls.Load())

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, exhausted.Failures["a"], ErrUnavailable)
}

func TestHealthCheckRecoversProvider(t *testing.T) {
	primary := &fakeBackend{name: "primary", err: errors.New("flaky")}
	secondary := &fakeBackend{name: "secondary", text: "ok"}
	g := newTestGateway(t, primary, secondary)

	_, err := g.Generate(context.Background(), prompt())
	require.NoError(t, err)
	assert.False(t, g.Snapshot()[0].Available)

	// Backend recovers; probe brings it back.
	primary.err = nil
	primary.text = "recovered"
	health := g.HealthCheck(context.Background())
	require.Len(t, health, 2)
	assert.True(t, health[0].Available)
	assert.True(t, health[1].Available)

	res, err := g.Generate(context.Background(), prompt())
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Provider)
}

func TestHealthCheckIndependentFailures(t *testing.T) {
	bad := &fakeBackend{name: "bad", probeErr: errors.New("unreachable")}
	good := &fakeBackend{name: "good"}
	g := newTestGateway(t, bad, good)

	health := g.HealthCheck(context.Background())
	require.Len(t, health, 2)
	assert.False(t, health[0].Available)
	assert.True(t, health[1].Available)
	assert.Equal(t, int32(1), bad.probes.Load())
	assert.Equal(t, int32(1), good.probes.Load())
}

func TestGenerateDeterministicOrder(t *testing.T) {
	a := &fakeBackend{name: "a", text: "a"}
	b := &fakeBackend{name: "b", text: "b"}
	g := newTestGateway(t, a, b)

	for i := 0; i < 5; i++ {
		res, err := g.Generate(context.Background(), prompt())
		require.NoError(t, err)
		assert.Equal(t, "a", res.Provider)
	}
	assert.Equal(t, int32(5), a.calls.Load())
	assert.Equal(t, int32(0), b.calls.Load())
}

func TestNewBackendFactory(t *testing.T) {
	tests := []struct {
		name      string
		cfg       BackendConfig
		wantError bool
	}{
		{
			name: "openai compatible",
			cfg:  BackendConfig{Name: "local", Type: "openai", Model: "gpt-4o-mini", BaseURL: "http://localhost:8080/v1"},
		},
		{
			name: "ollama",
			cfg:  BackendConfig{Name: "ollama", Type: "ollama", Model: "llama3", BaseURL: "http://localhost:11434"},
		},
		{
			name:      "missing model",
			cfg:       BackendConfig{Name: "x", Type: "openai"},
			wantError: true,
		},
		{
			name:      "missing name",
			cfg:       BackendConfig{Type: "openai", Model: "gpt-4o-mini"},
			wantError: true,
		},
		{
			name:      "unknown type",
			cfg:       BackendConfig{Name: "x", Type: "palm", Model: "m"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.cfg)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Name, b.Name())
		})
	}
}
