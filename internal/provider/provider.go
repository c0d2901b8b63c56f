// Package provider routes text-generation requests across interchangeable
// language-model backends with priority-ordered, health-aware fallback.
package provider

import (
	"context"
	"time"
)

// Role tags a prompt fragment with its conversational origin.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Fragment is one role-tagged piece of prompt context.
type Fragment struct {
	Role    Role
	Content string
}

// Result is a successful generation outcome.
type Result struct {
	// Text is the generated completion.
	Text string
	// Provider is the name of the backend that produced it.
	Provider string
	// Elapsed is how long the winning attempt took.
	Elapsed time.Duration
}

// Backend is a single language-model service capable of continuing a
// conversation. Implementations must be safe for concurrent use.
type Backend interface {
	// Name returns the unique provider label used in health records,
	// logs and metrics.
	Name() string
	// Generate produces a completion for the given prompt context.
	Generate(ctx context.Context, frags []Fragment) (string, error)
	// Probe issues a minimal request to verify the backend is reachable.
	Probe(ctx context.Context) error
}

// Health is the per-backend availability record.
type Health struct {
	// Name is the backend label.
	Name string `json:"name"`
	// Priority is the backend's rank in the fallback order; 0 is tried first.
	Priority int `json:"priority"`
	// Available is the last-known availability.
	Available bool `json:"available"`
	// LastChecked is when availability was last updated, by a probe or a
	// live call.
	LastChecked time.Time `json:"last_checked"`
}
