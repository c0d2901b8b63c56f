package interview

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/interviewd/internal/persona"
	"github.com/fyrsmithlabs/interviewd/internal/provider"
)

// Service is the application-facing facade over the session machine,
// the persona registry and the provider gateway. Transports (HTTP, CLI)
// talk to this and nothing below it.
type Service struct {
	machine  *Machine
	registry *persona.Registry
	gateway  *provider.Gateway
}

// NewService assembles the facade.
func NewService(machine *Machine, registry *persona.Registry, gateway *provider.Gateway) *Service {
	return &Service{machine: machine, registry: registry, gateway: gateway}
}

// CreateSession validates inputs and starts a new interview.
func (s *Service) CreateSession(ctx context.Context, position, difficulty string) (*Session, error) {
	position = strings.TrimSpace(position)
	if position == "" {
		return nil, ErrEmptyPosition
	}
	d, err := ParseDifficulty(difficulty)
	if err != nil {
		return nil, err
	}
	return s.machine.Create(ctx, position, d)
}

// SubmitUserMessage forwards a candidate message and returns the
// messages the turn produced.
func (s *Service) SubmitUserMessage(ctx context.Context, id, content string) ([]Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	return s.machine.SubmitUserMessage(ctx, id, content)
}

// EndSession completes a session early.
func (s *Service) EndSession(ctx context.Context, id string) (*Session, error) {
	return s.machine.End(ctx, id)
}

// GetSession returns a session's current state.
func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.machine.Get(ctx, id)
}

// ListMessages returns a session's full transcript.
func (s *Service) ListMessages(ctx context.Context, id string) ([]Message, error) {
	return s.machine.ListMessages(ctx, id)
}

// ListPersonaKinds describes the available interviewer personas in
// sequence order.
func (s *Service) ListPersonaKinds() []persona.Descriptor {
	return s.registry.ListKinds()
}

// ProviderHealth reports the gateway's view of each backend.
func (s *Service) ProviderHealth() []provider.Health {
	return s.gateway.Snapshot()
}

// CheckProviders probes every backend and returns the refreshed view.
func (s *Service) CheckProviders(ctx context.Context) []provider.Health {
	return s.gateway.HealthCheck(ctx)
}
