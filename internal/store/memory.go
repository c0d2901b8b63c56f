package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/interviewd/internal/interview"
)

// Memory is an in-process Store. Sessions vanish on restart; it exists
// for tests and single-shot evaluation runs.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*interview.Session
	messages map[string][]interview.Message
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*interview.Session),
		messages: make(map[string][]interview.Message),
	}
}

// SaveTransition commits a session snapshot and its appended messages
// under one lock. Replaying a message whose seq already landed is a
// no-op, so retried transitions cannot duplicate log entries.
func (m *Memory) SaveTransition(ctx context.Context, s *interview.Session, appended []interview.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	for _, msg := range appended {
		if m.hasSeqLocked(s.ID, msg.Seq) {
			continue
		}
		m.messages[s.ID] = append(m.messages[s.ID], msg)
	}
	return nil
}

func (m *Memory) hasSeqLocked(sessionID string, seq int) bool {
	for _, existing := range m.messages[sessionID] {
		if existing.Seq == seq {
			return true
		}
	}
	return false
}

func (m *Memory) LoadSession(ctx context.Context, id string) (*interview.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interview.ErrSessionNotFound, id)
	}
	return s.Clone(), nil
}

func (m *Memory) ListMessages(ctx context.Context, sessionID string) ([]interview.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]interview.Message, len(m.messages[sessionID]))
	copy(out, m.messages[sessionID])
	return out, nil
}
