// Package interview drives an interview session from creation to
// completion: the phase state machine, per-turn orchestration and the
// final assessment.
package interview

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/interviewd/internal/persona"
)

// Difficulty is the interview difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty validates a difficulty string.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(s)
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	}
	return "", fmt.Errorf("invalid difficulty %q: must be easy, medium or hard", s)
}

// Status is the session lifecycle state.
type Status string

const (
	StatusCreated   Status = "created"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// SenderKind tags who produced a message.
type SenderKind string

const (
	SenderSystem      SenderKind = "system"
	SenderUser        SenderKind = "user"
	SenderInterviewer SenderKind = "interviewer"
)

// Message is one entry in a session's append-only log. Sequence numbers
// are strictly increasing with no gaps; messages are never mutated or
// deleted once appended.
type Message struct {
	// Seq is monotonic within a session, starting at 1.
	Seq    int        `json:"seq"`
	Sender SenderKind `json:"sender"`
	// Persona is set only for interviewer messages.
	Persona   persona.Kind `json:"persona,omitempty"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
}

// Session is one interview's authoritative state. It is owned
// exclusively by the Machine and mutated only through its transitions.
type Session struct {
	ID         string     `json:"id"`
	Position   string     `json:"position"`
	Difficulty Difficulty `json:"difficulty"`
	Status     Status     `json:"status"`
	// Phase is the active persona kind; empty once completed.
	Phase persona.Kind `json:"phase,omitempty"`
	// Remaining lists the phases after the current one, in order.
	Remaining []persona.Kind `json:"remaining,omitempty"`
	// OverallScore is set only at completion. Nil means "no signal",
	// which is distinct from a score of zero.
	OverallScore *float64 `json:"overall_score,omitempty"`
	// Feedback collects one entry per visited persona whose phase ended.
	Feedback    []persona.FeedbackEntry `json:"feedback,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	CompletedAt time.Time               `json:"completed_at,omitzero"`
}

// Clone returns a deep copy. The Machine hands out clones so callers can
// never alias its internal state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Remaining = append([]persona.Kind(nil), s.Remaining...)
	if s.OverallScore != nil {
		v := *s.OverallScore
		out.OverallScore = &v
	}
	out.Feedback = make([]persona.FeedbackEntry, len(s.Feedback))
	for i, f := range s.Feedback {
		out.Feedback[i] = f
		out.Feedback[i].Concerns = append([]string(nil), f.Concerns...)
	}
	return &out
}

// Assessment is the aggregated result over all collected feedback.
type Assessment struct {
	// OverallScore is the weighted mean of per-persona sub-scores.
	OverallScore float64 `json:"overall_score"`
	// Commentary concatenates per-persona commentary in sequence order.
	Commentary string `json:"commentary"`
	// Concerns is the sorted union of flagged concerns.
	Concerns []string `json:"concerns"`
	// Entries are the contributing feedback entries in sequence order.
	Entries []persona.FeedbackEntry `json:"entries"`
}
