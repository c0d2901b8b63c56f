package interview

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/interviewd/internal/logging"
	"github.com/fyrsmithlabs/interviewd/internal/persona"
	"github.com/fyrsmithlabs/interviewd/internal/provider"
)

// RoundsConfig tunes per-turn orchestration.
type RoundsConfig struct {
	// QuestionCount is how many opening questions to request per phase.
	// Only the first is used; the rest are discarded, never queued.
	QuestionCount int
	// TurnBudget is interviewer turns per persona before its phase ends.
	TurnBudget int
	// MaxContextChars bounds the assembled prompt context.
	MaxContextChars int
	// HistoryWindow is how many recent messages enter the context.
	HistoryWindow int
}

// Rounds produces exactly one interviewer message per call for the
// active persona. Each turn is re-derived from the current log state;
// nothing carries over between turns.
type Rounds struct {
	gateway persona.Generator
	cfg     RoundsConfig
	logger  *logging.Logger
}

// NewRounds creates a round orchestrator over the gateway.
func NewRounds(gateway persona.Generator, cfg RoundsConfig, logger *logging.Logger) *Rounds {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.QuestionCount < 1 {
		cfg.QuestionCount = 1
	}
	if cfg.TurnBudget < 1 {
		cfg.TurnBudget = 1
	}
	if cfg.MaxContextChars < 1 {
		cfg.MaxContextChars = 12000
	}
	if cfg.HistoryWindow < 1 {
		cfg.HistoryWindow = 20
	}
	return &Rounds{gateway: gateway, cfg: cfg, logger: logger.Named("rounds")}
}

// ProduceTurn generates the next interviewer message for the active
// persona given the full session log, and reports whether the persona's
// phase is now exhausted. The returned message has no sequence number;
// the Machine assigns it on commit.
//
// On gateway failure the error matches ErrAIService and no message is
// produced; the phase never advances on failure.
func (r *Rounds) ProduceTurn(ctx context.Context, s *Session, log []Message, inst *persona.Instance, resume string) (Message, bool, error) {
	in := persona.PromptInput{
		Position:   s.Position,
		Difficulty: string(s.Difficulty),
		Resume:     resume,
	}

	priorTurns := countPersonaTurns(log, inst.Kind())

	var (
		text string
		err  error
	)
	if priorTurns == 0 {
		// Opening question: ask for several candidates, keep the first.
		var questions []string
		questions, err = inst.GenerateQuestions(ctx, r.gateway, in, r.cfg.QuestionCount)
		if err == nil {
			text = questions[0]
		}
	} else {
		history := r.contextWindow(log, inst.Preamble(in))
		text, err = inst.GenerateResponse(ctx, r.gateway, in, history)
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("%w: persona %s: %w", ErrAIService, inst.Kind(), err)
	}

	phaseComplete := priorTurns+1 >= r.cfg.TurnBudget
	r.logger.Debug(ctx, "produced turn",
		zap.String("persona", string(inst.Kind())),
		zap.Int("prior_turns", priorTurns),
		zap.Bool("phase_complete", phaseComplete),
	)

	return Message{
		Sender:    SenderInterviewer,
		Persona:   inst.Kind(),
		Content:   text,
		Timestamp: time.Now().UTC(),
	}, phaseComplete, nil
}

// PhaseFeedback asks the persona for its structured assessment over the
// phase transcript. Failures match ErrAIService.
func (r *Rounds) PhaseFeedback(ctx context.Context, s *Session, log []Message, inst *persona.Instance, resume string) (persona.FeedbackEntry, error) {
	in := persona.PromptInput{
		Position:   s.Position,
		Difficulty: string(s.Difficulty),
		Resume:     resume,
	}

	history := r.contextWindow(log, inst.Preamble(in))
	entry, err := inst.GenerateFeedback(ctx, r.gateway, in, history)
	if err != nil {
		return persona.FeedbackEntry{}, fmt.Errorf("%w: feedback for %s: %w", ErrAIService, inst.Kind(), err)
	}
	return entry, nil
}

// contextWindow converts the most recent messages into prompt fragments,
// bounded to MaxContextChars including the preamble. The oldest messages
// are dropped first; the preamble itself is never dropped.
func (r *Rounds) contextWindow(log []Message, preamble string) []provider.Fragment {
	start := len(log) - r.cfg.HistoryWindow
	if start < 0 {
		start = 0
	}
	recent := log[start:]

	budget := r.cfg.MaxContextChars - len(preamble)
	// Walk backwards so the newest messages always survive truncation.
	kept := make([]provider.Fragment, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		if m.Sender == SenderSystem {
			continue
		}
		if budget-len(m.Content) < 0 {
			break
		}
		budget -= len(m.Content)
		kept = append(kept, provider.Fragment{
			Role:    fragmentRole(m.Sender),
			Content: m.Content,
		})
	}

	// Reverse back to chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

func fragmentRole(s SenderKind) provider.Role {
	if s == SenderInterviewer {
		return provider.RoleAssistant
	}
	return provider.RoleUser
}

// countPersonaTurns counts interviewer messages attributed to a kind.
func countPersonaTurns(log []Message, kind persona.Kind) int {
	n := 0
	for _, m := range log {
		if m.Sender == SenderInterviewer && m.Persona == kind {
			n++
		}
	}
	return n
}
