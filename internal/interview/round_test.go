package interview

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/interviewd/internal/persona"
	"github.com/fyrsmithlabs/interviewd/internal/provider"
)

// capturingGen records the fragments of the last call.
type capturingGen struct {
	reply string
	err   error
	frags []provider.Fragment
}

func (g *capturingGen) Generate(ctx context.Context, frags []provider.Fragment) (*provider.Result, error) {
	g.frags = frags
	if g.err != nil {
		return nil, g.err
	}
	return &provider.Result{Text: g.reply, Provider: "capturing"}, nil
}

func roundFixture(t *testing.T, gen persona.Generator, cfg RoundsConfig) (*Rounds, *persona.Instance, *Session) {
	t.Helper()
	reg := persona.NewRegistry()
	inst, err := reg.GetPersona(persona.KindTechnical)
	require.NoError(t, err)
	s := &Session{
		ID:         "s-1",
		Position:   "Backend Engineer",
		Difficulty: DifficultyMedium,
		Status:     StatusActive,
		Phase:      persona.KindTechnical,
	}
	return NewRounds(gen, cfg, nil), inst, s
}

func msg(seq int, sender SenderKind, kind persona.Kind, content string) Message {
	return Message{Seq: seq, Sender: sender, Persona: kind, Content: content, Timestamp: time.Now()}
}

func TestProduceTurnQuestionMode(t *testing.T) {
	gen := &capturingGen{reply: "1. What is a goroutine leak?\n2. How do you detect one?"}
	r, inst, s := roundFixture(t, gen, RoundsConfig{QuestionCount: 2, TurnBudget: 2})

	log := []Message{msg(1, SenderSystem, "", "welcome"), msg(2, SenderUser, "", "hello")}
	out, done, err := r.ProduceTurn(context.Background(), s, log, inst, "")
	require.NoError(t, err)

	assert.Equal(t, "What is a goroutine leak?", out.Content, "only the first question is used")
	assert.Equal(t, SenderInterviewer, out.Sender)
	assert.Equal(t, persona.KindTechnical, out.Persona)
	assert.Zero(t, out.Seq, "sequence is assigned at commit, not here")
	assert.False(t, done)
}

func TestProduceTurnResponseMode(t *testing.T) {
	gen := &capturingGen{reply: "Can you elaborate on the locking strategy?"}
	r, inst, s := roundFixture(t, gen, RoundsConfig{TurnBudget: 3})

	log := []Message{
		msg(1, SenderSystem, "", "welcome"),
		msg(2, SenderUser, "", "hello"),
		msg(3, SenderInterviewer, persona.KindTechnical, "Describe your cache design."),
		msg(4, SenderUser, "", "It is a sharded LRU."),
	}
	out, done, err := r.ProduceTurn(context.Background(), s, log, inst, "")
	require.NoError(t, err)
	assert.Equal(t, "Can you elaborate on the locking strategy?", out.Content)
	assert.False(t, done, "one prior turn of three leaves the phase open")

	var joined strings.Builder
	for _, f := range gen.frags {
		joined.WriteString(f.Content)
		joined.WriteString("\n")
	}
	assert.Contains(t, joined.String(), "sharded LRU")
	assert.Contains(t, joined.String(), "Describe your cache design.")
	assert.NotContains(t, joined.String(), "welcome", "system messages never enter the prompt")
}

func TestProduceTurnPhaseComplete(t *testing.T) {
	gen := &capturingGen{reply: "Final follow-up."}
	r, inst, s := roundFixture(t, gen, RoundsConfig{TurnBudget: 2})

	log := []Message{
		msg(1, SenderInterviewer, persona.KindTechnical, "Q1"),
		msg(2, SenderUser, "", "A1"),
	}
	_, done, err := r.ProduceTurn(context.Background(), s, log, inst, "")
	require.NoError(t, err)
	assert.True(t, done, "second turn exhausts a budget of two")
}

func TestProduceTurnIgnoresOtherPersonasTurns(t *testing.T) {
	gen := &capturingGen{reply: "1. Opening question?"}
	r, inst, s := roundFixture(t, gen, RoundsConfig{TurnBudget: 2})

	// Turns from an earlier phase do not count against this persona.
	log := []Message{
		msg(1, SenderInterviewer, persona.KindBehavioral, "Earlier phase Q"),
		msg(2, SenderUser, "", "Earlier phase A"),
	}
	out, done, err := r.ProduceTurn(context.Background(), s, log, inst, "")
	require.NoError(t, err)
	assert.Equal(t, "Opening question?", out.Content, "fresh persona starts in question mode")
	assert.False(t, done)
}

func TestProduceTurnGatewayFailure(t *testing.T) {
	gen := &capturingGen{err: errors.New("all providers down")}
	r, inst, s := roundFixture(t, gen, RoundsConfig{TurnBudget: 2})

	_, _, err := r.ProduceTurn(context.Background(), s, nil, inst, "")
	assert.ErrorIs(t, err, ErrAIService)
	assert.Contains(t, err.Error(), "all providers down")
}

func TestContextWindowKeepsNewestWithinBudget(t *testing.T) {
	gen := &capturingGen{reply: "ok"}
	_, inst, s := roundFixture(t, gen, RoundsConfig{TurnBudget: 5})

	// Budget small enough that only the newest exchanges fit.
	preamble := inst.Preamble(persona.PromptInput{Position: s.Position, Difficulty: string(s.Difficulty)})
	r := NewRounds(gen, RoundsConfig{
		TurnBudget:      5,
		HistoryWindow:   20,
		MaxContextChars: len(preamble) + 40,
	}, nil)

	log := []Message{
		msg(1, SenderInterviewer, persona.KindTechnical, strings.Repeat("old ", 30)),
		msg(2, SenderUser, "", "middle answer here"),
		msg(3, SenderInterviewer, persona.KindTechnical, "newest question"),
	}
	_, _, err := r.ProduceTurn(context.Background(), s, append(log, msg(4, SenderUser, "", "latest")), inst, "")
	require.NoError(t, err)

	var contents []string
	for _, f := range gen.frags {
		contents = append(contents, f.Content)
	}
	joined := strings.Join(contents, "\n")
	assert.Contains(t, joined, "latest")
	assert.Contains(t, joined, "newest question")
	assert.NotContains(t, joined, "old old", "oldest messages drop first under the budget")
}

func TestPhaseFeedback(t *testing.T) {
	gen := &capturingGen{reply: `{"score": 72, "commentary": "decent", "concerns": ["depth"]}`}
	r, inst, s := roundFixture(t, gen, RoundsConfig{TurnBudget: 2})

	entry, err := r.PhaseFeedback(context.Background(), s, []Message{
		msg(1, SenderInterviewer, persona.KindTechnical, "Q"),
		msg(2, SenderUser, "", "A"),
	}, inst, "")
	require.NoError(t, err)
	assert.Equal(t, persona.KindTechnical, entry.Kind)
	assert.Equal(t, 72.0, entry.Score)
	assert.Equal(t, []string{"depth"}, entry.Concerns)
}

func TestPhaseFeedbackFailure(t *testing.T) {
	gen := &capturingGen{err: errors.New("exhausted")}
	r, inst, s := roundFixture(t, gen, RoundsConfig{TurnBudget: 2})

	_, err := r.PhaseFeedback(context.Background(), s, nil, inst, "")
	assert.ErrorIs(t, err, ErrAIService)
}
