package interview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/interviewd/internal/persona"
	"github.com/fyrsmithlabs/interviewd/internal/provider"
)

// scriptedGen returns queued replies in order, then fails.
type scriptedGen struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (g *scriptedGen) Generate(ctx context.Context, frags []provider.Fragment) (*provider.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if len(g.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	text := g.replies[0]
	g.replies = g.replies[1:]
	return &provider.Result{Text: text, Provider: "scripted"}, nil
}

func (g *scriptedGen) push(replies ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, replies...)
}

// testStore is an in-memory Store with an injectable failure.
type testStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	messages map[string][]Message
	failSave error
}

func newTestStore() *testStore {
	return &testStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
	}
}

func (s *testStore) SaveTransition(ctx context.Context, sess *Session, appended []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.sessions[sess.ID] = sess.Clone()
outer:
	for _, m := range appended {
		for _, existing := range s.messages[sess.ID] {
			if existing.Seq == m.Seq {
				continue outer
			}
		}
		s.messages[sess.ID] = append(s.messages[sess.ID], m)
	}
	return nil
}

func (s *testStore) LoadSession(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Clone(), nil
}

func (s *testStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages[sessionID]))
	copy(out, s.messages[sessionID])
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func feedbackJSON(score float64, commentary string, concerns ...string) string {
	b := fmt.Sprintf(`{"score": %g, "commentary": %q, "concerns": [`, score, commentary)
	for i, c := range concerns {
		if i > 0 {
			b += ", "
		}
		b += fmt.Sprintf("%q", c)
	}
	return b + "]}"
}

type machineFixture struct {
	machine *Machine
	store   *testStore
	gen     *scriptedGen
}

func newMachineFixture(t *testing.T, sequence []persona.Kind, turnBudget int) *machineFixture {
	t.Helper()
	reg, err := persona.NewRegistryWithSequence(sequence)
	require.NoError(t, err)
	gen := &scriptedGen{}
	rounds := NewRounds(gen, RoundsConfig{
		QuestionCount:   3,
		TurnBudget:      turnBudget,
		MaxContextChars: 12000,
		HistoryWindow:   20,
	}, nil)
	store := newTestStore()
	agg := NewAggregator(nil)
	return &machineFixture{
		machine: NewMachine(store, rounds, reg, agg, nil, nil),
		store:   store,
		gen:     gen,
	}
}

func TestMachineCreate(t *testing.T) {
	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical, persona.KindBehavioral}, 2)

	s, err := f.machine.Create(context.Background(), "Backend Engineer", DifficultyMedium)
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, persona.KindTechnical, s.Phase)
	assert.Equal(t, []persona.Kind{persona.KindBehavioral}, s.Remaining)
	assert.Nil(t, s.OverallScore)

	msgs, err := f.machine.ListMessages(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].Seq)
	assert.Equal(t, SenderSystem, msgs[0].Sender)
	assert.Contains(t, msgs[0].Content, "Backend Engineer")
}

func TestMachineFullInterview(t *testing.T) {
	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical, persona.KindBehavioral}, 2)
	ctx := context.Background()

	s, err := f.machine.Create(ctx, "SRE", DifficultyHard)
	require.NoError(t, err)

	// Phase 1: question, then reply + feedback + phase advance.
	f.gen.push("1. Explain a race condition you debugged.")
	msgs, err := f.machine.SubmitUserMessage(ctx, s.ID, "Hello, ready to start.")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, SenderUser, msgs[0].Sender)
	assert.Equal(t, SenderInterviewer, msgs[1].Sender)
	assert.Equal(t, persona.KindTechnical, msgs[1].Persona)
	assert.Equal(t, "Explain a race condition you debugged.", msgs[1].Content)

	f.gen.push(
		"Interesting. How did you prove the fix?",
		feedbackJSON(80, "Solid debugging instincts.", "light on testing"),
	)
	msgs, err = f.machine.SubmitUserMessage(ctx, s.ID, "It was a double-close on a channel.")
	require.NoError(t, err)
	require.Len(t, msgs, 3) // user, interviewer, phase-change system message
	assert.Equal(t, SenderSystem, msgs[2].Sender)

	got, err := f.machine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, persona.KindBehavioral, got.Phase)
	assert.Empty(t, got.Remaining)
	require.Len(t, got.Feedback, 1)
	assert.Equal(t, 80.0, got.Feedback[0].Score)

	// Phase 2: last persona, so completing it completes the session.
	f.gen.push("1. Tell me about a conflict with a teammate.")
	_, err = f.machine.SubmitUserMessage(ctx, s.ID, "Sure.")
	require.NoError(t, err)

	f.gen.push(
		"How was it resolved?",
		feedbackJSON(60, "Communicates adequately.", "conflict avoidance"),
	)
	msgs, err = f.machine.SubmitUserMessage(ctx, s.ID, "We escalated and then compromised.")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[2].Content, "Overall score: 70.0")

	got, err = f.machine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Empty(t, got.Phase)
	require.NotNil(t, got.OverallScore)
	assert.InDelta(t, 70.0, *got.OverallScore, 1e-9)
	assert.False(t, got.CompletedAt.IsZero())

	// Sequence numbers are gap-free from 1 across the whole log.
	all, err := f.machine.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	for i, m := range all {
		assert.Equal(t, i+1, m.Seq)
	}

	// No further submissions once completed.
	_, err = f.machine.SubmitUserMessage(ctx, s.ID, "one more thing")
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestMachineAIFailureLeavesStateUntouched(t *testing.T) {
	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical}, 2)
	ctx := context.Background()

	s, err := f.machine.Create(ctx, "Platform Engineer", DifficultyEasy)
	require.NoError(t, err)

	f.gen.err = errors.New("backend down")
	_, err = f.machine.SubmitUserMessage(ctx, s.ID, "Hi")
	assert.ErrorIs(t, err, ErrAIService)

	// Neither the user message nor any phase movement survived.
	msgs, err := f.machine.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	got, err := f.machine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, persona.KindTechnical, got.Phase)
	assert.Empty(t, got.Feedback)

	// A retry after recovery starts clean and succeeds.
	f.gen.err = nil
	f.gen.push("1. Describe your deployment pipeline.")
	msgs, err = f.machine.SubmitUserMessage(ctx, s.ID, "Hi")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 2, msgs[0].Seq)
	assert.Equal(t, 3, msgs[1].Seq)
}

func TestMachinePersistenceFailureRollsBack(t *testing.T) {
	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical}, 2)
	ctx := context.Background()

	s, err := f.machine.Create(ctx, "Data Engineer", DifficultyMedium)
	require.NoError(t, err)

	f.store.failSave = errors.New("disk full")
	f.gen.push("1. How do you backfill safely?")
	_, err = f.machine.SubmitUserMessage(ctx, s.ID, "Ready.")
	assert.ErrorIs(t, err, ErrPersistence)

	msgs, err := f.machine.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "failed transition must not leak messages")

	f.store.failSave = nil
	f.gen.push("1. How do you backfill safely?")
	msgs, err = f.machine.SubmitUserMessage(ctx, s.ID, "Ready.")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestMachinePersistenceFailureLeavesNoOrphans(t *testing.T) {
	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical}, 2)
	ctx := context.Background()

	s, err := f.machine.Create(ctx, "Data Engineer", DifficultyMedium)
	require.NoError(t, err)

	f.store.failSave = errors.New("disk full")
	f.gen.push("1. How do you backfill safely?")
	_, err = f.machine.SubmitUserMessage(ctx, s.ID, "Ready.")
	assert.ErrorIs(t, err, ErrPersistence)
	f.store.failSave = nil

	// A fresh machine hydrating from the same store must see only the
	// welcome message: the failed transition left no rows behind.
	reg, err := persona.NewRegistryWithSequence([]persona.Kind{persona.KindTechnical})
	require.NoError(t, err)
	rounds := NewRounds(f.gen, RoundsConfig{TurnBudget: 2}, nil)
	m2 := NewMachine(f.store, rounds, reg, NewAggregator(nil), nil, nil)

	msgs, err := m2.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, SenderSystem, msgs[0].Sender)

	// The hydrated session resumes with gap-free sequence numbers.
	f.gen.push("1. How do you backfill safely?")
	msgs, err = m2.SubmitUserMessage(ctx, s.ID, "Ready.")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 2, msgs[0].Seq)
	assert.Equal(t, 3, msgs[1].Seq)
}

func TestMachineEndEarlyWithoutFeedback(t *testing.T) {
	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical, persona.KindHR}, 2)
	ctx := context.Background()

	s, err := f.machine.Create(ctx, "QA Engineer", DifficultyEasy)
	require.NoError(t, err)

	ended, err := f.machine.End(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, ended.Status)
	assert.Nil(t, ended.OverallScore, "no completed phase means no score")
	assert.Empty(t, ended.Phase)

	msgs, err := f.machine.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	assert.Contains(t, msgs[len(msgs)-1].Content, "No assessment is available")

	// Ending again is a no-op.
	again, err := f.machine.End(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, ended.CompletedAt, again.CompletedAt)
}

func TestMachineEndEarlyWithPartialFeedback(t *testing.T) {
	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical, persona.KindBehavioral}, 1)
	ctx := context.Background()

	s, err := f.machine.Create(ctx, "Backend Engineer", DifficultyMedium)
	require.NoError(t, err)

	// Turn budget 1: a single submission completes the first phase.
	f.gen.push(
		"1. Walk me through a recent design.",
		feedbackJSON(90, "Strong design sense."),
	)
	_, err = f.machine.SubmitUserMessage(ctx, s.ID, "Hello.")
	require.NoError(t, err)

	ended, err := f.machine.End(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, ended.Status)
	require.NotNil(t, ended.OverallScore)
	assert.InDelta(t, 90.0, *ended.OverallScore, 1e-9)
}

func TestMachineGetReturnsClones(t *testing.T) {
	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical, persona.KindFinal}, 2)
	ctx := context.Background()

	s, err := f.machine.Create(ctx, "Engineer", DifficultyEasy)
	require.NoError(t, err)

	got, err := f.machine.Get(ctx, s.ID)
	require.NoError(t, err)
	got.Status = StatusCompleted
	got.Remaining[0] = persona.KindHR

	fresh, err := f.machine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, fresh.Status)
	assert.Equal(t, persona.KindFinal, fresh.Remaining[0])
}

func TestMachineUnknownSession(t *testing.T) {
	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical}, 2)

	_, err := f.machine.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.machine.SubmitUserMessage(context.Background(), "nope", "hi")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.machine.End(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMachineHydratesFromStore(t *testing.T) {
	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical}, 2)
	ctx := context.Background()

	s, err := f.machine.Create(ctx, "Engineer", DifficultyMedium)
	require.NoError(t, err)
	f.gen.push("1. First question?")
	_, err = f.machine.SubmitUserMessage(ctx, s.ID, "Hello.")
	require.NoError(t, err)

	// A fresh machine over the same store picks the session back up.
	reg, err := persona.NewRegistryWithSequence([]persona.Kind{persona.KindTechnical})
	require.NoError(t, err)
	rounds := NewRounds(f.gen, RoundsConfig{TurnBudget: 2}, nil)
	m2 := NewMachine(f.store, rounds, reg, NewAggregator(nil), nil, nil)

	got, err := m2.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	msgs, err := m2.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	f.gen.push(
		"Follow-up question?",
		feedbackJSON(75, "Fine."),
	)
	_, err = m2.SubmitUserMessage(ctx, s.ID, "Answer.")
	require.NoError(t, err)
	got, err = m2.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestMachineConcurrentSubmissions(t *testing.T) {
	const submitters = 16

	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical}, 100)
	ctx := context.Background()

	s, err := f.machine.Create(ctx, "Engineer", DifficultyMedium)
	require.NoError(t, err)

	for i := 0; i < submitters; i++ {
		f.gen.push("1. Tell me more.")
	}

	var wg sync.WaitGroup
	errs := make(chan error, submitters)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.machine.SubmitUserMessage(ctx, s.ID, fmt.Sprintf("answer %d", n))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Per-session mutual exclusion keeps the log gap-free and every
	// user message paired with its interviewer reply.
	msgs, err := f.machine.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1+2*submitters)
	for i, m := range msgs {
		assert.Equal(t, i+1, m.Seq)
	}
	for i := 1; i < len(msgs); i += 2 {
		assert.Equal(t, SenderUser, msgs[i].Sender)
		assert.Equal(t, SenderInterviewer, msgs[i+1].Sender)
	}
}

func TestMachineConcurrentSubmitAndEnd(t *testing.T) {
	const submitters = 8

	f := newMachineFixture(t, []persona.Kind{persona.KindTechnical}, 100)
	ctx := context.Background()

	s, err := f.machine.Create(ctx, "Engineer", DifficultyMedium)
	require.NoError(t, err)

	for i := 0; i < submitters; i++ {
		f.gen.push("1. Tell me more.")
	}

	var wg sync.WaitGroup
	errs := make(chan error, submitters+1)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.machine.SubmitUserMessage(ctx, s.ID, "answer")
			errs <- err
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.machine.End(ctx, s.ID)
		errs <- err
	}()
	wg.Wait()
	close(errs)

	// Submissions racing the end either land in full or are rejected;
	// nothing else can come out of the race.
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrSessionNotActive)
		}
	}

	got, err := f.machine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	msgs, err := f.machine.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	for i, m := range msgs {
		assert.Equal(t, i+1, m.Seq)
	}
}
