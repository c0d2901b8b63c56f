package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/interviewd/internal/logging"
	"github.com/fyrsmithlabs/interviewd/internal/persona"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/interviewd/internal/interview")

// sessionState is the authoritative in-memory record for one session.
// Its mutex serializes transitions so sequence numbers stay gap-free
// under concurrent submissions.
type sessionState struct {
	mu      sync.Mutex
	session *Session
	log     []Message
}

// Machine owns every session's lifecycle. All transitions follow the
// same discipline: compute the next state on copies, persist it, and
// only then commit to memory. A failed transition leaves both the
// in-memory state and the visible log exactly as they were.
type Machine struct {
	store      Store
	rounds     *Rounds
	registry   *persona.Registry
	aggregator *Aggregator
	resume     ResumeSource
	logger     *logging.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// NewMachine wires the session machine. A nil resume source disables
// resume injection; a nil logger disables logging.
func NewMachine(store Store, rounds *Rounds, registry *persona.Registry, aggregator *Aggregator, resume ResumeSource, logger *logging.Logger) *Machine {
	if resume == nil {
		resume = NoResume{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Machine{
		store:      store,
		rounds:     rounds,
		registry:   registry,
		aggregator: aggregator,
		resume:     resume,
		logger:     logger.Named("machine"),
		sessions:   make(map[string]*sessionState),
	}
}

// Create starts a new session. The session is immediately active in the
// first phase of the registry's sequence, with a welcome message at
// sequence 1.
func (m *Machine) Create(ctx context.Context, position string, difficulty Difficulty) (*Session, error) {
	ctx, span := tracer.Start(ctx, "machine.create_session")
	defer span.End()

	seq := m.registry.DefaultSequence()
	if len(seq) == 0 {
		return nil, fmt.Errorf("persona sequence is empty")
	}
	first, err := m.registry.GetPersona(seq[0])
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s := &Session{
		ID:         uuid.NewString(),
		Position:   position,
		Difficulty: difficulty,
		Status:     StatusActive,
		Phase:      seq[0],
		Remaining:  append([]persona.Kind(nil), seq[1:]...),
		CreatedAt:  now,
	}
	welcome := Message{
		Seq:    1,
		Sender: SenderSystem,
		Content: fmt.Sprintf("Interview for %s (%s difficulty) has started. %s",
			position, difficulty, first.Intro()),
		Timestamp: now,
	}

	if err := m.store.SaveTransition(ctx, s, []Message{welcome}); err != nil {
		persistFailures.Inc()
		return nil, fmt.Errorf("%w: save session: %w", ErrPersistence, err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = &sessionState{session: s, log: []Message{welcome}}
	m.mu.Unlock()

	sessionsStarted.Inc()
	m.logger.Info(ctx, "session created",
		zap.String("session_id", s.ID),
		zap.String("position", position),
		zap.String("difficulty", string(difficulty)),
		zap.String("phase", string(s.Phase)),
	)
	return s.Clone(), nil
}

// SubmitUserMessage appends the candidate's message, produces the active
// persona's reply and, when the persona's turn budget is exhausted,
// collects its feedback and advances to the next phase (or completes the
// session after the last one). It returns every message the transition
// appended, in order.
//
// Any AI or store failure aborts the whole transition: the user message
// is not kept, the phase does not move, and a retry starts clean.
func (m *Machine) SubmitUserMessage(ctx context.Context, id, content string) ([]Message, error) {
	ctx = logging.ContextWithSessionID(ctx, id)
	ctx, span := tracer.Start(ctx, "machine.submit_user_message")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	st, err := m.state(ctx, id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != StatusActive {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, id, st.session.Status)
	}

	next := st.session.Clone()
	inst, err := m.registry.GetPersona(next.Phase)
	if err != nil {
		return nil, err
	}
	resume, err := m.resume.ResumeText(ctx, id)
	if err != nil {
		m.logger.Warn(ctx, "resume lookup failed", zap.String("session_id", id), zap.Error(err))
		resume = ""
	}

	now := time.Now().UTC()
	appended := []Message{{
		Seq:       len(st.log) + 1,
		Sender:    SenderUser,
		Content:   content,
		Timestamp: now,
	}}
	working := append(append([]Message(nil), st.log...), appended...)

	reply, phaseComplete, err := m.rounds.ProduceTurn(ctx, next, working, inst, resume)
	if err != nil {
		return nil, err
	}
	reply.Seq = len(working) + 1
	appended = append(appended, reply)
	working = append(working, reply)
	turnsTotal.WithLabelValues(string(inst.Kind())).Inc()

	if phaseComplete {
		entry, err := m.rounds.PhaseFeedback(ctx, next, working, inst, resume)
		if err != nil {
			return nil, err
		}
		next.Feedback = append(next.Feedback, entry)

		transition, err := m.advancePhase(ctx, next, len(working)+1, now)
		if err != nil {
			return nil, err
		}
		appended = append(appended, transition)
		working = append(working, transition)
	}

	if err := m.persist(ctx, next, appended); err != nil {
		return nil, err
	}

	st.session = next
	st.log = working
	m.logger.Debug(ctx, "transition committed",
		zap.String("session_id", id),
		zap.Int("messages", len(appended)),
		zap.String("status", string(next.Status)),
	)
	return cloneMessages(appended), nil
}

// advancePhase mutates next in place to enter the following phase, or to
// complete the session after the last one, and returns the system
// message announcing the change.
func (m *Machine) advancePhase(ctx context.Context, next *Session, seq int, now time.Time) (Message, error) {
	if len(next.Remaining) > 0 {
		prev := next.Phase
		next.Phase = next.Remaining[0]
		next.Remaining = next.Remaining[1:]
		inst, err := m.registry.GetPersona(next.Phase)
		if err != nil {
			return Message{}, err
		}
		phaseAdvances.Inc()
		m.logger.Debug(ctx, "phase advanced",
			zap.String("session_id", next.ID),
			zap.String("from", string(prev)),
			zap.String("to", string(next.Phase)),
		)
		return Message{
			Seq:       seq,
			Sender:    SenderSystem,
			Content:   inst.Intro(),
			Timestamp: now,
		}, nil
	}

	assessment, err := m.aggregator.Aggregate(next.Feedback)
	if err != nil {
		return Message{}, err
	}
	score := assessment.OverallScore
	next.Status = StatusCompleted
	next.Phase = ""
	next.OverallScore = &score
	next.CompletedAt = now
	sessionsCompleted.WithLabelValues("finished").Inc()
	overallScores.Observe(score)
	return Message{
		Seq:    seq,
		Sender: SenderSystem,
		Content: fmt.Sprintf("The interview is complete. Overall score: %.1f/100.\n%s",
			score, assessment.Commentary),
		Timestamp: now,
	}, nil
}

// End completes a session early, aggregating whatever feedback was
// collected so far. With no completed phases the session still ends,
// but with no overall score. Ending an already completed session is a
// no-op returning its final state.
func (m *Machine) End(ctx context.Context, id string) (*Session, error) {
	ctx = logging.ContextWithSessionID(ctx, id)
	ctx, span := tracer.Start(ctx, "machine.end_session")
	defer span.End()

	st, err := m.state(ctx, id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status == StatusCompleted {
		return st.session.Clone(), nil
	}

	next := st.session.Clone()
	now := time.Now().UTC()
	next.Status = StatusCompleted
	next.Phase = ""
	next.Remaining = nil
	next.CompletedAt = now

	closing := Message{
		Seq:       len(st.log) + 1,
		Sender:    SenderSystem,
		Timestamp: now,
	}
	assessment, err := m.aggregator.Aggregate(next.Feedback)
	switch {
	case err == nil:
		score := assessment.OverallScore
		next.OverallScore = &score
		overallScores.Observe(score)
		closing.Content = fmt.Sprintf("Interview ended early. Overall score: %.1f/100.\n%s",
			score, assessment.Commentary)
	case errors.Is(err, ErrInsufficientFeedback):
		// No phase finished: completed, but no score to report.
		closing.Content = "Interview ended before any phase completed. No assessment is available."
	default:
		return nil, err
	}

	if err := m.persist(ctx, next, []Message{closing}); err != nil {
		return nil, err
	}

	st.session = next
	st.log = append(st.log, closing)
	sessionsCompleted.WithLabelValues("ended_early").Inc()
	m.logger.Info(ctx, "session ended",
		zap.String("session_id", id),
		zap.Bool("scored", next.OverallScore != nil),
	)
	return next.Clone(), nil
}

// Get returns a copy of the session's current state.
func (m *Machine) Get(ctx context.Context, id string) (*Session, error) {
	st, err := m.state(ctx, id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session.Clone(), nil
}

// ListMessages returns a copy of the session's full message log.
func (m *Machine) ListMessages(ctx context.Context, id string) ([]Message, error) {
	st, err := m.state(ctx, id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return cloneMessages(st.log), nil
}

// persist writes a computed transition to the store atomically. A
// failure leaves the store exactly as it was, so hydration after a
// restart can never see a failed transition's messages.
func (m *Machine) persist(ctx context.Context, s *Session, appended []Message) error {
	if err := m.store.SaveTransition(ctx, s, appended); err != nil {
		persistFailures.Inc()
		return fmt.Errorf("%w: save transition: %w", ErrPersistence, err)
	}
	return nil
}

// state looks up a session, hydrating from the store when the machine
// has no in-memory record (for example after a restart).
func (m *Machine) state(ctx context.Context, id string) (*sessionState, error) {
	m.mu.Lock()
	if st, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return st, nil
	}
	m.mu.Unlock()

	s, err := m.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	log, err := m.store.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load messages: %w", ErrPersistence, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[id]; ok {
		// Lost the race against a concurrent hydration.
		return st, nil
	}
	st := &sessionState{session: s, log: log}
	m.sessions[id] = st
	return st, nil
}

func cloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
