package interview

import "context"

// Store persists sessions and their message logs.
//
// SaveTransition is the single write path: it persists a session
// snapshot together with the messages the transition appended, all or
// nothing. A failed call must leave no partial rows behind — in
// particular no orphaned messages a later hydration could serve.
// Message appends are idempotent on (sessionID, Seq) so a replayed
// transition cannot duplicate log entries.
type Store interface {
	SaveTransition(ctx context.Context, s *Session, appended []Message) error
	LoadSession(ctx context.Context, id string) (*Session, error)
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
}

// ResumeSource supplies optional pre-extracted resume text injected into
// persona preambles. A missing resume returns "" with a nil error.
type ResumeSource interface {
	ResumeText(ctx context.Context, sessionID string) (string, error)
}

// NoResume is a ResumeSource that never has resume text.
type NoResume struct{}

func (NoResume) ResumeText(ctx context.Context, sessionID string) (string, error) {
	return "", nil
}
