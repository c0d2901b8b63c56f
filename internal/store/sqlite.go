package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/interviewd/internal/interview"
	"github.com/fyrsmithlabs/interviewd/internal/persona"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite persists sessions and message logs in a single SQLite file.
// Variable-shape fields (remaining phases, feedback) are stored as JSON
// columns; messages are one row per sequence number.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and applies any
// pending migrations.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// SaveTransition writes the session snapshot and its appended messages
// in one transaction. Either the whole transition lands or none of it
// does, so a failure can never leave orphaned messages behind.
// Messages replayed with an already-persisted (session_id, seq) pair
// are ignored, which keeps retried transitions harmless.
func (s *SQLite) SaveTransition(ctx context.Context, sess *interview.Session, appended []interview.Message) error {
	remaining, err := json.Marshal(sess.Remaining)
	if err != nil {
		return fmt.Errorf("marshal remaining: %w", err)
	}
	feedback, err := json.Marshal(sess.Feedback)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	var completedAt any
	if !sess.CompletedAt.IsZero() {
		completedAt = sess.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	var score any
	if sess.OverallScore != nil {
		score = *sess.OverallScore
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition for %s: %w", sess.ID, err)
	}
	defer tx.Rollback()

	// The session row goes first so message inserts satisfy the
	// foreign key on a brand-new session.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, position, difficulty, status, phase, remaining, overall_score, feedback, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			phase = excluded.phase,
			remaining = excluded.remaining,
			overall_score = excluded.overall_score,
			feedback = excluded.feedback,
			completed_at = excluded.completed_at`,
		sess.ID, sess.Position, string(sess.Difficulty), string(sess.Status), string(sess.Phase),
		string(remaining), score, string(feedback),
		sess.CreatedAt.UTC().Format(time.RFC3339Nano), completedAt,
	); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	for _, m := range appended {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO messages (session_id, seq, sender, persona, content, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sess.ID, m.Seq, string(m.Sender), string(m.Persona), m.Content,
			m.Timestamp.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("append message %d to %s: %w", m.Seq, sess.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition for %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLite) LoadSession(ctx context.Context, id string) (*interview.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, position, difficulty, status, phase, remaining, overall_score, feedback, created_at, completed_at
		FROM sessions WHERE id = ?`, id)

	var (
		sess        interview.Session
		difficulty  string
		status      string
		phase       string
		remaining   string
		score       sql.NullFloat64
		feedback    string
		createdAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.Position, &difficulty, &status, &phase,
		&remaining, &score, &feedback, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", interview.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	sess.Difficulty = interview.Difficulty(difficulty)
	sess.Status = interview.Status(status)
	sess.Phase = persona.Kind(phase)
	if err := json.Unmarshal([]byte(remaining), &sess.Remaining); err != nil {
		return nil, fmt.Errorf("unmarshal remaining: %w", err)
	}
	if err := json.Unmarshal([]byte(feedback), &sess.Feedback); err != nil {
		return nil, fmt.Errorf("unmarshal feedback: %w", err)
	}
	if score.Valid {
		sess.OverallScore = &score.Float64
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if completedAt.Valid {
		if sess.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt.String); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
	}
	return &sess, nil
}

func (s *SQLite) ListMessages(ctx context.Context, sessionID string) ([]interview.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, sender, persona, content, timestamp
		FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []interview.Message
	for rows.Next() {
		var (
			m      interview.Message
			sender string
			kind   string
			ts     string
		)
		if err := rows.Scan(&m.Seq, &sender, &kind, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = interview.SenderKind(sender)
		m.Persona = persona.Kind(kind)
		if m.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
