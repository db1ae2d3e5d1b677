package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"friction-gate/internal/domain"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS gate_sessions (
    id           TEXT PRIMARY KEY,
    comment      TEXT    NOT NULL,
    article_text TEXT    NOT NULL,
    quiz         TEXT    NOT NULL,
    attempts     INTEGER NOT NULL DEFAULT 0,
    solved       INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL
);`

// SessionStore keeps gate sessions in a single SQLite file, for
// single-node deployments that want sessions to survive a restart.
type SessionStore struct {
	db    *sql.DB
	ttl   time.Duration
	clock func() time.Time
}

// Open connects to the database at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string, ttl time.Duration) (*SessionStore, error) {
	if dsn == "" {
		dsn = "file:friction-gate.db?mode=rwc"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SessionStore{db: db, ttl: ttl, clock: time.Now}, nil
}

func (s *SessionStore) Close() error {
	return s.db.Close()
}

func (s *SessionStore) Create(ctx context.Context, id string, session domain.Session) error {
	quiz, err := json.Marshal(session.Quiz)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}
	created := session.CreatedAt
	if created.IsZero() {
		created = s.clock()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO gate_sessions (id, comment, article_text, quiz, attempts, solved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE
		SET comment = excluded.comment, article_text = excluded.article_text, quiz = excluded.quiz,
		    attempts = excluded.attempts, solved = excluded.solved, created_at = excluded.created_at
		WHERE gate_sessions.created_at <= ?`,
		id, session.Comment, session.ArticleText, string(quiz), session.Attempts, session.Solved, created.UnixMilli(), s.cutoff(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if n == 0 {
		return domain.ErrDuplicateSession
	}
	return nil
}

func (s *SessionStore) Read(ctx context.Context, id string) (domain.Session, error) {
	return s.load(ctx, s.db, id)
}

func (s *SessionStore) Write(ctx context.Context, id string, session domain.Session) error {
	return s.save(ctx, s.db, id, session)
}

// Update runs fn inside a transaction. The single connection serializes
// every read-modify-write on the database.
func (s *SessionStore) Update(ctx context.Context, id string, fn func(*domain.Session) error) (domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	session, err := s.load(ctx, tx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if err := fn(&session); err != nil {
		return domain.Session{}, err
	}
	if err := s.save(ctx, tx, id, session); err != nil {
		return domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, fmt.Errorf("commit: %w", err)
	}
	return session, nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SessionStore) load(ctx context.Context, q querier, id string) (domain.Session, error) {
	var (
		session domain.Session
		quiz    string
		created int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT comment, article_text, quiz, attempts, solved, created_at
		FROM gate_sessions WHERE id = ?`, id,
	).Scan(&session.Comment, &session.ArticleText, &quiz, &session.Attempts, &session.Solved, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal([]byte(quiz), &session.Quiz); err != nil {
		return domain.Session{}, fmt.Errorf("decode quiz: %w", err)
	}
	session.CreatedAt = time.UnixMilli(created).UTC()
	if session.Expired(s.ttl, s.clock()) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) save(ctx context.Context, q querier, id string, session domain.Session) error {
	quiz, err := json.Marshal(session.Quiz)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}
	cutoff := s.cutoff()
	res, err := q.ExecContext(ctx, `
		UPDATE gate_sessions
		SET comment = ?, article_text = ?, quiz = ?, attempts = ?, solved = ?
		WHERE id = ? AND (? IS NULL OR created_at > ?)`,
		session.Comment, session.ArticleText, string(quiz), session.Attempts, session.Solved, id, cutoff, cutoff,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// cutoff is the creation time, in unix millis, at or before which a
// session has expired; nil when sessions never expire.
func (s *SessionStore) cutoff() *int64 {
	if s.ttl <= 0 {
		return nil
	}
	ms := s.clock().Add(-s.ttl).UnixMilli()
	return &ms
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}
