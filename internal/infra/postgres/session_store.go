package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"friction-gate/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SessionStore persists gate sessions in the gate_sessions table.
// Update locks the row with SELECT ... FOR UPDATE so concurrent
// verifications of one session are serialized by Postgres.
type SessionStore struct {
	pool  *pgxpool.Pool
	ttl   time.Duration
	clock func() time.Time
}

func NewSessionStore(pool *pgxpool.Pool, ttl time.Duration) *SessionStore {
	return &SessionStore{pool: pool, ttl: ttl, clock: time.Now}
}

func (s *SessionStore) Create(ctx context.Context, id string, session domain.Session) error {
	quiz, err := json.Marshal(session.Quiz)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO gate_sessions (id, comment, article_text, quiz, attempts, solved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET comment=EXCLUDED.comment, article_text=EXCLUDED.article_text, quiz=EXCLUDED.quiz,
		    attempts=EXCLUDED.attempts, solved=EXCLUDED.solved, created_at=EXCLUDED.created_at
		WHERE gate_sessions.created_at <= $8`,
		id, session.Comment, session.ArticleText, quiz, session.Attempts, session.Solved, createdAt(session), s.cutoff(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateSession
	}
	return nil
}

func (s *SessionStore) Read(ctx context.Context, id string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT comment, article_text, quiz, attempts, solved, created_at
		FROM gate_sessions WHERE id=$1`, id)
	return s.scan(row)
}

func (s *SessionStore) Write(ctx context.Context, id string, session domain.Session) error {
	return s.save(ctx, s.pool, id, session)
}

func (s *SessionStore) Update(ctx context.Context, id string, fn func(*domain.Session) error) (domain.Session, error) {
	var updated domain.Session
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT comment, article_text, quiz, attempts, solved, created_at
			FROM gate_sessions WHERE id=$1 FOR UPDATE`, id)
		session, err := s.scan(row)
		if err != nil {
			return err
		}
		if err := fn(&session); err != nil {
			return err
		}
		if err := s.save(ctx, tx, id, session); err != nil {
			return err
		}
		updated = session
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	return updated, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

func (s *SessionStore) save(ctx context.Context, db querier, id string, session domain.Session) error {
	quiz, err := json.Marshal(session.Quiz)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}
	tag, err := db.Exec(ctx, `
		UPDATE gate_sessions
		SET comment=$2, article_text=$3, quiz=$4, attempts=$5, solved=$6
		WHERE id=$1 AND ($7::timestamptz IS NULL OR created_at > $7)`,
		id, session.Comment, session.ArticleText, quiz, session.Attempts, session.Solved, s.cutoff(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// cutoff is the creation time at or before which a session has expired,
// or nil when sessions never expire.
func (s *SessionStore) cutoff() *time.Time {
	if s.ttl <= 0 {
		return nil
	}
	t := s.clock().Add(-s.ttl)
	return &t
}

func (s *SessionStore) scan(row pgx.Row) (domain.Session, error) {
	var (
		session domain.Session
		quiz    []byte
	)
	err := row.Scan(&session.Comment, &session.ArticleText, &quiz, &session.Attempts, &session.Solved, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal(quiz, &session.Quiz); err != nil {
		return domain.Session{}, fmt.Errorf("decode quiz: %w", err)
	}
	if session.Expired(s.ttl, s.clock()) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func createdAt(session domain.Session) time.Time {
	if session.CreatedAt.IsZero() {
		return time.Now()
	}
	return session.CreatedAt
}
