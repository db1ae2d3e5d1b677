package app

import (
	"context"
	"errors"
	"time"

	"friction-gate/internal/domain"
)

// SessionStore abstracts how gate sessions are stored (in-memory, Redis, SQL).
// Operations on one id are linearizable; Update is the serialized
// read-modify-write the gate relies on.
type SessionStore interface {
	Create(ctx context.Context, id string, session domain.Session) error
	Read(ctx context.Context, id string) (domain.Session, error)
	Write(ctx context.Context, id string, session domain.Session) error
	Update(ctx context.Context, id string, fn func(*domain.Session) error) (domain.Session, error)
}

// Gate is the per-session state machine. A session is PENDING until a
// verification matches every question, then SOLVED for good.
type Gate struct {
	store SessionStore
	now   func() time.Time
}

func NewGate(store SessionStore) *Gate {
	return NewGateWithClock(store, time.Now)
}

// NewGateWithClock is test-only for deterministic timestamps.
func NewGateWithClock(store SessionStore, now func() time.Time) *Gate {
	return &Gate{store: store, now: now}
}

// Create opens a PENDING session holding comment until quiz is solved.
func (g *Gate) Create(ctx context.Context, id, comment, articleText string, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	return g.store.Create(ctx, id, domain.Session{
		Comment:     comment,
		ArticleText: articleText,
		Quiz:        quiz,
		CreatedAt:   g.now(),
	})
}

// Verify counts one attempt and checks answers positionally against the quiz.
// A solved session stays solved whatever is submitted afterwards.
func (g *Gate) Verify(ctx context.Context, id string, answers []int) (domain.VerifyResult, error) {
	var result domain.VerifyResult
	_, err := g.store.Update(ctx, id, func(session *domain.Session) error {
		session.Attempts++
		result = domain.VerifyResult{Attempts: session.Attempts}
		if !session.Quiz.Matches(answers) {
			return nil
		}
		result.Success = true
		result.Comment = session.Comment
		result.Released = !session.Solved
		session.Solved = true
		return nil
	})
	if err != nil {
		return domain.VerifyResult{}, err
	}
	return result, nil
}

// Reveal returns the withheld comment of a solved session. Unknown and
// unsolved sessions are indistinguishable to the caller.
func (g *Gate) Reveal(ctx context.Context, id string) (string, error) {
	session, err := g.store.Read(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return "", domain.ErrAccessDenied
	}
	if err != nil {
		return "", err
	}
	if !session.Solved {
		return "", domain.ErrAccessDenied
	}
	return session.Comment, nil
}
