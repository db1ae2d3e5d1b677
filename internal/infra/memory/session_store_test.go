package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"friction-gate/internal/domain"
)

func sampleSession() domain.Session {
	return domain.Session{
		Comment:     "you are stupid",
		ArticleText: "article",
		Quiz:        domain.FallbackQuiz(),
		CreatedAt:   time.Now(),
	}
}

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(0)

	if err := store.Create(ctx, "s1", sampleSession()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, "s1", sampleSession()); !errors.Is(err, domain.ErrDuplicateSession) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	got, err := store.Read(ctx, "s1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got.Attempts = 5
	if err := store.Write(ctx, "s1", got); err != nil {
		t.Fatalf("write: %v", err)
	}
	again, _ := store.Read(ctx, "s1")
	if again.Attempts != 5 {
		t.Fatalf("expected write to persist, got %d attempts", again.Attempts)
	}

	if _, err := store.Read(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Write(ctx, "missing", got); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected write to unknown id to fail, got %v", err)
	}
}

func TestSessionStoreReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(0)
	_ = store.Create(ctx, "s1", sampleSession())

	got, _ := store.Read(ctx, "s1")
	got.Quiz.Questions[0].CorrectOptionIndex = 3

	again, _ := store.Read(ctx, "s1")
	if again.Quiz.Questions[0].CorrectOptionIndex != 0 {
		t.Fatalf("caller mutation leaked into the store")
	}
}

func TestSessionStoreUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(0)
	_ = store.Create(ctx, "s1", sampleSession())

	boom := errors.New("boom")
	_, err := store.Update(ctx, "s1", func(s *domain.Session) error {
		s.Attempts = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, _ := store.Read(ctx, "s1")
	if got.Attempts != 0 {
		t.Fatalf("failed update must not commit, got %d attempts", got.Attempts)
	}
}

func TestSessionStoreUpdateSerializesPerSession(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(0)
	_ = store.Create(ctx, "s1", sampleSession())
	_ = store.Create(ctx, "s2", sampleSession())

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		for _, id := range []string{"s1", "s2"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, _ = store.Update(ctx, id, func(s *domain.Session) error {
					s.Attempts++
					return nil
				})
			}(id)
		}
	}
	wg.Wait()

	for _, id := range []string{"s1", "s2"} {
		got, _ := store.Read(ctx, id)
		if got.Attempts != workers {
			t.Fatalf("%s: expected %d attempts, got %d", id, workers, got.Attempts)
		}
	}
}

func TestSessionStoreExpiresLazily(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(time.Hour)
	store.clock = func() time.Time { return now }

	session := sampleSession()
	session.CreatedAt = now
	_ = store.Create(ctx, "s1", session)

	if _, err := store.Read(ctx, "s1"); err != nil {
		t.Fatalf("expected live session, got %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := store.Read(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session to read as missing, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected expired session dropped, %d left", store.Len())
	}
}

func TestSessionStoreCreateReplacesExpiredSession(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(time.Hour)
	store.clock = func() time.Time { return now }

	stale := sampleSession()
	stale.CreatedAt = now
	stale.Attempts = 7
	if err := store.Create(ctx, "s1", stale); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, "s1", stale); !errors.Is(err, domain.ErrDuplicateSession) {
		t.Fatalf("expected duplicate while live, got %v", err)
	}

	now = now.Add(2 * time.Hour)
	fresh := sampleSession()
	fresh.CreatedAt = now
	if err := store.Create(ctx, "s1", fresh); err != nil {
		t.Fatalf("expected expired session to be replaced, got %v", err)
	}
	got, err := store.Read(ctx, "s1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Attempts != 0 || !got.CreatedAt.Equal(now) {
		t.Fatalf("expected fresh session, got %+v", got)
	}
}
