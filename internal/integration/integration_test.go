package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"friction-gate/internal/app"
	"friction-gate/internal/domain"
	"friction-gate/internal/feed"
	pgstore "friction-gate/internal/infra/postgres"
	pgmigrations "friction-gate/internal/infra/postgres/migrations"
	infraredis "friction-gate/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestGateOnPostgresEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := pgstore.NewSessionStore(pool, time.Hour)
	exerciseGate(t, ctx, store)

	if err := store.Create(ctx, "dup", sampleSession()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, "dup", sampleSession()); !errors.Is(err, domain.ErrDuplicateSession) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, err := store.Read(ctx, "absent"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Write(ctx, "absent", sampleSession()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found on write, got %v", err)
	}

	stale := sampleSession()
	stale.CreatedAt = time.Now().Add(-2 * time.Hour)
	stale.Attempts = 4
	if err := store.Create(ctx, "stale", stale); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Write(ctx, "stale", stale); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session to reject writes, got %v", err)
	}
	if err := store.Create(ctx, "stale", sampleSession()); err != nil {
		t.Fatalf("expected expired session to be replaced, got %v", err)
	}
	if got, err := store.Read(ctx, "stale"); err != nil || got.Attempts != 0 {
		t.Fatalf("expected fresh session, got %+v %v", got, err)
	}
	concurrentAttempts(t, ctx, store)
}

func TestGateOnRedisEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	exerciseGate(t, ctx, store)
	concurrentAttempts(t, ctx, store)
}

// exerciseGate walks a toxic comment through the gate service on store.
func exerciseGate(t *testing.T, ctx context.Context, store app.SessionStore) {
	t.Helper()
	hub := feed.NewHub(10)
	service := app.NewGateService(app.NewGate(store), nil, nil, hub, app.Options{})

	res, err := service.Submit(ctx, "you are stupid", "An article about databases.")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Status != domain.StatusBlocked {
		t.Fatalf("expected blocked, got %+v", res)
	}

	wrong, err := service.SubmitAnswers(ctx, res.QuizID, []int{1, 1, 1})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if wrong.Success || wrong.Attempts != 1 {
		t.Fatalf("expected failed first attempt, got %+v", wrong)
	}

	right, err := service.SubmitAnswers(ctx, res.QuizID, []int{0, 2, 0})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !right.Success || right.Comment != "you are stupid" || right.Attempts != 2 {
		t.Fatalf("expected success on second attempt, got %+v", right)
	}
	if comment, err := service.Reveal(ctx, res.QuizID); err != nil || comment != "you are stupid" {
		t.Fatalf("expected reveal, got %q %v", comment, err)
	}
	if len(hub.Recent(0)) != 1 {
		t.Fatalf("expected released comment on the feed")
	}
}

func concurrentAttempts(t *testing.T, ctx context.Context, store app.SessionStore) {
	t.Helper()
	if err := store.Create(ctx, "busy", sampleSession()); err != nil {
		t.Fatalf("create: %v", err)
	}
	gate := app.NewGate(store)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gate.Verify(ctx, "busy", []int{1, 1, 1}); err != nil {
				t.Errorf("verify: %v", err)
			}
		}()
	}
	wg.Wait()

	session, err := store.Read(ctx, "busy")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if session.Attempts != workers || session.Solved {
		t.Fatalf("expected %d unsolved attempts, got %+v", workers, session)
	}
}

func sampleSession() domain.Session {
	return domain.Session{
		Comment:     "you are stupid",
		ArticleText: "article",
		Quiz:        domain.FallbackQuiz(),
		CreatedAt:   time.Now(),
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "gate", "POSTGRES_PASSWORD": "gatepass", "POSTGRES_DB": "gatedb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://gate:gatepass@%s:%s/gatedb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
