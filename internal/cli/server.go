package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"friction-gate/internal/app"
	"friction-gate/internal/config"
	"friction-gate/internal/feed"
	"friction-gate/internal/infra/memory"
	pgstore "friction-gate/internal/infra/postgres"
	redisstore "friction-gate/internal/infra/redis"
	"friction-gate/internal/infra/sqlite"
	"friction-gate/internal/llm"
	"friction-gate/internal/moderation"
	"friction-gate/internal/quizgen"
	transport "friction-gate/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the comment gate server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	store, closeStore, err := buildSessionStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeStore()

	classifier, generator, err := buildModels(ctx, cfg)
	if err != nil {
		return err
	}
	if generator != nil {
		quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
		if redisClient != nil {
			generator = redisstore.NewQuizCache(redisClient, generator, quizTTL)
		} else {
			generator = memory.NewQuizCache(generator, quizTTL)
		}
	}

	hub := feed.NewHub(cfg.Feed.History)
	service := app.NewGateService(app.NewGate(store), classifier, generator, hub, app.Options{
		ClassifyTimeout: config.TTLDuration(cfg.Gate.ClassifyTimeout, 10*time.Second),
		GenerateTimeout: config.TTLDuration(cfg.Gate.GenerateTimeout, 20*time.Second),
	})

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(service, transport.RouterOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: config.TTLDuration(cfg.Server.RequestTimeout, 60*time.Second),
		}),
		// No WriteTimeout: /ws/feed is long-lived and sets its own deadlines.
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting friction gate on :%s (store=%s, llm=%s)", finalPort, cfg.Store.Driver, providerName(cfg))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildSessionStore(ctx context.Context, cfg config.Config, redisClient *redis.Client) (app.SessionStore, func(), error) {
	ttl := config.TTLDuration(cfg.Store.SessionTTL, 0)
	noop := func() {}

	switch cfg.Store.Driver {
	case "memory":
		return memory.NewSessionStore(ttl), noop, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("redis store selected but redis.addr is empty")
		}
		return redisstore.NewSessionStore(redisClient, ttl), noop, nil
	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return pgstore.NewSessionStore(pool, ttl), pool.Close, nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.SQLite.DSN, ttl)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver: %q", cfg.Store.Driver)
	}
}

// buildModels returns nil collaborators when no model is configured; the
// gate service then uses the keyword classifier and the fallback quiz.
func buildModels(ctx context.Context, cfg config.Config) (app.Classifier, app.QuizGenerator, error) {
	switch cfg.LLM.Provider {
	case "", "none":
		return nil, nil, nil
	case "mock":
	default:
		if cfg.LLM.APIKey == "" {
			log.Printf("no API key for llm provider %q, using local fallbacks", cfg.LLM.Provider)
			return nil, nil, nil
		}
	}

	provider, err := llm.NewProvider(ctx, llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Retry:    llm.DefaultRetryConfig(),
	})
	if err != nil {
		return nil, nil, err
	}
	if provider == nil {
		return nil, nil, nil
	}
	return moderation.NewLLMClassifier(provider), quizgen.New(provider), nil
}

func providerName(cfg config.Config) string {
	if cfg.LLM.Provider == "" {
		return "none"
	}
	return cfg.LLM.Provider
}
