package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UkralStul/oraculum-service/api"
	"github.com/UkralStul/oraculum-service/graph"
	"github.com/UkralStul/oraculum-service/internal/assistant"
	"github.com/UkralStul/oraculum-service/internal/auth"
	"github.com/UkralStul/oraculum-service/internal/config"
	"github.com/UkralStul/oraculum-service/internal/content"
	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/UkralStul/oraculum-service/internal/events"
	"github.com/UkralStul/oraculum-service/internal/feed"
	"github.com/UkralStul/oraculum-service/internal/llm"
	"github.com/UkralStul/oraculum-service/internal/logging"
	"github.com/UkralStul/oraculum-service/internal/moderation"
	"github.com/UkralStul/oraculum-service/internal/notify"
	"github.com/UkralStul/oraculum-service/internal/ratelimit"
	"github.com/UkralStul/oraculum-service/internal/reputation"
	"github.com/UkralStul/oraculum-service/internal/storage"
	"github.com/UkralStul/oraculum-service/internal/storage/inmemory"
	"github.com/UkralStul/oraculum-service/internal/storage/postgres"
	"gorm.io/gorm/logger"
)

func main() {
	storageType := flag.String("storage", "in-memory", "Storage type (in-memory or postgres)")
	envFile := flag.String("env-file", ".env", "Path to env file")
	flag.Parse()

	config.LoadEnvFile(*envFile)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel)

	var store storage.Storage
	slog.Info("starting server", slog.String("storage", *storageType))
	if *storageType == "postgres" {
		if cfg.DatabaseURL == "" {
			fatal("DATABASE_URL must be set for postgres storage", nil)
		}
		pg, err := postgres.New(cfg.DatabaseURL, gormLogLevel(cfg.LogLevel))
		if err != nil {
			fatal("failed to connect to postgres", err)
		}
		defer pg.Close()
		store = pg
	} else {
		mem := inmemory.New()
		// Заполним данными для тестов
		fillWithMockData(mem)
		store = mem
	}

	// Модель: без ключа классификатор всегда недоступен, публикация идет без проверок
	var completer llm.Completer = llm.Unavailable{}
	if client, err := llm.NewOpenAIClient(llm.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	}); err != nil {
		slog.Warn("LLM client disabled", slog.Any("error", err))
	} else {
		completer = client
	}

	classifier := moderation.NewBreakerClassifier(
		moderation.NewLLMClassifier(completer), cfg.BreakerFailures, cfg.BreakerCooldown)
	gate := moderation.NewGate(classifier)

	hub := notify.NewHub()
	dispatcher := notify.NewDispatcher(store, hub)

	var publisher events.Publisher = events.LogPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	defer publisher.Close()

	opts := []content.Option{content.WithEvents(publisher)}
	if !cfg.NotifyAsync {
		opts = append(opts, content.WithSyncDispatch())
	}
	contentSvc := content.NewService(store, gate, dispatcher, opts...)

	limiter := newLimiter(cfg)
	ledger := reputation.NewLedger(store, cfg.AICostPerQuestion)

	handler := &api.Handler{
		Storage:   store,
		Content:   contentSvc,
		Feed:      feed.NewService(store),
		Assistant: assistant.New(ledger, classifier, completer, limiter),
		Hub:       hub,
		Auth:      auth.New(cfg.AuthJWTSecret),
		GraphQL:   graph.NewServer(&graph.Resolver{Storage: store, Hub: hub}),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("listening", slog.String("addr", "http://localhost:"+cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server failed to start", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
	}
	// Дожидаемся фоновых рассылок уведомлений
	contentSvc.Wait()
}

func newLimiter(cfg *config.Config) ratelimit.Limiter {
	if cfg.AIRateLimitPerMinute <= 0 {
		return ratelimit.Noop{}
	}
	if cfg.ValkeyAddress != "" {
		client, err := ratelimit.NewValkeyClient(cfg.ValkeyAddress, cfg.ValkeyPassword)
		if err == nil {
			return ratelimit.NewValkey(client, cfg.AIRateLimitPerMinute, time.Minute)
		}
		slog.Warn("valkey unavailable, using in-process rate limiter", slog.Any("error", err))
	}
	return ratelimit.NewMemory(cfg.AIRateLimitPerMinute, time.Minute)
}

func gormLogLevel(level string) logger.LogLevel {
	switch logging.ParseLevel(level) {
	case slog.LevelDebug:
		return logger.Info
	case slog.LevelInfo, slog.LevelWarn:
		return logger.Warn
	default:
		return logger.Error
	}
}

func fatal(msg string, err error) {
	if err != nil {
		slog.Error(msg, slog.Any("error", err))
	} else {
		slog.Error(msg)
	}
	os.Exit(1)
}

func fillWithMockData(s storage.Storage) {
	ctx := context.Background()

	// 1. Профили: у user-2 и user-3 есть интересы, у user-1 запас репутации для AI
	for _, p := range []*domain.Profile{
		{ID: "user-1", Username: "ada", Role: "student", ReputationPoints: 50},
		{ID: "user-2", Username: "alan", Role: "student", Interests: []string{"Computer Science"}, ReputationPoints: 5},
		{ID: "user-3", Username: "grace", Role: "tutor", Interests: []string{"Computer Science", "Mathematics"}},
	} {
		if _, err := s.UpsertProfile(ctx, p); err != nil {
			fatal("fillWithMockData: failed to create profile", err)
		}
	}

	// 2. Пост в категории, на которую подписаны user-2 и user-3
	post, err := s.CreatePost(ctx, &domain.Post{
		UserID:   "user-1",
		Title:    "Why is quicksort O(n log n) on average?",
		Context:  "The worst case is quadratic, so where does the average come from?",
		Author:   "ada",
		Category: "Computer Science",
		Tags:     []string{"algorithms", "complexity"},
	})
	if err != nil {
		fatal("fillWithMockData: failed to create post", err)
	}

	// 3. Ответ на пост и ответ на ответ
	answer, err := s.CreateAnswer(ctx, &domain.Answer{
		PostID:  post.ID,
		UserID:  "user-3",
		Content: "Random pivots split the array evenly in expectation.",
	})
	if err != nil {
		fatal("fillWithMockData: failed to create answer", err)
	}
	if _, err = s.CreateReply(ctx, &domain.Reply{
		AnswerID: answer.ID,
		UserID:   "user-1",
		Content:  "That makes sense, thanks!",
	}); err != nil {
		fatal("fillWithMockData: failed to create reply", err)
	}

	// 4. Пост без категории: рассылка по интересам не выполняется
	second, err := s.CreatePost(ctx, &domain.Post{
		UserID:  "user-2",
		Title:   "Study group for linear algebra",
		Context: "Anyone up for weekly sessions?",
		Author:  "alan",
	})
	if err != nil {
		fatal("fillWithMockData: failed to create second post", err)
	}
	if _, err := s.ApplyVote(ctx, second.ID, "user-1", domain.VoteUp); err != nil {
		fatal("fillWithMockData: failed to vote", err)
	}

	slog.Info("mock data filled",
		slog.String("post_id", post.ID),
		slog.String("second_post_id", second.ID))
}
