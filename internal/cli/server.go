package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/config"
	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/infra/memory"
	"quiz-proctor-service/internal/infra/postgres"
	redisinfra "quiz-proctor-service/internal/infra/redis"
	"quiz-proctor-service/internal/infra/sqlite"
	transport "quiz-proctor-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var source app.QuestionStore = memory.NewStaticQuestionStore(sampleBank())
	if pool != nil {
		source = postgres.NewQuestionStore(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var questions app.QuestionStore
	if redisClient != nil {
		questions = redisinfra.NewQuestionCache(redisClient, source, quizTTL)
	} else {
		questions = memory.NewQuestionCache(source, quizTTL)
	}

	progress, closeProgress, err := newProgressRecorder(cfg, pool)
	if err != nil {
		return err
	}
	defer closeProgress()

	var outbox *redisinfra.RetryingRecorder
	if redisClient != nil {
		outbox = redisinfra.NewRetryingRecorder(redisClient, progress)
		progress = outbox
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	service := app.NewSessionService(sessions, questions, progress, app.Policy{
		RequireFullScreen: cfg.Proctoring.RequireFullScreen,
		ConfirmTimeout:    config.TTLDuration(cfg.Proctoring.ConfirmTimeout, 5*time.Second),
		ValidateOptions:   cfg.Quiz.ValidateOptions,
		PersistTimeout:    config.TTLDuration(cfg.Quiz.PersistTimeout, 10*time.Second),
	})
	auth := newAuthenticator(cfg)
	router := transport.NewRouter(
		transport.NewWSHandler(service, auth),
		transport.NewProgressHandler(service),
		auth,
		cfg.Server.AllowedOrigins,
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	if outbox != nil {
		retry := config.TTLDuration(cfg.Progress.RetryInterval, time.Minute)
		g.Go(func() error {
			outbox.Run(gctx, retry)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newProgressRecorder(cfg config.Config, pool *pgxpool.Pool) (app.ProgressRecorder, func(), error) {
	switch driver := cfg.ProgressDriver(); driver {
	case "memory":
		return memory.NewProgressRecorder(), func() {}, nil
	case "sqlite":
		rec, err := sqlite.NewProgressRecorder(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return rec, func() { _ = rec.Close() }, nil
	case "postgres":
		if pool == nil {
			return nil, nil, fmt.Errorf("progress driver postgres needs postgres.url")
		}
		return postgres.NewProgressRecorder(pool), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown progress driver %q", driver)
	}
}

// sampleBank serves a single topic when no database is configured.
func sampleBank() domain.QuestionBank {
	return domain.QuestionBank{Topics: []domain.BankTopic{{
		ID:          "topic-1",
		Title:       "Arithmetic",
		Description: "Warm-up questions",
		Questions: []domain.BankQuestion{
			{ID: "q1", Text: "What is 2 + 2?", Options: []domain.BankOption{
				{ID: "q1-a", Text: "3"},
				{ID: "q1-b", Text: "4", Correct: true},
				{ID: "q1-c", Text: "5"},
			}},
			{ID: "q2", Text: "What is 3 x 3?", Options: []domain.BankOption{
				{ID: "q2-a", Text: "6"},
				{ID: "q2-b", Text: "9", Correct: true},
				{ID: "q2-c", Text: "12"},
			}},
			{ID: "q3", Text: "What is 10 - 7?", Options: []domain.BankOption{
				{ID: "q3-a", Text: "3", Correct: true},
				{ID: "q3-b", Text: "4"},
				{ID: "q3-c", Text: "7"},
			}},
		},
	}}}
}
