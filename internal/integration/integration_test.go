package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/infra/postgres"
	infraredis "quiz-proctor-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestProctoredSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedBank(t, ctx, pgURL, sampleBank())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	questions := infraredis.NewQuestionCache(redisClient, postgres.NewQuestionStore(pool), 5*time.Minute)
	progress := infraredis.NewRetryingRecorder(redisClient, postgres.NewProgressRecorder(pool))
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	service := app.NewSessionService(sessions, questions, progress, app.Policy{ValidateOptions: true})

	user := app.IdentityFunc(func(context.Context) (string, bool) { return "u1", true })
	session, err := service.Open(ctx, "topic-1", user, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if session.State() != domain.StateNotStarted {
		t.Fatalf("expected not_started, got %s", session.State())
	}
	if err := session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, optionID := range []string{"q1-b", "q2-b", "q3-c"} {
		if err := session.SelectCurrent(optionID); err != nil {
			t.Fatalf("select %s: %v", optionID, err)
		}
		if _, err := session.Advance(); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}

	result, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 2 || result.Total != 3 || result.Passed {
		t.Fatalf("expected failing 2/3 result, got %+v", result)
	}
	session.Wait()

	topics, err := service.CompletedTopics(ctx, "u1")
	if err != nil {
		t.Fatalf("completed topics: %v", err)
	}
	if len(topics) != 1 || topics[0] != "topic-1" {
		t.Fatalf("expected topic-1 completed, got %v", topics)
	}
	if pending, err := progress.Pending(ctx); err != nil || pending != 0 {
		t.Fatalf("expected empty outbox, got %d (%v)", pending, err)
	}

	// a second session for the same topic is served from the redis cache
	again, err := service.Open(ctx, "topic-1", user, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if snap := again.Snapshot(); snap.Total != 3 {
		t.Fatalf("expected 3 cached questions, got %d", snap.Total)
	}
	service.Close(session.ID())
	service.Close(again.ID())
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func seedBank(t *testing.T, ctx context.Context, dsn string, bank domain.QuestionBank) {
	t.Helper()
	db := postgres.OpenBun(dsn)
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := postgres.NewSeeder(db).Seed(ctx, bank); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func sampleBank() domain.QuestionBank {
	return domain.QuestionBank{Topics: []domain.BankTopic{{
		ID:    "topic-1",
		Title: "Arithmetic",
		Questions: []domain.BankQuestion{
			{ID: "q1", Text: "What is 2 + 2?", Options: []domain.BankOption{
				{ID: "q1-a", Text: "3"},
				{ID: "q1-b", Text: "4", Correct: true},
			}},
			{ID: "q2", Text: "What is 3 x 3?", Options: []domain.BankOption{
				{ID: "q2-a", Text: "9", Correct: true},
				{ID: "q2-b", Text: "6"},
			}},
			{ID: "q3", Text: "What is 10 - 7?", Options: []domain.BankOption{
				{ID: "q3-a", Text: "4"},
				{ID: "q3-c", Text: "3", Correct: true},
			}},
		},
	}}}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
