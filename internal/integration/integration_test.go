package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"duel-engine-service/internal/config"
	"duel-engine-service/internal/domain"
	"duel-engine-service/internal/duel"
	pgstore "duel-engine-service/internal/infra/postgres"
	pgmigrations "duel-engine-service/internal/infra/postgres/migrations"
	redisinfra "duel-engine-service/internal/infra/redis"
)

func TestBotDuelEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedDuel(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	store := pgstore.NewDuelStore(pool)
	questions := redisinfra.NewQuestionCache(redisClient, store, 5*time.Minute)
	liveness := redisinfra.NewLivenessStore(redisClient, 5*time.Minute)
	registry := duel.NewRegistry(liveness)

	tun := config.Tunables{
		QuestionTimeLimit:   400 * time.Millisecond,
		ResultDisplay:       30 * time.Millisecond,
		CountdownTicks:      1,
		CountdownInterval:   10 * time.Millisecond,
		GracePeriod:         300 * time.Millisecond,
		BotMinThink:         10 * time.Millisecond,
		BotMaxThink:         60 * time.Millisecond,
		CompletionRetries:   3,
		CompletionBackoff:   20 * time.Millisecond,
		TimerUpdateInterval: 0,
	}
	engine := duel.NewEngine(store, questions, registry, tun, zap.NewNop())

	snapshot, err := engine.Join(ctx, "duel-1", "u1", "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if snapshot.TotalQuestions != 2 {
		t.Fatalf("expected 2 questions, got %d", snapshot.TotalQuestions)
	}

	events, cancel, err := engine.Subscribe("duel-1", "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := engine.Ready(ctx, "duel-1", "u1"); err != nil {
		t.Fatalf("ready: %v", err)
	}

	for round := 0; round < 2; round++ {
		presented := waitFor(t, events, duel.EventQuestionPresented).Payload.(duel.QuestionPresentedPayload)
		if presented.QuestionIndex != round {
			t.Fatalf("expected round %d, got %d", round, presented.QuestionIndex)
		}
		answer := "B"
		if presented.Question.ID == "q2" {
			answer = "A"
		}
		if err := engine.Submit(ctx, "duel-1", "u1", presented.Question.ID, answer, 50); err != nil {
			t.Fatalf("submit round %d: %v", round, err)
		}
		waitFor(t, events, duel.EventRoundResult)
	}

	done := waitFor(t, events, duel.EventDuelCompleted).Payload.(duel.DuelCompletedPayload)
	if len(done.Outcome.PerParticipant) != 2 {
		t.Fatalf("expected two aggregates, got %+v", done.Outcome)
	}

	// Writes land asynchronously; poll the database for the final state.
	waitUntil(t, 5*time.Second, func() bool {
		var status string
		if err := pool.QueryRow(ctx, `SELECT status FROM duels WHERE id='duel-1'`).Scan(&status); err != nil {
			return false
		}
		return status == "completed"
	})
	waitUntil(t, 5*time.Second, func() bool {
		var count int
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM duel_answers`).Scan(&count); err != nil {
			return false
		}
		return count == 4
	})
	waitUntil(t, 5*time.Second, func() bool {
		var count int
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM participant_stats`).Scan(&count); err != nil {
			return false
		}
		return count == 2
	})

	// Question list was cached through Redis on session creation.
	exists, err := redisClient.Exists(ctx, "duel:duel-1:questions").Result()
	if err != nil || exists != 1 {
		t.Fatalf("expected cached question hash, exists=%d err=%v", exists, err)
	}
}

func waitFor(t *testing.T, ch <-chan duel.Event, want duel.EventType) duel.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func seedDuel(t *testing.T, ctx context.Context, dsn string) {
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

	if _, err := db.ExecContext(ctx,
		`INSERT INTO duels (id, initiator_id, opponent_id, status, question_count) VALUES ('duel-1', 'u1', 'bot-1', 'active', 2)`,
	); err != nil {
		t.Fatalf("insert duel: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO bot_profiles (participant_id, username, difficulty, accuracy_rate, base_response_time_ms, variance_factor)
		 VALUES ('bot-1', 'Quiz Bot', 'easy', 1.0, 20, 0.3)`,
	); err != nil {
		t.Fatalf("insert bot: %v", err)
	}

	questions := []domain.Question{
		{ID: "q1", Text: "What is 2 + 2?", Options: map[string]string{"A": "3", "B": "4"}, CorrectAnswer: "B"},
		{ID: "q2", Text: "What is 3 + 3?", Options: map[string]string{"A": "6", "B": "7"}, CorrectAnswer: "A"},
	}
	for i, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			t.Fatalf("marshal question: %v", err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO duel_questions (duel_id, position, data) VALUES ('duel-1', ?, ?::jsonb)`,
			i, string(data),
		); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "duel", "POSTGRES_PASSWORD": "duelpass", "POSTGRES_DB": "dueldb"},
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
	dsn := fmt.Sprintf("postgres://duel:duelpass@%s:%s/dueldb?sslmode=disable", host, port.Port())
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
