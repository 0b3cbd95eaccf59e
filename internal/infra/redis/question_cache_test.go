package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"duel-engine-service/internal/domain"
	"duel-engine-service/internal/infra/memory"
)

func TestQuestionCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	backing := memory.NewDuelStore()
	backing.AddDuel(domain.Duel{
		ID: "duel-1", InitiatorID: "u1", OpponentID: "u2", Status: domain.DuelStatusActive,
	}, sampleQuestions())
	loader := &countingSource{inner: backing}
	cache := NewQuestionCache(client, loader, time.Minute)

	questions, err := cache.GetQuestionsForDuel(context.Background(), "duel-1")
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(questions) != 2 || questions[0].ID != "q1" || questions[1].ID != "q2" {
		t.Fatalf("expected ordered questions, got %+v", questions)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}

	// Second read is served from the hash without touching the loader.
	questions, err = cache.GetQuestionsForDuel(context.Background(), "duel-1")
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if len(questions) != 2 || questions[0].ID != "q1" {
		t.Fatalf("cache must preserve question order, got %+v", questions)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}

	if !mr.Exists("duel:duel-1:questions") {
		t.Fatalf("expected redis hash to be populated")
	}
}

func TestQuestionCacheFallsBackOnCorruptEntry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.HSet("duel:duel-1:questions", "0", "{not json")

	backing := memory.NewDuelStore()
	backing.AddDuel(domain.Duel{
		ID: "duel-1", InitiatorID: "u1", OpponentID: "u2", Status: domain.DuelStatusActive,
	}, sampleQuestions())
	loader := &countingSource{inner: backing}
	cache := NewQuestionCache(client, loader, time.Minute)

	questions, err := cache.GetQuestionsForDuel(context.Background(), "duel-1")
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected loader fallback, got %+v", questions)
	}
	if loader.calls != 1 {
		t.Fatalf("expected one loader call, got %d", loader.calls)
	}
}

type countingSource struct {
	inner *memory.DuelStore
	calls int
}

func (c *countingSource) GetQuestionsForDuel(ctx context.Context, duelID string) ([]domain.Question, error) {
	c.calls++
	return c.inner.GetQuestionsForDuel(ctx, duelID)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:            "q1",
			Text:          "What is 2 + 2?",
			Options:       map[string]string{"A": "3", "B": "4"},
			CorrectAnswer: "B",
		},
		{
			ID:            "q2",
			Text:          "What is 3 + 3?",
			Options:       map[string]string{"A": "6", "B": "7"},
			CorrectAnswer: "A",
		},
	}
}
