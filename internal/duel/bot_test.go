package duel

import (
	"math/rand"
	"testing"
	"time"

	"duel-engine-service/internal/domain"
)

func botQuestion() domain.Question {
	return domain.Question{
		ID:            "q1",
		Text:          "Pick the right one",
		Options:       map[string]string{"A": "no", "B": "yes", "C": "nope", "D": "nah"},
		CorrectAnswer: "B",
	}
}

func TestBotThinkTimeStaysInBounds(t *testing.T) {
	minThink := 20 * time.Millisecond
	maxThink := 80 * time.Millisecond
	agent := NewBotAgentWithSource(minThink, maxThink, rand.NewSource(1))

	profile := domain.BotProfile{AccuracyRate: 0.5, BaseResponseTimeMs: 50, VarianceFactor: 0.9}
	for i := 0; i < 500; i++ {
		_, think := agent.Answer(profile, botQuestion())
		if think < minThink || think > maxThink {
			t.Fatalf("think time %v outside [%v, %v]", think, minThink, maxThink)
		}
	}
}

func TestBotAlwaysCorrectAtFullAccuracy(t *testing.T) {
	agent := NewBotAgentWithSource(time.Millisecond, 10*time.Millisecond, rand.NewSource(2))
	profile := domain.BotProfile{AccuracyRate: 1.0, BaseResponseTimeMs: 5}
	for i := 0; i < 200; i++ {
		selected, _ := agent.Answer(profile, botQuestion())
		if selected != "B" {
			t.Fatalf("accuracy 1.0 must select the correct answer, got %q", selected)
		}
	}
}

func TestBotNeverCorrectAtZeroAccuracy(t *testing.T) {
	agent := NewBotAgentWithSource(time.Millisecond, 10*time.Millisecond, rand.NewSource(3))
	profile := domain.BotProfile{AccuracyRate: 0, BaseResponseTimeMs: 5}
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		selected, _ := agent.Answer(profile, botQuestion())
		if selected == "B" {
			t.Fatalf("accuracy 0 must never select the correct answer")
		}
		seen[selected] = true
	}
	if len(seen) < 2 {
		t.Fatalf("wrong answers should vary across draws, saw %v", seen)
	}
}
