package duel

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"duel-engine-service/internal/domain"
)

// BotAgent produces delayed, probabilistically-correct answers so a bot
// behaves like a real, sometimes-slow network participant. Its submissions
// go through the same collector path as a human's.
type BotAgent struct {
	minThink time.Duration
	maxThink time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBotAgent builds an agent whose think time is clamped to
// [minThink, maxThink]; maxThink must sit under the question deadline.
func NewBotAgent(minThink, maxThink time.Duration) *BotAgent {
	return NewBotAgentWithSource(minThink, maxThink, rand.NewSource(time.Now().UnixNano()))
}

// NewBotAgentWithSource is test-only for deterministic draws.
func NewBotAgentWithSource(minThink, maxThink time.Duration, src rand.Source) *BotAgent {
	return &BotAgent{
		minThink: minThink,
		maxThink: maxThink,
		rnd:      rand.New(src),
	}
}

// Answer picks an option label and a think time for the given profile.
// With probability AccuracyRate the bot selects the correct answer;
// otherwise it picks uniformly among the wrong labels.
func (b *BotAgent) Answer(profile domain.BotProfile, question domain.Question) (selected string, think time.Duration) {
	b.mu.Lock()
	correctDraw := b.rnd.Float64() < profile.AccuracyRate
	spread := b.rnd.Float64()*2 - 1 // [-1, 1)
	wrongPick := b.rnd.Intn(1 << 16)
	b.mu.Unlock()

	if correctDraw {
		selected = question.CorrectAnswer
	} else {
		wrong := make([]string, 0, len(question.Options))
		for label := range question.Options {
			if label != question.CorrectAnswer {
				wrong = append(wrong, label)
			}
		}
		sort.Strings(wrong)
		if len(wrong) == 0 {
			selected = question.CorrectAnswer
		} else {
			selected = wrong[wrongPick%len(wrong)]
		}
	}

	variance := profile.VarianceFactor
	if variance <= 0 {
		variance = 0.3
	}
	base := time.Duration(profile.BaseResponseTimeMs) * time.Millisecond
	think = base + time.Duration(float64(base)*variance*spread)
	if think < b.minThink {
		think = b.minThink
	}
	if think > b.maxThink {
		think = b.maxThink
	}
	return selected, think
}
