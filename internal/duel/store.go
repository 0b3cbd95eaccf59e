package duel

import (
	"context"

	"duel-engine-service/internal/domain"
)

// Store is the persistence collaborator behind the engine. It owns duel
// records, question content, bot profiles, and result bookkeeping; the
// engine only reads metadata and writes outcomes through it.
type Store interface {
	GetDuelByID(ctx context.Context, duelID string) (domain.Duel, error)
	IsBot(ctx context.Context, participantID string) (bool, error)
	GetBotProfile(ctx context.Context, participantID string) (domain.BotProfile, error)
	CreateBotDuel(ctx context.Context, initiatorID, testID, difficulty string) (domain.Duel, error)
	PersistAnswer(ctx context.Context, answer domain.Answer) error
	CompleteDuel(ctx context.Context, duelID string, outcome domain.DuelOutcome) error
	UpdateParticipantStats(ctx context.Context, delta domain.StatsDelta) error
}

// QuestionSource loads the fixed ordered question list for a duel.
// Split from Store so a caching layer (Redis) can wrap just this concern.
type QuestionSource interface {
	GetQuestionsForDuel(ctx context.Context, duelID string) ([]domain.Question, error)
}

// Liveness marks active sessions in shared storage. Best effort only;
// failures never affect the scheduling path.
type Liveness interface {
	MarkAlive(duelID string)
	Clear(duelID string)
}
