package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"duel-engine-service/internal/domain"
)

// DuelStore implements the engine's persistence collaborators on Postgres.
// Question content lives as JSONB rows ordered by position.
type DuelStore struct {
	pool *pgxpool.Pool
}

func NewDuelStore(pool *pgxpool.Pool) *DuelStore {
	return &DuelStore{pool: pool}
}

func (s *DuelStore) GetDuelByID(ctx context.Context, duelID string) (domain.Duel, error) {
	var duel domain.Duel
	err := s.pool.QueryRow(ctx,
		`SELECT id, initiator_id, opponent_id, status, question_count FROM duels WHERE id=$1`,
		duelID,
	).Scan(&duel.ID, &duel.InitiatorID, &duel.OpponentID, &duel.Status, &duel.QuestionCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Duel{}, domain.ErrDuelNotFound
	}
	if err != nil {
		return domain.Duel{}, fmt.Errorf("load duel: %w", err)
	}
	return duel, nil
}

func (s *DuelStore) GetQuestionsForDuel(ctx context.Context, duelID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM duel_questions WHERE duel_id=$1 ORDER BY position`,
		duelID,
	)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var question domain.Question
		if err := json.Unmarshal(raw, &question); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		questions = append(questions, question)
	}
	return questions, rows.Err()
}

func (s *DuelStore) IsBot(ctx context.Context, participantID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bot_profiles WHERE participant_id=$1)`,
		participantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("bot lookup: %w", err)
	}
	return exists, nil
}

func (s *DuelStore) GetBotProfile(ctx context.Context, participantID string) (domain.BotProfile, error) {
	var profile domain.BotProfile
	err := s.pool.QueryRow(ctx,
		`SELECT participant_id, username, accuracy_rate, base_response_time_ms, variance_factor
		 FROM bot_profiles WHERE participant_id=$1`,
		participantID,
	).Scan(&profile.ParticipantID, &profile.Username, &profile.AccuracyRate, &profile.BaseResponseTimeMs, &profile.VarianceFactor)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BotProfile{}, domain.ErrBotProfileNotFound
	}
	if err != nil {
		return domain.BotProfile{}, fmt.Errorf("load bot profile: %w", err)
	}
	return profile, nil
}

// CreateBotDuel picks a bot matching the difficulty, copies the test's
// question bank into a fresh duel, and activates it in one transaction.
func (s *DuelStore) CreateBotDuel(ctx context.Context, initiatorID, testID, difficulty string) (domain.Duel, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var botID string
	err = tx.QueryRow(ctx,
		`SELECT participant_id FROM bot_profiles WHERE difficulty=$1 ORDER BY participant_id LIMIT 1`,
		difficulty,
	).Scan(&botID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Duel{}, domain.ErrBotProfileNotFound
	}
	if err != nil {
		return domain.Duel{}, fmt.Errorf("pick bot: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT position, data FROM test_questions WHERE test_id=$1 ORDER BY position`,
		testID,
	)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("load test questions: %w", err)
	}
	type positioned struct {
		position int
		data     []byte
	}
	var bank []positioned
	for rows.Next() {
		var p positioned
		if err := rows.Scan(&p.position, &p.data); err != nil {
			rows.Close()
			return domain.Duel{}, fmt.Errorf("scan test question: %w", err)
		}
		bank = append(bank, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Duel{}, err
	}
	if len(bank) == 0 {
		return domain.Duel{}, domain.ErrQuestionNotFound
	}

	duel := domain.Duel{
		ID:            uuid.NewString(),
		InitiatorID:   initiatorID,
		OpponentID:    botID,
		Status:        domain.DuelStatusActive,
		QuestionCount: len(bank),
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO duels (id, initiator_id, opponent_id, status, question_count) VALUES ($1,$2,$3,$4,$5)`,
		duel.ID, duel.InitiatorID, duel.OpponentID, duel.Status, duel.QuestionCount,
	); err != nil {
		return domain.Duel{}, fmt.Errorf("insert duel: %w", err)
	}
	for _, p := range bank {
		if _, err := tx.Exec(ctx,
			`INSERT INTO duel_questions (duel_id, position, data) VALUES ($1,$2,$3)`,
			duel.ID, p.position, p.data,
		); err != nil {
			return domain.Duel{}, fmt.Errorf("insert duel question: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Duel{}, fmt.Errorf("commit: %w", err)
	}
	return duel, nil
}

// PersistAnswer is idempotent on (session, participant, question index),
// mirroring the engine's at-most-one invariant.
func (s *DuelStore) PersistAnswer(ctx context.Context, answer domain.Answer) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO duel_answers
		 (session_id, participant_id, question_index, question_id, selected_answer, is_correct, response_time_ms)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (session_id, participant_id, question_index) DO NOTHING`,
		answer.SessionID, answer.ParticipantID, answer.QuestionIndex, answer.QuestionID,
		answer.SelectedAnswer, answer.IsCorrect, answer.ResponseTimeMs,
	)
	if err != nil {
		return fmt.Errorf("persist answer: %w", err)
	}
	return nil
}

func (s *DuelStore) CompleteDuel(ctx context.Context, duelID string, outcome domain.DuelOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE duels SET status='completed' WHERE id=$1`, duelID); err != nil {
		return fmt.Errorf("update duel status: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO duel_results (duel_id, data) VALUES ($1,$2::jsonb)
		 ON CONFLICT (duel_id) DO UPDATE SET data=EXCLUDED.data`,
		duelID, string(data),
	); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *DuelStore) UpdateParticipantStats(ctx context.Context, delta domain.StatsDelta) error {
	win, loss, draw := 0, 0, 0
	if delta.Won {
		win = 1
	}
	if delta.Lost {
		loss = 1
	}
	if delta.Drew {
		draw = 1
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO participant_stats (participant_id, wins, losses, draws, total_score)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (participant_id) DO UPDATE SET
		   wins = participant_stats.wins + EXCLUDED.wins,
		   losses = participant_stats.losses + EXCLUDED.losses,
		   draws = participant_stats.draws + EXCLUDED.draws,
		   total_score = participant_stats.total_score + EXCLUDED.total_score`,
		delta.ParticipantID, win, loss, draw, delta.Score,
	)
	if err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	return nil
}
