package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"duel-engine-service/internal/domain"
)

// DuelStore is an in-memory implementation of the engine's persistence
// collaborators, used by tests and the no-database demo mode. Writes are
// recorded so tests can assert the engine's side-effect dispatch.
type DuelStore struct {
	mu           sync.RWMutex
	duels        map[string]domain.Duel
	questions    map[string][]domain.Question // keyed by duel ID
	questionSets map[string][]domain.Question // keyed by test ID, for bot challenges
	bots         map[string]domain.BotProfile
	botByLevel   map[string]string // difficulty -> bot participant ID

	answers  []domain.Answer
	outcomes map[string]domain.DuelOutcome
	stats    map[string]domain.StatsDelta
}

func NewDuelStore() *DuelStore {
	return &DuelStore{
		duels:        make(map[string]domain.Duel),
		questions:    make(map[string][]domain.Question),
		questionSets: make(map[string][]domain.Question),
		bots:         make(map[string]domain.BotProfile),
		botByLevel:   make(map[string]string),
		outcomes:     make(map[string]domain.DuelOutcome),
		stats:        make(map[string]domain.StatsDelta),
	}
}

// AddDuel registers a duel with its ordered question list.
func (s *DuelStore) AddDuel(duel domain.Duel, questions []domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duels[duel.ID] = duel
	s.questions[duel.ID] = questions
}

// AddBot registers a bot profile, optionally reachable via a difficulty label.
func (s *DuelStore) AddBot(profile domain.BotProfile, difficulty string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[profile.ParticipantID] = profile
	if difficulty != "" {
		s.botByLevel[difficulty] = profile.ParticipantID
	}
}

// AddQuestionSet registers the question bank behind a test ID for bot challenges.
func (s *DuelStore) AddQuestionSet(testID string, questions []domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questionSets[testID] = questions
}

func (s *DuelStore) GetDuelByID(_ context.Context, duelID string) (domain.Duel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	duel, ok := s.duels[duelID]
	if !ok {
		return domain.Duel{}, domain.ErrDuelNotFound
	}
	return duel, nil
}

func (s *DuelStore) GetQuestionsForDuel(_ context.Context, duelID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions, ok := s.questions[duelID]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	return questions, nil
}

func (s *DuelStore) IsBot(_ context.Context, participantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bots[participantID]
	return ok, nil
}

func (s *DuelStore) GetBotProfile(_ context.Context, participantID string) (domain.BotProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.bots[participantID]
	if !ok {
		return domain.BotProfile{}, domain.ErrBotProfileNotFound
	}
	return profile, nil
}

func (s *DuelStore) CreateBotDuel(_ context.Context, initiatorID, testID, difficulty string) (domain.Duel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	questions, ok := s.questionSets[testID]
	if !ok {
		return domain.Duel{}, domain.ErrQuestionNotFound
	}
	botID, ok := s.botByLevel[difficulty]
	if !ok {
		return domain.Duel{}, domain.ErrBotProfileNotFound
	}
	duel := domain.Duel{
		ID:            uuid.NewString(),
		InitiatorID:   initiatorID,
		OpponentID:    botID,
		Status:        domain.DuelStatusActive,
		QuestionCount: len(questions),
	}
	s.duels[duel.ID] = duel
	s.questions[duel.ID] = questions
	return duel, nil
}

func (s *DuelStore) PersistAnswer(_ context.Context, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, answer)
	return nil
}

func (s *DuelStore) CompleteDuel(_ context.Context, duelID string, outcome domain.DuelOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	duel, ok := s.duels[duelID]
	if !ok {
		return domain.ErrDuelNotFound
	}
	duel.Status = "completed"
	s.duels[duelID] = duel
	s.outcomes[duelID] = outcome
	return nil
}

func (s *DuelStore) UpdateParticipantStats(_ context.Context, delta domain.StatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[delta.ParticipantID] = delta
	return nil
}

// PersistedAnswers returns a copy of everything written via PersistAnswer.
func (s *DuelStore) PersistedAnswers() []domain.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, len(s.answers))
	copy(out, s.answers)
	return out
}

// Outcome returns the persisted outcome for a duel, if any.
func (s *DuelStore) Outcome(duelID string) (domain.DuelOutcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	outcome, ok := s.outcomes[duelID]
	return outcome, ok
}

// Stats returns the recorded stats delta for a participant, if any.
func (s *DuelStore) Stats(participantID string) (domain.StatsDelta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	delta, ok := s.stats[participantID]
	return delta, ok
}
