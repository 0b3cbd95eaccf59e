package memory

import "duel-engine-service/internal/domain"

// SeedDemo loads a runnable human-vs-bot duel so the service works out of
// the box with no database configured.
func SeedDemo(store *DuelStore) {
	questions := []domain.Question{
		{
			ID:   "q1",
			Text: "What is 7 x 8?",
			Options: map[string]string{
				"A": "54",
				"B": "56",
				"C": "64",
				"D": "48",
			},
			CorrectAnswer: "B",
			Explanation:   "7 x 8 = 56.",
		},
		{
			ID:   "q2",
			Text: "Which planet is closest to the sun?",
			Options: map[string]string{
				"A": "Venus",
				"B": "Earth",
				"C": "Mercury",
				"D": "Mars",
			},
			CorrectAnswer: "C",
			Explanation:   "Mercury orbits nearest to the sun.",
		},
		{
			ID:   "q3",
			Text: "What is the capital of Australia?",
			Options: map[string]string{
				"A": "Sydney",
				"B": "Melbourne",
				"C": "Perth",
				"D": "Canberra",
			},
			CorrectAnswer: "D",
			Explanation:   "Canberra was purpose-built as the capital.",
		},
	}

	store.AddBot(domain.BotProfile{
		ParticipantID:      "bot-easy",
		Username:           "Rookie Bot",
		AccuracyRate:       0.5,
		BaseResponseTimeMs: 8000,
		VarianceFactor:     0.4,
	}, "easy")
	store.AddBot(domain.BotProfile{
		ParticipantID:      "bot-hard",
		Username:           "Champion Bot",
		AccuracyRate:       0.9,
		BaseResponseTimeMs: 4000,
		VarianceFactor:     0.3,
	}, "hard")

	store.AddQuestionSet("test-1", questions)
	store.AddDuel(domain.Duel{
		ID:            "duel-1",
		InitiatorID:   "u1",
		OpponentID:    "bot-easy",
		Status:        domain.DuelStatusActive,
		QuestionCount: len(questions),
	}, questions)
}
