package domain

import "time"

// SessionStatus tracks the lifecycle of a duel session.
type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusStarting  SessionStatus = "starting"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
)

// Duel is the persisted match record between two participants.
type Duel struct {
	ID            string `json:"id"`
	InitiatorID   string `json:"initiatorId"`
	OpponentID    string `json:"opponentId"`
	Status        string `json:"status"` // pending, active, completed
	QuestionCount int    `json:"questionCount"`
}

// DuelStatusActive is the persisted status required for joining.
const DuelStatusActive = "active"

// Question models an MCQ question with labeled options. Options maps a
// label ("A", "B", ...) to its display text. Immutable once loaded into a session.
type Question struct {
	ID            string            `json:"id"`
	Text          string            `json:"text"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correctAnswer"`
	Explanation   string            `json:"explanation,omitempty"`
}

// PublicQuestion is the client-safe view of a question; the correct answer
// and explanation are withheld until the round is scored.
type PublicQuestion struct {
	ID      string            `json:"id"`
	Text    string            `json:"text"`
	Options map[string]string `json:"options"`
}

// Public strips answer material from a question for broadcast.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{ID: q.ID, Text: q.Text, Options: q.Options}
}

// Answer records one participant's response to one question. A nil
// SelectedAnswer marks a timeout-synthesized answer. At most one Answer
// exists per (session, participant, question index).
type Answer struct {
	SessionID      string  `json:"sessionId"`
	ParticipantID  string  `json:"participantId"`
	QuestionIndex  int     `json:"questionIndex"`
	QuestionID     string  `json:"questionId"`
	SelectedAnswer *string `json:"selectedAnswer"`
	IsCorrect      bool    `json:"isCorrect"`
	ResponseTimeMs int64   `json:"responseTimeMs"`
}

// ParticipantAnswer is the per-participant slice of a round result.
type ParticipantAnswer struct {
	ParticipantID  string  `json:"participantId"`
	SelectedAnswer *string `json:"selectedAnswer"`
	IsCorrect      bool    `json:"isCorrect"`
	ResponseTimeMs int64   `json:"responseTimeMs"`
}

// RoundResult is produced exactly once per question index. The embedded
// question includes the correct answer and explanation, safe to reveal here.
type RoundResult struct {
	QuestionIndex int                 `json:"questionIndex"`
	Question      Question            `json:"question"`
	Answers       []ParticipantAnswer `json:"answers"`
}

// ParticipantScore aggregates one participant's performance over a duel.
type ParticipantScore struct {
	Score       int     `json:"score"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	Accuracy    float64 `json:"accuracy"`
}

// DuelOutcome is produced exactly once per session. A nil WinnerID is a draw.
type DuelOutcome struct {
	WinnerID       *string                     `json:"winnerId"`
	PerParticipant map[string]ParticipantScore `json:"perParticipant"`
}

// BotProfile drives a simulated opponent's accuracy and pacing.
type BotProfile struct {
	ParticipantID      string  `json:"participantId"`
	Username           string  `json:"username"`
	AccuracyRate       float64 `json:"accuracyRate"`
	BaseResponseTimeMs int64   `json:"baseResponseTimeMs"`
	VarianceFactor     float64 `json:"varianceFactor"`
}

// ParticipantRef is one side of a session: either a human bound to a live
// connection or a bot marker.
type ParticipantRef struct {
	ParticipantID string `json:"participantId"`
	Username      string `json:"username"`
	IsBot         bool   `json:"isBot"`
	Connected     bool   `json:"connected"`
	Ready         bool   `json:"ready"`
}

// SessionSnapshot is what a joining (or rejoining) client receives.
type SessionSnapshot struct {
	SessionID        string           `json:"sessionId"`
	DuelID           string           `json:"duelId"`
	Status           SessionStatus    `json:"status"`
	Participants     []ParticipantRef `json:"participants"`
	QuestionIndex    int              `json:"questionIndex"`
	TotalQuestions   int              `json:"totalQuestions"`
	CurrentQuestion  *PublicQuestion  `json:"currentQuestion,omitempty"`
	QuestionDeadline *time.Time       `json:"questionDeadline,omitempty"`
}

// StatsDelta is handed to the stats collaborator after a duel completes.
type StatsDelta struct {
	ParticipantID string
	Won           bool
	Lost          bool
	Drew          bool
	Score         int
}
