package domain

import "errors"

var (
	// ErrNotParticipant is returned when a connection joins a duel it is not
	// registered for.
	ErrNotParticipant = errors.New("participant not registered for duel")
	// ErrDuelNotFound indicates the persisted duel record is missing.
	ErrDuelNotFound = errors.New("duel not found")
	// ErrDuelNotActive is returned when joining a duel whose persisted status
	// is not active.
	ErrDuelNotActive = errors.New("duel is not active")
	// ErrSessionNotFound is returned when acting on a session that has not
	// been created or was already evicted.
	ErrSessionNotFound = errors.New("duel session not found")
	// ErrQuestionNotFound indicates a submitted question ID does not match
	// the session's current question.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAlreadyAnswered rejects a second answer for the same round.
	ErrAlreadyAnswered = errors.New("answer already recorded for this question")
	// ErrNotReadyPhase rejects a ready signal outside the waiting phase.
	ErrNotReadyPhase = errors.New("session is not waiting for ready signals")
	// ErrRoundNotOpen rejects an answer when no question is currently open.
	ErrRoundNotOpen = errors.New("no question is currently open")
	// ErrSessionCompleted rejects actions against a finished session.
	ErrSessionCompleted = errors.New("duel session already completed")
	// ErrBotProfileNotFound indicates a bot participant has no stored profile.
	ErrBotProfileNotFound = errors.New("bot profile not found")
)
