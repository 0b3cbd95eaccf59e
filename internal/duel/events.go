package duel

import (
	"time"

	"duel-engine-service/internal/domain"
)

// EventType enumerates every server-to-client event.
type EventType string

const (
	EventRoomJoined           EventType = "room_joined"
	EventOpponentJoined       EventType = "opponent_joined"
	EventPlayerReady          EventType = "player_ready"
	EventDuelStarting         EventType = "duel_starting"
	EventQuestionPresented    EventType = "question_presented"
	EventTimerUpdate          EventType = "timer_update"
	EventQuestionTimeUp       EventType = "question_time_up"
	EventOpponentAnswered     EventType = "opponent_answered"
	EventRoundResult          EventType = "round_result"
	EventDuelCompleted        EventType = "duel_completed"
	EventOpponentDisconnected EventType = "opponent_disconnected"
	EventRoomError            EventType = "room_error"
	EventChallengeCreated     EventType = "challenge_created"
)

// Payload is the closed set of event payloads. The marker method keeps the
// event type and its payload shape paired at compile time.
type Payload interface {
	eventType() EventType
}

// Event is one server-to-client message. An empty TargetID means room
// broadcast; otherwise only the named participant receives it.
type Event struct {
	Type     EventType `json:"type"`
	TargetID string    `json:"-"`
	Payload  Payload   `json:"payload,omitempty"`
}

// NewEvent pairs a payload with its type tag.
func NewEvent(p Payload) Event {
	return Event{Type: p.eventType(), Payload: p}
}

// NewTargetedEvent builds an event delivered to a single participant.
func NewTargetedEvent(targetID string, p Payload) Event {
	return Event{Type: p.eventType(), TargetID: targetID, Payload: p}
}

type RoomJoinedPayload struct {
	Snapshot domain.SessionSnapshot `json:"snapshot"`
}

func (RoomJoinedPayload) eventType() EventType { return EventRoomJoined }

type OpponentJoinedPayload struct {
	ParticipantID string `json:"participantId"`
	Username      string `json:"username"`
	IsBot         bool   `json:"isBot"`
}

func (OpponentJoinedPayload) eventType() EventType { return EventOpponentJoined }

type PlayerReadyPayload struct {
	ParticipantID string `json:"participantId"`
	IsBot         bool   `json:"isBot"`
}

func (PlayerReadyPayload) eventType() EventType { return EventPlayerReady }

type DuelStartingPayload struct {
	Countdown int `json:"countdown"`
}

func (DuelStartingPayload) eventType() EventType { return EventDuelStarting }

type QuestionPresentedPayload struct {
	QuestionIndex   int                   `json:"questionIndex"`
	TotalQuestions  int                   `json:"totalQuestions"`
	Question        domain.PublicQuestion `json:"question"`
	TimeLimitMs     int64                 `json:"timeLimitMs"`
	ServerStartTime time.Time             `json:"serverStartTime"`
	ServerEndTime   time.Time             `json:"serverEndTime"`
}

func (QuestionPresentedPayload) eventType() EventType { return EventQuestionPresented }

type TimerUpdatePayload struct {
	SecondsRemaining int `json:"secondsRemaining"`
}

func (TimerUpdatePayload) eventType() EventType { return EventTimerUpdate }

type QuestionTimeUpPayload struct {
	QuestionIndex int `json:"questionIndex"`
}

func (QuestionTimeUpPayload) eventType() EventType { return EventQuestionTimeUp }

type OpponentAnsweredPayload struct {
	ParticipantID string `json:"participantId"`
	IsBot         bool   `json:"isBot"`
}

func (OpponentAnsweredPayload) eventType() EventType { return EventOpponentAnswered }

type RoundResultPayload struct {
	Result domain.RoundResult `json:"result"`
}

func (RoundResultPayload) eventType() EventType { return EventRoundResult }

type DuelCompletedPayload struct {
	Outcome domain.DuelOutcome `json:"outcome"`
}

func (DuelCompletedPayload) eventType() EventType { return EventDuelCompleted }

type OpponentDisconnectedPayload struct {
	ParticipantID string `json:"participantId"`
}

func (OpponentDisconnectedPayload) eventType() EventType { return EventOpponentDisconnected }

type RoomErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (RoomErrorPayload) eventType() EventType { return EventRoomError }

type ChallengeCreatedPayload struct {
	DuelID string `json:"duelId"`
}

func (ChallengeCreatedPayload) eventType() EventType { return EventChallengeCreated }
