package ws

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"duel-engine-service/internal/domain"
	"duel-engine-service/internal/duel"
)

// Handler is the connection gateway: it binds a websocket to a participant
// identity and routes the duel protocol in both directions.
type Handler struct {
	engine   *duel.Engine
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(engine *duel.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		engine: engine,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitAnswerPayload struct {
	QuestionID     string `json:"questionId"`
	SelectedAnswer string `json:"selectedAnswer"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

type challengeBotPayload struct {
	TestID     string `json:"testId"`
	Difficulty string `json:"difficulty"`
}

// ServeWS upgrades the request, joins the duel named in the query, and
// pumps the event protocol until the client goes away.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	duelID := r.URL.Query().Get("duelId")
	userID := r.URL.Query().Get("userId")
	username := r.URL.Query().Get("name")
	if duelID == "" || userID == "" {
		http.Error(w, "missing duelId or userId", http.StatusBadRequest)
		return
	}
	if username == "" {
		username = userID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	snapshot, err := h.engine.Join(r.Context(), duelID, userID, username)
	if err != nil {
		_ = conn.WriteJSON(errorEvent(err))
		return
	}

	events, cancel, err := h.engine.Subscribe(duelID, userID)
	if err != nil {
		_ = conn.WriteJSON(errorEvent(err))
		return
	}
	defer cancel()
	defer h.engine.Disconnect(duelID, userID)

	send := make(chan duel.Event, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for ev := range send {
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- ev:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- duel.NewEvent(duel.RoomJoinedPayload{Snapshot: snapshot})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, send, duelID, userID, inbound)
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func (h *Handler) dispatch(r *http.Request, send chan<- duel.Event, duelID, userID string, inbound inboundMessage) {
	switch inbound.Type {
	case "join_room":
		// The connection already joined from the URL; re-joining just
		// refreshes the snapshot so reconnecting clients can resync.
		snapshot, err := h.engine.Join(r.Context(), duelID, userID, "")
		if err != nil {
			send <- errorEvent(err)
			return
		}
		send <- duel.NewEvent(duel.RoomJoinedPayload{Snapshot: snapshot})
	case "ready_for_duel":
		if err := h.engine.Ready(r.Context(), duelID, userID); err != nil {
			send <- errorEvent(err)
		}
	case "submit_answer":
		var payload submitAnswerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
			send <- duel.NewEvent(duel.RoomErrorPayload{Message: "invalid submit_answer payload", Code: "bad_request"})
			return
		}
		if err := h.engine.Submit(r.Context(), duelID, userID, payload.QuestionID, payload.SelectedAnswer, payload.ResponseTimeMs); err != nil {
			send <- errorEvent(err)
		}
	case "challenge_bot":
		var payload challengeBotPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- duel.NewEvent(duel.RoomErrorPayload{Message: "invalid challenge_bot payload", Code: "bad_request"})
			return
		}
		created, err := h.engine.ChallengeBot(r.Context(), userID, payload.TestID, payload.Difficulty)
		if err != nil {
			send <- errorEvent(err)
			return
		}
		send <- duel.NewEvent(duel.ChallengeCreatedPayload{DuelID: created.ID})
	default:
		send <- duel.NewEvent(duel.RoomErrorPayload{Message: "unsupported message type", Code: "bad_request"})
	}
}

// errorEvent maps engine errors onto protocol error codes. Lock-race
// losses never surface here; the engine swallows them by design.
func errorEvent(err error) duel.Event {
	code := "internal"
	switch {
	case errors.Is(err, domain.ErrNotParticipant):
		code = "not_participant"
	case errors.Is(err, domain.ErrDuelNotActive),
		errors.Is(err, domain.ErrNotReadyPhase),
		errors.Is(err, domain.ErrRoundNotOpen),
		errors.Is(err, domain.ErrSessionCompleted):
		code = "bad_state"
	case errors.Is(err, domain.ErrAlreadyAnswered):
		code = "duplicate_answer"
	case errors.Is(err, domain.ErrDuelNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrBotProfileNotFound):
		code = "not_found"
	}
	return duel.NewEvent(duel.RoomErrorPayload{Message: err.Error(), Code: code})
}
