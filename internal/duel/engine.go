package duel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"duel-engine-service/internal/config"
	"duel-engine-service/internal/domain"
)

// Engine runs the server-authoritative duel loop: join/ready handshake,
// one question at a time with a server-owned deadline, answer collection
// with an exactly-once completion guard, round scoring, and the final
// outcome. Sessions are mutually independent; a failing session never
// affects its neighbors.
type Engine struct {
	store     Store
	questions QuestionSource
	registry  *Registry
	bot       *BotAgent
	tun       config.Tunables
	log       *zap.Logger
	now       func() time.Time
}

// NewEngine wires the engine against its collaborators.
func NewEngine(store Store, questions QuestionSource, registry *Registry, tun config.Tunables, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:     store,
		questions: questions,
		registry:  registry,
		bot:       NewBotAgent(tun.BotMinThink, tun.BotMaxThink),
		tun:       tun,
		log:       log,
		now:       time.Now,
	}
}

// SetBotAgent swaps the bot agent; used by tests for deterministic draws.
func (e *Engine) SetBotAgent(agent *BotAgent) { e.bot = agent }

// Join authenticates a participant against the persisted duel, lazily
// creating the session on first join. A bot opponent is synthesized as
// already connected. Rejoining within the grace period returns the same
// session with its round state intact.
func (e *Engine) Join(ctx context.Context, duelID, participantID, username string) (domain.SessionSnapshot, error) {
	duel, err := e.store.GetDuelByID(ctx, duelID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	if participantID != duel.InitiatorID && participantID != duel.OpponentID {
		return domain.SessionSnapshot{}, domain.ErrNotParticipant
	}
	if duel.Status != domain.DuelStatusActive {
		return domain.SessionSnapshot{}, domain.ErrDuelNotActive
	}

	session, created, err := e.registry.GetOrCreate(duelID, func() (*Session, error) {
		return e.buildSession(ctx, duel)
	})
	if err != nil {
		return domain.SessionSnapshot{}, err
	}

	rejoined, opponent := session.attach(participantID, username)
	if session.Status() == domain.StatusCompleted {
		// Post-completion peeks must not pin the session forever.
		session.startGrace(e.tun.GracePeriod, func() { e.registry.Evict(duelID) })
	}
	if !created || rejoined {
		session.publish(NewTargetedEvent(opponent.ParticipantID, OpponentJoinedPayload{
			ParticipantID: participantID,
			Username:      username,
			IsBot:         false,
		}))
	}

	e.log.Info("participant joined duel",
		zap.String("duelId", duelID),
		zap.String("participantId", participantID),
		zap.Bool("rejoined", rejoined))
	return session.snapshot(), nil
}

func (e *Engine) buildSession(ctx context.Context, duel domain.Duel) (*Session, error) {
	questions, err := e.questions.GetQuestionsForDuel(ctx, duel.ID)
	if err != nil {
		return nil, fmt.Errorf("load questions for duel %s: %w", duel.ID, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("duel %s: %w", duel.ID, domain.ErrQuestionNotFound)
	}

	refs := make([]*domain.ParticipantRef, 0, 2)
	for _, pid := range []string{duel.InitiatorID, duel.OpponentID} {
		isBot, err := e.store.IsBot(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("bot lookup for %s: %w", pid, err)
		}
		ref := &domain.ParticipantRef{ParticipantID: pid, Username: pid, IsBot: isBot}
		if isBot {
			profile, err := e.store.GetBotProfile(ctx, pid)
			if err != nil {
				return nil, fmt.Errorf("bot profile for %s: %w", pid, err)
			}
			ref.Username = profile.Username
			ref.Connected = true
		}
		refs = append(refs, ref)
	}
	return newSession(uuid.NewString(), duel.ID, refs, questions, e.now), nil
}

// Subscribe attaches an event channel for one participant of a session.
func (e *Engine) Subscribe(duelID, participantID string) (<-chan Event, func(), error) {
	session, ok := e.registry.Get(duelID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.subscribe(participantID)
	return ch, cancel, nil
}

// Ready marks a participant ready. A bot opponent is auto-readied with the
// human; once both sides are ready the countdown begins.
func (e *Engine) Ready(_ context.Context, duelID, participantID string) error {
	session, ok := e.registry.Get(duelID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	newlyReady, allReady, err := session.setReady(participantID)
	if err != nil {
		return err
	}
	for _, ref := range newlyReady {
		session.publish(NewEvent(PlayerReadyPayload{ParticipantID: ref.ParticipantID, IsBot: ref.IsBot}))
	}
	if allReady {
		e.runCountdown(session, e.tun.CountdownTicks)
	}
	return nil
}

func (e *Engine) runCountdown(s *Session, remaining int) {
	if s.Status() == domain.StatusCompleted {
		return
	}
	if remaining <= 0 {
		s.markActive()
		e.presentNext(s)
		return
	}
	s.publish(NewEvent(DuelStartingPayload{Countdown: remaining}))
	s.scheduleCountdownTick(e.tun.CountdownInterval, func() {
		e.runCountdown(s, remaining-1)
	})
}

// presentNext opens the next round, or finalizes the duel when the
// question list is exhausted.
func (e *Engine) presentNext(s *Session) {
	q, idx, start, end, ok := s.beginRound(e.tun.QuestionTimeLimit)
	if !ok {
		e.finalize(s)
		return
	}

	s.publish(NewEvent(QuestionPresentedPayload{
		QuestionIndex:   idx,
		TotalQuestions:  s.totalQuestions(),
		Question:        q.Public(),
		TimeLimitMs:     e.tun.QuestionTimeLimit.Milliseconds(),
		ServerStartTime: start,
		ServerEndTime:   end,
	}))

	s.startTicker(e.tun.TimerUpdateInterval, end, func(remaining int) {
		s.publish(NewEvent(TimerUpdatePayload{SecondsRemaining: remaining}))
	})
	s.scheduleQuestionTimer(e.tun.QuestionTimeLimit, func() {
		e.onDeadline(s, idx)
	})
	e.scheduleBotAnswer(s, q, idx)
}

func (e *Engine) scheduleBotAnswer(s *Session, q domain.Question, idx int) {
	botRef, ok := s.botParticipant()
	if !ok {
		return
	}
	profile, err := e.store.GetBotProfile(context.Background(), botRef.ParticipantID)
	if err != nil {
		// With no profile the deadline fallback still resolves the round.
		e.log.Warn("bot profile unavailable, relying on timeout",
			zap.String("duelId", s.DuelID()),
			zap.String("participantId", botRef.ParticipantID),
			zap.Error(err))
		return
	}
	selected, think := e.bot.Answer(profile, q)
	participantID := botRef.ParticipantID
	s.scheduleBotTimer(think, func() {
		answer := selected
		if err := e.submit(s, participantID, q.ID, &answer, think.Milliseconds()); err != nil {
			e.log.Debug("bot submission dropped",
				zap.String("duelId", s.DuelID()),
				zap.Int("questionIndex", idx),
				zap.Error(err))
		}
	})
}

// onDeadline is the guarded timeout fallback. It revalidates that the
// session is still on the round it was scheduled for and not already being
// finalized; stale or duplicate firings are no-ops.
func (e *Engine) onDeadline(s *Session, idx int) {
	if s.processingHeld() {
		return
	}
	synthesized := s.synthesizeMissing(idx, e.tun.QuestionTimeLimit.Milliseconds())
	if len(synthesized) > 0 {
		s.publish(NewEvent(QuestionTimeUpPayload{QuestionIndex: idx}))
		for _, answer := range synthesized {
			e.persistAnswer(answer)
		}
	}
	e.checkAndComplete(s, idx)
}

// Submit records one answer through the collector path shared by humans,
// bots, and the timeout fallback's synthetic answers.
func (e *Engine) Submit(_ context.Context, duelID, participantID, questionID string, selectedAnswer string, responseTimeMs int64) error {
	session, ok := e.registry.Get(duelID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return e.submit(session, participantID, questionID, &selectedAnswer, responseTimeMs)
}

func (e *Engine) submit(s *Session, participantID, questionID string, selected *string, responseTimeMs int64) error {
	answer, err := s.recordAnswer(participantID, questionID, selected, responseTimeMs, e.tun.QuestionTimeLimit.Milliseconds())
	if err != nil {
		return err
	}
	e.persistAnswer(answer)

	if opponent, ok := s.opponentOf(participantID); ok {
		self, _ := s.participantRef(participantID)
		s.publish(NewTargetedEvent(opponent.ParticipantID, OpponentAnsweredPayload{
			ParticipantID: participantID,
			IsBot:         self.IsBot,
		}))
	}
	e.checkAndComplete(s, answer.QuestionIndex)
	return nil
}

// checkAndComplete finalizes the round once both answers exist. Three
// independent triggers may race here; the CAS on the processing flag lets
// exactly one of them run the aggregation. A transiently incomplete read
// is retried a bounded number of times, but partial answers are never
// processed as final.
func (e *Engine) checkAndComplete(s *Session, idx int) {
	if s.processingHeld() {
		return
	}
	for attempt := 0; attempt < e.tun.CompletionRetries; attempt++ {
		if s.currentRound() != idx {
			return
		}
		if s.bothAnswered(idx) {
			if s.tryAcquireProcessing() {
				e.completeRound(s, idx)
			}
			return
		}
		time.Sleep(e.tun.CompletionBackoff)
	}
}

// completeRound runs under the processing lock: broadcast the scored round,
// advance the index, then schedule the next presentation after the fixed
// display interval.
func (e *Engine) completeRound(s *Session, idx int) {
	result, ok := s.completeRound(idx)
	if !ok {
		s.processing.Store(false)
		return
	}
	s.publish(NewEvent(RoundResultPayload{Result: result}))
	s.scheduleAdvanceTimer(e.tun.ResultDisplay, func() {
		e.presentNext(s)
	})
}

func (e *Engine) finalize(s *Session) {
	outcome, ok := s.finalizeOutcome()
	if !ok {
		return
	}
	s.publish(NewEvent(DuelCompletedPayload{Outcome: outcome}))
	e.log.Info("duel completed",
		zap.String("duelId", s.DuelID()),
		zap.String("sessionId", s.ID()))

	duelID := s.DuelID()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.store.CompleteDuel(ctx, duelID, outcome); err != nil {
			e.log.Error("persist duel outcome failed", zap.String("duelId", duelID), zap.Error(err))
		}
		for participantID, score := range outcome.PerParticipant {
			delta := domain.StatsDelta{ParticipantID: participantID, Score: score.Score}
			switch {
			case outcome.WinnerID == nil:
				delta.Drew = true
			case *outcome.WinnerID == participantID:
				delta.Won = true
			default:
				delta.Lost = true
			}
			if err := e.store.UpdateParticipantStats(ctx, delta); err != nil {
				e.log.Error("update participant stats failed",
					zap.String("participantId", participantID), zap.Error(err))
			}
		}
	}()

	// Retain the session so clients can reconnect and read the outcome.
	s.startGrace(e.tun.GracePeriod, func() { e.registry.Evict(duelID) })
}

func (e *Engine) persistAnswer(answer domain.Answer) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.PersistAnswer(ctx, answer); err != nil {
			e.log.Error("persist answer failed",
				zap.String("sessionId", answer.SessionID),
				zap.String("participantId", answer.ParticipantID),
				zap.Int("questionIndex", answer.QuestionIndex),
				zap.Error(err))
		}
	}()
}

// Disconnect flags a participant offline and notifies the opponent. Live
// question timers keep running so the timeout fallback still resolves the
// round; only a grace period with nobody connected evicts the session.
func (e *Engine) Disconnect(duelID, participantID string) {
	session, ok := e.registry.Get(duelID)
	if !ok {
		return
	}
	anyHumanConnected := session.markDisconnected(participantID)
	if opponent, found := session.opponentOf(participantID); found {
		session.publish(NewTargetedEvent(opponent.ParticipantID, OpponentDisconnectedPayload{
			ParticipantID: participantID,
		}))
	}
	if !anyHumanConnected {
		session.startGrace(e.tun.GracePeriod, func() { e.registry.Evict(duelID) })
	}
}

// ChallengeBot creates a fresh persisted duel against a stock bot opponent
// and returns it; the caller then joins it through the normal flow.
func (e *Engine) ChallengeBot(ctx context.Context, initiatorID, testID, difficulty string) (domain.Duel, error) {
	duel, err := e.store.CreateBotDuel(ctx, initiatorID, testID, difficulty)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("create bot duel: %w", err)
	}
	e.log.Info("bot challenge created",
		zap.String("duelId", duel.ID),
		zap.String("initiatorId", initiatorID),
		zap.String("difficulty", difficulty))
	return duel, nil
}
