package duel

import (
	"sync"
	"sync/atomic"
	"time"

	"duel-engine-service/internal/domain"
)

type answerKey struct {
	participantID string
	questionIndex int
}

// Session is the in-memory runtime state of one active duel. All mutations
// go through self-locking methods; the processing flag is a CAS guard
// ensuring each round is finalized exactly once no matter which trigger
// (human answer, bot answer, deadline) gets there first.
type Session struct {
	id     string
	duelID string

	now func() time.Time

	mu            sync.Mutex
	status        domain.SessionStatus
	participants  []*domain.ParticipantRef
	questions     []domain.Question
	answers       map[answerKey]domain.Answer
	currentIndex  int
	questionStart time.Time
	questionEnd   time.Time
	createdAt     time.Time
	startedAt     time.Time

	processing atomic.Bool

	questionTimer  *time.Timer
	botTimer       *time.Timer
	advanceTimer   *time.Timer
	countdownTimer *time.Timer
	graceTimer     *time.Timer
	tickerStop     chan struct{}

	subscribers map[chan Event]string
}

func newSession(id, duelID string, participants []*domain.ParticipantRef, questions []domain.Question, now func() time.Time) *Session {
	return &Session{
		id:           id,
		duelID:       duelID,
		now:          now,
		status:       domain.StatusWaiting,
		participants: participants,
		questions:    questions,
		answers:      make(map[answerKey]domain.Answer),
		createdAt:    now(),
		subscribers:  make(map[chan Event]string),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// DuelID returns the persisted duel this session runs.
func (s *Session) DuelID() string { return s.duelID }

// Status returns the current lifecycle status.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) participantLocked(participantID string) *domain.ParticipantRef {
	for _, p := range s.participants {
		if p.ParticipantID == participantID {
			return p
		}
	}
	return nil
}

func (s *Session) opponentLocked(participantID string) *domain.ParticipantRef {
	for _, p := range s.participants {
		if p.ParticipantID != participantID {
			return p
		}
	}
	return nil
}

// attach marks a participant connected (join or rejoin) and cancels any
// pending grace eviction. It reports whether this was a reconnect.
func (s *Session) attach(participantID, username string) (rejoined bool, opponent domain.ParticipantRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.participantLocked(participantID)
	rejoined = p.Connected || s.status != domain.StatusWaiting
	p.Connected = true
	if username != "" {
		p.Username = username
	}
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	return rejoined, *s.opponentLocked(participantID)
}

// markDisconnected flags a participant offline and reports whether any
// human participant remains connected.
func (s *Session) markDisconnected(participantID string) (anyHumanConnected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p := s.participantLocked(participantID); p != nil {
		p.Connected = false
	}
	for _, p := range s.participants {
		if !p.IsBot && p.Connected {
			return true
		}
	}
	return false
}

// setReady marks one participant ready. Bots belonging to the session are
// auto-readied alongside the human. It returns the refs that newly became
// ready and whether the session should now start.
func (s *Session) setReady(participantID string) (newlyReady []domain.ParticipantRef, allReady bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusWaiting {
		return nil, false, domain.ErrNotReadyPhase
	}
	p := s.participantLocked(participantID)
	if p == nil {
		return nil, false, domain.ErrNotParticipant
	}
	if !p.Ready {
		p.Ready = true
		newlyReady = append(newlyReady, *p)
	}
	for _, other := range s.participants {
		if other.IsBot && !other.Ready {
			other.Ready = true
			newlyReady = append(newlyReady, *other)
		}
	}
	allReady = true
	for _, ref := range s.participants {
		if !ref.Ready {
			allReady = false
		}
	}
	if allReady {
		s.status = domain.StatusStarting
	}
	return newlyReady, allReady, nil
}

// markActive transitions starting -> active once the countdown elapses.
func (s *Session) markActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == domain.StatusStarting {
		s.status = domain.StatusActive
		s.startedAt = s.now()
	}
}

// beginRound stamps the server-owned start and deadline for the current
// question and clears the processing flag. ok is false when all questions
// are exhausted and the duel should finalize instead.
func (s *Session) beginRound(limit time.Duration) (q domain.Question, idx int, start, end time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusActive || s.currentIndex >= len(s.questions) {
		return domain.Question{}, s.currentIndex, time.Time{}, time.Time{}, false
	}
	s.processing.Store(false)
	idx = s.currentIndex
	q = s.questions[idx]
	start = s.now()
	end = start.Add(limit)
	s.questionStart = start
	s.questionEnd = end
	return q, idx, start, end, true
}

// recordAnswer validates and inserts one answer for the current question.
// Duplicate submissions for the same (participant, index) are rejected.
func (s *Session) recordAnswer(participantID, questionID string, selected *string, responseTimeMs, limitMs int64) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusCompleted {
		return domain.Answer{}, domain.ErrSessionCompleted
	}
	if s.status != domain.StatusActive || s.currentIndex >= len(s.questions) {
		return domain.Answer{}, domain.ErrRoundNotOpen
	}
	p := s.participantLocked(participantID)
	if p == nil {
		return domain.Answer{}, domain.ErrNotParticipant
	}
	q := s.questions[s.currentIndex]
	if questionID != q.ID {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}
	key := answerKey{participantID: participantID, questionIndex: s.currentIndex}
	if _, dup := s.answers[key]; dup {
		return domain.Answer{}, domain.ErrAlreadyAnswered
	}
	if responseTimeMs < 0 {
		responseTimeMs = 0
	}
	if responseTimeMs > limitMs {
		responseTimeMs = limitMs
	}
	answer := domain.Answer{
		SessionID:      s.id,
		ParticipantID:  participantID,
		QuestionIndex:  s.currentIndex,
		QuestionID:     q.ID,
		SelectedAnswer: selected,
		IsCorrect:      selected != nil && *selected == q.CorrectAnswer,
		ResponseTimeMs: responseTimeMs,
	}
	s.answers[key] = answer
	return answer, nil
}

// synthesizeMissing fills timeout answers for every participant without an
// answer at idx. It is a no-op when the round has moved on or is already
// being finalized, which makes stale deadline callbacks harmless.
func (s *Session) synthesizeMissing(idx int, limitMs int64) []domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusActive || s.currentIndex != idx || s.processing.Load() {
		return nil
	}
	q := s.questions[idx]
	var synthesized []domain.Answer
	for _, p := range s.participants {
		key := answerKey{participantID: p.ParticipantID, questionIndex: idx}
		if _, ok := s.answers[key]; ok {
			continue
		}
		answer := domain.Answer{
			SessionID:      s.id,
			ParticipantID:  p.ParticipantID,
			QuestionIndex:  idx,
			QuestionID:     q.ID,
			SelectedAnswer: nil,
			IsCorrect:      false,
			ResponseTimeMs: limitMs,
		}
		s.answers[key] = answer
		synthesized = append(synthesized, answer)
	}
	return synthesized
}

// bothAnswered reports whether every participant has an answer for idx.
func (s *Session) bothAnswered(idx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.participants {
		if _, ok := s.answers[answerKey{participantID: p.ParticipantID, questionIndex: idx}]; !ok {
			return false
		}
	}
	return true
}

// participantRef returns a copy of the named participant.
func (s *Session) participantRef(participantID string) (domain.ParticipantRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.participantLocked(participantID); p != nil {
		return *p, true
	}
	return domain.ParticipantRef{}, false
}

// totalQuestions returns the fixed question count for the session.
func (s *Session) totalQuestions() int {
	return len(s.questions)
}

// botParticipant returns a copy of the bot side, if any.
func (s *Session) botParticipant() (domain.ParticipantRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.IsBot {
			return *p, true
		}
	}
	return domain.ParticipantRef{}, false
}

// opponentOf returns a copy of the other side of the duel.
func (s *Session) opponentOf(participantID string) (domain.ParticipantRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opp := s.opponentLocked(participantID); opp != nil {
		return *opp, true
	}
	return domain.ParticipantRef{}, false
}

// currentRound returns the index the session is presently on.
func (s *Session) currentRound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIndex
}

// tryAcquireProcessing atomically claims the round-finalization lock.
// Exactly one concurrent trigger wins; the rest observe false and no-op.
func (s *Session) tryAcquireProcessing() bool {
	return s.processing.CompareAndSwap(false, true)
}

func (s *Session) processingHeld() bool {
	return s.processing.Load()
}

// completeRound builds the round result for idx and advances the index.
// Must only be called by the holder of the processing lock.
func (s *Session) completeRound(idx int) (domain.RoundResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentIndex != idx || idx >= len(s.questions) {
		return domain.RoundResult{}, false
	}
	result := domain.RoundResult{
		QuestionIndex: idx,
		Question:      s.questions[idx],
	}
	for _, p := range s.participants {
		if a, ok := s.answers[answerKey{participantID: p.ParticipantID, questionIndex: idx}]; ok {
			result.Answers = append(result.Answers, domain.ParticipantAnswer{
				ParticipantID:  a.ParticipantID,
				SelectedAnswer: a.SelectedAnswer,
				IsCorrect:      a.IsCorrect,
				ResponseTimeMs: a.ResponseTimeMs,
			})
		}
	}
	s.currentIndex++
	s.stopRoundTimersLocked()
	return result, true
}

// finalizeOutcome aggregates all answers into the duel outcome and marks
// the session completed. More correct answers wins; a correctness tie goes
// to the lower total response time; a tie on both is a draw.
func (s *Session) finalizeOutcome() (domain.DuelOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusCompleted {
		return domain.DuelOutcome{}, false
	}
	s.status = domain.StatusCompleted
	s.stopAllTimersLocked()

	total := len(s.questions)
	outcome := domain.DuelOutcome{PerParticipant: make(map[string]domain.ParticipantScore, len(s.participants))}
	for _, p := range s.participants {
		score := domain.ParticipantScore{}
		for idx := 0; idx < total; idx++ {
			a, ok := s.answers[answerKey{participantID: p.ParticipantID, questionIndex: idx}]
			if !ok {
				continue
			}
			if a.IsCorrect {
				score.Score++
			}
			score.TotalTimeMs += a.ResponseTimeMs
		}
		if total > 0 {
			score.Accuracy = float64(score.Score) / float64(total)
		}
		outcome.PerParticipant[p.ParticipantID] = score
	}

	aID, bID := s.participants[0].ParticipantID, s.participants[1].ParticipantID
	sa, sb := outcome.PerParticipant[aID], outcome.PerParticipant[bID]
	switch {
	case sa.Score > sb.Score:
		outcome.WinnerID = &aID
	case sb.Score > sa.Score:
		outcome.WinnerID = &bID
	case sa.TotalTimeMs < sb.TotalTimeMs:
		outcome.WinnerID = &aID
	case sb.TotalTimeMs < sa.TotalTimeMs:
		outcome.WinnerID = &bID
	}
	return outcome, true
}

// snapshot captures the joinable state of the session, including the open
// question and its deadline when a round is in flight.
func (s *Session) snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.SessionSnapshot{
		SessionID:      s.id,
		DuelID:         s.duelID,
		Status:         s.status,
		QuestionIndex:  s.currentIndex,
		TotalQuestions: len(s.questions),
	}
	for _, p := range s.participants {
		snap.Participants = append(snap.Participants, *p)
	}
	if s.status == domain.StatusActive && s.currentIndex < len(s.questions) && !s.questionEnd.IsZero() {
		public := s.questions[s.currentIndex].Public()
		deadline := s.questionEnd
		snap.CurrentQuestion = &public
		snap.QuestionDeadline = &deadline
	}
	return snap
}

// subscribe registers an event channel bound to a participant. Targeted
// events reach only their addressee; broadcasts reach everyone.
func (s *Session) subscribe(participantID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = participantID
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// publish fans an event out to subscribers, dropping the oldest queued
// event for a slow consumer rather than blocking the scheduling path.
func (s *Session) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, pid := range s.subscribers {
		if ev.TargetID != "" && ev.TargetID != pid {
			continue
		}
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Timer handles are stored on the session so a superseded round can never
// fire against the session after advance or teardown.

func (s *Session) scheduleQuestionTimer(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.questionTimer != nil {
		s.questionTimer.Stop()
	}
	s.questionTimer = time.AfterFunc(d, f)
}

func (s *Session) scheduleBotTimer(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.botTimer != nil {
		s.botTimer.Stop()
	}
	s.botTimer = time.AfterFunc(d, f)
}

func (s *Session) scheduleAdvanceTimer(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advanceTimer != nil {
		s.advanceTimer.Stop()
	}
	s.advanceTimer = time.AfterFunc(d, f)
}

func (s *Session) scheduleCountdownTick(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countdownTimer != nil {
		s.countdownTimer.Stop()
	}
	s.countdownTimer = time.AfterFunc(d, f)
}

// startGrace arms the eviction timer; rearming replaces any previous one.
func (s *Session) startGrace(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}
	s.graceTimer = time.AfterFunc(d, f)
}

// startTicker emits periodic countdown updates until the deadline or stop.
func (s *Session) startTicker(interval time.Duration, end time.Time, emit func(secondsRemaining int)) {
	if interval <= 0 {
		return
	}
	stop := make(chan struct{})

	s.mu.Lock()
	if s.tickerStop != nil {
		close(s.tickerStop)
	}
	s.tickerStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				remaining := int(time.Until(end).Round(time.Second).Seconds())
				if remaining <= 0 {
					return
				}
				emit(remaining)
			}
		}
	}()
}

func (s *Session) stopRoundTimersLocked() {
	if s.questionTimer != nil {
		s.questionTimer.Stop()
		s.questionTimer = nil
	}
	if s.botTimer != nil {
		s.botTimer.Stop()
		s.botTimer = nil
	}
	if s.tickerStop != nil {
		close(s.tickerStop)
		s.tickerStop = nil
	}
}

func (s *Session) stopAllTimersLocked() {
	s.stopRoundTimersLocked()
	if s.advanceTimer != nil {
		s.advanceTimer.Stop()
		s.advanceTimer = nil
	}
	if s.countdownTimer != nil {
		s.countdownTimer.Stop()
		s.countdownTimer = nil
	}
}

// teardown cancels every scheduled callback. Called on eviction.
func (s *Session) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAllTimersLocked()
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}
