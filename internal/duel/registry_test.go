package duel

import (
	"errors"
	"sync"
	"testing"
	"time"

	"duel-engine-service/internal/domain"
)

func registryParticipants() []*domain.ParticipantRef {
	return []*domain.ParticipantRef{
		{ParticipantID: "u1", Username: "Alice"},
		{ParticipantID: "u2", Username: "Bob"},
	}
}

func registryQuestions() []domain.Question {
	return []domain.Question{{ID: "q1", CorrectAnswer: "A", Options: map[string]string{"A": "yes", "B": "no"}}}
}

func TestRegistryCreatesOnce(t *testing.T) {
	registry := NewRegistry(nil)

	creates := 0
	create := func() (*Session, error) {
		creates++
		return newSession("s1", "duel-1", registryParticipants(), registryQuestions(), time.Now), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := registry.GetOrCreate("duel-1", create); err != nil {
				t.Errorf("get or create: %v", err)
			}
		}()
	}
	wg.Wait()

	if creates != 1 {
		t.Fatalf("expected a single create, got %d", creates)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one session, got %d", registry.Len())
	}
}

func TestRegistryCreateErrorNotCached(t *testing.T) {
	registry := NewRegistry(nil)
	boom := errors.New("boom")

	_, _, err := registry.GetOrCreate("duel-1", func() (*Session, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected create error, got %v", err)
	}
	if _, ok := registry.Get("duel-1"); ok {
		t.Fatalf("failed create must not leave a session behind")
	}
}

func TestRegistryEvictTearsDownTimers(t *testing.T) {
	registry := NewRegistry(nil)
	session, _, err := registry.GetOrCreate("duel-1", func() (*Session, error) {
		return newSession("s1", "duel-1", registryParticipants(), registryQuestions(), time.Now), nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	fired := make(chan struct{}, 1)
	session.scheduleQuestionTimer(30*time.Millisecond, func() { fired <- struct{}{} })

	registry.Evict("duel-1")
	if _, ok := registry.Get("duel-1"); ok {
		t.Fatalf("expected session gone after evict")
	}

	select {
	case <-fired:
		t.Fatalf("timer fired after teardown")
	case <-time.After(80 * time.Millisecond):
	}
}

type recordingLiveness struct {
	mu      sync.Mutex
	marked  []string
	cleared []string
}

func (r *recordingLiveness) MarkAlive(duelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marked = append(r.marked, duelID)
}

func (r *recordingLiveness) Clear(duelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, duelID)
}

func TestRegistryLivenessHooks(t *testing.T) {
	liveness := &recordingLiveness{}
	registry := NewRegistry(liveness)

	_, _, err := registry.GetOrCreate("duel-1", func() (*Session, error) {
		return newSession("s1", "duel-1", registryParticipants(), registryQuestions(), time.Now), nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	registry.Evict("duel-1")

	if len(liveness.marked) != 1 || liveness.marked[0] != "duel-1" {
		t.Fatalf("expected mark for duel-1, got %v", liveness.marked)
	}
	if len(liveness.cleared) != 1 || liveness.cleared[0] != "duel-1" {
		t.Fatalf("expected clear for duel-1, got %v", liveness.cleared)
	}
}
