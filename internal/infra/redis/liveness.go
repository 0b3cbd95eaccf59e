package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LivenessStore marks active duel sessions in Redis. Best effort: Redis
// being down never affects the in-process registry, and the keys can feed
// cross-instance visibility tooling.
type LivenessStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLivenessStore(client *redis.Client, ttl time.Duration) *LivenessStore {
	return &LivenessStore{client: client, ttl: ttl}
}

func (s *LivenessStore) MarkAlive(duelID string) {
	_ = s.client.Set(context.Background(), s.key(duelID), "1", s.ttl).Err()
}

func (s *LivenessStore) Clear(duelID string) {
	_ = s.client.Del(context.Background(), s.key(duelID)).Err()
}

func (s *LivenessStore) key(duelID string) string {
	return "duel:session:" + duelID
}
