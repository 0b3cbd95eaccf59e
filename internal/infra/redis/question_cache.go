package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"duel-engine-service/internal/domain"
	"duel-engine-service/internal/duel"
)

// QuestionCache caches a duel's ordered question list in Redis and falls
// back to the loader on a miss. The list is stored as a hash keyed by
// position: HSET duel:{duelID}:questions {position} {question JSON}.
type QuestionCache struct {
	client *redis.Client
	loader duel.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader duel.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) GetQuestionsForDuel(ctx context.Context, duelID string) ([]domain.Question, error) {
	key := c.key(duelID)

	if cached, err := c.client.HGetAll(ctx, key).Result(); err == nil && len(cached) > 0 {
		if questions, ok := decodeQuestions(cached); ok {
			return questions, nil
		}
	}

	result, err, _ := c.sf.Do(duelID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if cached, err := c.client.HGetAll(ctx, key).Result(); err == nil && len(cached) > 0 {
			if questions, ok := decodeQuestions(cached); ok {
				return questions, nil
			}
		}

		questions, err := c.loader.GetQuestionsForDuel(ctx, duelID)
		if err != nil {
			return nil, err
		}

		pipe := c.client.Pipeline()
		for i, q := range questions {
			data, err := json.Marshal(q)
			if err != nil {
				continue
			}
			pipe.HSet(ctx, key, strconv.Itoa(i), string(data))
		}
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttlWithJitter())
		}
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) key(duelID string) string {
	return "duel:" + duelID + ":questions"
}

// decodeQuestions rebuilds the ordered list from a position-keyed hash.
// A corrupt entry invalidates the whole read so the loader is used instead.
func decodeQuestions(cached map[string]string) ([]domain.Question, bool) {
	positions := make([]int, 0, len(cached))
	byPos := make(map[int]domain.Question, len(cached))
	for posStr, raw := range cached {
		pos, err := strconv.Atoi(posStr)
		if err != nil {
			return nil, false
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, false
		}
		positions = append(positions, pos)
		byPos[pos] = q
	}
	sort.Ints(positions)
	questions := make([]domain.Question, 0, len(positions))
	for _, pos := range positions {
		questions = append(questions, byPos[pos])
	}
	return questions, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
