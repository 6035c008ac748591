package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultCacheTTL = 10 * time.Minute

// Cache is a Redis read-through cache in front of another Store.
type Cache struct {
	client *redis.Client
	next   Store
	ttl    time.Duration
	logger zerolog.Logger

	sf    singleflight.Group
	rndMu sync.Mutex
	rnd   *rand.Rand
}

var _ Store = (*Cache)(nil)

// NewCache wraps next with a Redis cache.
func NewCache(client *redis.Client, next Store, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: logger.With().Str("component", "quiz_cache").Logger(),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Cache) key(quizID string) string {
	return "quiz:doc:" + quizID
}

// GetQuiz returns the cached document or loads it once from the backing store.
func (c *Cache) GetQuiz(ctx context.Context, quizID string) (Quiz, error) {
	if q, ok := c.lookup(ctx, quizID); ok {
		return q, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// another caller may have filled it while we waited
		if q, ok := c.lookup(ctx, quizID); ok {
			return q, nil
		}
		q, err := c.next.GetQuiz(ctx, quizID)
		if err != nil {
			return Quiz{}, err
		}
		data, err := json.Marshal(q)
		if err != nil {
			return Quiz{}, fmt.Errorf("marshal quiz: %w", err)
		}
		if err := c.client.Set(ctx, c.key(quizID), data, c.ttlWithJitter()).Err(); err != nil {
			c.logger.Warn().Err(err).Str("quiz_id", quizID).Msg("quiz cache fill failed")
		}
		return q, nil
	})
	if err != nil {
		return Quiz{}, err
	}
	return result.(Quiz).Clone(), nil
}

// Invalidate drops the cached copy of a quiz.
func (c *Cache) Invalidate(ctx context.Context, quizID string) error {
	return c.client.Del(ctx, c.key(quizID)).Err()
}

func (c *Cache) lookup(ctx context.Context, quizID string) (Quiz, bool) {
	data, err := c.client.Get(ctx, c.key(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("quiz_id", quizID).Msg("quiz cache read failed")
		}
		return Quiz{}, false
	}
	var q Quiz
	if err := json.Unmarshal(data, &q); err != nil {
		c.logger.Warn().Err(err).Str("quiz_id", quizID).Msg("skip corrupted quiz cache entry")
		return Quiz{}, false
	}
	return q, true
}

func (c *Cache) ttlWithJitter() time.Duration {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
