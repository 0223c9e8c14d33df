package quiz

import (
	"context"
	"log"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// CachedDefinitions is a read-through Redis cache in front of another Definitions.
// Definitions are immutable while attempts run, so entries only expire by TTL.
// Cache failures fall through to the backing store.
type CachedDefinitions struct {
	next   Definitions
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewCachedDefinitions(next Definitions, rdb redis.UniversalClient, ttl time.Duration) *CachedDefinitions {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedDefinitions{next: next, rdb: rdb, ttl: ttl, prefix: "quizdefs:"}
}

func (c *CachedDefinitions) GetQuiz(ctx context.Context, quizID string) (Quiz, error) {
	var qz Quiz
	err := c.through(ctx, "quiz:"+quizID, &qz, func() (any, error) { return c.next.GetQuiz(ctx, quizID) })
	return qz, err
}

func (c *CachedDefinitions) GetQuestions(ctx context.Context, quizID string) ([]Question, error) {
	var qs []Question
	err := c.through(ctx, "questions:"+quizID, &qs, func() (any, error) { return c.next.GetQuestions(ctx, quizID) })
	return qs, err
}

func (c *CachedDefinitions) GetChoices(ctx context.Context, questionID string) ([]Choice, error) {
	var cs []Choice
	err := c.through(ctx, "choices:"+questionID, &cs, func() (any, error) { return c.next.GetChoices(ctx, questionID) })
	return cs, err
}

func (c *CachedDefinitions) through(ctx context.Context, key string, dst any, load func() (any, error)) error {
	key = c.prefix + key
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		if err := json.Unmarshal(raw, dst); err == nil {
			return nil
		}
	} else if err != redis.Nil {
		log.Printf("quizdefs cache get %s: %v", key, err)
	}
	v, err := load()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Printf("quizdefs cache set %s: %v", key, err)
	}
	return json.Unmarshal(raw, dst)
}
