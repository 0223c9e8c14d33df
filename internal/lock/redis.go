package lock

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// release deletes the key only if it still carries our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every replica talking to the same Redis.
// The TTL bounds how long a crashed holder can block an attempt.
type Redis struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{rdb: rdb, ttl: ttl, retry: 25 * time.Millisecond, prefix: "quizlock:"}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	key = r.prefix + key
	token := uuid.NewString()
	t := time.NewTicker(r.retry)
	defer t.Stop()
	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "acquire %s", key)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return func() {
		// release on a fresh context so a cancelled request still frees the key
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := release.Run(rctx, r.rdb, []string{key}, token).Err(); err != nil {
			log.Printf("lock release %s: %v", key, err)
		}
	}, nil
}
