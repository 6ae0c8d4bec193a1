// Package lock serializes concurrent booking attempts on the same slot.
// Two requests that both observe "available" must not both commit; the
// loser of this lock waits out the winner's resolve+write+persist sequence.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSlotLocked = errors.New("slot is being booked by another request")

// compare-and-delete so a slow holder cannot release a lock that already
// expired and was re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type SlotLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSlotLocker(rdb *redis.Client, ttl time.Duration) *SlotLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SlotLocker{rdb: rdb, ttl: ttl}
}

// Acquire takes the advisory lock for one (event, date, time) slot. The
// returned release func is safe to defer; releasing an expired lock is a
// no-op.
func (l *SlotLocker) Acquire(ctx context.Context, eventID, date, timeOfDay string) (func(), error) {
	key := fmt.Sprintf("slotlock:%s:%s:%s", eventID, date, timeOfDay)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("slot lock: %w", err)
	}
	if !ok {
		return nil, ErrSlotLocked
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err()
	}
	return release, nil
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
