package importer

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CursorStore keeps the last successful sync timestamp per form, so delta
// imports can resume without the caller tracking the window itself.
type CursorStore struct {
	rdb *redis.Client
	key string
}

func NewCursorStore(rdb *redis.Client, formID string) *CursorStore {
	return &CursorStore{rdb: rdb, key: "odk:last_sync:" + formID}
}

// Last returns the stored cursor, or nil when none has been set.
func (c *CursorStore) Last(ctx context.Context) (*time.Time, error) {
	raw, err := c.rdb.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &at, nil
}

func (c *CursorStore) Set(ctx context.Context, at time.Time) error {
	return c.rdb.Set(ctx, c.key, at.UTC().Format(time.RFC3339Nano), 0).Err()
}
