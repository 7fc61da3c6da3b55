package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/learnhub/internal/application/command"
	"github.com/alem-hub/learnhub/pkg/timeutil"
)

// TTLStreakDay keeps a marker past the end of its day in every timezone.
const TTLStreakDay = 48 * time.Hour

// DayGuard remembers which users were already counted for a calendar day so
// repeat activity on the same day skips the streak row entirely.
type DayGuard struct {
	client *Client
	ttl    time.Duration
}

var _ command.DayGuard = (*DayGuard)(nil)

// NewDayGuard creates a DayGuard.
func NewDayGuard(client *Client) *DayGuard {
	return &DayGuard{client: client, ttl: TTLStreakDay}
}

// DayKey builds the marker key; day is a calendar date in the reference zone.
func DayKey(userID string, day time.Time) string {
	return PrefixStreakDay + userID + ":" + day.Format(timeutil.FormatDate)
}

// Seen reports whether Mark was called for (userID, day).
func (g *DayGuard) Seen(ctx context.Context, userID string, day time.Time) (bool, error) {
	if userID == "" {
		return false, ErrCacheKeyEmpty
	}
	var seen bool
	err := g.client.Do(ctx, func(ctx context.Context, rdb *redis.Client) error {
		n, err := rdb.Exists(ctx, DayKey(userID, day)).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		seen = n > 0
		return err
	})
	return seen, err
}

// Mark records that (userID, day) was counted.
func (g *DayGuard) Mark(ctx context.Context, userID string, day time.Time) error {
	if userID == "" {
		return ErrCacheKeyEmpty
	}
	return g.client.Do(ctx, func(ctx context.Context, rdb *redis.Client) error {
		return rdb.Set(ctx, DayKey(userID, day), 1, g.ttl).Err()
	})
}
