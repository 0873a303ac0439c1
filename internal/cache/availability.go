package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/campushq/roombook/internal/availability"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "availability"
	defaultTTL = 5 * time.Minute
)

// Availability is a Redis read-through cache for day views. It is never
// authoritative: any Redis error degrades to a miss, and invalidation
// failures are logged and ignored. Conflict checks bypass it entirely.
type Availability struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewAvailability(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Availability {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Availability{rdb: rdb, ttl: ttl, logger: logger}
}

func dayKey(roomID string, date time.Time) string {
	return keyPrefix + ":" + roomID + ":" + date.UTC().Format("2006-01-02")
}

func (c *Availability) GetDay(ctx context.Context, roomID string, date time.Time) ([]availability.TimeSlot, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, dayKey(roomID, date)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("availability cache read failed", "room_id", roomID, "err", err)
		}
		return nil, false
	}
	var slots []availability.TimeSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		c.logger.Warn("availability cache entry corrupt, dropping", "room_id", roomID, "err", err)
		_ = c.rdb.Del(ctx, dayKey(roomID, date)).Err()
		return nil, false
	}
	return slots, true
}

func (c *Availability) SetDay(ctx context.Context, roomID string, date time.Time, slots []availability.TimeSlot) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, dayKey(roomID, date), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write failed", "room_id", roomID, "err", err)
	}
}

// InvalidateRange drops every cached day the interval [from, to) touches.
func (c *Availability) InvalidateRange(ctx context.Context, roomID string, from, to time.Time) {
	if c == nil || c.rdb == nil {
		return
	}
	keys := DayKeysInRange(roomID, from, to)
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("availability cache invalidation failed", "room_id", roomID, "err", err)
	}
}

// DayKeysInRange lists the cache keys for each UTC day intersecting
// [from, to). An interval ending exactly at midnight does not touch the
// following day.
func DayKeysInRange(roomID string, from, to time.Time) []string {
	if !from.Before(to) {
		return nil
	}
	day := from.UTC().Truncate(24 * time.Hour)
	last := to.UTC().Add(-time.Nanosecond).Truncate(24 * time.Hour)
	var keys []string
	for !day.After(last) {
		keys = append(keys, dayKey(roomID, day))
		day = day.Add(24 * time.Hour)
	}
	return keys
}
