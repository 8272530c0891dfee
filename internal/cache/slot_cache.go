// Package cache keeps generated day grids out of the hot path. Slot
// generation walks every rule and live appointment for a doctor-day, so
// read-heavy browsing traffic is served from Redis and invalidated whenever
// a rule or booking changes the day.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docbook/docbook/internal/domain/availability"
)

type SlotCache interface {
	GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]availability.TimeSlot, bool)

	// StoreDay caches a generated grid. maxAge, when positive, caps the
	// entry lifetime below the configured TTL; grids containing a
	// reservation hold pass the time until the earliest hold lapses, so a
	// slot never reads as booked after the hold behind it has expired.
	StoreDay(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []availability.TimeSlot, maxAge time.Duration)
	InvalidateDay(ctx context.Context, doctorID uuid.UUID, date time.Time)

	// InvalidateDoctor drops every cached day for the doctor. Used when a
	// recurring rule changes, since that touches an unbounded set of dates.
	InvalidateDoctor(ctx context.Context, doctorID uuid.UUID)
}

type redisSlotCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisSlotCache(client *redis.Client, ttl time.Duration, log *zap.Logger) SlotCache {
	return &redisSlotCache{client: client, ttl: ttl, log: log}
}

func dayKey(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("slots:%s:%s", doctorID, date.Format("2006-01-02"))
}

func (c *redisSlotCache) GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]availability.TimeSlot, bool) {
	raw, err := c.client.Get(ctx, dayKey(doctorID, date)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("slot cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var slots []availability.TimeSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		c.log.Warn("slot cache entry corrupt, dropping", zap.String("key", dayKey(doctorID, date)), zap.Error(err))
		c.client.Del(ctx, dayKey(doctorID, date))
		return nil, false
	}
	return slots, true
}

func (c *redisSlotCache) StoreDay(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []availability.TimeSlot, maxAge time.Duration) {
	raw, err := json.Marshal(slots)
	if err != nil {
		c.log.Warn("slot cache encode failed", zap.Error(err))
		return
	}
	ttl := c.ttl
	if maxAge > 0 && maxAge < ttl {
		ttl = maxAge
	}
	if err := c.client.Set(ctx, dayKey(doctorID, date), raw, ttl).Err(); err != nil {
		c.log.Warn("slot cache write failed", zap.Error(err))
	}
}

func (c *redisSlotCache) InvalidateDay(ctx context.Context, doctorID uuid.UUID, date time.Time) {
	if err := c.client.Del(ctx, dayKey(doctorID, date)).Err(); err != nil {
		c.log.Warn("slot cache invalidation failed", zap.Error(err))
	}
}

func (c *redisSlotCache) InvalidateDoctor(ctx context.Context, doctorID uuid.UUID) {
	pattern := fmt.Sprintf("slots:%s:*", doctorID)

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.log.Warn("slot cache scan failed", zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.log.Warn("slot cache invalidation failed", zap.Error(err))
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// noopSlotCache satisfies SlotCache when Redis is disabled.
type noopSlotCache struct{}

func NewNoopSlotCache() SlotCache {
	return noopSlotCache{}
}

func (noopSlotCache) GetDay(context.Context, uuid.UUID, time.Time) ([]availability.TimeSlot, bool) {
	return nil, false
}
func (noopSlotCache) StoreDay(context.Context, uuid.UUID, time.Time, []availability.TimeSlot, time.Duration) {
}
func (noopSlotCache) InvalidateDay(context.Context, uuid.UUID, time.Time)                     {}
func (noopSlotCache) InvalidateDoctor(context.Context, uuid.UUID)                             {}
