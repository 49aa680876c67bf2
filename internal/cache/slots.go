package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clinicbook/internal/domain"
)

// SlotCache is a read-through cache of free-slot listings keyed per provider
// and day. A nil *SlotCache is valid and disables caching.
type SlotCache struct {
	provider Provider
	ttl      time.Duration
	log      *slog.Logger
}

func NewSlotCache(provider Provider, ttl time.Duration, log *slog.Logger) *SlotCache {
	return &SlotCache{provider: provider, ttl: ttl, log: log}
}

func freeSlotsKey(providerID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("slots:free:%s:%s", providerID, domain.DayOf(day).Format("2006-01-02"))
}

// GetFreeSlots returns the cached listing, or ErrCacheMiss.
func (c *SlotCache) GetFreeSlots(ctx context.Context, providerID uuid.UUID, day time.Time) ([]domain.Slot, error) {
	if c == nil {
		return nil, ErrCacheMiss
	}
	b, err := c.provider.Get(ctx, freeSlotsKey(providerID, day))
	if err != nil {
		return nil, err
	}
	var slots []domain.Slot
	if err := json.Unmarshal(b, &slots); err != nil {
		return nil, ErrCacheMiss
	}
	return slots, nil
}

func (c *SlotCache) SetFreeSlots(ctx context.Context, providerID uuid.UUID, day time.Time, slots []domain.Slot) {
	if c == nil {
		return
	}
	b, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.provider.Set(ctx, freeSlotsKey(providerID, day), b, c.ttl); err != nil {
		c.log.WarnContext(ctx, "slot cache set failed", "error", err)
	}
}

// Invalidate drops the listings for the given days.
func (c *SlotCache) Invalidate(ctx context.Context, providerID uuid.UUID, days ...time.Time) {
	if c == nil || len(days) == 0 {
		return
	}
	seen := make(map[string]bool, len(days))
	keys := make([]string, 0, len(days))
	for _, day := range days {
		key := freeSlotsKey(providerID, day)
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	if err := c.provider.Delete(ctx, keys...); err != nil {
		c.log.WarnContext(ctx, "slot cache invalidation failed", "error", err)
	}
}

// Miss reports whether err is a cache miss rather than a backend failure.
func Miss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
