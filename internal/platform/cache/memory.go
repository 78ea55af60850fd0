package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
)

type memoryEntry struct {
	profile   domain.NutrientProfile
	expiresAt time.Time
}

// MemoryCache is an in-process NutrientCache. Entries expire after ttl;
// a zero ttl never expires.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

var _ NutrientCache = (*MemoryCache)(nil)

// Get implements NutrientCache.Get.
func (c *MemoryCache) Get(ctx context.Context, description string) (*domain.NutrientProfile, error) {
	key := Key(description)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, ErrMiss
	}

	profile := entry.profile
	profile.Nutrients = entry.profile.Nutrients.Scale(1)
	return &profile, nil
}

// Set implements NutrientCache.Set.
func (c *MemoryCache) Set(ctx context.Context, profile *domain.NutrientProfile) error {
	entry := memoryEntry{profile: *profile}
	entry.profile.Nutrients = profile.Nutrients.Scale(1)
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[Key(profile.FoodName)] = entry
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
