package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/emberhollow/emberhollow-core/internal/domain/rank"
)

// TTLRankCache bounds staleness of cached rank lookups. Promotions
// invalidate eagerly, so this only matters for out-of-band edits.
const TTLRankCache = 10 * time.Minute

// RankCache caches the per-player current rank lookup (position plus
// display name), the hottest read in the system.
type RankCache struct {
	cache *Cache
}

// NewRankCache creates the cache over a shared cache client.
func NewRankCache(cache *Cache) *RankCache {
	return &RankCache{cache: cache}
}

// cachedRank is the stored lookup result.
type cachedRank struct {
	Primary     int    `json:"primary"`
	Sub         int    `json:"sub"`
	DisplayName string `json:"display_name"`
}

func rankKey(playerID string) string {
	return fmt.Sprintf("%s%s", PrefixRank, playerID)
}

// Get returns the cached position and display name, or ErrCacheMiss.
func (c *RankCache) Get(ctx context.Context, playerID string) (rank.Position, string, error) {
	var cached cachedRank
	if err := c.cache.get(ctx, rankKey(playerID), &cached); err != nil {
		return rank.Position{}, "", err
	}
	return rank.Position{Primary: cached.Primary, Sub: cached.Sub}, cached.DisplayName, nil
}

// Set stores the player's current rank.
func (c *RankCache) Set(ctx context.Context, playerID string, pos rank.Position, displayName string) error {
	return c.cache.set(ctx, rankKey(playerID), cachedRank{
		Primary:     pos.Primary,
		Sub:         pos.Sub,
		DisplayName: displayName,
	}, TTLRankCache)
}

// Invalidate drops the cached rank, called on every promotion.
func (c *RankCache) Invalidate(ctx context.Context, playerID string) error {
	return c.cache.delete(ctx, rankKey(playerID))
}
