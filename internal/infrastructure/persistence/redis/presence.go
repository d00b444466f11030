package redis

import (
	"context"
	"time"
)

// TTLPresence is how long a sighting keeps a player marked online.
const TTLPresence = 5 * time.Minute

// PresenceTracker records player sightings as TTL keys. It answers "who is
// online right now" cheaply without touching the event ledger; last-seen
// times in PostgreSQL remain authoritative for playtime accrual.
type PresenceTracker struct {
	cache *Cache
}

// NewPresenceTracker creates the tracker over a shared cache client.
func NewPresenceTracker(cache *Cache) *PresenceTracker {
	return &PresenceTracker{cache: cache}
}

// presenceEntry is the stored sighting.
type presenceEntry struct {
	DisplayName string    `json:"display_name"`
	Server      string    `json:"server"`
	SeenAt      time.Time `json:"seen_at"`
}

// MarkSeen records a sighting, refreshing the TTL.
func (t *PresenceTracker) MarkSeen(ctx context.Context, playerID, displayName, server string, at time.Time) error {
	return t.cache.set(ctx, PrefixPresence+playerID, presenceEntry{
		DisplayName: displayName,
		Server:      server,
		SeenAt:      at.UTC(),
	}, TTLPresence)
}

// IsOnline reports whether the player was sighted within the presence TTL.
func (t *PresenceTracker) IsOnline(ctx context.Context, playerID string) (bool, error) {
	n, err := t.cache.client.Exists(ctx, PrefixPresence+playerID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LastSighting returns the cached sighting time, or zero on a miss.
func (t *PresenceTracker) LastSighting(ctx context.Context, playerID string) (time.Time, error) {
	var entry presenceEntry
	if err := t.cache.get(ctx, PrefixPresence+playerID, &entry); err != nil {
		if err == ErrCacheMiss {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return entry.SeenAt, nil
}

// OnlineCount counts currently tracked players. SCAN-based; intended for
// health reporting, not hot paths.
func (t *PresenceTracker) OnlineCount(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := t.cache.client.Scan(ctx, cursor, PrefixPresence+"*", 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

// Forget drops the presence record, used when a disconnect is observed.
func (t *PresenceTracker) Forget(ctx context.Context, playerID string) error {
	return t.cache.delete(ctx, PrefixPresence+playerID)
}
