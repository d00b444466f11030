package identity

import (
	"context"
	"time"
)

// Repository stores player identity records.
type Repository interface {
	// Get returns the player by UUID, or ErrPlayerNotFound.
	Get(ctx context.Context, uuid string) (*Player, error)

	// GetByExternalID returns the player linked to the given external
	// identifier, or ErrPlayerNotFound.
	GetByExternalID(ctx context.Context, externalID string) (*Player, error)

	// Create inserts a new player record.
	Create(ctx context.Context, p *Player) error

	// Update persists the whole record.
	Update(ctx context.Context, p *Player) error

	// AdvanceSighting moves last_seen_at to now and refreshes the display
	// name, returning the previous sighting time. The read and the write
	// are one atomic step: two concurrent sightings observe distinct
	// previous times, never the same one.
	AdvanceSighting(ctx context.Context, uuid, displayName string, now time.Time) (time.Time, error)

	// RecentlySeen lists players sighted since the given time, most recent
	// first.
	RecentlySeen(ctx context.Context, since time.Time, limit int) ([]*Player, error)
}
