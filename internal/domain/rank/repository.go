package rank

import (
	"context"
	"errors"
)

var (
	// ErrDefinitionNotFound indicates a catalog lookup for a position with no
	// stored definition.
	ErrDefinitionNotFound = errors.New("rank: definition not found")

	// ErrProgressNotFound indicates a progress lookup for a player with no
	// stored record.
	ErrProgressNotFound = errors.New("rank: progress not found")
)

// CatalogRepository stores the generated rank definitions. The table is
// seeded once when empty and immutable thereafter except for administrative
// reward edits.
type CatalogRepository interface {
	// SeedIfEmpty writes the full generated catalog when no definitions
	// exist yet. Returns the number of rows inserted (0 if already seeded).
	SeedIfEmpty(ctx context.Context) (int, error)

	// Get returns the definition at the given position.
	Get(ctx context.Context, pos Position) (*Definition, error)

	// Count returns the number of stored definitions.
	Count(ctx context.Context) (int, error)

	// UpdateRewards applies an administrative reward edit to one position.
	UpdateRewards(ctx context.Context, pos Position, amount int64, commands []string) error
}

// ProgressRepository stores per-player progress records.
type ProgressRepository interface {
	// Get returns the player's progress record.
	Get(ctx context.Context, playerID string) (*Progress, error)

	// Create inserts a fresh progress record.
	Create(ctx context.Context, p *Progress) error

	// GetOrCreate returns the player's record, creating one at the catalog's
	// first position if absent.
	GetOrCreate(ctx context.Context, playerID string) (*Progress, error)
}
