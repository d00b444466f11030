package ledger

import (
	"context"
	"time"
)

// Repository is the append-only event log contract. Aggregates are computed
// from the event rows at query time: no mutable counter is trusted as the
// source of truth for totals.
type Repository interface {
	// Append durably writes one event. The event is visible to aggregate
	// queries once Append returns nil.
	Append(ctx context.Context, e *Event) error

	// SumSince returns the summed amount of the player's events of the given
	// kind with occurred_at >= since.
	SumSince(ctx context.Context, playerID string, kind Kind, since time.Time) (int64, error)

	// CountInWindow counts the player's events of the given kind and source
	// with windowStart <= occurred_at < windowEnd.
	CountInWindow(ctx context.Context, playerID string, kind Kind, source string, windowStart, windowEnd time.Time) (int, error)

	// Recent returns the player's most recent events, newest first.
	Recent(ctx context.Context, playerID string, limit int) ([]*Event, error)

	// BreakdownBySource sums the player's amounts per source label since the
	// given time.
	BreakdownBySource(ctx context.Context, playerID string, since time.Time) (SourceBreakdown, error)
}
