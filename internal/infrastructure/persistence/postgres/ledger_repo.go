package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/emberhollow/emberhollow-core/internal/domain/ledger"
	"github.com/emberhollow/emberhollow-core/internal/domain/shared"
)

// LedgerRepository implements ledger.Repository on the xp_events table.
// Rows are append-only; no UPDATE or DELETE statement exists in this file.
type LedgerRepository struct {
	q Querier
}

// NewLedgerRepository creates the repository over the pooled gateway or a
// transaction.
func NewLedgerRepository(q Querier) *LedgerRepository {
	return &LedgerRepository{q: q}
}

// Append durably writes one event and backfills its assigned ID.
func (r *LedgerRepository) Append(ctx context.Context, e *ledger.Event) error {
	if err := e.Validate(); err != nil {
		return shared.WrapError("ledger", "Append", shared.ErrValidation,
			"invalid event", err)
	}

	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return shared.WrapError("ledger", "Append", shared.ErrValidation,
				"metadata not serializable", err)
		}
	}

	err := r.q.QueryRow(ctx, `
		INSERT INTO xp_events (uuid, event_kind, source, amount, occurred_at, origin_server, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.PlayerID, e.Kind.String(), e.Source, e.Amount,
		e.OccurredAt, e.OriginServer, metadata).Scan(&e.ID)
	return mapError("ledger.Append", err)
}

// SumSince returns the summed amount of the player's events of the given
// kind since the given time.
func (r *LedgerRepository) SumSince(ctx context.Context, playerID string, kind ledger.Kind, since time.Time) (int64, error) {
	var sum int64
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM xp_events
		WHERE uuid = $1 AND event_kind = $2 AND occurred_at >= $3`,
		playerID, kind.String(), since).Scan(&sum)
	if err != nil {
		return 0, mapError("ledger.SumSince", err)
	}
	return sum, nil
}

// CountInWindow counts the player's events of the given kind and source in
// the half-open window [windowStart, windowEnd).
func (r *LedgerRepository) CountInWindow(ctx context.Context, playerID string, kind ledger.Kind, source string, windowStart, windowEnd time.Time) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM xp_events
		WHERE uuid = $1 AND event_kind = $2 AND source = $3
		  AND occurred_at >= $4 AND occurred_at < $5`,
		playerID, kind.String(), source, windowStart, windowEnd).Scan(&count)
	if err != nil {
		return 0, mapError("ledger.CountInWindow", err)
	}
	return count, nil
}

// Recent returns the player's most recent events, newest first.
func (r *LedgerRepository) Recent(ctx context.Context, playerID string, limit int) ([]*ledger.Event, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.q.Query(ctx, `
		SELECT id, uuid, event_kind, source, amount, occurred_at, origin_server, metadata
		FROM xp_events
		WHERE uuid = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2`,
		playerID, limit)
	if err != nil {
		return nil, mapError("ledger.Recent", err)
	}
	defer rows.Close()

	events := make([]*ledger.Event, 0, limit)
	for rows.Next() {
		var (
			e        ledger.Event
			kind     string
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.PlayerID, &kind, &e.Source,
			&e.Amount, &e.OccurredAt, &e.OriginServer, &metadata); err != nil {
			return nil, mapError("ledger.Recent", err)
		}
		e.Kind = ledger.Kind(kind)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, shared.WrapError("ledger", "Recent",
					shared.ErrStorageQueryFailed, "corrupt metadata", err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ledger.Recent", err)
	}
	return events, nil
}

// BreakdownBySource sums the player's amounts per source label since the
// given time.
func (r *LedgerRepository) BreakdownBySource(ctx context.Context, playerID string, since time.Time) (ledger.SourceBreakdown, error) {
	rows, err := r.q.Query(ctx, `
		SELECT source, COALESCE(SUM(amount), 0) FROM xp_events
		WHERE uuid = $1 AND event_kind = $2 AND occurred_at >= $3
		GROUP BY source`,
		playerID, ledger.KindXPGain.String(), since)
	if err != nil {
		return nil, mapError("ledger.BreakdownBySource", err)
	}
	defer rows.Close()

	breakdown := make(ledger.SourceBreakdown)
	for rows.Next() {
		var (
			source string
			sum    int64
		)
		if err := rows.Scan(&source, &sum); err != nil {
			return nil, mapError("ledger.BreakdownBySource", err)
		}
		breakdown[source] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ledger.BreakdownBySource", err)
	}
	return breakdown, nil
}
