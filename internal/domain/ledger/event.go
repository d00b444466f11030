// Package ledger contains the append-only progression event log domain model.
// Events are immutable facts: they are never updated or deleted, and every
// cumulative total in the system is defined as an aggregate over them.
package ledger

import (
	"errors"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT KINDS
// ══════════════════════════════════════════════════════════════════════════════

// Kind classifies a progression event.
type Kind string

const (
	// KindXPGain is an experience gain. The player's cumulative experience
	// is defined as the sum of all XPGain amounts.
	KindXPGain Kind = "XP_GAIN"

	// KindAchievement records a completed achievement.
	KindAchievement Kind = "ACHIEVEMENT"

	// KindRankPromotion records an advance through the rank catalog.
	KindRankPromotion Kind = "RANK_PROMOTION"

	// KindRewardProcessing records rewards applied alongside a promotion.
	KindRewardProcessing Kind = "REWARD_PROCESSING"

	// KindPlaytimeSession records accrued playtime minutes.
	KindPlaytimeSession Kind = "PLAYTIME_SESSION"
)

// IsValid reports whether the kind is one of the known event kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindXPGain, KindAchievement, KindRankPromotion, KindRewardProcessing, KindPlaytimeSession:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT
// ══════════════════════════════════════════════════════════════════════════════

// Event is one immutable row in the progression ledger.
type Event struct {
	// ID is assigned by storage on append; zero before that.
	ID int64

	// PlayerID is the stable player identifier (UUID string).
	PlayerID string

	// Kind classifies the event.
	Kind Kind

	// Source is free-text provenance, e.g. "chat" or "advancement:ender_dragon".
	Source string

	// Amount is the signed integer magnitude: XP points, achievement count,
	// session minutes, or reward currency depending on Kind.
	Amount int64

	// OccurredAt is when the event happened.
	OccurredAt time.Time

	// OriginServer labels which backend server produced the event.
	OriginServer string

	// Metadata carries free-form context, persisted as JSONB.
	Metadata map[string]any
}

// Domain errors.
var (
	ErrEmptyPlayerID = errors.New("ledger: player id is required")
	ErrInvalidKind   = errors.New("ledger: unknown event kind")
	ErrEmptySource   = errors.New("ledger: source is required")
	ErrZeroTimestamp = errors.New("ledger: occurred_at is required")
)

// NewEvent builds a validated event stamped with the given time.
func NewEvent(playerID string, kind Kind, source string, amount int64, occurredAt time.Time) (*Event, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, ErrEmptyPlayerID
	}
	if !kind.IsValid() {
		return nil, ErrInvalidKind
	}
	if strings.TrimSpace(source) == "" {
		return nil, ErrEmptySource
	}
	if occurredAt.IsZero() {
		return nil, ErrZeroTimestamp
	}

	return &Event{
		PlayerID:   playerID,
		Kind:       kind,
		Source:     source,
		Amount:     amount,
		OccurredAt: occurredAt.UTC(),
	}, nil
}

// Validate checks an externally constructed event.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.PlayerID) == "" {
		return ErrEmptyPlayerID
	}
	if !e.Kind.IsValid() {
		return ErrInvalidKind
	}
	if strings.TrimSpace(e.Source) == "" {
		return ErrEmptySource
	}
	if e.OccurredAt.IsZero() {
		return ErrZeroTimestamp
	}
	return nil
}

// SourceBreakdown maps a source label to the summed amount attributed to it.
type SourceBreakdown map[string]int64
