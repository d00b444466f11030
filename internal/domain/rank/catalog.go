// Package rank contains the rank catalog and player progress domain model.
// The catalog is a fixed table of 175 positions (25 primary tiers, 7 sub
// tiers each) with deterministic, procedurally generated thresholds.
package rank

import (
	"errors"
	"fmt"
	"math"
)

// Catalog bounds.
const (
	MinPrimaryTier = 1
	MaxPrimaryTier = 25
	MinSubTier     = 1
	MaxSubTier     = 7

	// TotalPositions is the full catalog size.
	TotalPositions = MaxPrimaryTier * MaxSubTier
)

// primaryTierNames are the display names of the 25 primary tiers, in
// ascending order.
var primaryTierNames = [MaxPrimaryTier]string{
	"Wanderer",
	"Ember Novice",
	"Ash Apprentice",
	"Cinder Adept",
	"Flame Keeper",
	"Forge Hand",
	"Iron Warden",
	"Bronze Sentinel",
	"Silver Sentinel",
	"Gold Sentinel",
	"Obsidian Guard",
	"Rune Carver",
	"Storm Caller",
	"Tide Binder",
	"Frost Herald",
	"Dusk Stalker",
	"Dawn Bringer",
	"Star Forger",
	"Void Walker",
	"Dragon Seeker",
	"Dragon Slayer",
	"Elder Champion",
	"Mythic Warden",
	"Eternal Flame",
	"Hollow Sovereign",
}

// romanSub are the sub-tier markers appended to the primary name.
var romanSub = [MaxSubTier + 1]string{"", "I", "II", "III", "IV", "V", "VI", "VII"}

// ══════════════════════════════════════════════════════════════════════════════
// POSITION
// ══════════════════════════════════════════════════════════════════════════════

// Position is the two-level rank coordinate. Ordering between positions is
// lexicographic on (Primary, Sub).
type Position struct {
	Primary int
	Sub     int
}

// ErrPositionOutOfBounds indicates a coordinate outside the 25x7 catalog.
var ErrPositionOutOfBounds = errors.New("rank: position outside catalog bounds")

// IsValid reports whether the position lies inside the catalog.
func (p Position) IsValid() bool {
	return p.Primary >= MinPrimaryTier && p.Primary <= MaxPrimaryTier &&
		p.Sub >= MinSubTier && p.Sub <= MaxSubTier
}

// Compare returns -1, 0, or 1 for p relative to other under the catalog's
// lexicographic ordering.
func (p Position) Compare(other Position) int {
	switch {
	case p.Primary < other.Primary:
		return -1
	case p.Primary > other.Primary:
		return 1
	case p.Sub < other.Sub:
		return -1
	case p.Sub > other.Sub:
		return 1
	default:
		return 0
	}
}

// IsTerminal reports whether p is the final catalog position (25, 7).
func (p Position) IsTerminal() bool {
	return p.Primary == MaxPrimaryTier && p.Sub == MaxSubTier
}

// Next returns the position after p, and false at the terminal position.
func (p Position) Next() (Position, bool) {
	if !p.IsValid() || p.IsTerminal() {
		return Position{}, false
	}
	if p.Sub < MaxSubTier {
		return Position{Primary: p.Primary, Sub: p.Sub + 1}, true
	}
	return Position{Primary: p.Primary + 1, Sub: MinSubTier}, true
}

// String renders the coordinate as "primary.sub".
func (p Position) String() string {
	return fmt.Sprintf("%d.%d", p.Primary, p.Sub)
}

// DisplayName composes the human-readable rank name, e.g. "Flame Keeper III".
func (p Position) DisplayName() string {
	if !p.IsValid() {
		return "Unknown"
	}
	return primaryTierNames[p.Primary-1] + " " + romanSub[p.Sub]
}

// ══════════════════════════════════════════════════════════════════════════════
// THRESHOLDS
// ══════════════════════════════════════════════════════════════════════════════

// Threshold is the cumulative requirement to hold a position. Both values
// must be met; partial qualification never promotes.
type Threshold struct {
	// RequiredMinutes of cumulative playtime.
	RequiredMinutes int64

	// RequiredAchievements completed.
	RequiredAchievements int
}

// ThresholdFor computes the position's thresholds from the catalog formula:
// minutes = floor(1.5^(primary+sub-2) * 60), achievements = (primary-1)*7 + (sub-1).
func ThresholdFor(p Position) (Threshold, error) {
	if !p.IsValid() {
		return Threshold{}, ErrPositionOutOfBounds
	}
	exp := float64(p.Primary + p.Sub - 2)
	minutes := int64(math.Floor(math.Pow(1.5, exp) * 60))
	return Threshold{
		RequiredMinutes:      minutes,
		RequiredAchievements: (p.Primary-1)*MaxSubTier + (p.Sub - 1),
	}, nil
}

// MeetsThreshold reports whether the given cumulative totals satisfy t.
func (t Threshold) MeetsThreshold(playtimeMinutes int64, achievements int) bool {
	return playtimeMinutes >= t.RequiredMinutes && achievements >= t.RequiredAchievements
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Definition is one catalog row: a position with its thresholds, optional
// external role mapping, and optional reward payload. Rows are immutable
// after generation except for administrative reward edits.
type Definition struct {
	Position        Position
	DisplayName     string
	Threshold       Threshold
	ExternalRoleRef string

	// RewardAmount is the economy currency granted on promotion; zero means
	// no currency reward.
	RewardAmount int64

	// RewardCommands are console commands executed on promotion.
	RewardCommands []string
}

// HasRewards reports whether promoting into this rank carries a reward payload.
func (d *Definition) HasRewards() bool {
	return d.RewardAmount > 0 || len(d.RewardCommands) > 0
}

// GenerateCatalog produces all 175 definitions in catalog order. The output
// is deterministic: thresholds come from ThresholdFor and names from the
// fixed tier tables.
func GenerateCatalog() []Definition {
	defs := make([]Definition, 0, TotalPositions)
	for primary := MinPrimaryTier; primary <= MaxPrimaryTier; primary++ {
		for sub := MinSubTier; sub <= MaxSubTier; sub++ {
			pos := Position{Primary: primary, Sub: sub}
			threshold, err := ThresholdFor(pos)
			if err != nil {
				// Unreachable for in-bounds loop coordinates.
				panic(err)
			}
			defs = append(defs, Definition{
				Position:    pos,
				DisplayName: pos.DisplayName(),
				Threshold:   threshold,
			})
		}
	}
	return defs
}
