package rank

import (
	"errors"
	"time"
)

// Progress is the denormalized per-player progress record. The (Primary,
// Sub) coordinate is monotonically non-decreasing over time: promotions only
// move forward through the catalog ordering, never backward.
type Progress struct {
	PlayerID             string
	Position             Position
	PlaytimeMinutes      int64
	AchievementsComplete int
	LastPromotionAt      time.Time
}

var (
	// ErrBackwardPromotion indicates an attempted move against the catalog
	// ordering.
	ErrBackwardPromotion = errors.New("rank: promotion would move backward through the catalog")

	// ErrNonAdjacentPromotion indicates a promotion that skips positions.
	ErrNonAdjacentPromotion = errors.New("rank: promotion must advance to the adjacent position")
)

// NewProgress returns a fresh progress record at the catalog's first position.
func NewProgress(playerID string) *Progress {
	return &Progress{
		PlayerID: playerID,
		Position: Position{Primary: MinPrimaryTier, Sub: MinSubTier},
	}
}

// PromoteTo advances the record to the given position, stamping the
// promotion time. Only the adjacent next position is a legal target.
func (p *Progress) PromoteTo(target Position, at time.Time) error {
	if !target.IsValid() {
		return ErrPositionOutOfBounds
	}
	if target.Compare(p.Position) <= 0 {
		return ErrBackwardPromotion
	}
	next, ok := p.Position.Next()
	if !ok || next != target {
		return ErrNonAdjacentPromotion
	}
	p.Position = target
	p.LastPromotionAt = at.UTC()
	return nil
}

// AccruePlaytime adds minutes to the cumulative playtime total. Negative
// deltas are ignored.
func (p *Progress) AccruePlaytime(minutes int64) {
	if minutes > 0 {
		p.PlaytimeMinutes += minutes
	}
}

// RecordAchievement increments the completed achievement count.
func (p *Progress) RecordAchievement() {
	p.AchievementsComplete++
}
