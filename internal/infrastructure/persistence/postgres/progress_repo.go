package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/emberhollow/emberhollow-core/internal/domain/rank"
	"github.com/emberhollow/emberhollow-core/internal/domain/shared"
)

// ProgressRepository implements rank.ProgressRepository on the
// player_progress table.
type ProgressRepository struct {
	q Querier
}

// NewProgressRepository creates the repository over the pooled gateway or a
// transaction.
func NewProgressRepository(q Querier) *ProgressRepository {
	return &ProgressRepository{q: q}
}

const progressColumns = `uuid, primary_tier, sub_tier, playtime_minutes,
	achievements_complete, last_promotion_at`

// Get returns the player's progress record.
func (r *ProgressRepository) Get(ctx context.Context, playerID string) (*rank.Progress, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM player_progress WHERE uuid = $1`, playerID)
	return scanProgress(row)
}

// GetForUpdate returns the player's progress record under a row lock. Must
// run inside a transaction; the lock serializes concurrent promotion
// evaluations so the second evaluation observes the first one's commit.
func (r *ProgressRepository) GetForUpdate(ctx context.Context, playerID string) (*rank.Progress, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM player_progress WHERE uuid = $1 FOR UPDATE`, playerID)
	return scanProgress(row)
}

// Create inserts a fresh progress record.
func (r *ProgressRepository) Create(ctx context.Context, p *rank.Progress) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO player_progress (uuid, primary_tier, sub_tier,
			playtime_minutes, achievements_complete, last_promotion_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.PlayerID, p.Position.Primary, p.Position.Sub,
		p.PlaytimeMinutes, p.AchievementsComplete, nullTime(p.LastPromotionAt))
	if IsUniqueViolation(err) {
		return shared.WrapError("rank", "Create", shared.ErrAlreadyExists,
			"progress already exists", err)
	}
	return mapError("progress.Create", err)
}

// Update persists the whole progress record.
func (r *ProgressRepository) Update(ctx context.Context, p *rank.Progress) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE player_progress SET
			primary_tier = $2, sub_tier = $3, playtime_minutes = $4,
			achievements_complete = $5, last_promotion_at = $6, updated_at = NOW()
		WHERE uuid = $1`,
		p.PlayerID, p.Position.Primary, p.Position.Sub,
		p.PlaytimeMinutes, p.AchievementsComplete, nullTime(p.LastPromotionAt))
	if err != nil {
		return mapError("progress.Update", err)
	}
	if tag.RowsAffected() == 0 {
		return rank.ErrProgressNotFound
	}
	return nil
}

// GetOrCreate returns the player's record, creating one at the catalog's
// first position if absent. Insertion races resolve to the existing row.
func (r *ProgressRepository) GetOrCreate(ctx context.Context, playerID string) (*rank.Progress, error) {
	p, err := r.Get(ctx, playerID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, rank.ErrProgressNotFound) {
		return nil, err
	}

	fresh := rank.NewProgress(playerID)
	if err := r.Create(ctx, fresh); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return r.Get(ctx, playerID)
		}
		return nil, err
	}
	return fresh, nil
}

func scanProgress(row rowScanner) (*rank.Progress, error) {
	var (
		p           rank.Progress
		promotionAt sql.NullTime
	)
	err := row.Scan(&p.PlayerID, &p.Position.Primary, &p.Position.Sub,
		&p.PlaytimeMinutes, &p.AchievementsComplete, &promotionAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, rank.ErrProgressNotFound
		}
		return nil, mapError("progress.scan", err)
	}
	p.LastPromotionAt = promotionAt.Time
	return &p, nil
}
