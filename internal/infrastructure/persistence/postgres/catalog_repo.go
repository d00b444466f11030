package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/emberhollow/emberhollow-core/internal/domain/rank"
)

// CatalogRepository implements rank.CatalogRepository on the
// rank_definitions table.
type CatalogRepository struct {
	conn *Connection
}

// NewCatalogRepository creates the repository. Seeding needs transaction
// control, so this one takes the full gateway rather than a Querier.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

// SeedIfEmpty writes the full generated catalog when no definitions exist
// yet. Two first-boot instances can both pass the emptiness check at
// ReadCommitted, so the inserts skip positions already present; the loser
// of the race seeds nothing and starts normally.
func (r *CatalogRepository) SeedIfEmpty(ctx context.Context) (int, error) {
	var inserted int
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM rank_definitions`).Scan(&count); err != nil {
			return mapError("catalog.SeedIfEmpty", err)
		}
		if count > 0 {
			return nil
		}

		for _, def := range rank.GenerateCatalog() {
			tag, err := tx.Exec(ctx, `
				INSERT INTO rank_definitions (primary_tier, sub_tier, display_name,
					required_minutes, required_achievements, external_role_ref,
					reward_amount, reward_commands)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (primary_tier, sub_tier) DO NOTHING`,
				def.Position.Primary, def.Position.Sub, def.DisplayName,
				def.Threshold.RequiredMinutes, def.Threshold.RequiredAchievements,
				def.ExternalRoleRef, def.RewardAmount, def.RewardCommands)
			if err != nil {
				return mapError("catalog.SeedIfEmpty", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Get returns the definition at the given position.
func (r *CatalogRepository) Get(ctx context.Context, pos rank.Position) (*rank.Definition, error) {
	var def rank.Definition
	err := r.conn.QueryRow(ctx, `
		SELECT primary_tier, sub_tier, display_name, required_minutes,
			required_achievements, external_role_ref, reward_amount, reward_commands
		FROM rank_definitions
		WHERE primary_tier = $1 AND sub_tier = $2`,
		pos.Primary, pos.Sub).Scan(
		&def.Position.Primary, &def.Position.Sub, &def.DisplayName,
		&def.Threshold.RequiredMinutes, &def.Threshold.RequiredAchievements,
		&def.ExternalRoleRef, &def.RewardAmount, &def.RewardCommands)
	if err != nil {
		if IsNoRows(err) {
			return nil, rank.ErrDefinitionNotFound
		}
		return nil, mapError("catalog.Get", err)
	}
	return &def, nil
}

// Count returns the number of stored definitions.
func (r *CatalogRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM rank_definitions`).Scan(&count)
	if err != nil {
		return 0, mapError("catalog.Count", err)
	}
	return count, nil
}

// UpdateRewards applies an administrative reward edit to one position.
// Thresholds stay procedural and are never editable here.
func (r *CatalogRepository) UpdateRewards(ctx context.Context, pos rank.Position, amount int64, commands []string) error {
	if commands == nil {
		commands = []string{}
	}
	tag, err := r.conn.Exec(ctx, `
		UPDATE rank_definitions SET reward_amount = $3, reward_commands = $4
		WHERE primary_tier = $1 AND sub_tier = $2`,
		pos.Primary, pos.Sub, amount, commands)
	if err != nil {
		return mapError("catalog.UpdateRewards", err)
	}
	if tag.RowsAffected() == 0 {
		return rank.ErrDefinitionNotFound
	}
	return nil
}
