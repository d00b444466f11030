// Package progression implements the gain intake and promotion engine: the
// write side of the player progression ledger. Gains pass the rate limiter
// before they are appended; promotions are evaluated and applied inside a
// single transaction so concurrent evaluations cannot double-promote.
package progression

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/emberhollow/emberhollow-core/internal/domain/ledger"
	"github.com/emberhollow/emberhollow-core/internal/domain/rank"
	"github.com/emberhollow/emberhollow-core/internal/domain/shared"
	"github.com/emberhollow/emberhollow-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE PORTS
// ══════════════════════════════════════════════════════════════════════════════

// TxRepos is the repository view inside one transaction. ProgressForUpdate
// and AdvanceSighting take row locks, serializing concurrent evaluations
// and sightings per player.
type TxRepos interface {
	Ledger() ledger.Repository
	ProgressForUpdate(ctx context.Context, playerID string) (*rank.Progress, error)
	CreateProgress(ctx context.Context, p *rank.Progress) error
	UpdateProgress(ctx context.Context, p *rank.Progress) error
	AdvanceSighting(ctx context.Context, playerID, displayName string, now time.Time) (time.Time, error)
}

// Store runs a function inside one storage transaction. The function's
// writes commit together or not at all.
type Store interface {
	InTx(ctx context.Context, fn func(tx TxRepos) error) error
}

// RankCache is the optional cached rank lookup. All methods tolerate an
// unreachable cache; callers fall back to storage.
type RankCache interface {
	Get(ctx context.Context, playerID string) (rank.Position, string, error)
	Set(ctx context.Context, playerID string, pos rank.Position, displayName string) error
	Invalidate(ctx context.Context, playerID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTION ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Promotion describes one applied rank advance.
type Promotion struct {
	PlayerID    string
	From        rank.Position
	To          rank.Position
	DisplayName string

	// RewardAmount is the economy currency granted with this promotion;
	// zero when the rank carries no currency reward.
	RewardAmount int64

	// RewardCommands are the console commands recorded for execution.
	RewardCommands []string

	At time.Time
}

// Engine evaluates and applies promotions. Evaluation and application run
// in one transaction: the locked progress row is re-read, checked against
// the next position's thresholds, and advanced, with the promotion and
// reward events appended atomically. Running Evaluate twice promotes once.
type Engine struct {
	store   Store
	catalog rank.CatalogRepository
	cache   RankCache
	log     *slog.Logger
	server  string
}

// NewEngine creates the promotion engine. cache may be nil.
func NewEngine(store Store, catalog rank.CatalogRepository, cache RankCache, log *slog.Logger, serverName string) *Engine {
	return &Engine{
		store:   store,
		catalog: catalog,
		cache:   cache,
		log:     log,
		server:  serverName,
	}
}

// Evaluate checks whether the player qualifies for the next catalog
// position and promotes them if so. Returns nil when no promotion applies:
// thresholds unmet, or the player already holds the terminal rank. At most
// one position is advanced per call.
func (e *Engine) Evaluate(ctx context.Context, playerID string, now time.Time) (*Promotion, error) {
	now = now.UTC()

	var promo *Promotion
	err := e.store.InTx(ctx, func(tx TxRepos) error {
		progress, err := tx.ProgressForUpdate(ctx, playerID)
		if err != nil {
			if !errors.Is(err, rank.ErrProgressNotFound) {
				return err
			}
			progress = rank.NewProgress(playerID)
			if err := tx.CreateProgress(ctx, progress); err != nil {
				return err
			}
		}

		next, ok := progress.Position.Next()
		if !ok {
			return nil // terminal rank
		}

		def, err := e.catalog.Get(ctx, next)
		if err != nil {
			return err
		}
		if !def.Threshold.MeetsThreshold(progress.PlaytimeMinutes, progress.AchievementsComplete) {
			return nil
		}

		from := progress.Position
		if err := progress.PromoteTo(next, now); err != nil {
			return shared.WrapError("progression", "Evaluate",
				shared.ErrInvariantViolation, "promotion rejected by progress record", err)
		}
		if err := tx.UpdateProgress(ctx, progress); err != nil {
			return err
		}

		promoEvent, err := ledger.NewEvent(playerID, ledger.KindRankPromotion, "promotion", 1, now)
		if err != nil {
			return err
		}
		promoEvent.OriginServer = e.server
		promoEvent.Metadata = map[string]any{
			"from":   from.String(),
			"to":     next.String(),
			"rank":   def.DisplayName,
			"reason": "playtime and achievement thresholds met",
		}
		if err := tx.Ledger().Append(ctx, promoEvent); err != nil {
			return err
		}

		if def.HasRewards() {
			rewardEvent, err := ledger.NewEvent(playerID, ledger.KindRewardProcessing, "promotion", def.RewardAmount, now)
			if err != nil {
				return err
			}
			rewardEvent.OriginServer = e.server
			rewardEvent.Metadata = map[string]any{
				"rank":     def.DisplayName,
				"commands": def.RewardCommands,
			}
			if err := tx.Ledger().Append(ctx, rewardEvent); err != nil {
				return err
			}
		}

		promo = &Promotion{
			PlayerID:       playerID,
			From:           from,
			To:             next,
			DisplayName:    def.DisplayName,
			RewardAmount:   def.RewardAmount,
			RewardCommands: def.RewardCommands,
			At:             now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if promo != nil {
		e.log.Info("player promoted",
			logger.PlayerID(playerID),
			logger.RankPosition(promo.To.String()),
			slog.String("rank", promo.DisplayName))
		if e.cache != nil {
			if err := e.cache.Invalidate(ctx, playerID); err != nil {
				e.log.Warn("rank cache invalidation failed",
					logger.PlayerID(playerID), logger.Err(err))
			}
		}
	}
	return promo, nil
}
