// Package jobs contains the scheduled job implementations.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/emberhollow/emberhollow-core/internal/application/progression"
	"github.com/emberhollow/emberhollow-core/internal/domain/identity"
	"github.com/emberhollow/emberhollow-core/internal/domain/shared"
	"github.com/emberhollow/emberhollow-core/pkg/logger"
)

// PromotionSweep periodically evaluates recently active players for rank
// promotion. Each player is evaluated independently; one player's failure
// does not stop the sweep, but a storage outage aborts it early.
type PromotionSweep struct {
	players identity.Repository
	engine  *progression.Engine
	log     *slog.Logger

	// Lookback bounds which players count as recently active.
	Lookback time.Duration

	// BatchSize bounds one sweep.
	BatchSize int
}

// NewPromotionSweep creates the sweep job.
func NewPromotionSweep(players identity.Repository, engine *progression.Engine, log *slog.Logger) *PromotionSweep {
	return &PromotionSweep{
		players:   players,
		engine:    engine,
		log:       log,
		Lookback:  30 * time.Minute,
		BatchSize: 500,
	}
}

// Name implements scheduler.Job.
func (j *PromotionSweep) Name() string { return "promotion_sweep" }

// Run implements scheduler.Job.
func (j *PromotionSweep) Run(ctx context.Context) error {
	now := time.Now().UTC()

	players, err := j.players.RecentlySeen(ctx, now.Add(-j.Lookback), j.BatchSize)
	if err != nil {
		return err
	}

	var promoted int
	for _, p := range players {
		promo, err := j.engine.Evaluate(ctx, p.UUID, now)
		if err != nil {
			if errors.Is(err, shared.ErrStorageUnavailable) || ctx.Err() != nil {
				return err
			}
			j.log.Warn("promotion evaluation failed",
				logger.PlayerID(p.UUID), logger.Err(err))
			continue
		}
		if promo != nil {
			promoted++
		}
	}

	if promoted > 0 {
		j.log.Info("promotion sweep applied promotions",
			slog.Int("evaluated", len(players)),
			slog.Int("promoted", promoted))
	}
	return nil
}
