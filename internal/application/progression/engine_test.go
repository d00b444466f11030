package progression

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberhollow/emberhollow-core/internal/domain/ledger"
	"github.com/emberhollow/emberhollow-core/internal/domain/rank"
	"github.com/emberhollow/emberhollow-core/pkg/logger"
)

func newTestEngine(t *testing.T) (*Engine, *memStore, *memCatalog) {
	t.Helper()
	l := newMemLedger()
	store := newMemStore(l, newMemPlayers())
	catalog := newMemCatalog()
	log := logger.New(logger.Options{Level: "error"})
	return NewEngine(store, catalog, nil, log, "test"), store, catalog
}

func seedProgress(t *testing.T, store *memStore, playerID string, pos rank.Position, minutes int64, achievements int) {
	t.Helper()
	p := rank.NewProgress(playerID)
	p.Position = pos
	p.PlaytimeMinutes = minutes
	p.AchievementsComplete = achievements
	require.NoError(t, store.CreateProgress(context.Background(), p))
}

func TestEvaluate_BelowThresholdNoPromotion(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	// 60 minutes at (1,1): next position (1,2) needs 90 minutes.
	seedProgress(t, store, "p1", rank.Position{Primary: 1, Sub: 1}, 60, 5)

	promo, err := engine.Evaluate(context.Background(), "p1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, promo)

	p, err := store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, rank.Position{Primary: 1, Sub: 1}, p.Position)
}

func TestEvaluate_PromotesWhenBothThresholdsMet(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	seedProgress(t, store, "p1", rank.Position{Primary: 1, Sub: 1}, 90, 1)

	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	promo, err := engine.Evaluate(context.Background(), "p1", now)
	require.NoError(t, err)
	require.NotNil(t, promo)

	assert.Equal(t, rank.Position{Primary: 1, Sub: 1}, promo.From)
	assert.Equal(t, rank.Position{Primary: 1, Sub: 2}, promo.To)
	assert.Equal(t, "Wanderer II", promo.DisplayName)
	assert.Equal(t, now, promo.At)

	p, err := store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, rank.Position{Primary: 1, Sub: 2}, p.Position)
	assert.Equal(t, now, p.LastPromotionAt)

	kinds := store.ledger.kinds("p1")
	assert.Equal(t, []ledger.Kind{ledger.KindRankPromotion}, kinds)

	events, err := store.ledger.Recent(context.Background(), "p1", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "1.1", events[0].Metadata["from"])
	assert.Equal(t, "1.2", events[0].Metadata["to"])
	assert.Equal(t, "Wanderer II", events[0].Metadata["rank"])
	assert.NotEmpty(t, events[0].Metadata["reason"])
}

func TestEvaluate_PlaytimeAloneInsufficient(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	// Plenty of playtime, zero achievements: (1,2) needs 1 achievement.
	seedProgress(t, store, "p1", rank.Position{Primary: 1, Sub: 1}, 10000, 0)

	promo, err := engine.Evaluate(context.Background(), "p1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, promo)
}

func TestEvaluate_Idempotent(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	seedProgress(t, store, "p1", rank.Position{Primary: 1, Sub: 1}, 90, 1)

	first, err := engine.Evaluate(context.Background(), "p1", time.Now())
	require.NoError(t, err)
	require.NotNil(t, first)

	// The second evaluation sees the committed position and its higher
	// thresholds, so nothing further happens.
	second, err := engine.Evaluate(context.Background(), "p1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, second)

	assert.Len(t, store.ledger.kinds("p1"), 1)
}

func TestEvaluate_OnePositionPerCall(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	// Totals qualifying for several positions still advance one at a time.
	seedProgress(t, store, "p1", rank.Position{Primary: 1, Sub: 1}, 100000, 50)

	promo, err := engine.Evaluate(context.Background(), "p1", time.Now())
	require.NoError(t, err)
	require.NotNil(t, promo)
	assert.Equal(t, rank.Position{Primary: 1, Sub: 2}, promo.To)

	promo, err = engine.Evaluate(context.Background(), "p1", time.Now())
	require.NoError(t, err)
	require.NotNil(t, promo)
	assert.Equal(t, rank.Position{Primary: 1, Sub: 3}, promo.To)
}

func TestEvaluate_TerminalIsNoOp(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	seedProgress(t, store, "p1", rank.Position{Primary: 25, Sub: 7}, 1<<40, 10000)

	promo, err := engine.Evaluate(context.Background(), "p1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, promo)
	assert.Empty(t, store.ledger.kinds("p1"))
}

func TestEvaluate_UnknownPlayerStartsFresh(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	promo, err := engine.Evaluate(context.Background(), "newcomer", time.Now())
	require.NoError(t, err)
	assert.Nil(t, promo)

	p, err := store.Get(context.Background(), "newcomer")
	require.NoError(t, err)
	assert.Equal(t, rank.Position{Primary: 1, Sub: 1}, p.Position)
}

func TestEvaluate_RewardEventsAppended(t *testing.T) {
	engine, store, catalog := newTestEngine(t)
	require.NoError(t, catalog.UpdateRewards(context.Background(),
		rank.Position{Primary: 1, Sub: 2}, 250, []string{"broadcast promoted"}))
	seedProgress(t, store, "p1", rank.Position{Primary: 1, Sub: 1}, 90, 1)

	promo, err := engine.Evaluate(context.Background(), "p1", time.Now())
	require.NoError(t, err)
	require.NotNil(t, promo)
	assert.Equal(t, int64(250), promo.RewardAmount)
	assert.Equal(t, []string{"broadcast promoted"}, promo.RewardCommands)

	kinds := store.ledger.kinds("p1")
	assert.Equal(t, []ledger.Kind{ledger.KindRankPromotion, ledger.KindRewardProcessing}, kinds)
}
