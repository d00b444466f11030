package progression

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberhollow/emberhollow-core/internal/domain/identity"
	"github.com/emberhollow/emberhollow-core/internal/domain/ledger"
	"github.com/emberhollow/emberhollow-core/internal/domain/rank"
	"github.com/emberhollow/emberhollow-core/internal/domain/shared"
	"github.com/emberhollow/emberhollow-core/pkg/logger"
)

type serviceFixture struct {
	svc      *Service
	ledger   *memLedger
	store    *memStore
	players  *memPlayers
	presence *memPresence
}

func newTestService(t *testing.T, caps map[ledger.Kind]Caps) *serviceFixture {
	t.Helper()

	l := newMemLedger()
	players := newMemPlayers()
	store := newMemStore(l, players)
	catalog := newMemCatalog()
	log := logger.New(logger.Options{Level: "error"})

	limiter := NewLimiter(l, caps)
	engine := NewEngine(store, catalog, nil, log, "test")
	presence := newMemPresence()
	svc := NewService(store, l, store, catalog, players, limiter, engine, presence, nil, log, Config{
		ServerName:        "test",
		SessionContinuity: 10 * time.Minute,
	})

	return &serviceFixture{svc: svc, ledger: l, store: store, players: players, presence: presence}
}

func TestRequestGain_Accepted(t *testing.T) {
	f := newTestService(t, map[ledger.Kind]Caps{
		ledger.KindXPGain: {PerMinute: 5},
	})

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	receipt, err := f.svc.RequestGain(context.Background(), "p1", "chat", 25, nil, now)
	require.NoError(t, err)

	assert.NotZero(t, receipt.EventID)
	assert.Equal(t, int64(25), receipt.Amount)
	assert.Equal(t, now, receipt.AcceptedAt)

	total, err := f.svc.TotalExperience(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
}

func TestRequestGain_RateLimitedAppendsNothing(t *testing.T) {
	f := newTestService(t, map[ledger.Kind]Caps{
		ledger.KindXPGain: {PerMinute: 2},
	})

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.RequestGain(ctx, "p1", "chat", 10, nil, now)
		require.NoError(t, err)
	}

	_, err := f.svc.RequestGain(ctx, "p1", "chat", 10, nil, now)
	assert.ErrorIs(t, err, shared.ErrRateLimited)

	// The rejected gain left no trace in the ledger.
	total, err := f.svc.TotalExperience(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)
}

func TestRecordAchievement_IncrementsProgress(t *testing.T) {
	f := newTestService(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordAchievement(ctx, "p1", "advancement:nether", time.Now())
	require.NoError(t, err)

	p, err := f.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.AchievementsComplete)
	assert.Equal(t, []ledger.Kind{ledger.KindAchievement}, f.ledger.kinds("p1"))
}

func TestPlayerSeen_FirstContactCreatesPlayer(t *testing.T) {
	f := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.PlayerSeen(ctx, "p1", "Emberling", identity.PlatformPrimary, time.Now()))

	player, err := f.players.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Emberling", player.DisplayName)
	assert.Equal(t, identity.StateUnverified, player.State)

	// First contact has no prior sighting, so nothing accrues.
	assert.Empty(t, f.ledger.kinds("p1"))
}

func TestPlayerSeen_AccruesContinuousMinutes(t *testing.T) {
	f := newTestService(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.svc.PlayerSeen(ctx, "p1", "Emberling", identity.PlatformPrimary, base))

	// Seen again 5 minutes later, inside the continuity threshold.
	require.NoError(t, f.svc.PlayerSeen(ctx, "p1", "Emberling", identity.PlatformPrimary, base.Add(5*time.Minute)))

	p, err := f.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.PlaytimeMinutes)
	assert.Equal(t, []ledger.Kind{ledger.KindPlaytimeSession}, f.ledger.kinds("p1"))
}

func TestPlayerSeen_SparseSightingsNotCredited(t *testing.T) {
	f := newTestService(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.svc.PlayerSeen(ctx, "p1", "Emberling", identity.PlatformPrimary, base))

	// A gap beyond the continuity threshold accrues nothing.
	require.NoError(t, f.svc.PlayerSeen(ctx, "p1", "Emberling", identity.PlatformPrimary, base.Add(45*time.Minute)))

	_, err := f.store.Get(ctx, "p1")
	assert.ErrorIs(t, err, rank.ErrProgressNotFound)
	assert.Empty(t, f.ledger.kinds("p1"))
}

func TestCurrentRank_IncludesNextThreshold(t *testing.T) {
	f := newTestService(t, nil)
	ctx := context.Background()

	view, err := f.svc.CurrentRank(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, rank.Position{Primary: 1, Sub: 1}, view.Position)
	assert.Equal(t, "Wanderer I", view.DisplayName)
	require.NotNil(t, view.NextThreshold)
	assert.Equal(t, int64(90), view.NextThreshold.RequiredMinutes)
	assert.Equal(t, 1, view.NextThreshold.RequiredAchievements)
}

func TestCurrentRank_TerminalHasNoNextThreshold(t *testing.T) {
	f := newTestService(t, nil)
	ctx := context.Background()
	seedProgress(t, f.store, "p1", rank.Position{Primary: 25, Sub: 7}, 0, 0)

	view, err := f.svc.CurrentRank(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Hollow Sovereign VII", view.DisplayName)
	assert.Nil(t, view.NextThreshold)
}

func TestExperienceBySource(t *testing.T) {
	f := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now()

	_, err := f.svc.RequestGain(ctx, "p1", "chat", 10, nil, now)
	require.NoError(t, err)
	_, err = f.svc.RequestGain(ctx, "p1", "chat", 15, nil, now)
	require.NoError(t, err)
	_, err = f.svc.RequestGain(ctx, "p1", "mining", 40, nil, now)
	require.NoError(t, err)

	breakdown, err := f.svc.ExperienceBySource(ctx, "p1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, ledger.SourceBreakdown{"chat": 25, "mining": 40}, breakdown)
}

func TestPlayerSeen_ConcurrentSightingsCreditGapOnce(t *testing.T) {
	f := newTestService(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.svc.PlayerSeen(ctx, "p1", "Emberling", identity.PlatformPrimary, base))

	// Join and server-move hooks can report the same sighting at once.
	// Whichever lands second reads the already-advanced sighting and must
	// credit nothing.
	seen := base.Add(5 * time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.PlayerSeen(ctx, "p1", "Emberling", identity.PlatformPrimary, seen))
		}()
	}
	wg.Wait()

	p, err := f.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.PlaytimeMinutes, "elapsed gap credited exactly once")

	total, err := f.ledger.SumSince(ctx, "p1", ledger.KindPlaytimeSession, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, []ledger.Kind{ledger.KindPlaytimeSession}, f.ledger.kinds("p1"))
}

func TestPlayerDeparted_CreditsFinalMinutesAndForgets(t *testing.T) {
	f := newTestService(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.svc.PlayerSeen(ctx, "p1", "Emberling", identity.PlatformPrimary, base))

	online, _, err := f.svc.IsOnline(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, f.svc.PlayerDeparted(ctx, "p1", base.Add(3*time.Minute)))

	p, err := f.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.PlaytimeMinutes)

	online, _, err = f.svc.IsOnline(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestIsOnline_ReportsLastSighting(t *testing.T) {
	f := newTestService(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.svc.PlayerSeen(ctx, "p1", "Emberling", identity.PlatformPrimary, base))

	online, sighting, err := f.svc.IsOnline(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, online)
	assert.True(t, sighting.Equal(base))

	online, sighting, err = f.svc.IsOnline(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, online)
	assert.True(t, sighting.IsZero())
}

func TestOnlinePlayers_CountsTracked(t *testing.T) {
	f := newTestService(t, nil)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	count, err := f.svc.OnlinePlayers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, f.svc.PlayerSeen(ctx, "p1", "Emberling", identity.PlatformPrimary, now))
	require.NoError(t, f.svc.PlayerSeen(ctx, "p2", "Ashwalker", identity.PlatformPrimary, now))

	count, err = f.svc.OnlinePlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPresenceQueries_NilTrackerReadsOffline(t *testing.T) {
	f := newTestService(t, nil)
	bare := NewService(f.store, f.ledger, f.store, newMemCatalog(), f.players, NewLimiter(f.ledger, nil),
		nil, nil, nil, logger.New(logger.Options{Level: "error"}), Config{ServerName: "test"})

	online, sighting, err := bare.IsOnline(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, online)
	assert.True(t, sighting.IsZero())

	count, err := bare.OnlinePlayers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
