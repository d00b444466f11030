package progression

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/emberhollow/emberhollow-core/internal/domain/identity"
	"github.com/emberhollow/emberhollow-core/internal/domain/ledger"
	"github.com/emberhollow/emberhollow-core/internal/domain/rank"
	"github.com/emberhollow/emberhollow-core/internal/domain/shared"
	"github.com/emberhollow/emberhollow-core/pkg/logger"
	"github.com/emberhollow/emberhollow-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GAIN INTAKE
// ══════════════════════════════════════════════════════════════════════════════

// Presence is the optional online tracker port. Nil disables presence
// tracking without changing any other behavior; postgres last-seen times
// stay authoritative for playtime accrual.
type Presence interface {
	MarkSeen(ctx context.Context, playerID, displayName, server string, at time.Time) error
	Forget(ctx context.Context, playerID string) error
	IsOnline(ctx context.Context, playerID string) (bool, error)
	LastSighting(ctx context.Context, playerID string) (time.Time, error)
	OnlineCount(ctx context.Context) (int, error)
}

// GainReceipt confirms one accepted gain.
type GainReceipt struct {
	EventID    int64
	PlayerID   string
	Kind       ledger.Kind
	Source     string
	Amount     int64
	AcceptedAt time.Time
}

// Config holds service tuning.
type Config struct {
	// ServerName labels appended events with the producing instance.
	ServerName string

	// SessionContinuity is the largest gap between sightings still
	// credited as continuous play. Sparse sightings past this gap accrue
	// nothing.
	SessionContinuity time.Duration
}

// DefaultConfig returns service defaults.
func DefaultConfig() Config {
	return Config{
		ServerName:        "hub",
		SessionContinuity: 10 * time.Minute,
	}
}

// Service is the progression application service: gain intake behind the
// rate limiter, playtime accrual, and the read-side aggregate queries.
type Service struct {
	store    Store
	ledger   ledger.Repository
	progress rank.ProgressRepository
	catalog  rank.CatalogRepository
	players  identity.Repository
	limiter  *Limiter
	engine   *Engine
	presence Presence
	cache    RankCache
	log      *slog.Logger
	cfg      Config
}

// NewService creates the progression service. presence and cache may be nil.
func NewService(
	store Store,
	ledgerRepo ledger.Repository,
	progressRepo rank.ProgressRepository,
	catalogRepo rank.CatalogRepository,
	playerRepo identity.Repository,
	limiter *Limiter,
	engine *Engine,
	presence Presence,
	cache RankCache,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.SessionContinuity <= 0 {
		cfg.SessionContinuity = DefaultConfig().SessionContinuity
	}
	return &Service{
		store:    store,
		ledger:   ledgerRepo,
		progress: progressRepo,
		catalog:  catalogRepo,
		players:  playerRepo,
		limiter:  limiter,
		engine:   engine,
		presence: presence,
		cache:    cache,
		log:      log,
		cfg:      cfg,
	}
}

// RequestGain submits one experience gain. The gain passes the rate limiter
// before it is appended; a rejected gain returns an error matching
// shared.ErrRateLimited and appends nothing.
func (s *Service) RequestGain(ctx context.Context, playerID, source string, amount int64, metadata map[string]any, now time.Time) (*GainReceipt, error) {
	now = now.UTC()

	if err := s.limiter.Allow(ctx, playerID, ledger.KindXPGain, source, now); err != nil {
		var limitErr *LimitError
		if errors.As(err, &limitErr) {
			s.log.Debug("gain rejected",
				logger.PlayerID(playerID),
				logger.EventSource(source),
				slog.String("window", string(limitErr.Window)))
		}
		return nil, err
	}

	event, err := ledger.NewEvent(playerID, ledger.KindXPGain, source, amount, now)
	if err != nil {
		return nil, err
	}
	event.OriginServer = s.cfg.ServerName
	event.Metadata = metadata

	if err := s.ledger.Append(ctx, event); err != nil {
		return nil, err
	}

	s.log.Debug("gain accepted",
		logger.PlayerID(playerID),
		logger.EventSource(source),
		logger.Amount(amount))

	return &GainReceipt{
		EventID:    event.ID,
		PlayerID:   playerID,
		Kind:       ledger.KindXPGain,
		Source:     source,
		Amount:     amount,
		AcceptedAt: now,
	}, nil
}

// RecordAchievement records one completed achievement: the event append and
// the progress counter increment commit together. Achievements pass the
// rate limiter like any other gain.
func (s *Service) RecordAchievement(ctx context.Context, playerID, source string, now time.Time) (*GainReceipt, error) {
	now = now.UTC()

	if err := s.limiter.Allow(ctx, playerID, ledger.KindAchievement, source, now); err != nil {
		return nil, err
	}

	event, err := ledger.NewEvent(playerID, ledger.KindAchievement, source, 1, now)
	if err != nil {
		return nil, err
	}
	event.OriginServer = s.cfg.ServerName

	err = s.store.InTx(ctx, func(tx TxRepos) error {
		progress, err := s.lockOrCreateProgress(ctx, tx, playerID)
		if err != nil {
			return err
		}
		progress.RecordAchievement()
		if err := tx.UpdateProgress(ctx, progress); err != nil {
			return err
		}
		return tx.Ledger().Append(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	return &GainReceipt{
		EventID:    event.ID,
		PlayerID:   playerID,
		Kind:       ledger.KindAchievement,
		Source:     source,
		Amount:     1,
		AcceptedAt: now,
	}, nil
}

// PlayerSeen records a sighting: the identity's display name and last-seen
// refresh, presence tracking, and playtime accrual. Minutes elapsed since
// the previous sighting are credited only when the gap stays within the
// session continuity threshold.
func (s *Service) PlayerSeen(ctx context.Context, playerID, displayName string, platform identity.PlatformFlag, now time.Time) error {
	now = now.UTC()

	created := false
	if _, err := s.players.Get(ctx, playerID); err != nil {
		if !errors.Is(err, identity.ErrPlayerNotFound) {
			return err
		}
		player, err := identity.NewPlayer(playerID, displayName, platform, now)
		if err != nil {
			return err
		}
		switch err := s.players.Create(ctx, player); {
		case err == nil:
			created = true
		case errors.Is(err, shared.ErrAlreadyExists):
			// Lost a first-contact race; the row exists, accrue normally.
		default:
			return err
		}
	}

	if s.presence != nil {
		if err := s.presence.MarkSeen(ctx, playerID, displayName, s.cfg.ServerName, now); err != nil {
			s.log.Warn("presence tracking failed",
				logger.PlayerID(playerID), logger.Err(err))
		}
	}

	if created {
		// First contact stamps the sighting at creation; nothing accrues.
		return nil
	}
	return s.accrueSighting(ctx, playerID, displayName, now)
}

// accrueSighting advances last_seen_at and credits the elapsed minutes in
// one transaction. The previous sighting comes from the locked row, so two
// concurrent sightings serialize: one credits the gap, the other sees the
// advanced time and credits nothing.
func (s *Service) accrueSighting(ctx context.Context, playerID, displayName string, now time.Time) error {
	return s.store.InTx(ctx, func(tx TxRepos) error {
		lastSeen, err := tx.AdvanceSighting(ctx, playerID, displayName, now)
		if err != nil {
			return err
		}

		minutes := s.continuousMinutes(lastSeen, now)
		if minutes <= 0 {
			return nil
		}

		event, err := ledger.NewEvent(playerID, ledger.KindPlaytimeSession, "session", minutes, now)
		if err != nil {
			return err
		}
		event.OriginServer = s.cfg.ServerName

		progress, err := s.lockOrCreateProgress(ctx, tx, playerID)
		if err != nil {
			return err
		}
		progress.AccruePlaytime(minutes)
		if err := tx.UpdateProgress(ctx, progress); err != nil {
			return err
		}
		return tx.Ledger().Append(ctx, event)
	})
}

// PlayerDeparted closes out a session: the final minutes accrue like any
// sighting and the presence record is dropped.
func (s *Service) PlayerDeparted(ctx context.Context, playerID string, now time.Time) error {
	if err := s.accrueSighting(ctx, playerID, "", now.UTC()); err != nil {
		return err
	}

	if s.presence != nil {
		if err := s.presence.Forget(ctx, playerID); err != nil {
			s.log.Warn("presence removal failed",
				logger.PlayerID(playerID), logger.Err(err))
		}
	}
	return nil
}

// IsOnline answers from the presence tracker, with the last cached
// sighting time. Without a tracker every player reads as offline.
func (s *Service) IsOnline(ctx context.Context, playerID string) (bool, time.Time, error) {
	if s.presence == nil {
		return false, time.Time{}, nil
	}
	online, err := s.presence.IsOnline(ctx, playerID)
	if err != nil {
		return false, time.Time{}, err
	}
	sighting, err := s.presence.LastSighting(ctx, playerID)
	if err != nil {
		return false, time.Time{}, err
	}
	return online, sighting, nil
}

// OnlinePlayers counts currently tracked players, zero without a tracker.
func (s *Service) OnlinePlayers(ctx context.Context) (int, error) {
	if s.presence == nil {
		return 0, nil
	}
	return s.presence.OnlineCount(ctx)
}

// continuousMinutes credits whole minutes since the last sighting, or zero
// when the gap exceeds the continuity threshold or no prior sighting
// exists.
func (s *Service) continuousMinutes(lastSeen, now time.Time) int64 {
	if lastSeen.IsZero() || now.Sub(lastSeen) > s.cfg.SessionContinuity {
		return 0
	}
	return timeutil.MinutesBetween(lastSeen, now)
}

// Evaluate delegates to the promotion engine.
func (s *Service) Evaluate(ctx context.Context, playerID string, now time.Time) (*Promotion, error) {
	return s.engine.Evaluate(ctx, playerID, now)
}

func (s *Service) lockOrCreateProgress(ctx context.Context, tx TxRepos, playerID string) (*rank.Progress, error) {
	progress, err := tx.ProgressForUpdate(ctx, playerID)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, rank.ErrProgressNotFound) {
		return nil, err
	}
	progress = rank.NewProgress(playerID)
	if err := tx.CreateProgress(ctx, progress); err != nil {
		return nil, err
	}
	return progress, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// RankView is the read-side current rank answer.
type RankView struct {
	PlayerID             string
	Position             rank.Position
	DisplayName          string
	PlaytimeMinutes      int64
	AchievementsComplete int

	// NextThreshold is the requirement for the adjacent position; nil at
	// the terminal rank.
	NextThreshold *rank.Threshold
}

// CurrentRank returns the player's rank with progress toward the next one.
// The cached (position, name) pair short-circuits only the catalog lookup;
// progress totals always come from storage.
func (s *Service) CurrentRank(ctx context.Context, playerID string) (*RankView, error) {
	progress, err := s.progress.GetOrCreate(ctx, playerID)
	if err != nil {
		return nil, err
	}

	displayName := ""
	if s.cache != nil {
		if pos, name, err := s.cache.Get(ctx, playerID); err == nil && pos == progress.Position {
			displayName = name
		}
	}
	if displayName == "" {
		def, err := s.catalog.Get(ctx, progress.Position)
		if err != nil {
			return nil, err
		}
		displayName = def.DisplayName
		if s.cache != nil {
			if err := s.cache.Set(ctx, playerID, progress.Position, displayName); err != nil {
				s.log.Warn("rank cache write failed",
					logger.PlayerID(playerID), logger.Err(err))
			}
		}
	}

	view := &RankView{
		PlayerID:             playerID,
		Position:             progress.Position,
		DisplayName:          displayName,
		PlaytimeMinutes:      progress.PlaytimeMinutes,
		AchievementsComplete: progress.AchievementsComplete,
	}
	if next, ok := progress.Position.Next(); ok {
		def, err := s.catalog.Get(ctx, next)
		if err != nil {
			return nil, err
		}
		t := def.Threshold
		view.NextThreshold = &t
	}
	return view, nil
}

// TotalExperience returns the player's cumulative experience: the sum over
// all accepted gain events.
func (s *Service) TotalExperience(ctx context.Context, playerID string) (int64, error) {
	return s.ledger.SumSince(ctx, playerID, ledger.KindXPGain, time.Time{})
}

// RecentEvents returns the player's latest ledger entries, newest first.
func (s *Service) RecentEvents(ctx context.Context, playerID string, limit int) ([]*ledger.Event, error) {
	return s.ledger.Recent(ctx, playerID, limit)
}

// ExperienceBySource sums the player's gains per source since the given
// time. Pass the zero time for all-time totals.
func (s *Service) ExperienceBySource(ctx context.Context, playerID string, since time.Time) (ledger.SourceBreakdown, error) {
	return s.ledger.BreakdownBySource(ctx, playerID, since)
}
