// Package verification implements the identity linkage flow: the
// application-level driver of the UNVERIFIED -> PURGATORY -> VERIFIED
// machine. State lives on the player record; this service sequences the
// transitions and applies the advisory purgatory expiry.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/emberhollow/emberhollow-core/internal/domain/identity"
	"github.com/emberhollow/emberhollow-core/internal/domain/shared"
	"github.com/emberhollow/emberhollow-core/pkg/logger"
)

// ErrExternalIDTaken is returned when the external identity is already
// linked to another player.
var ErrExternalIDTaken = errors.New("verification: external id already linked to another player")

// Config holds verification settings.
type Config struct {
	// PurgatoryTimeout is the advisory expiry for pending linkage
	// requests. Expiry is checked on read; records are never mutated by
	// the passage of time alone.
	PurgatoryTimeout time.Duration
}

// DefaultConfig returns verification defaults.
func DefaultConfig() Config {
	return Config{PurgatoryTimeout: 48 * time.Hour}
}

// Service drives the verification state machine.
type Service struct {
	players identity.Repository
	log     *slog.Logger
	cfg     Config
}

// NewService creates the verification service.
func NewService(players identity.Repository, log *slog.Logger, cfg Config) *Service {
	if cfg.PurgatoryTimeout <= 0 {
		cfg.PurgatoryTimeout = DefaultConfig().PurgatoryTimeout
	}
	return &Service{players: players, log: log, cfg: cfg}
}

// Status is the read-side verification answer.
type Status struct {
	PlayerID     string
	State        identity.VerificationState
	ExternalID   string
	ExternalName string
	VerifiedAt   time.Time

	// Expired reports an overdue PURGATORY record. Advisory only: the
	// stored state is unchanged until Reset is called.
	Expired bool
}

// Begin records a linkage request, moving the player from UNVERIFIED to
// PURGATORY. An expired purgatory record is reset first, so a stale pending
// request never blocks a fresh one; any other occupied state fails with
// InvalidStateTransition.
func (s *Service) Begin(ctx context.Context, playerID, externalID, externalName string, now time.Time) error {
	now = now.UTC()

	if other, err := s.players.GetByExternalID(ctx, externalID); err == nil && other.UUID != playerID {
		return ErrExternalIDTaken
	} else if err != nil && !errors.Is(err, identity.ErrPlayerNotFound) {
		return err
	}

	player, err := s.players.Get(ctx, playerID)
	if err != nil {
		return err
	}

	if player.IsExpired(now, s.cfg.PurgatoryTimeout) {
		s.log.Info("expired linkage request reset",
			logger.PlayerID(playerID),
			logger.ExternalID(player.ExternalID))
		player.ResetLink()
	}

	if err := player.RequestLink(externalID, externalName, now); err != nil {
		return err
	}
	if err := s.players.Update(ctx, player); err != nil {
		return err
	}

	s.log.Info("linkage requested",
		logger.PlayerID(playerID),
		logger.ExternalID(externalID))
	return nil
}

// Complete records the first successful connection under a pending linkage,
// moving the player from PURGATORY to VERIFIED. An expired request cannot
// complete: it is reset and InvalidStateTransition is returned.
func (s *Service) Complete(ctx context.Context, playerID string, now time.Time) error {
	now = now.UTC()

	player, err := s.players.Get(ctx, playerID)
	if err != nil {
		return err
	}

	if player.IsExpired(now, s.cfg.PurgatoryTimeout) {
		player.ResetLink()
		if err := s.players.Update(ctx, player); err != nil {
			return err
		}
		return shared.NewDomainError("verification", "Complete",
			shared.ErrInvalidStateTransition, "linkage request expired")
	}

	if err := player.ConfirmLink(now); err != nil {
		return err
	}
	if err := s.players.Update(ctx, player); err != nil {
		return err
	}

	s.log.Info("player verified",
		logger.PlayerID(playerID),
		logger.ExternalID(player.ExternalID))
	return nil
}

// Reset forces the player back to UNVERIFIED, clearing the linkage. Legal
// from any state; resetting an already-unverified player is a no-op.
func (s *Service) Reset(ctx context.Context, playerID string) error {
	player, err := s.players.Get(ctx, playerID)
	if err != nil {
		return err
	}

	if player.State == identity.StateUnverified {
		return nil
	}

	player.ResetLink()
	if err := s.players.Update(ctx, player); err != nil {
		return err
	}

	s.log.Info("verification reset", logger.PlayerID(playerID))
	return nil
}

// StatusOf returns the player's verification status with the advisory
// expiry evaluated at now.
func (s *Service) StatusOf(ctx context.Context, playerID string, now time.Time) (*Status, error) {
	player, err := s.players.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}

	return &Status{
		PlayerID:     player.UUID,
		State:        player.State,
		ExternalID:   player.ExternalID,
		ExternalName: player.ExternalName,
		VerifiedAt:   player.VerifiedAt,
		Expired:      player.IsExpired(now.UTC(), s.cfg.PurgatoryTimeout),
	}, nil
}

// IsVerified reports whether the player holds full access.
func (s *Service) IsVerified(ctx context.Context, playerID string) (bool, error) {
	player, err := s.players.Get(ctx, playerID)
	if err != nil {
		if errors.Is(err, identity.ErrPlayerNotFound) {
			return false, nil
		}
		return false, err
	}
	return player.IsVerified(), nil
}

// IsWhitelisted is the gatekeeping alias the game servers call: only
// verified players pass the whitelist.
func (s *Service) IsWhitelisted(ctx context.Context, playerID string) (bool, error) {
	return s.IsVerified(ctx, playerID)
}
