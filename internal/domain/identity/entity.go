// Package identity contains the player identity domain model and the
// three-state verification machine that links a game identity to an
// external chat-platform identity.
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/emberhollow/emberhollow-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// PlatformFlag distinguishes the primary game client from the alternate
// client family.
type PlatformFlag string

const (
	PlatformPrimary   PlatformFlag = "primary"
	PlatformAlternate PlatformFlag = "alternate"
)

// IsValid reports whether the flag is a known platform.
func (f PlatformFlag) IsValid() bool {
	return f == PlatformPrimary || f == PlatformAlternate
}

// VerificationState is the membership state of an identity.
type VerificationState string

const (
	// StateUnverified is the initial state: no external linkage recorded.
	StateUnverified VerificationState = "UNVERIFIED"

	// StatePurgatory is the temporary, time-bounded state between a linkage
	// request and the first successful connection under that linkage.
	StatePurgatory VerificationState = "PURGATORY"

	// StateVerified is the terminal, full-access state.
	StateVerified VerificationState = "VERIFIED"
)

// IsValid reports whether the state is one of the known states.
func (s VerificationState) IsValid() bool {
	switch s {
	case StateUnverified, StatePurgatory, StateVerified:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAYER IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Player is one distinct player: created on first contact, display name
// refreshed on each sighting, never deleted.
type Player struct {
	// UUID is the stable player identifier.
	UUID string

	// DisplayName is the name last seen for this player.
	DisplayName string

	// ExternalID is the linked chat-platform identifier; empty until a
	// linkage request is recorded.
	ExternalID string

	// ExternalName is the human-readable label stored with the linkage.
	ExternalName string

	// State is the current verification state.
	State VerificationState

	// Platform distinguishes the client family.
	Platform PlatformFlag

	// VerifiedAt is stamped when the player reaches StateVerified.
	VerifiedAt time.Time

	// LinkRequestedAt is stamped on entering StatePurgatory; drives the
	// read-side expiry check.
	LinkRequestedAt time.Time

	// LastSeenAt is the most recent sighting.
	LastSeenAt time.Time

	// CreatedAt is the first contact time.
	CreatedAt time.Time
}

// Domain errors.
var (
	ErrInvalidUUID        = errors.New("identity: player uuid is required")
	ErrInvalidDisplayName = errors.New("identity: display name must be 1-100 chars")
	ErrEmptyExternalID    = errors.New("identity: external id is required")
	ErrPlayerNotFound     = errors.New("identity: player not found")
)

// NewPlayer creates a fresh, unverified player record.
func NewPlayer(uuid, displayName string, platform PlatformFlag, now time.Time) (*Player, error) {
	if strings.TrimSpace(uuid) == "" {
		return nil, ErrInvalidUUID
	}
	displayName = strings.TrimSpace(displayName)
	if len(displayName) == 0 || len(displayName) > 100 {
		return nil, ErrInvalidDisplayName
	}
	if !platform.IsValid() {
		platform = PlatformPrimary
	}

	now = now.UTC()
	return &Player{
		UUID:        uuid,
		DisplayName: displayName,
		State:       StateUnverified,
		Platform:    platform,
		LastSeenAt:  now,
		CreatedAt:   now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// RequestLink records an external linkage request, moving the identity from
// UNVERIFIED to PURGATORY. Any other starting state fails with
// InvalidStateTransition — states are never skipped.
func (p *Player) RequestLink(externalID, externalName string, now time.Time) error {
	if strings.TrimSpace(externalID) == "" {
		return ErrEmptyExternalID
	}
	if p.State != StateUnverified {
		return shared.WrapError("identity", "RequestLink", shared.ErrInvalidStateTransition,
			"link requested from state "+string(p.State), nil)
	}

	p.ExternalID = externalID
	p.ExternalName = strings.TrimSpace(externalName)
	p.State = StatePurgatory
	p.LinkRequestedAt = now.UTC()
	return nil
}

// ConfirmLink records the first successful connection under the linkage,
// moving the identity from PURGATORY to VERIFIED and stamping the
// verification time. UNVERIFIED -> VERIFIED directly is illegal.
func (p *Player) ConfirmLink(now time.Time) error {
	if p.State != StatePurgatory {
		return shared.WrapError("identity", "ConfirmLink", shared.ErrInvalidStateTransition,
			"verification confirmed from state "+string(p.State), nil)
	}

	p.State = StateVerified
	p.VerifiedAt = now.UTC()
	return nil
}

// ResetLink forces the identity back to UNVERIFIED and clears the linkage.
// Callers use this after observing an expired purgatory record; expiry
// itself is advisory and never applied proactively.
func (p *Player) ResetLink() {
	p.State = StateUnverified
	p.ExternalID = ""
	p.ExternalName = ""
	p.LinkRequestedAt = time.Time{}
}

// IsExpired reports whether a PURGATORY record has sat past the timeout at
// the given instant. Non-purgatory records never expire.
func (p *Player) IsExpired(now time.Time, timeout time.Duration) bool {
	if p.State != StatePurgatory || p.LinkRequestedAt.IsZero() {
		return false
	}
	return now.Sub(p.LinkRequestedAt) > timeout
}

// IsVerified reports whether the player holds full access.
func (p *Player) IsVerified() bool {
	return p.State == StateVerified
}

// Seen refreshes the display name and last-seen time.
func (p *Player) Seen(displayName string, now time.Time) {
	displayName = strings.TrimSpace(displayName)
	if displayName != "" {
		p.DisplayName = displayName
	}
	p.LastSeenAt = now.UTC()
}
