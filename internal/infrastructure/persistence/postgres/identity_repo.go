package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/emberhollow/emberhollow-core/internal/domain/identity"
	"github.com/emberhollow/emberhollow-core/internal/domain/shared"
)

// IdentityRepository implements identity.Repository on PostgreSQL.
type IdentityRepository struct {
	q Querier
}

// NewIdentityRepository creates the repository over the pooled gateway or a
// transaction.
func NewIdentityRepository(q Querier) *IdentityRepository {
	return &IdentityRepository{q: q}
}

const playerColumns = `uuid, display_name, external_id, external_name,
	verification, platform, verified_at, link_requested_at, last_seen_at, created_at`

// Get returns the player by UUID.
func (r *IdentityRepository) Get(ctx context.Context, uuid string) (*identity.Player, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE uuid = $1`, uuid)
	return scanPlayer(row)
}

// GetByExternalID returns the player linked to the given external identifier.
func (r *IdentityRepository) GetByExternalID(ctx context.Context, externalID string) (*identity.Player, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE external_id = $1`, externalID)
	return scanPlayer(row)
}

// Create inserts a new player record.
func (r *IdentityRepository) Create(ctx context.Context, p *identity.Player) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO players (uuid, display_name, external_id, external_name,
			verification, platform, verified_at, link_requested_at, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.UUID, p.DisplayName,
		nullString(p.ExternalID), nullString(p.ExternalName),
		string(p.State), string(p.Platform),
		nullTime(p.VerifiedAt), nullTime(p.LinkRequestedAt),
		nullTime(p.LastSeenAt), p.CreatedAt)
	if IsUniqueViolation(err) {
		return shared.WrapError("identity", "Create", shared.ErrAlreadyExists,
			"player already exists", err)
	}
	return mapError("identity.Create", err)
}

// Update persists the whole record.
func (r *IdentityRepository) Update(ctx context.Context, p *identity.Player) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE players SET
			display_name = $2, external_id = $3, external_name = $4,
			verification = $5, platform = $6, verified_at = $7,
			link_requested_at = $8, last_seen_at = $9
		WHERE uuid = $1`,
		p.UUID, p.DisplayName,
		nullString(p.ExternalID), nullString(p.ExternalName),
		string(p.State), string(p.Platform),
		nullTime(p.VerifiedAt), nullTime(p.LinkRequestedAt), nullTime(p.LastSeenAt))
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("identity", "Update", shared.ErrAlreadyExists,
				"external id already linked", err)
		}
		return mapError("identity.Update", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrPlayerNotFound
	}
	return nil
}

// AdvanceSighting moves last_seen_at forward and returns the previous
// value. The update takes the row lock, so the previous sighting each
// caller reads is the one it replaces.
func (r *IdentityRepository) AdvanceSighting(ctx context.Context, uuid, displayName string, now time.Time) (time.Time, error) {
	var prev sql.NullTime
	err := r.q.QueryRow(ctx, `
		UPDATE players p
		SET display_name = CASE WHEN $2 <> '' THEN $2 ELSE p.display_name END,
		    last_seen_at = $3,
		    updated_at   = NOW()
		FROM (SELECT uuid, last_seen_at FROM players WHERE uuid = $1 FOR UPDATE) old
		WHERE p.uuid = old.uuid
		RETURNING old.last_seen_at`,
		uuid, displayName, now.UTC()).Scan(&prev)
	if err != nil {
		if IsNoRows(err) {
			return time.Time{}, identity.ErrPlayerNotFound
		}
		return time.Time{}, mapError("identity.AdvanceSighting", err)
	}
	if !prev.Valid {
		return time.Time{}, nil
	}
	return prev.Time.UTC(), nil
}

// RecentlySeen lists players sighted since the given time, most recent
// first. Backs the promotion sweep.
func (r *IdentityRepository) RecentlySeen(ctx context.Context, since time.Time, limit int) ([]*identity.Player, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.q.Query(ctx,
		`SELECT `+playerColumns+` FROM players
		WHERE last_seen_at >= $1
		ORDER BY last_seen_at DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, mapError("identity.RecentlySeen", err)
	}
	defer rows.Close()

	players := make([]*identity.Player, 0, limit)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("identity.RecentlySeen", err)
	}
	return players, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (*identity.Player, error) {
	var (
		p            identity.Player
		state        string
		platform     string
		externalID   sql.NullString
		externalName sql.NullString
		verifiedAt   sql.NullTime
		linkReqAt    sql.NullTime
		lastSeenAt   sql.NullTime
	)

	err := row.Scan(&p.UUID, &p.DisplayName, &externalID, &externalName,
		&state, &platform, &verifiedAt, &linkReqAt, &lastSeenAt, &p.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, identity.ErrPlayerNotFound
		}
		return nil, mapError("identity.scan", err)
	}

	p.ExternalID = externalID.String
	p.ExternalName = externalName.String
	p.State = identity.VerificationState(state)
	p.Platform = identity.PlatformFlag(platform)
	p.VerifiedAt = verifiedAt.Time
	p.LinkRequestedAt = linkReqAt.Time
	p.LastSeenAt = lastSeenAt.Time
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
