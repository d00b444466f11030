package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a single schema migration.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations. Append-only:
// never edit an applied migration, add a new one.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_players",
		SQL: `
CREATE TABLE IF NOT EXISTS players (
    uuid              UUID PRIMARY KEY,
    display_name      VARCHAR(64) NOT NULL,
    external_id       VARCHAR(32),
    external_name     VARCHAR(64),
    verification      VARCHAR(16) NOT NULL DEFAULT 'UNVERIFIED'
                      CHECK (verification IN ('UNVERIFIED', 'PURGATORY', 'VERIFIED')),
    platform          VARCHAR(16) NOT NULL DEFAULT 'primary'
                      CHECK (platform IN ('primary', 'alternate')),
    verified_at       TIMESTAMPTZ,
    link_requested_at TIMESTAMPTZ,
    last_seen_at      TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_players_external_id
    ON players (external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_players_display_name
    ON players (LOWER(display_name));
`,
	},
	{
		Version: 2,
		Name:    "create_xp_events",
		SQL: `
CREATE TABLE IF NOT EXISTS xp_events (
    id            BIGSERIAL PRIMARY KEY,
    uuid          UUID NOT NULL REFERENCES players(uuid) ON DELETE CASCADE,
    event_kind    VARCHAR(32) NOT NULL,
    source        VARCHAR(64) NOT NULL,
    amount        BIGINT NOT NULL,
    occurred_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    origin_server VARCHAR(64) NOT NULL DEFAULT '',
    metadata      JSONB
);

-- Rate-limit window counting: (player, kind, source) scanned by time.
CREATE INDEX IF NOT EXISTS idx_xp_events_window
    ON xp_events (uuid, event_kind, source, occurred_at);
-- Aggregates and recent-history reads per player.
CREATE INDEX IF NOT EXISTS idx_xp_events_player_time
    ON xp_events (uuid, occurred_at DESC);
`,
	},
	{
		Version: 3,
		Name:    "create_rank_definitions",
		SQL: `
CREATE TABLE IF NOT EXISTS rank_definitions (
    id                    SERIAL PRIMARY KEY,
    primary_tier          INT NOT NULL CHECK (primary_tier BETWEEN 1 AND 25),
    sub_tier              INT NOT NULL CHECK (sub_tier BETWEEN 1 AND 7),
    display_name          VARCHAR(64) NOT NULL,
    required_minutes      BIGINT NOT NULL CHECK (required_minutes >= 0),
    required_achievements INT NOT NULL CHECK (required_achievements >= 0),
    external_role_ref     VARCHAR(64) NOT NULL DEFAULT '',
    reward_amount         BIGINT NOT NULL DEFAULT 0,
    reward_commands       TEXT[] NOT NULL DEFAULT '{}',
    UNIQUE (primary_tier, sub_tier)
);
`,
	},
	{
		Version: 4,
		Name:    "create_player_progress",
		SQL: `
CREATE TABLE IF NOT EXISTS player_progress (
    uuid                  UUID PRIMARY KEY REFERENCES players(uuid) ON DELETE CASCADE,
    primary_tier          INT NOT NULL DEFAULT 1 CHECK (primary_tier BETWEEN 1 AND 25),
    sub_tier              INT NOT NULL DEFAULT 1 CHECK (sub_tier BETWEEN 1 AND 7),
    playtime_minutes      BIGINT NOT NULL DEFAULT 0 CHECK (playtime_minutes >= 0),
    achievements_complete INT NOT NULL DEFAULT 0 CHECK (achievements_complete >= 0),
    last_promotion_at     TIMESTAMPTZ,
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
}

// Migrator applies schema migrations tracked in a schema_migrations table.
type Migrator struct {
	conn *Connection
	log  *slog.Logger
}

// NewMigrator creates a new migrator.
func NewMigrator(conn *Connection, log *slog.Logger) *Migrator {
	return &Migrator{conn: conn, log: log}
}

// Run applies all pending migrations in order, each inside its own
// transaction together with its version record.
func (m *Migrator) Run(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return err
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		m.log.Info("applied migration",
			slog.Int("version", mig.Version),
			slog.String("name", mig.Name))
	}
	return nil
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INT PRIMARY KEY,
    name       VARCHAR(128) NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	return err
}

func (m *Migrator) currentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.conn.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, mapError("currentVersion", err)
	}
	return version, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			return mapError("apply", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			mig.Version, mig.Name); err != nil {
			return mapError("apply", err)
		}
		return nil
	})
}
