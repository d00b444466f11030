package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/emberhollow/emberhollow-core/internal/application/progression"
	"github.com/emberhollow/emberhollow-core/internal/domain/ledger"
	"github.com/emberhollow/emberhollow-core/internal/domain/rank"
)

// Store bundles the repositories over one gateway and provides the
// transaction scope the progression engine runs in.
type Store struct {
	conn *Connection
}

// NewStore creates the store over an established gateway.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Identities returns the pool-scoped identity repository.
func (s *Store) Identities() *IdentityRepository {
	return NewIdentityRepository(s.conn)
}

// Ledger returns the pool-scoped ledger repository.
func (s *Store) Ledger() *LedgerRepository {
	return NewLedgerRepository(s.conn)
}

// Progress returns the pool-scoped progress repository.
func (s *Store) Progress() *ProgressRepository {
	return NewProgressRepository(s.conn)
}

// Catalog returns the catalog repository.
func (s *Store) Catalog() *CatalogRepository {
	return NewCatalogRepository(s.conn)
}

// InTx runs fn inside one transaction, handing it repositories bound to
// that transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx progression.TxRepos) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&txRepos{tx: tx})
	})
}

// txRepos is the transaction-scoped repository view.
type txRepos struct {
	tx pgx.Tx
}

func (r *txRepos) Ledger() ledger.Repository {
	return NewLedgerRepository(r.tx)
}

func (r *txRepos) ProgressForUpdate(ctx context.Context, playerID string) (*rank.Progress, error) {
	return NewProgressRepository(r.tx).GetForUpdate(ctx, playerID)
}

func (r *txRepos) CreateProgress(ctx context.Context, p *rank.Progress) error {
	return NewProgressRepository(r.tx).Create(ctx, p)
}

func (r *txRepos) UpdateProgress(ctx context.Context, p *rank.Progress) error {
	return NewProgressRepository(r.tx).Update(ctx, p)
}

func (r *txRepos) AdvanceSighting(ctx context.Context, playerID, displayName string, now time.Time) (time.Time, error) {
	return NewIdentityRepository(r.tx).AdvanceSighting(ctx, playerID, displayName, now)
}
