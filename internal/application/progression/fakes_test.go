package progression

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/emberhollow/emberhollow-core/internal/domain/identity"
	"github.com/emberhollow/emberhollow-core/internal/domain/ledger"
	"github.com/emberhollow/emberhollow-core/internal/domain/rank"
)

// memLedger is an in-memory ledger.Repository.
type memLedger struct {
	mu     sync.Mutex
	nextID int64
	events []*ledger.Event
}

func newMemLedger() *memLedger { return &memLedger{} }

func (m *memLedger) Append(_ context.Context, e *ledger.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	stored := *e
	m.events = append(m.events, &stored)
	return nil
}

func (m *memLedger) SumSince(_ context.Context, playerID string, kind ledger.Kind, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.events {
		if e.PlayerID == playerID && e.Kind == kind && !e.OccurredAt.Before(since) {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (m *memLedger) CountInWindow(_ context.Context, playerID string, kind ledger.Kind, source string, windowStart, windowEnd time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.events {
		if e.PlayerID == playerID && e.Kind == kind && e.Source == source &&
			!e.OccurredAt.Before(windowStart) && e.OccurredAt.Before(windowEnd) {
			count++
		}
	}
	return count, nil
}

func (m *memLedger) Recent(_ context.Context, playerID string, limit int) ([]*ledger.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].PlayerID == playerID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *memLedger) BreakdownBySource(_ context.Context, playerID string, since time.Time) (ledger.SourceBreakdown, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	breakdown := make(ledger.SourceBreakdown)
	for _, e := range m.events {
		if e.PlayerID == playerID && e.Kind == ledger.KindXPGain && !e.OccurredAt.Before(since) {
			breakdown[e.Source] += e.Amount
		}
	}
	return breakdown, nil
}

func (m *memLedger) kinds(playerID string) []ledger.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Kind
	for _, e := range m.events {
		if e.PlayerID == playerID {
			out = append(out, e.Kind)
		}
	}
	return out
}

// memCatalog is an in-memory rank.CatalogRepository seeded from the
// generated catalog.
type memCatalog struct {
	defs map[rank.Position]rank.Definition
}

func newMemCatalog() *memCatalog {
	defs := make(map[rank.Position]rank.Definition, rank.TotalPositions)
	for _, d := range rank.GenerateCatalog() {
		defs[d.Position] = d
	}
	return &memCatalog{defs: defs}
}

func (m *memCatalog) SeedIfEmpty(context.Context) (int, error) { return 0, nil }

func (m *memCatalog) Get(_ context.Context, pos rank.Position) (*rank.Definition, error) {
	d, ok := m.defs[pos]
	if !ok {
		return nil, rank.ErrDefinitionNotFound
	}
	return &d, nil
}

func (m *memCatalog) Count(context.Context) (int, error) { return len(m.defs), nil }

func (m *memCatalog) UpdateRewards(_ context.Context, pos rank.Position, amount int64, commands []string) error {
	d, ok := m.defs[pos]
	if !ok {
		return rank.ErrDefinitionNotFound
	}
	d.RewardAmount = amount
	d.RewardCommands = commands
	m.defs[pos] = d
	return nil
}

// memStore is an in-memory Store plus progress repository. InTx hands the
// caller the store itself; there is no rollback, which is fine for the
// happy-path scenarios exercised here.
type memStore struct {
	mu       sync.Mutex
	ledger   *memLedger
	players  *memPlayers
	progress map[string]*rank.Progress
}

func newMemStore(l *memLedger, players *memPlayers) *memStore {
	return &memStore{ledger: l, players: players, progress: make(map[string]*rank.Progress)}
}

func (s *memStore) InTx(_ context.Context, fn func(tx TxRepos) error) error {
	return fn(s)
}

func (s *memStore) Ledger() ledger.Repository { return s.ledger }

func (s *memStore) ProgressForUpdate(_ context.Context, playerID string) (*rank.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[playerID]
	if !ok {
		return nil, rank.ErrProgressNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *memStore) CreateProgress(_ context.Context, p *rank.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.progress[p.PlayerID] = &copied
	return nil
}

func (s *memStore) AdvanceSighting(ctx context.Context, playerID, displayName string, now time.Time) (time.Time, error) {
	return s.players.AdvanceSighting(ctx, playerID, displayName, now)
}

func (s *memStore) UpdateProgress(_ context.Context, p *rank.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.progress[p.PlayerID]; !ok {
		return rank.ErrProgressNotFound
	}
	copied := *p
	s.progress[p.PlayerID] = &copied
	return nil
}

// Pool-scoped rank.ProgressRepository view over the same data.
func (s *memStore) Get(ctx context.Context, playerID string) (*rank.Progress, error) {
	return s.ProgressForUpdate(ctx, playerID)
}

func (s *memStore) Create(ctx context.Context, p *rank.Progress) error {
	return s.CreateProgress(ctx, p)
}

func (s *memStore) GetOrCreate(ctx context.Context, playerID string) (*rank.Progress, error) {
	if p, err := s.Get(ctx, playerID); err == nil {
		return p, nil
	}
	fresh := rank.NewProgress(playerID)
	if err := s.Create(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// memPlayers is an in-memory identity.Repository.
type memPlayers struct {
	mu      sync.Mutex
	players map[string]*identity.Player
}

func newMemPlayers() *memPlayers {
	return &memPlayers{players: make(map[string]*identity.Player)}
}

func (m *memPlayers) Get(_ context.Context, uuid string) (*identity.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[uuid]
	if !ok {
		return nil, identity.ErrPlayerNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memPlayers) GetByExternalID(_ context.Context, externalID string) (*identity.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.ExternalID == externalID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, identity.ErrPlayerNotFound
}

func (m *memPlayers) Create(_ context.Context, p *identity.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *p
	m.players[p.UUID] = &copied
	return nil
}

func (m *memPlayers) Update(_ context.Context, p *identity.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[p.UUID]; !ok {
		return identity.ErrPlayerNotFound
	}
	copied := *p
	m.players[p.UUID] = &copied
	return nil
}

func (m *memPlayers) AdvanceSighting(_ context.Context, uuid, displayName string, now time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[uuid]
	if !ok {
		return time.Time{}, identity.ErrPlayerNotFound
	}
	prev := p.LastSeenAt
	if strings.TrimSpace(displayName) != "" {
		p.DisplayName = displayName
	}
	p.LastSeenAt = now.UTC()
	return prev, nil
}

func (m *memPlayers) RecentlySeen(_ context.Context, since time.Time, limit int) ([]*identity.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*identity.Player
	for _, p := range m.players {
		if !p.LastSeenAt.Before(since) && len(out) < limit {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

// memPresence is an in-memory Presence tracker.
type memPresence struct {
	mu        sync.Mutex
	sightings map[string]time.Time
}

func newMemPresence() *memPresence {
	return &memPresence{sightings: make(map[string]time.Time)}
}

func (m *memPresence) MarkSeen(_ context.Context, playerID, _, _ string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sightings[playerID] = at.UTC()
	return nil
}

func (m *memPresence) Forget(_ context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sightings, playerID)
	return nil
}

func (m *memPresence) IsOnline(_ context.Context, playerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sightings[playerID]
	return ok, nil
}

func (m *memPresence) LastSighting(_ context.Context, playerID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sightings[playerID], nil
}

func (m *memPresence) OnlineCount(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sightings), nil
}
