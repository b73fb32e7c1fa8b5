package demo

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dense-analysis/networth/internal/model"
)

// Store is an in-memory stand-in for the remote store, seeded with the demo
// dataset. All operations succeed and nothing leaves the process.
type Store struct {
	mu        sync.Mutex
	holdings  map[uuid.UUID]model.Holding
	order     []uuid.UUID
	snapshots map[string]model.Snapshot
}

// NewStore creates a seeded demo store.
func NewStore() *Store {
	now := time.Now()
	store := &Store{
		holdings:  map[uuid.UUID]model.Holding{},
		snapshots: map[string]model.Snapshot{},
	}

	for _, holding := range Holdings(now) {
		store.holdings[holding.ID] = holding
		store.order = append(store.order, holding.ID)
	}

	for _, snapshot := range History(now) {
		store.snapshots[snapshot.Date] = snapshot
	}

	return store
}

// ListHoldings returns the demo holdings in insertion order.
func (store *Store) ListHoldings() ([]model.Holding, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	holdings := make([]model.Holding, 0, len(store.order))

	for _, id := range store.order {
		holdings = append(holdings, store.holdings[id])
	}

	return holdings, nil
}

// SaveHolding upserts one holding.
func (store *Store) SaveHolding(holding model.Holding) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.holdings[holding.ID]; !ok {
		store.order = append(store.order, holding.ID)
	}

	store.holdings[holding.ID] = holding

	return nil
}

// SaveHoldings upserts holdings as a batch.
func (store *Store) SaveHoldings(holdings []model.Holding) error {
	for _, holding := range holdings {
		if err := store.SaveHolding(holding); err != nil {
			return err
		}
	}

	return nil
}

// DeleteHolding removes a holding.
func (store *Store) DeleteHolding(id uuid.UUID) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.holdings, id)

	order := store.order[:0]

	for _, existing := range store.order {
		if existing != id {
			order = append(order, existing)
		}
	}

	store.order = order

	return nil
}

// ListSnapshots returns the demo history ascending by date.
func (store *Store) ListSnapshots() ([]model.Snapshot, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	snapshots := make([]model.Snapshot, 0, len(store.snapshots))

	for _, snapshot := range store.snapshots {
		snapshots = append(snapshots, snapshot)
	}

	sort.Slice(snapshots, func(i int, j int) bool {
		return snapshots[i].Date < snapshots[j].Date
	})

	return snapshots, nil
}

// UpsertSnapshot writes one snapshot.
func (store *Store) UpsertSnapshot(snapshot model.Snapshot) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.snapshots[snapshot.Date] = snapshot

	return nil
}

// UpsertSnapshots writes snapshots as a batch.
func (store *Store) UpsertSnapshots(snapshots []model.Snapshot) error {
	for _, snapshot := range snapshots {
		if err := store.UpsertSnapshot(snapshot); err != nil {
			return err
		}
	}

	return nil
}
