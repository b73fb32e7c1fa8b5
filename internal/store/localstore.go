package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dense-analysis/networth/internal/model"
)

// LocalStore is the durable local cache: the display currency preference,
// the last fetched exchange rate, and backups of the snapshot series and
// holdings. Reads keep working from this cache when the remote store is
// unreachable.
type LocalStore struct {
	path string
	mu   sync.Mutex
	data localData
}

type cachedRate struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

type localData struct {
	DisplayCurrency model.Currency   `json:"displayCurrency,omitempty"`
	ExchangeRate    *cachedRate      `json:"exchangeRate,omitempty"`
	History         []model.Snapshot `json:"history,omitempty"`
	Holdings        []model.Holding  `json:"holdings,omitempty"`
}

// OpenLocal loads the cache file at path, or starts an empty cache when the
// file is missing or unreadable as JSON.
func OpenLocal(path string) (*LocalStore, error) {
	store := &LocalStore{path: path}
	content, err := os.ReadFile(path)

	if errors.Is(err, fs.ErrNotExist) {
		return store, nil
	}

	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(content, &store.data); err != nil {
		// A corrupt cache is a cache miss, not a fatal error.
		return &LocalStore{path: path}, nil
	}

	return store, nil
}

// save writes the cache atomically. Callers hold the mutex.
func (store *LocalStore) save() error {
	content, err := json.MarshalIndent(store.data, "", "  ")

	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		return err
	}

	temporary := store.path + ".tmp"

	if err := os.WriteFile(temporary, content, 0o644); err != nil {
		return err
	}

	return os.Rename(temporary, store.path)
}

// DisplayCurrency returns the saved display currency preference.
func (store *LocalStore) DisplayCurrency() (model.Currency, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.data.DisplayCurrency == "" {
		return model.USD, false
	}

	return store.data.DisplayCurrency, true
}

// SetDisplayCurrency persists the display currency preference.
func (store *LocalStore) SetDisplayCurrency(currency model.Currency) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.data.DisplayCurrency = currency

	return store.save()
}

// CachedRate returns the last persisted exchange rate and fetch time.
func (store *LocalStore) CachedRate() (decimal.Decimal, time.Time, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.data.ExchangeRate == nil {
		return decimal.Zero, time.Time{}, false
	}

	return store.data.ExchangeRate.Rate, store.data.ExchangeRate.FetchedAt, true
}

// SetCachedRate persists a freshly fetched exchange rate.
func (store *LocalStore) SetCachedRate(rate decimal.Decimal, fetchedAt time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.data.ExchangeRate = &cachedRate{Rate: rate, FetchedAt: fetchedAt}

	return store.save()
}

// History returns the locally cached snapshot series.
func (store *LocalStore) History() []model.Snapshot {
	store.mu.Lock()
	defer store.mu.Unlock()

	history := make([]model.Snapshot, len(store.data.History))
	copy(history, store.data.History)

	return history
}

// SetHistory persists the snapshot series.
func (store *LocalStore) SetHistory(history []model.Snapshot) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.data.History = history

	return store.save()
}

// Holdings returns the local holdings backup.
func (store *LocalStore) Holdings() []model.Holding {
	store.mu.Lock()
	defer store.mu.Unlock()

	holdings := make([]model.Holding, len(store.data.Holdings))
	copy(holdings, store.data.Holdings)

	return holdings
}

// SetHoldings persists the holdings backup.
func (store *LocalStore) SetHoldings(holdings []model.Holding) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.data.Holdings = holdings

	return store.save()
}
