// Package portfolio composes holdings, pricing, currency conversion and the
// history recorder into portfolio totals.
package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dense-analysis/networth/internal/currency"
	"github.com/dense-analysis/networth/internal/history"
	"github.com/dense-analysis/networth/internal/model"
	"github.com/dense-analysis/networth/internal/refresh"
	"github.com/dense-analysis/networth/internal/store"
)

// RemoteStore is the remote persistence surface the aggregator depends on.
type RemoteStore interface {
	ListHoldings() ([]model.Holding, error)
	SaveHolding(holding model.Holding) error
	SaveHoldings(holdings []model.Holding) error
	DeleteHolding(id uuid.UUID) error
	history.RemoteStore
}

// AllocationMode selects how allocation buckets are grouped.
type AllocationMode string

const (
	ByClass  AllocationMode = "class"
	BySymbol AllocationMode = "symbol"
)

// Bucket is one slice of the allocation breakdown.
type Bucket struct {
	Label   string          `json:"label"`
	Value   decimal.Decimal `json:"value"`
	Percent decimal.Decimal `json:"percent"`
}

var hundred = decimal.NewFromInt(100)

// AddForm carries the validated fields for creating a holding.
type AddForm struct {
	Symbol      string
	DisplayName string
	Class       model.AssetClass
	Quantity    decimal.Decimal
	// ManualPrice overrides the resolved price when set, denominated in
	// EntryCurrency.
	ManualPrice   *decimal.Decimal
	EntryCurrency model.Currency
}

// Store holds the process-wide portfolio state.
//
// The holdings collection is replaced atomically as one snapshot on every
// mutation; readers never observe a partial update.
type Store struct {
	converter *currency.Converter
	updater   *refresh.Updater
	source    refresh.Source
	remote    RemoteStore
	local     *store.LocalStore
	recorder  *history.Recorder
	log       *logrus.Entry
	now       func() time.Time

	mu          sync.RWMutex
	holdings    []model.Holding
	series      []model.Snapshot
	lastUpdated time.Time
	subscribers []func()
}

// NewStore wires the aggregator together.
func NewStore(
	converter *currency.Converter,
	source refresh.Source,
	remote RemoteStore,
	local *store.LocalStore,
) *Store {
	aggregator := &Store{
		converter: converter,
		updater:   refresh.NewUpdater(source),
		source:    source,
		remote:    remote,
		local:     local,
		log:       logrus.WithField("component", "portfolio"),
		now:       time.Now,
	}
	aggregator.recorder = history.NewRecorder(remote, aggregator.applySnapshot)

	return aggregator
}

// Converter returns the currency converter the aggregator uses.
func (aggregator *Store) Converter() *currency.Converter {
	return aggregator.converter
}

// Load hydrates holdings and history, preferring the remote store and
// falling back to the local cache when it is unreachable.
func (aggregator *Store) Load() {
	holdings, err := aggregator.remote.ListHoldings()

	if err != nil {
		aggregator.log.WithError(err).Warn("remote holdings fetch failed, serving local backup")
		holdings = aggregator.local.Holdings()
	} else if err := aggregator.local.SetHoldings(holdings); err != nil {
		aggregator.log.WithError(err).Warn("holdings backup write failed")
	}

	series := aggregator.local.History()
	remoteSeries, err := aggregator.remote.ListSnapshots()

	if err != nil {
		aggregator.log.WithError(err).Warn("remote history fetch failed, serving local cache")
	} else {
		series = history.Reconcile(remoteSeries, series)

		if err := aggregator.local.SetHistory(series); err != nil {
			aggregator.log.WithError(err).Warn("history cache write failed")
		}
	}

	aggregator.mu.Lock()
	aggregator.holdings = holdings
	aggregator.series = series
	aggregator.mu.Unlock()

	// The hydrated total is the first computation for today, so it is
	// recorded like any other total change. Record skips zero totals.
	aggregator.recorder.Record(aggregator.TotalValue(), model.DateOf(aggregator.now()))
	aggregator.notify()
}

// Subscribe registers a callback invoked after every state change.
func (aggregator *Store) Subscribe(callback func()) {
	aggregator.mu.Lock()
	defer aggregator.mu.Unlock()

	aggregator.subscribers = append(aggregator.subscribers, callback)
}

func (aggregator *Store) notify() {
	aggregator.mu.RLock()
	subscribers := make([]func(), len(aggregator.subscribers))
	copy(subscribers, aggregator.subscribers)
	aggregator.mu.RUnlock()

	for _, callback := range subscribers {
		callback()
	}
}

// Holdings returns a copy of the full holdings list, hidden ones included.
func (aggregator *Store) Holdings() []model.Holding {
	aggregator.mu.RLock()
	defer aggregator.mu.RUnlock()

	holdings := make([]model.Holding, len(aggregator.holdings))
	copy(holdings, aggregator.holdings)

	return holdings
}

// History returns a copy of the snapshot series, ascending by date.
func (aggregator *Store) History() []model.Snapshot {
	aggregator.mu.RLock()
	defer aggregator.mu.RUnlock()

	series := make([]model.Snapshot, len(aggregator.series))
	copy(series, aggregator.series)

	return series
}

// LastUpdated returns when the last refresh cycle completed, zero for never.
func (aggregator *Store) LastUpdated() time.Time {
	aggregator.mu.RLock()
	defer aggregator.mu.RUnlock()

	return aggregator.lastUpdated
}

// TotalValue sums all non-hidden holdings in USD, converting each from its
// entry currency first.
func (aggregator *Store) TotalValue() decimal.Decimal {
	aggregator.mu.RLock()
	defer aggregator.mu.RUnlock()

	total := decimal.Zero

	for i := range aggregator.holdings {
		holding := &aggregator.holdings[i]

		if holding.Hidden {
			continue
		}

		total = total.Add(aggregator.converter.ConvertToBase(holding.Value(), holding.EntryCurrency))
	}

	return total
}

// Allocation groups non-hidden holdings into buckets with their share of
// the total, sorted descending by value. Ties keep insertion order.
func (aggregator *Store) Allocation(mode AllocationMode) []Bucket {
	aggregator.mu.RLock()
	defer aggregator.mu.RUnlock()

	var buckets []Bucket
	index := map[string]int{}

	for i := range aggregator.holdings {
		holding := &aggregator.holdings[i]

		if holding.Hidden {
			continue
		}

		label := string(holding.Class)

		if mode == BySymbol {
			label = holding.Symbol
		}

		value := aggregator.converter.ConvertToBase(holding.Value(), holding.EntryCurrency)

		if position, ok := index[label]; ok {
			buckets[position].Value = buckets[position].Value.Add(value)
		} else {
			index[label] = len(buckets)
			buckets = append(buckets, Bucket{Label: label, Value: value})
		}
	}

	total := decimal.Zero

	for i := range buckets {
		total = total.Add(buckets[i].Value)
	}

	for i := range buckets {
		if total.IsZero() {
			buckets[i].Percent = decimal.Zero
		} else {
			buckets[i].Percent = buckets[i].Value.Div(total).Mul(hundred)
		}
	}

	sort.SliceStable(buckets, func(i int, j int) bool {
		return buckets[j].Value.LessThan(buckets[i].Value)
	})

	return buckets
}

// AddHolding resolves a price for the new symbol and persists the holding.
//
// A resolution failure rejects the whole action unless a manual price was
// supplied; no partial holding is created.
func (aggregator *Store) AddHolding(ctx context.Context, form AddForm) (model.Holding, error) {
	symbol := strings.ToUpper(strings.TrimSpace(form.Symbol))

	if symbol == "" {
		return model.Holding{}, fmt.Errorf("symbol is required")
	}

	entryCurrency := form.EntryCurrency

	if entryCurrency != model.EUR {
		entryCurrency = model.USD
	}

	quote, err := aggregator.source.Resolve(ctx, symbol, form.Class, "", entryCurrency)

	if err != nil && form.ManualPrice == nil {
		return model.Holding{}, err
	}

	createdAt := aggregator.now()
	holding := model.Holding{
		ID:              uuid.New(),
		Symbol:          symbol,
		DisplayName:     form.DisplayName,
		Class:           form.Class,
		Quantity:        form.Quantity,
		UnitPrice:       quote.UnitPrice,
		EntryCurrency:   quote.SourceCurrency,
		ResolvedID:      quote.ResolvedID,
		LastRefreshedAt: createdAt,
		CreatedAt:       createdAt,
	}

	if holding.DisplayName == "" {
		holding.DisplayName = symbol
	}

	if form.ManualPrice != nil {
		// Manual prices stay in the chosen entry currency; conversion
		// happens at aggregation time.
		holding.UnitPrice = *form.ManualPrice
		holding.EntryCurrency = entryCurrency
	}

	if err := aggregator.remote.SaveHolding(holding); err != nil {
		return model.Holding{}, err
	}

	aggregator.mu.Lock()
	holdings := make([]model.Holding, len(aggregator.holdings), len(aggregator.holdings)+1)
	copy(holdings, aggregator.holdings)
	aggregator.holdings = append(holdings, holding)
	aggregator.mu.Unlock()

	aggregator.afterChange()

	return holding, nil
}

// mutateHolding applies an edit to one holding, replacing the collection
// atomically, and returns the updated holding.
func (aggregator *Store) mutateHolding(id uuid.UUID, apply func(*model.Holding)) (model.Holding, error) {
	aggregator.mu.Lock()

	position := -1

	for i := range aggregator.holdings {
		if aggregator.holdings[i].ID == id {
			position = i

			break
		}
	}

	if position == -1 {
		aggregator.mu.Unlock()

		return model.Holding{}, fmt.Errorf("no holding with id %s", id)
	}

	holdings := make([]model.Holding, len(aggregator.holdings))
	copy(holdings, aggregator.holdings)
	apply(&holdings[position])
	updated := holdings[position]
	aggregator.holdings = holdings
	aggregator.mu.Unlock()

	if err := aggregator.remote.SaveHolding(updated); err != nil {
		// The local collection stays authoritative for reads.
		aggregator.log.WithError(err).WithField("symbol", updated.Symbol).Warn("remote holding write failed")
	}

	aggregator.afterChange()

	return updated, nil
}

// UpdateQuantity sets a holding's quantity.
func (aggregator *Store) UpdateQuantity(id uuid.UUID, quantity decimal.Decimal) (model.Holding, error) {
	return aggregator.mutateHolding(id, func(holding *model.Holding) {
		holding.Quantity = quantity
	})
}

// UpdateUnitPrice sets a holding's price manually, bypassing the TTL.
func (aggregator *Store) UpdateUnitPrice(id uuid.UUID, unitPrice decimal.Decimal) (model.Holding, error) {
	stampedAt := aggregator.now()

	return aggregator.mutateHolding(id, func(holding *model.Holding) {
		holding.UnitPrice = unitPrice
		holding.LastRefreshedAt = stampedAt
	})
}

// UpdateSymbol renames a holding's ticker.
func (aggregator *Store) UpdateSymbol(id uuid.UUID, symbol string) (model.Holding, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if symbol == "" {
		return model.Holding{}, fmt.Errorf("symbol is required")
	}

	return aggregator.mutateHolding(id, func(holding *model.Holding) {
		holding.Symbol = symbol
	})
}

// UpdateDisplayName sets a holding's human label.
func (aggregator *Store) UpdateDisplayName(id uuid.UUID, displayName string) (model.Holding, error) {
	return aggregator.mutateHolding(id, func(holding *model.Holding) {
		holding.DisplayName = displayName
	})
}

// ToggleHidden flips whether a holding counts toward totals.
func (aggregator *Store) ToggleHidden(id uuid.UUID) (model.Holding, error) {
	return aggregator.mutateHolding(id, func(holding *model.Holding) {
		holding.Hidden = !holding.Hidden
	})
}

// DeleteHolding removes a holding permanently.
func (aggregator *Store) DeleteHolding(id uuid.UUID) error {
	aggregator.mu.Lock()

	holdings := make([]model.Holding, 0, len(aggregator.holdings))
	found := false

	for _, holding := range aggregator.holdings {
		if holding.ID == id {
			found = true

			continue
		}

		holdings = append(holdings, holding)
	}

	if !found {
		aggregator.mu.Unlock()

		return fmt.Errorf("no holding with id %s", id)
	}

	aggregator.holdings = holdings
	aggregator.mu.Unlock()

	if err := aggregator.remote.DeleteHolding(id); err != nil {
		aggregator.log.WithError(err).Warn("remote holding delete failed")
	}

	aggregator.afterChange()

	return nil
}

// RefreshPrices runs one price refresh cycle and merges the results back
// into the collection by holding ID, so edits made while fetches were in
// flight survive.
func (aggregator *Store) RefreshPrices(ctx context.Context) bool {
	snapshot := aggregator.Holdings()
	updated, ran := aggregator.updater.RefreshAll(ctx, snapshot)

	if !ran {
		return false
	}

	byID := make(map[uuid.UUID]model.Holding, len(updated))

	for _, holding := range updated {
		byID[holding.ID] = holding
	}

	aggregator.mu.Lock()
	holdings := make([]model.Holding, len(aggregator.holdings))
	copy(holdings, aggregator.holdings)

	for i := range holdings {
		if refreshed, ok := byID[holdings[i].ID]; ok {
			holdings[i].UnitPrice = refreshed.UnitPrice
			holdings[i].ResolvedID = refreshed.ResolvedID
			holdings[i].LastRefreshedAt = refreshed.LastRefreshedAt
		}
	}

	aggregator.holdings = holdings
	aggregator.lastUpdated = aggregator.now()
	aggregator.mu.Unlock()

	if err := aggregator.remote.SaveHoldings(aggregator.Holdings()); err != nil {
		aggregator.log.WithError(err).Warn("remote holdings write failed after refresh")
	}

	aggregator.afterChange()

	return true
}

// RefreshRate updates the exchange rate when the cached one has expired and
// persists it locally.
func (aggregator *Store) RefreshRate(ctx context.Context, client *currency.RateClient) {
	updated, err := aggregator.converter.RefreshRate(ctx, client)

	if err != nil {
		aggregator.log.WithError(err).Warn("exchange rate fetch failed, keeping cached rate")

		return
	}

	if !updated {
		return
	}

	if err := aggregator.local.SetCachedRate(aggregator.converter.Rate(), aggregator.converter.RateFetchedAt()); err != nil {
		aggregator.log.WithError(err).Warn("rate cache write failed")
	}

	aggregator.afterChange()
}

// SetDisplayCurrency changes and persists the display currency preference.
func (aggregator *Store) SetDisplayCurrency(display model.Currency) {
	aggregator.converter.SetDisplayCurrency(display)

	if err := aggregator.local.SetDisplayCurrency(display); err != nil {
		aggregator.log.WithError(err).Warn("display currency write failed")
	}

	aggregator.notify()
}

// MigrateHistory bulk-syncs the local snapshot series to the remote store.
func (aggregator *Store) MigrateHistory() (int, error) {
	return history.Migrate(
		aggregator.remote,
		aggregator.History(),
		aggregator.TotalValue(),
		model.DateOf(aggregator.now()),
	)
}

// Flush writes any pending snapshot immediately, for shutdown.
func (aggregator *Store) Flush() {
	aggregator.recorder.Flush()
}

// afterChange records the new total for today and notifies subscribers.
func (aggregator *Store) afterChange() {
	backup := aggregator.Holdings()

	if err := aggregator.local.SetHoldings(backup); err != nil {
		aggregator.log.WithError(err).Warn("holdings backup write failed")
	}

	aggregator.recorder.Record(aggregator.TotalValue(), model.DateOf(aggregator.now()))
	aggregator.notify()
}

// applySnapshot commits a debounced snapshot into the local series.
func (aggregator *Store) applySnapshot(snapshot model.Snapshot) {
	aggregator.mu.Lock()
	series := make([]model.Snapshot, len(aggregator.series))
	copy(series, aggregator.series)
	aggregator.series = history.Upsert(series, snapshot)
	aggregator.mu.Unlock()

	if err := aggregator.local.SetHistory(aggregator.History()); err != nil {
		aggregator.log.WithError(err).Warn("history cache write failed")
	}

	aggregator.notify()
}
