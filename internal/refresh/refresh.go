// Package refresh re-fetches cached holding prices once their TTL expires.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dense-analysis/networth/internal/model"
	"github.com/dense-analysis/networth/internal/price"
)

// CacheTTL is how long a fetched price stays fresh.
const CacheTTL = 6 * time.Hour

// Source provides prices during a refresh cycle.
type Source interface {
	Resolve(ctx context.Context, symbol string, class model.AssetClass, knownID string, cashCurrency model.Currency) (price.Quote, error)
	FetchCryptoPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

type cycleState int

const (
	stateIdle cycleState = iota
	stateRefreshing
)

// Updater runs refresh cycles over a collection of holdings.
//
// At most one cycle is in flight at a time; a cycle requested while another
// is running is a no-op.
type Updater struct {
	source Source
	log    *logrus.Entry
	now    func() time.Time

	mu    sync.Mutex
	state cycleState
}

// NewUpdater creates an updater backed by the given price source.
func NewUpdater(source Source) *Updater {
	return &Updater{
		source: source,
		log:    logrus.WithField("component", "refresh"),
		now:    time.Now,
	}
}

// CacheValid reports whether a holding's cached price is inside the TTL
// window. A holding that has never been fetched always misses.
func (updater *Updater) CacheValid(holding *model.Holding) bool {
	if holding.LastRefreshedAt.IsZero() {
		return false
	}

	return updater.now().Sub(holding.LastRefreshedAt) < CacheTTL
}

func (updater *Updater) tryBegin() bool {
	updater.mu.Lock()
	defer updater.mu.Unlock()

	if updater.state != stateIdle {
		return false
	}

	updater.state = stateRefreshing

	return true
}

func (updater *Updater) end() {
	updater.mu.Lock()
	defer updater.mu.Unlock()

	updater.state = stateIdle
}

// RefreshAll runs one refresh cycle over a snapshot of holdings and returns
// the updated snapshot, with the second value reporting whether a cycle ran.
//
// Holdings with valid caches and cash holdings pass through unchanged. Stale
// crypto holdings with resolved identifiers share one batched fetch; the
// rest are fetched individually and concurrently. A failed fetch keeps the
// previous price and timestamp so the holding is retried next cycle.
func (updater *Updater) RefreshAll(ctx context.Context, holdings []model.Holding) ([]model.Holding, bool) {
	if len(holdings) == 0 {
		return holdings, false
	}

	allValid := true

	for i := range holdings {
		holding := &holdings[i]

		if holding.Class != model.ClassCash && !updater.CacheValid(holding) {
			allValid = false

			break
		}
	}

	if allValid {
		return holdings, false
	}

	if !updater.tryBegin() {
		return holdings, false
	}

	defer updater.end()

	batchPrices := updater.fetchBatch(ctx, holdings)
	updated := make([]model.Holding, len(holdings))
	stampedAt := updater.now()

	var waitGroup sync.WaitGroup

	for i := range holdings {
		holding := holdings[i]

		if holding.Class == model.ClassCash || updater.CacheValid(&holding) {
			updated[i] = holding

			continue
		}

		waitGroup.Add(1)

		go func(i int, holding model.Holding) {
			defer waitGroup.Done()

			updated[i] = updater.refreshOne(ctx, holding, batchPrices, stampedAt)
		}(i, holding)
	}

	waitGroup.Wait()

	return updated, true
}

// fetchBatch fetches prices for all stale crypto holdings with resolved
// identifiers in one request.
func (updater *Updater) fetchBatch(ctx context.Context, holdings []model.Holding) map[string]decimal.Decimal {
	var ids []string
	seen := map[string]bool{}

	for i := range holdings {
		holding := &holdings[i]

		if holding.Class == model.ClassCrypto &&
			holding.ResolvedID != "" &&
			!seen[holding.ResolvedID] &&
			!updater.CacheValid(holding) {
			ids = append(ids, holding.ResolvedID)
			seen[holding.ResolvedID] = true
		}
	}

	if len(ids) == 0 {
		return map[string]decimal.Decimal{}
	}

	prices, err := updater.source.FetchCryptoPrices(ctx, ids)

	if err != nil {
		updater.log.WithError(err).Warn("batched crypto price fetch failed")

		return map[string]decimal.Decimal{}
	}

	return prices
}

func (updater *Updater) refreshOne(
	ctx context.Context,
	holding model.Holding,
	batchPrices map[string]decimal.Decimal,
	stampedAt time.Time,
) model.Holding {
	if holding.Class == model.ClassCrypto {
		if unitPrice, ok := batchPrices[holding.ResolvedID]; ok && unitPrice.IsPositive() {
			holding.UnitPrice = unitPrice
			holding.LastRefreshedAt = stampedAt

			return holding
		}
	}

	quote, err := updater.source.Resolve(ctx, holding.Symbol, holding.Class, holding.ResolvedID, holding.EntryCurrency)

	if err != nil || !quote.UnitPrice.IsPositive() {
		if err != nil {
			updater.log.
				WithError(err).
				WithField("symbol", holding.Symbol).
				Warn("price fetch failed, keeping previous price")
		}

		// The cache timestamp stays stale, so this holding is retried
		// on the next cycle.
		return holding
	}

	holding.UnitPrice = quote.UnitPrice
	holding.LastRefreshedAt = stampedAt

	if holding.Class == model.ClassCrypto && quote.ResolvedID != "" {
		holding.ResolvedID = quote.ResolvedID
	}

	return holding
}
