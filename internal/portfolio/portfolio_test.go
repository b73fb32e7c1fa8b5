package portfolio

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dense-analysis/networth/internal/currency"
	"github.com/dense-analysis/networth/internal/model"
	"github.com/dense-analysis/networth/internal/price"
	"github.com/dense-analysis/networth/internal/store"
)

type fakeRemote struct {
	mu        sync.Mutex
	holdings  []model.Holding
	snapshots []model.Snapshot
	saveErr   error
}

func (remote *fakeRemote) ListHoldings() ([]model.Holding, error) {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	return append([]model.Holding{}, remote.holdings...), nil
}

func (remote *fakeRemote) SaveHolding(holding model.Holding) error {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	if remote.saveErr != nil {
		return remote.saveErr
	}

	for i := range remote.holdings {
		if remote.holdings[i].ID == holding.ID {
			remote.holdings[i] = holding

			return nil
		}
	}

	remote.holdings = append(remote.holdings, holding)

	return nil
}

func (remote *fakeRemote) SaveHoldings(holdings []model.Holding) error {
	for _, holding := range holdings {
		if err := remote.SaveHolding(holding); err != nil {
			return err
		}
	}

	return nil
}

func (remote *fakeRemote) DeleteHolding(id uuid.UUID) error {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	kept := remote.holdings[:0]

	for _, holding := range remote.holdings {
		if holding.ID != id {
			kept = append(kept, holding)
		}
	}

	remote.holdings = kept

	return nil
}

func (remote *fakeRemote) ListSnapshots() ([]model.Snapshot, error) {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	return append([]model.Snapshot{}, remote.snapshots...), nil
}

func (remote *fakeRemote) UpsertSnapshot(snapshot model.Snapshot) error {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	remote.snapshots = append(remote.snapshots, snapshot)

	return nil
}

func (remote *fakeRemote) UpsertSnapshots(snapshots []model.Snapshot) error {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	remote.snapshots = append(remote.snapshots, snapshots...)

	return nil
}

type fakeSource struct {
	quotes map[string]price.Quote
}

func (source *fakeSource) Resolve(
	ctx context.Context,
	symbol string,
	class model.AssetClass,
	knownID string,
	cashCurrency model.Currency,
) (price.Quote, error) {
	if class == model.ClassCash {
		if cashCurrency != model.USD && cashCurrency != model.EUR {
			cashCurrency = model.USD
		}

		return price.Quote{UnitPrice: decimal.NewFromInt(1), SourceCurrency: cashCurrency}, nil
	}

	quote, ok := source.quotes[symbol]

	if !ok {
		return price.Quote{}, price.ErrSymbolNotFound
	}

	return quote, nil
}

func (source *fakeSource) FetchCryptoPrices(ctx context.Context, _ []string) (map[string]decimal.Decimal, error) {
	prices := map[string]decimal.Decimal{}

	for _, quote := range source.quotes {
		if quote.ResolvedID != "" {
			prices[quote.ResolvedID] = quote.UnitPrice
		}
	}

	return prices, nil
}

func newTestStore(t *testing.T, remote *fakeRemote, source *fakeSource) *Store {
	t.Helper()

	local, err := store.OpenLocal(filepath.Join(t.TempDir(), "networth.json"))
	require.NoError(t, err)

	if source == nil {
		source = &fakeSource{}
	}

	aggregator := NewStore(currency.NewConverter(), source, remote, local)
	aggregator.Load()

	return aggregator
}

func makeHolding(symbol string, class model.AssetClass, quantity string, unitPrice string) model.Holding {
	return model.Holding{
		ID:              uuid.New(),
		Symbol:          symbol,
		DisplayName:     symbol,
		Class:           class,
		Quantity:        decimal.RequireFromString(quantity),
		UnitPrice:       decimal.RequireFromString(unitPrice),
		EntryCurrency:   model.USD,
		LastRefreshedAt: time.Now(),
		CreatedAt:       time.Now(),
	}
}

func TestTotalValueExcludesHiddenHoldings(t *testing.T) {
	hidden := makeHolding("TSLA", model.ClassStock, "1", "1000")
	hidden.Hidden = true
	remote := &fakeRemote{holdings: []model.Holding{
		makeHolding("AAPL", model.ClassStock, "2", "100"),
		hidden,
		makeHolding("SAV", model.ClassCash, "300", "1"),
	}}

	aggregator := newTestStore(t, remote, nil)

	assert.True(t, aggregator.TotalValue().Equal(decimal.NewFromInt(500)))
}

func TestTotalValueConvertsEUREntries(t *testing.T) {
	eurCash := makeHolding("EMG", model.ClassCash, "920", "1")
	eurCash.EntryCurrency = model.EUR
	remote := &fakeRemote{holdings: []model.Holding{eurCash}}

	aggregator := newTestStore(t, remote, nil)
	aggregator.Converter().SetRate(decimal.RequireFromString("0.92"), time.Now())

	total := aggregator.TotalValue()
	expected := decimal.NewFromInt(1000)

	assert.True(
		t,
		total.Sub(expected).Abs().LessThan(decimal.RequireFromString("0.01")),
		"expected about %s, got %s", expected, total,
	)
}

func TestAllocationGroupsByClass(t *testing.T) {
	remote := &fakeRemote{holdings: []model.Holding{
		makeHolding("BTC", model.ClassCrypto, "1", "300"),
		makeHolding("AAPL", model.ClassStock, "1", "500"),
		makeHolding("ETH", model.ClassCrypto, "1", "100"),
		makeHolding("SAV", model.ClassCash, "100", "1"),
	}}

	aggregator := newTestStore(t, remote, nil)
	buckets := aggregator.Allocation(ByClass)

	require.Len(t, buckets, 3)
	assert.Equal(t, "stock", buckets[0].Label)
	assert.True(t, buckets[0].Value.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "crypto", buckets[1].Label)
	assert.True(t, buckets[1].Value.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, "cash", buckets[2].Label)
	assert.True(t, buckets[0].Percent.Equal(decimal.NewFromInt(50)))
}

func TestAllocationTiesKeepInsertionOrder(t *testing.T) {
	remote := &fakeRemote{holdings: []model.Holding{
		makeHolding("AAPL", model.ClassStock, "1", "100"),
		makeHolding("BTC", model.ClassCrypto, "1", "100"),
	}}

	aggregator := newTestStore(t, remote, nil)
	buckets := aggregator.Allocation(BySymbol)

	require.Len(t, buckets, 2)
	assert.Equal(t, "AAPL", buckets[0].Label)
	assert.Equal(t, "BTC", buckets[1].Label)
}

func TestAllocationSkipsHidden(t *testing.T) {
	hidden := makeHolding("TSLA", model.ClassStock, "1", "100")
	hidden.Hidden = true
	remote := &fakeRemote{holdings: []model.Holding{hidden}}

	aggregator := newTestStore(t, remote, nil)

	assert.Empty(t, aggregator.Allocation(ByClass))
}

func TestAddHoldingResolvesPrice(t *testing.T) {
	remote := &fakeRemote{}
	source := &fakeSource{quotes: map[string]price.Quote{
		"BTC": {UnitPrice: decimal.NewFromInt(95000), ResolvedID: "bitcoin", SourceCurrency: model.USD},
	}}

	aggregator := newTestStore(t, remote, source)
	holding, err := aggregator.AddHolding(context.Background(), AddForm{
		Symbol:   "btc",
		Class:    model.ClassCrypto,
		Quantity: decimal.RequireFromString("0.5"),
	})

	require.NoError(t, err)
	assert.Equal(t, "BTC", holding.Symbol)
	assert.Equal(t, "BTC", holding.DisplayName)
	assert.Equal(t, "bitcoin", holding.ResolvedID)
	assert.True(t, holding.UnitPrice.Equal(decimal.NewFromInt(95000)))

	saved, _ := remote.ListHoldings()
	require.Len(t, saved, 1)
	assert.Equal(t, holding.ID, saved[0].ID)
}

func TestAddHoldingRejectsUnknownSymbolWithoutManualPrice(t *testing.T) {
	aggregator := newTestStore(t, &fakeRemote{}, &fakeSource{})

	_, err := aggregator.AddHolding(context.Background(), AddForm{
		Symbol:   "NOPE",
		Class:    model.ClassStock,
		Quantity: decimal.NewFromInt(1),
	})

	assert.ErrorIs(t, err, price.ErrSymbolNotFound)
	assert.Empty(t, aggregator.Holdings())
}

func TestAddHoldingManualPriceOverridesResolution(t *testing.T) {
	aggregator := newTestStore(t, &fakeRemote{}, &fakeSource{})
	manualPrice := decimal.RequireFromString("12.34")

	holding, err := aggregator.AddHolding(context.Background(), AddForm{
		Symbol:        "NOPE",
		Class:         model.ClassStock,
		Quantity:      decimal.NewFromInt(1),
		ManualPrice:   &manualPrice,
		EntryCurrency: model.EUR,
	})

	require.NoError(t, err)
	assert.True(t, holding.UnitPrice.Equal(manualPrice))
	assert.Equal(t, model.EUR, holding.EntryCurrency, "manual prices stay in the chosen entry currency")
}

func TestMutationsApplyAndPersist(t *testing.T) {
	holding := makeHolding("AAPL", model.ClassStock, "2", "100")
	remote := &fakeRemote{holdings: []model.Holding{holding}}
	aggregator := newTestStore(t, remote, nil)

	updated, err := aggregator.UpdateQuantity(holding.ID, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, updated.Quantity.Equal(decimal.NewFromInt(5)))

	updated, err = aggregator.UpdateSymbol(holding.ID, " msft ")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", updated.Symbol)

	updated, err = aggregator.ToggleHidden(holding.ID)
	require.NoError(t, err)
	assert.True(t, updated.Hidden)

	saved, _ := remote.ListHoldings()
	require.Len(t, saved, 1)
	assert.Equal(t, "MSFT", saved[0].Symbol)
}

func TestMutationsRejectUnknownID(t *testing.T) {
	aggregator := newTestStore(t, &fakeRemote{}, nil)

	_, err := aggregator.UpdateQuantity(uuid.New(), decimal.NewFromInt(1))
	assert.Error(t, err)

	assert.Error(t, aggregator.DeleteHolding(uuid.New()))
}

func TestUpdateUnitPriceStampsRefreshTime(t *testing.T) {
	holding := makeHolding("AAPL", model.ClassStock, "1", "100")
	holding.LastRefreshedAt = time.Time{}
	remote := &fakeRemote{holdings: []model.Holding{holding}}
	aggregator := newTestStore(t, remote, nil)

	updated, err := aggregator.UpdateUnitPrice(holding.ID, decimal.NewFromInt(200))

	require.NoError(t, err)
	assert.False(t, updated.LastRefreshedAt.IsZero())
}

func TestDeleteHolding(t *testing.T) {
	holding := makeHolding("AAPL", model.ClassStock, "1", "100")
	remote := &fakeRemote{holdings: []model.Holding{holding}}
	aggregator := newTestStore(t, remote, nil)

	require.NoError(t, aggregator.DeleteHolding(holding.ID))
	assert.Empty(t, aggregator.Holdings())

	saved, _ := remote.ListHoldings()
	assert.Empty(t, saved)
}

func TestRefreshPricesMergesByID(t *testing.T) {
	stale := makeHolding("BTC", model.ClassCrypto, "1", "90000")
	stale.ResolvedID = "bitcoin"
	stale.LastRefreshedAt = time.Time{}
	remote := &fakeRemote{holdings: []model.Holding{stale}}
	source := &fakeSource{quotes: map[string]price.Quote{
		"BTC": {UnitPrice: decimal.NewFromInt(95000), ResolvedID: "bitcoin", SourceCurrency: model.USD},
	}}

	aggregator := newTestStore(t, remote, source)

	require.True(t, aggregator.RefreshPrices(context.Background()))

	holdings := aggregator.Holdings()
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].UnitPrice.Equal(decimal.NewFromInt(95000)))
	assert.False(t, aggregator.LastUpdated().IsZero())
}

func TestLoadRecordsTodaySnapshot(t *testing.T) {
	remote := &fakeRemote{holdings: []model.Holding{
		makeHolding("SAV", model.ClassCash, "10000", "1"),
	}}

	aggregator := newTestStore(t, remote, nil)
	aggregator.Flush()

	today := model.DateOf(time.Now())
	series := aggregator.History()
	require.NotEmpty(t, series, "loading a non-zero portfolio records today's snapshot")
	assert.Equal(t, today, series[len(series)-1].Date)
	assert.True(t, series[len(series)-1].TotalValue.Equal(decimal.NewFromInt(10000)))

	snapshots, _ := remote.ListSnapshots()
	require.Len(t, snapshots, 1)
	assert.Equal(t, today, snapshots[0].Date)
}

func TestLoadEmptyPortfolioRecordsNothing(t *testing.T) {
	remote := &fakeRemote{}

	aggregator := newTestStore(t, remote, nil)
	aggregator.Flush()

	assert.Empty(t, aggregator.History())

	snapshots, _ := remote.ListSnapshots()
	assert.Empty(t, snapshots)
}

func TestLoadFallsBackToLocalBackup(t *testing.T) {
	local, err := store.OpenLocal(filepath.Join(t.TempDir(), "networth.json"))
	require.NoError(t, err)

	backup := []model.Holding{makeHolding("AAPL", model.ClassStock, "1", "100")}
	require.NoError(t, local.SetHoldings(backup))

	remote := &fakeRemote{holdings: []model.Holding{makeHolding("BTC", model.ClassCrypto, "1", "90000")}}
	aggregator := NewStore(currency.NewConverter(), &fakeSource{}, remote, local)
	aggregator.Load()

	holdings := aggregator.Holdings()
	require.Len(t, holdings, 1)
	assert.Equal(t, "BTC", holdings[0].Symbol, "remote holdings win when reachable")
}

func TestLoadReconcilesHistory(t *testing.T) {
	local, err := store.OpenLocal(filepath.Join(t.TempDir(), "networth.json"))
	require.NoError(t, err)
	require.NoError(t, local.SetHistory([]model.Snapshot{
		{Date: "2026-02-28", TotalValue: decimal.NewFromInt(100)},
	}))

	remote := &fakeRemote{snapshots: []model.Snapshot{
		{Date: "2026-02-28", TotalValue: decimal.NewFromInt(150)},
		{Date: "2026-03-01", TotalValue: decimal.NewFromInt(200)},
	}}

	aggregator := NewStore(currency.NewConverter(), &fakeSource{}, remote, local)
	aggregator.Load()

	series := aggregator.History()
	require.Len(t, series, 2)
	assert.True(t, series[0].TotalValue.Equal(decimal.NewFromInt(150)), "remote value replaces local")
}

func TestMigrateHistoryIncludesToday(t *testing.T) {
	remote := &fakeRemote{holdings: []model.Holding{
		makeHolding("SAV", model.ClassCash, "300", "1"),
	}}
	aggregator := newTestStore(t, remote, nil)

	count, err := aggregator.MigrateHistory()

	require.NoError(t, err)
	assert.Equal(t, 1, count)

	snapshots, _ := remote.ListSnapshots()
	require.Len(t, snapshots, 1)
	assert.Equal(t, model.DateOf(time.Now()), snapshots[0].Date)
	assert.True(t, snapshots[0].TotalValue.Equal(decimal.NewFromInt(300)))
}

func TestSubscribeNotifiedOnChange(t *testing.T) {
	holding := makeHolding("AAPL", model.ClassStock, "1", "100")
	remote := &fakeRemote{holdings: []model.Holding{holding}}
	aggregator := newTestStore(t, remote, nil)

	notified := 0
	aggregator.Subscribe(func() { notified++ })

	_, err := aggregator.UpdateQuantity(holding.ID, decimal.NewFromInt(2))
	require.NoError(t, err)

	assert.Greater(t, notified, 0)
}
