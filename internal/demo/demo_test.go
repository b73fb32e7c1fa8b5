package demo

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dense-analysis/networth/internal/model"
)

var demoTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestHoldingsAreStable(t *testing.T) {
	first := Holdings(demoTime)
	second := Holdings(demoTime)

	require.Len(t, first, 6)
	assert.Equal(t, first, second)

	assert.Equal(t, "BTC", first[0].Symbol)
	assert.Equal(t, "bitcoin", first[0].ResolvedID)
	assert.True(t, first[0].Quantity.Equal(decimal.RequireFromString("0.487")))
	assert.Equal(t, model.ClassCash, first[4].Class)
	assert.True(t, first[4].UnitPrice.Equal(decimal.NewFromInt(1)))
}

func TestHoldingIDsAreDeterministic(t *testing.T) {
	assert.Equal(t, demoID("BTC"), demoID("BTC"))
	assert.NotEqual(t, demoID("BTC"), demoID("ETH"))
}

func TestHistoryIsDeterministic(t *testing.T) {
	first := History(demoTime)
	second := History(demoTime)

	assert.Equal(t, first, second, "the same seed produces the same series")
}

func TestHistoryCoversAYearEndingToday(t *testing.T) {
	series := History(demoTime)

	require.Len(t, series, HistoryDays)
	assert.Equal(t, "2026-03-01", series[len(series)-1].Date)
	assert.Equal(t, demoTime.AddDate(0, 0, -HistoryDays+1).Format(model.DateFormat), series[0].Date)

	for i := 1; i < len(series); i++ {
		assert.Less(t, series[i-1].Date, series[i].Date, "one snapshot per day, ascending")
	}
}

func TestHistoryStartsBelowCurrentTotal(t *testing.T) {
	series := History(demoTime)
	total, _ := totalValue(Holdings(demoTime)).Float64()

	first, _ := series[0].TotalValue.Float64()

	assert.InDelta(t, total/1.2, first, 0.01, "the walk starts a year's growth below today's total")
}

func TestHistoryValuesArePositive(t *testing.T) {
	for _, snapshot := range History(demoTime) {
		assert.True(t, snapshot.TotalValue.IsPositive(), "day %s", snapshot.Date)
	}
}

func TestStoreSeedsDemoData(t *testing.T) {
	store := NewStore()

	holdings, err := store.ListHoldings()
	require.NoError(t, err)
	assert.Len(t, holdings, 6)

	snapshots, err := store.ListSnapshots()
	require.NoError(t, err)
	assert.Len(t, snapshots, HistoryDays)
}

func TestStoreInsertionOrderSurvivesSaves(t *testing.T) {
	store := NewStore()

	holdings, err := store.ListHoldings()
	require.NoError(t, err)

	// Re-saving an existing holding must not move it.
	edited := holdings[0]
	edited.Quantity = decimal.NewFromInt(2)
	require.NoError(t, store.SaveHolding(edited))

	after, err := store.ListHoldings()
	require.NoError(t, err)
	assert.Equal(t, holdings[0].ID, after[0].ID)
	assert.True(t, after[0].Quantity.Equal(decimal.NewFromInt(2)))
}

func TestStoreDeleteHolding(t *testing.T) {
	store := NewStore()

	holdings, err := store.ListHoldings()
	require.NoError(t, err)

	require.NoError(t, store.DeleteHolding(holdings[0].ID))

	after, err := store.ListHoldings()
	require.NoError(t, err)
	assert.Len(t, after, len(holdings)-1)
}

func TestStoreUpsertSnapshotReplacesDate(t *testing.T) {
	store := NewStore()

	snapshot := model.Snapshot{Date: "2026-03-01", TotalValue: decimal.NewFromInt(123)}
	require.NoError(t, store.UpsertSnapshot(snapshot))
	require.NoError(t, store.UpsertSnapshot(model.Snapshot{Date: "2026-03-01", TotalValue: decimal.NewFromInt(456)}))

	snapshots, err := store.ListSnapshots()
	require.NoError(t, err)

	count := 0

	for _, entry := range snapshots {
		if entry.Date == "2026-03-01" {
			count++
			assert.True(t, entry.TotalValue.Equal(decimal.NewFromInt(456)))
		}
	}

	assert.Equal(t, 1, count)
}
