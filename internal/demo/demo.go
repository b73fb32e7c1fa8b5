// Package demo provides a fixed, deterministically generated dataset used
// when the server runs without a remote store.
package demo

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dense-analysis/networth/internal/model"
)

// HistoryDays is how much history the demo dataset carries.
const HistoryDays = 365

const walkSeed = 42

// seededRandom returns a mulberry32 generator, so the demo chart looks the
// same on every start.
func seededRandom(seed uint32) func() float64 {
	return func() float64 {
		seed += 0x6d2b79f5
		t := seed
		t = (t ^ (t >> 15)) * (t | 1)
		t ^= t + (t^(t>>7))*(t|61)

		return float64(t^(t>>14)) / 4294967296
	}
}

func demoID(symbol string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("networth-demo-"+symbol))
}

func holding(
	symbol string,
	displayName string,
	class model.AssetClass,
	quantity string,
	unitPrice string,
	resolvedID string,
	now time.Time,
) model.Holding {
	return model.Holding{
		ID:              demoID(symbol),
		Symbol:          symbol,
		DisplayName:     displayName,
		Class:           class,
		Quantity:        decimal.RequireFromString(quantity),
		UnitPrice:       decimal.RequireFromString(unitPrice),
		EntryCurrency:   model.USD,
		ResolvedID:      resolvedID,
		LastRefreshedAt: now,
		CreatedAt:       now,
	}
}

// Holdings returns the demo portfolio.
func Holdings(now time.Time) []model.Holding {
	return []model.Holding{
		holding("BTC", "Bitcoin", model.ClassCrypto, "0.487", "94847.32", "bitcoin", now),
		holding("ETH", "Ethereum", model.ClassCrypto, "5.234", "3187.45", "ethereum", now),
		holding("AAPL", "Apple Inc.", model.ClassStock, "27", "182.63", "", now),
		holding("TSLA", "Tesla Inc.", model.ClassStock, "12", "248.92", "", now),
		holding("SAV", "Savings Account", model.ClassCash, "14873.56", "1", "", now),
		holding("EMG", "Emergency Fund", model.ClassCash, "8250.00", "1", "", now),
	}
}

// History generates a realistic net worth series ending at the demo
// portfolio's current total, using a random walk with drift, normal daily
// returns and mean-reverting momentum.
func History(now time.Time) []model.Snapshot {
	endValue, _ := totalValue(Holdings(now)).Float64()

	// The portfolio "grew" about 20% over the year.
	return generateSeries(HistoryDays, endValue/1.2, endValue, now)
}

func totalValue(holdings []model.Holding) decimal.Decimal {
	total := decimal.Zero

	for i := range holdings {
		total = total.Add(holdings[i].Value())
	}

	return total
}

func generateSeries(days int, startValue float64, endValue float64, now time.Time) []model.Snapshot {
	series := make([]model.Snapshot, 0, days)
	random := seededRandom(walkSeed)

	totalReturn := endValue / startValue
	dailyDrift := math.Pow(totalReturn, 1/float64(days)) - 1

	// Around 0.8% daily volatility, typical for a mixed portfolio.
	dailyVolatility := 0.008

	currentValue := startValue
	momentum := 0.0

	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		series = append(series, model.Snapshot{
			Date:       model.DateOf(day),
			TotalValue: decimal.NewFromFloat(math.Round(currentValue*100) / 100),
		})

		// Box-Muller transform for normally distributed returns.
		u1 := random()
		u2 := random()
		normalRandom := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		dailyReturn := dailyDrift + dailyVolatility*normalRandom + momentum*0.3
		momentum = momentum*0.7 + normalRandom*dailyVolatility*0.3
		currentValue = currentValue * (1 + dailyReturn)
	}

	return series
}
