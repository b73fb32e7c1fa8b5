// Package currency converts amounts between the currency a holding was
// entered in and the currency the user wants totals displayed in.
package currency

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dense-analysis/networth/internal/model"
)

// RateFreshness is how long a fetched exchange rate remains fresh.
const RateFreshness = 6 * time.Hour

// DefaultEURRate applies on first run, with no cached rate and no network.
var DefaultEURRate = decimal.NewFromFloat(0.92)

var One = decimal.NewFromInt(1)
var Hundredth = decimal.New(1, -2)
var TenThousandth = decimal.New(1, -4)

// Converter holds the EUR-per-USD exchange rate and the user's chosen
// display currency. All amounts aggregate in USD internally.
type Converter struct {
	mu        sync.RWMutex
	display   model.Currency
	rate      decimal.Decimal
	fetchedAt time.Time
	now       func() time.Time
}

// NewConverter creates a converter with the default rate and USD display.
func NewConverter() *Converter {
	return &Converter{
		display: model.USD,
		rate:    DefaultEURRate,
		now:     time.Now,
	}
}

// Restore loads a previously persisted display currency and cached rate.
func (converter *Converter) Restore(display model.Currency, rate decimal.Decimal, fetchedAt time.Time) {
	converter.mu.Lock()
	defer converter.mu.Unlock()

	if display == model.USD || display == model.EUR {
		converter.display = display
	}

	if rate.IsPositive() {
		converter.rate = rate
		converter.fetchedAt = fetchedAt
	}
}

// DisplayCurrency returns the currency totals are shown in.
func (converter *Converter) DisplayCurrency() model.Currency {
	converter.mu.RLock()
	defer converter.mu.RUnlock()

	return converter.display
}

// SetDisplayCurrency changes the currency totals are shown in.
func (converter *Converter) SetDisplayCurrency(display model.Currency) {
	converter.mu.Lock()
	defer converter.mu.Unlock()

	converter.display = display
}

// Rate returns the current EUR-per-USD rate.
func (converter *Converter) Rate() decimal.Decimal {
	converter.mu.RLock()
	defer converter.mu.RUnlock()

	return converter.rate
}

// SetRate stores a freshly fetched rate. Non-positive rates are ignored.
func (converter *Converter) SetRate(rate decimal.Decimal, fetchedAt time.Time) {
	if !rate.IsPositive() {
		return
	}

	converter.mu.Lock()
	defer converter.mu.Unlock()

	converter.rate = rate
	converter.fetchedAt = fetchedAt
}

// RateFetchedAt returns when the current rate was fetched, zero for never.
func (converter *Converter) RateFetchedAt() time.Time {
	converter.mu.RLock()
	defer converter.mu.RUnlock()

	return converter.fetchedAt
}

// RateFresh returns true while the cached rate is inside the freshness window.
func (converter *Converter) RateFresh() bool {
	converter.mu.RLock()
	defer converter.mu.RUnlock()

	if converter.fetchedAt.IsZero() {
		return false
	}

	return converter.now().Sub(converter.fetchedAt) < RateFreshness
}

// Convert converts a USD amount into the display currency.
func (converter *Converter) Convert(amountUSD decimal.Decimal) decimal.Decimal {
	converter.mu.RLock()
	defer converter.mu.RUnlock()

	if converter.display == model.USD {
		return amountUSD
	}

	return amountUSD.Mul(converter.rate)
}

// ConvertToBase converts an amount in a source currency into USD.
func (converter *Converter) ConvertToBase(amount decimal.Decimal, source model.Currency) decimal.Decimal {
	if source == model.USD {
		return amount
	}

	converter.mu.RLock()
	defer converter.mu.RUnlock()

	return amount.Div(converter.rate)
}

// ConvertBetween converts an amount between two currencies directly.
func (converter *Converter) ConvertBetween(amount decimal.Decimal, from model.Currency, to model.Currency) decimal.Decimal {
	if from == to {
		return amount
	}

	converter.mu.RLock()
	defer converter.mu.RUnlock()

	if from == model.EUR {
		return amount.Div(converter.rate)
	}

	return amount.Mul(converter.rate)
}

// FormatValue converts a USD amount to the display currency and formats it
// with two decimal places, as used for portfolio totals.
func (converter *Converter) FormatValue(amountUSD decimal.Decimal) string {
	converted := converter.Convert(amountUSD)

	return converter.DisplayCurrency().Sign() + groupThousands(converted.StringFixed(2))
}

// FormatPrice converts a USD price to the display currency and formats it
// with magnitude-adaptive precision, as used for unit prices.
func (converter *Converter) FormatPrice(priceUSD decimal.Decimal) string {
	return FormatMoney(converter.Convert(priceUSD), converter.DisplayCurrency())
}

// FormatMoney formats an amount with a currency sign and adaptive precision.
//
// Very small prices keep more decimals so sub-cent assets don't render as 0.
func FormatMoney(amount decimal.Decimal, currency model.Currency) string {
	places := int32(2)
	size := amount.Abs()

	if size.IsZero() {
		return currency.Sign() + "0.00"
	}

	if size.LessThan(TenThousandth) {
		places = 8
	} else if size.LessThan(Hundredth) {
		places = 6
	} else if size.LessThan(One) {
		places = 4
	}

	return currency.Sign() + groupThousands(amount.StringFixed(places))
}

// groupThousands inserts comma separators into the integer part of a
// fixed-point number string.
func groupThousands(value string) string {
	sign := ""

	if strings.HasPrefix(value, "-") {
		sign = "-"
		value = value[1:]
	}

	integer := value
	fraction := ""

	if point := strings.IndexByte(value, '.'); point >= 0 {
		integer = value[:point]
		fraction = value[point:]
	}

	if len(integer) <= 3 {
		return sign + integer + fraction
	}

	var builder strings.Builder
	lead := len(integer) % 3

	if lead > 0 {
		builder.WriteString(integer[:lead])
	}

	for i := lead; i < len(integer); i += 3 {
		if builder.Len() > 0 {
			builder.WriteByte(',')
		}

		builder.WriteString(integer[i : i+3])
	}

	return sign + builder.String() + fraction
}
