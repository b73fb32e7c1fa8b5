package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is a fiat currency holdings can be denominated in.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// Sign returns the prefix used when formatting amounts in a currency.
func (currency Currency) Sign() string {
	if currency == EUR {
		return "€"
	}

	return "$"
}

// ParseCurrency parses a currency name, accepting any casing.
func ParseCurrency(value string) (Currency, error) {
	switch Currency(strings.ToUpper(value)) {
	case USD:
		return USD, nil
	case EUR:
		return EUR, nil
	}

	return "", fmt.Errorf("unknown currency: %s", value)
}

// AssetClass describes the kind of position a holding tracks.
type AssetClass string

const (
	ClassCrypto AssetClass = "crypto"
	ClassStock  AssetClass = "stock"
	ClassCash   AssetClass = "cash"
)

// ParseAssetClass parses an asset class name.
func ParseAssetClass(value string) (AssetClass, error) {
	switch AssetClass(strings.ToLower(value)) {
	case ClassCrypto:
		return ClassCrypto, nil
	case ClassStock:
		return ClassStock, nil
	case ClassCash:
		return ClassCash, nil
	}

	return "", fmt.Errorf("unknown asset class: %s", value)
}

// Holding represents a tracked position in the portfolio.
type Holding struct {
	ID          uuid.UUID       `json:"id"`
	Symbol      string          `json:"symbol"`
	DisplayName string          `json:"displayName"`
	Class       AssetClass      `json:"class"`
	Quantity    decimal.Decimal `json:"quantity"`
	// UnitPrice is denominated in EntryCurrency.
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	EntryCurrency Currency        `json:"entryCurrency"`
	// ResolvedID is the canonical price source identifier, crypto only.
	ResolvedID string `json:"resolvedId,omitempty"`
	// LastRefreshedAt is zero when a price has never been fetched.
	LastRefreshedAt time.Time `json:"lastRefreshedAt"`
	Hidden          bool      `json:"hidden"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Value returns quantity × unit price, denominated in the entry currency.
func (holding *Holding) Value() decimal.Decimal {
	return holding.Quantity.Mul(holding.UnitPrice)
}

// Snapshot records the total portfolio value for one calendar day.
type Snapshot struct {
	// Date is formatted as YYYY-MM-DD, so lexical order is date order.
	Date       string          `json:"date"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// DateFormat is the layout for Snapshot dates.
const DateFormat = "2006-01-02"

// DateOf formats a point in time as a Snapshot date.
func DateOf(point time.Time) string {
	return point.Format(DateFormat)
}
