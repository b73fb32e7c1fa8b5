// Package price resolves current unit prices for holdings from external
// market data sources.
package price

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dense-analysis/networth/internal/model"
)

// ErrSymbolNotFound means a symbol could not be matched at the price source.
var ErrSymbolNotFound = errors.New("symbol not found")

// ErrRateLimited means the price source refused the request with HTTP 429.
var ErrRateLimited = errors.New("price source rate limit exceeded")

// Quote is the result of resolving a price for one symbol.
type Quote struct {
	UnitPrice decimal.Decimal
	// ResolvedID is set for crypto quotes so later refreshes skip the
	// symbol search.
	ResolvedID string
	// SourceCurrency is the currency UnitPrice is denominated in, exactly
	// as the source reported it.
	SourceCurrency model.Currency
}

// Resolver resolves prices for every supported asset class.
type Resolver struct {
	Crypto *CoinGeckoClient
	Stocks *YahooClient
}

// NewResolver creates a resolver backed by the default price sources.
func NewResolver() *Resolver {
	return &Resolver{
		Crypto: NewCoinGeckoClient(),
		Stocks: NewYahooClient(),
	}
}

// Resolve fetches the current unit price for a symbol.
//
// knownID skips the crypto symbol search when it was resolved before.
// cashCurrency sets the entry currency for cash holdings; it defaults to USD.
func (resolver *Resolver) Resolve(
	ctx context.Context,
	symbol string,
	class model.AssetClass,
	knownID string,
	cashCurrency model.Currency,
) (Quote, error) {
	switch class {
	case model.ClassCrypto:
		id := knownID

		if id == "" {
			var err error
			id, err = resolver.Crypto.ResolveID(ctx, symbol)

			if err != nil {
				return Quote{}, err
			}
		}

		prices, err := resolver.Crypto.FetchPrices(ctx, []string{id})

		if err != nil {
			return Quote{}, err
		}

		unitPrice, ok := prices[id]

		if !ok || !unitPrice.IsPositive() {
			return Quote{}, ErrSymbolNotFound
		}

		return Quote{UnitPrice: unitPrice, ResolvedID: id, SourceCurrency: model.USD}, nil
	case model.ClassStock:
		unitPrice, sourceCurrency, err := resolver.Stocks.FetchQuote(ctx, strings.ToUpper(symbol))

		if err != nil {
			return Quote{}, err
		}

		return Quote{UnitPrice: unitPrice, SourceCurrency: sourceCurrency}, nil
	default:
		if cashCurrency != model.USD && cashCurrency != model.EUR {
			cashCurrency = model.USD
		}

		return Quote{UnitPrice: decimal.NewFromInt(1), SourceCurrency: cashCurrency}, nil
	}
}

// FetchCryptoPrices fetches USD prices for a batch of resolved identifiers.
func (resolver *Resolver) FetchCryptoPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	return resolver.Crypto.FetchPrices(ctx, ids)
}
