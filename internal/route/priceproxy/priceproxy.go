// Package priceproxy serves same-origin proxies for external price APIs.
package priceproxy

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dense-analysis/networth/internal/model"
	"github.com/dense-analysis/networth/internal/price"
	"github.com/dense-analysis/networth/pkg/lax"
)

// Handler bundles the proxy routes over the price clients.
type Handler struct {
	Resolver *price.Resolver
}

type cryptoQuote struct {
	Price  decimal.Decimal `json:"price"`
	CoinID string          `json:"coinId"`
}

type stockQuote struct {
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	Currency model.Currency  `json:"currency"`
}

// Crypto handles GET for crypto spot prices.
//
// Callers pass either `coinIds` with comma-separated CoinGecko ids, or
// `symbol` with a ticker to resolve first. The response maps each id to
// its USD price.
func (handler *Handler) Crypto() http.HandlerFunc {
	return lax.Wrap(lax.View{
		Get: func(request *lax.Request) any {
			ctx := request.Context()
			ids := splitIDs(request.Query("coinIds"))

			if len(ids) == 0 {
				symbol := strings.TrimSpace(request.Query("symbol"))

				if symbol == "" {
					return lax.MakeBadRequestResponse("A symbol or coinIds parameter is required")
				}

				id, err := handler.Resolver.Crypto.ResolveID(ctx, symbol)

				if err != nil {
					return proxyError(err)
				}

				ids = []string{id}
			}

			prices, err := handler.Resolver.FetchCryptoPrices(ctx, ids)

			if err != nil {
				return proxyError(err)
			}

			result := map[string]cryptoQuote{}

			for id, unitPrice := range prices {
				result[id] = cryptoQuote{Price: unitPrice, CoinID: id}
			}

			return result
		},
	})
}

// Stock handles GET for stock spot prices.
func (handler *Handler) Stock() http.HandlerFunc {
	return lax.Wrap(lax.View{
		Get: func(request *lax.Request) any {
			symbol := strings.TrimSpace(request.Query("symbol"))

			if symbol == "" {
				return lax.MakeBadRequestResponse("A symbol parameter is required")
			}

			unitPrice, sourceCurrency, err := handler.Resolver.Stocks.FetchQuote(request.Context(), symbol)

			if err != nil {
				return proxyError(err)
			}

			return stockQuote{
				Symbol:   strings.ToUpper(symbol),
				Price:    unitPrice,
				Currency: sourceCurrency,
			}
		},
	})
}

func splitIDs(joined string) []string {
	var ids []string

	for _, id := range strings.Split(joined, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}

func proxyError(err error) any {
	if errors.Is(err, price.ErrSymbolNotFound) {
		return lax.MakeNotFoundResponse()
	}

	if errors.Is(err, price.ErrRateLimited) {
		return lax.MakeErrorResponse(http.StatusTooManyRequests, "Price source rate limit exceeded, try again later")
	}

	return err
}
