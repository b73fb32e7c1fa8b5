// Package dashboard serves the portfolio summary API.
package dashboard

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dense-analysis/networth/internal/model"
	"github.com/dense-analysis/networth/internal/portfolio"
	"github.com/dense-analysis/networth/internal/session"
	"github.com/dense-analysis/networth/pkg/lax"
)

// Handler bundles the summary and preference routes.
type Handler struct {
	Portfolio *portfolio.Store
}

type summary struct {
	TotalValue      decimal.Decimal    `json:"totalValue"`
	DisplayCurrency model.Currency     `json:"displayCurrency"`
	FormattedTotal  string             `json:"formattedTotal"`
	ExchangeRate    decimal.Decimal    `json:"exchangeRate"`
	LastUpdate      string             `json:"lastUpdate,omitempty"`
	Allocation      []portfolio.Bucket `json:"allocation"`
}

// Summary handles GET for portfolio totals and allocation.
//
// The `group` query parameter selects allocation buckets by asset class
// (the default) or by symbol.
func (handler *Handler) Summary() http.HandlerFunc {
	return lax.Wrap(lax.View{
		Get: func(request *lax.Request) any {
			mode := portfolio.ByClass

			switch request.Query("group") {
			case "", "class":
			case "symbol":
				mode = portfolio.BySymbol
			default:
				return lax.MakeBadRequestResponse("Unknown allocation grouping")
			}

			converter := handler.Portfolio.Converter()
			total := handler.Portfolio.TotalValue()
			result := summary{
				TotalValue:      total,
				DisplayCurrency: converter.DisplayCurrency(),
				FormattedTotal:  converter.FormatValue(total),
				ExchangeRate:    converter.Rate(),
				Allocation:      handler.Portfolio.Allocation(mode),
			}

			if lastUpdated := handler.Portfolio.LastUpdated(); !lastUpdated.IsZero() {
				result.LastUpdate = lastUpdated.Format("2006-01-02 15:04:05")
			}

			return result
		},
	})
}

// Refresh handles POST to run a price refresh cycle immediately.
func (handler *Handler) Refresh() http.HandlerFunc {
	return lax.Wrap(lax.View{
		Post: func(request *lax.Request) any {
			refreshed := handler.Portfolio.RefreshPrices(request.Context())

			return lax.MakeResponse(http.StatusOK, map[string]any{
				"refreshed": refreshed,
			})
		},
	})
}

type currencyPayload struct {
	Currency string `json:"currency"`
}

// Currency handles GET and PUT for the display currency preference.
//
// The preference is saved in the session cookie as well as the portfolio
// store, so it survives both server restarts and wiped data directories.
// A cookie that disagrees with the server is adopted on read, so the
// reported currency always matches how totals render.
func (handler *Handler) Currency() http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")

		switch request.Method {
		case http.MethodGet:
			display := handler.Portfolio.Converter().DisplayCurrency()

			if saved, ok := session.DisplayCurrency(request); ok && saved != display {
				handler.Portfolio.SetDisplayCurrency(saved)
				display = saved
			}

			json.NewEncoder(writer).Encode(currencyPayload{Currency: string(display)})
		case http.MethodPut:
			var payload currencyPayload

			if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
				writer.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(writer).Encode(map[string]string{"error": "Invalid JSON"})

				return
			}

			display, err := model.ParseCurrency(payload.Currency)

			if err != nil {
				writer.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(writer).Encode(map[string]string{"error": err.Error()})

				return
			}

			handler.Portfolio.SetDisplayCurrency(display)

			if err := session.SaveDisplayCurrency(writer, request, display); err != nil {
				logrus.WithError(err).Warn("failed to save currency preference cookie")
			}

			json.NewEncoder(writer).Encode(currencyPayload{Currency: string(display)})
		default:
			writer.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}
