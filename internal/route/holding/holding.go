// Package holding serves the holdings collection API.
package holding

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dense-analysis/networth/internal/model"
	"github.com/dense-analysis/networth/internal/portfolio"
	"github.com/dense-analysis/networth/internal/price"
	"github.com/dense-analysis/networth/pkg/lax"
)

// Handler bundles the holdings routes over the portfolio store.
type Handler struct {
	Portfolio *portfolio.Store
}

type addPayload struct {
	Symbol        string `json:"symbol"`
	DisplayName   string `json:"displayName"`
	Class         string `json:"class"`
	Quantity      string `json:"quantity"`
	ManualPrice   string `json:"manualPrice,omitempty"`
	EntryCurrency string `json:"entryCurrency,omitempty"`
}

type updatePayload struct {
	Quantity    *string `json:"quantity,omitempty"`
	UnitPrice   *string `json:"unitPrice,omitempty"`
	Symbol      *string `json:"symbol,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
}

// Collection handles GET and POST on the holdings list.
func (handler *Handler) Collection() http.HandlerFunc {
	return lax.Wrap(lax.View{
		Get: func(request *lax.Request) any {
			return handler.Portfolio.Holdings()
		},
		Post: handler.add,
	})
}

// Item handles PUT and DELETE on one holding.
func (handler *Handler) Item() http.HandlerFunc {
	return lax.Wrap(lax.View{
		Put:    handler.update,
		Delete: handler.remove,
	})
}

// Hide handles POST to toggle a holding's visibility.
func (handler *Handler) Hide() http.HandlerFunc {
	return lax.Wrap(lax.View{
		Post: func(request *lax.Request) any {
			id, ok := parseID(request)

			if !ok {
				return lax.MakeBadRequestResponse("Invalid holding id")
			}

			holding, err := handler.Portfolio.ToggleHidden(id)

			if err != nil {
				return lax.MakeNotFoundResponse()
			}

			return lax.MakeResponse(http.StatusOK, holding)
		},
	})
}

func parseID(request *lax.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(request.Var("id"))

	return id, err == nil
}

func (handler *Handler) add(request *lax.Request) any {
	var payload addPayload

	if err := request.JSON(&payload); err != nil {
		return lax.MakeBadRequestResponse(err)
	}

	class, err := model.ParseAssetClass(payload.Class)

	if err != nil {
		return lax.MakeBadRequestResponse(err)
	}

	quantity, err := decimal.NewFromString(strings.TrimSpace(payload.Quantity))

	if err != nil {
		return lax.MakeBadRequestResponse("Invalid quantity")
	}

	form := portfolio.AddForm{
		Symbol:      payload.Symbol,
		DisplayName: payload.DisplayName,
		Class:       class,
		Quantity:    quantity,
	}

	if payload.EntryCurrency != "" {
		entryCurrency, err := model.ParseCurrency(payload.EntryCurrency)

		if err != nil {
			return lax.MakeBadRequestResponse(err)
		}

		form.EntryCurrency = entryCurrency
	}

	if payload.ManualPrice != "" {
		manualPrice, err := decimal.NewFromString(strings.TrimSpace(payload.ManualPrice))

		if err != nil {
			return lax.MakeBadRequestResponse("Invalid price")
		}

		form.ManualPrice = &manualPrice
	}

	created, err := handler.Portfolio.AddHolding(request.Context(), form)

	if err != nil {
		if errors.Is(err, price.ErrSymbolNotFound) {
			return lax.MakeBadRequestResponse("Symbol not found")
		}

		if errors.Is(err, price.ErrRateLimited) {
			return lax.MakeErrorResponse(http.StatusTooManyRequests, "Price source rate limit exceeded, try again later")
		}

		return err
	}

	return created
}

func (handler *Handler) update(request *lax.Request) any {
	id, ok := parseID(request)

	if !ok {
		return lax.MakeBadRequestResponse("Invalid holding id")
	}

	var payload updatePayload

	if err := request.JSON(&payload); err != nil {
		return lax.MakeBadRequestResponse(err)
	}

	// Validate every field before applying any, so a bad edit leaves the
	// holding untouched.
	var quantity *decimal.Decimal
	var unitPrice *decimal.Decimal

	if payload.Quantity != nil {
		parsed, err := decimal.NewFromString(strings.TrimSpace(*payload.Quantity))

		if err != nil {
			return lax.MakeBadRequestResponse("Invalid quantity")
		}

		quantity = &parsed
	}

	if payload.UnitPrice != nil {
		parsed, err := decimal.NewFromString(strings.TrimSpace(*payload.UnitPrice))

		if err != nil {
			return lax.MakeBadRequestResponse("Invalid price")
		}

		unitPrice = &parsed
	}

	if payload.Symbol != nil && strings.TrimSpace(*payload.Symbol) == "" {
		return lax.MakeBadRequestResponse("Symbol must not be empty")
	}

	var updated model.Holding
	var err error
	applied := false

	if quantity != nil {
		updated, err = handler.Portfolio.UpdateQuantity(id, *quantity)
		applied = true
	}

	if err == nil && unitPrice != nil {
		updated, err = handler.Portfolio.UpdateUnitPrice(id, *unitPrice)
		applied = true
	}

	if err == nil && payload.Symbol != nil {
		updated, err = handler.Portfolio.UpdateSymbol(id, *payload.Symbol)
		applied = true
	}

	if err == nil && payload.DisplayName != nil {
		updated, err = handler.Portfolio.UpdateDisplayName(id, *payload.DisplayName)
		applied = true
	}

	if err != nil {
		return lax.MakeNotFoundResponse()
	}

	if !applied {
		return lax.MakeBadRequestResponse("No fields to update")
	}

	return updated
}

func (handler *Handler) remove(request *lax.Request) any {
	id, ok := parseID(request)

	if !ok {
		return lax.MakeBadRequestResponse("Invalid holding id")
	}

	if err := handler.Portfolio.DeleteHolding(id); err != nil {
		return lax.MakeNotFoundResponse()
	}

	return lax.MakeResponse(http.StatusNoContent, nil)
}
