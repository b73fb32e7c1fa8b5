// Package trend serves the portfolio history API.
package trend

import (
	"net/http"

	"github.com/dense-analysis/networth/internal/portfolio"
	"github.com/dense-analysis/networth/pkg/lax"
)

// Handler bundles the history routes over the portfolio store.
type Handler struct {
	Portfolio *portfolio.Store
	// DemoMode disables migration, since the demo store is thrown away
	// with the process.
	DemoMode bool
}

// History handles GET for the daily net worth series.
func (handler *Handler) History() http.HandlerFunc {
	return lax.Wrap(lax.View{
		Get: func(request *lax.Request) any {
			return handler.Portfolio.History()
		},
	})
}

// Migrate handles POST to push locally recorded history to remote storage.
func (handler *Handler) Migrate() http.HandlerFunc {
	return lax.Wrap(lax.View{
		Post: func(request *lax.Request) any {
			if handler.DemoMode {
				return lax.MakeBadRequestResponse("Cannot migrate in demo mode")
			}

			count, err := handler.Portfolio.MigrateHistory()

			if err != nil {
				return lax.MakeErrorResponse(http.StatusBadGateway, "History sync failed, local data is unchanged")
			}

			return lax.MakeResponse(http.StatusOK, map[string]any{
				"synced": count,
			})
		},
	})
}
