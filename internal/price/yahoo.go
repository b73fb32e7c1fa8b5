package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/dense-analysis/networth/internal/model"
)

const defaultYahooURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// The quote source rejects requests without a browser-like user agent.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// YahooClient talks to the stock quote source.
type YahooClient struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
	Limiter   *rate.Limiter
}

// NewYahooClient creates a client for the public chart endpoint.
func NewYahooClient() *YahooClient {
	return &YahooClient{
		BaseURL:   defaultYahooURL,
		UserAgent: browserUserAgent,
		Client:    &http.Client{Timeout: time.Second * 10},
		Limiter:   rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

type chartMeta struct {
	RegularMarketPrice decimal.Decimal `json:"regularMarketPrice"`
	Currency           string          `json:"currency"`
}

type chartResult struct {
	Meta chartMeta `json:"meta"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
	} `json:"chart"`
}

// FetchQuote fetches the current market price for an uppercased ticker,
// along with the currency the source reports the price in.
//
// EUR quotes are kept verbatim; anything else is treated as USD.
func (client *YahooClient) FetchQuote(ctx context.Context, symbol string) (decimal.Decimal, model.Currency, error) {
	if client.Limiter != nil {
		if err := client.Limiter.Wait(ctx); err != nil {
			return decimal.Zero, model.USD, err
		}
	}

	ticker := strings.ToUpper(symbol)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.BaseURL+"/"+ticker, nil)

	if err != nil {
		return decimal.Zero, model.USD, err
	}

	request.Header.Set("User-Agent", client.UserAgent)

	response, err := client.Client.Do(request)

	if err != nil {
		return decimal.Zero, model.USD, err
	}

	defer response.Body.Close()

	if response.StatusCode == http.StatusTooManyRequests {
		return decimal.Zero, model.USD, ErrRateLimited
	}

	if response.StatusCode != http.StatusOK {
		return decimal.Zero, model.USD, fmt.Errorf("stock quote source status %d", response.StatusCode)
	}

	var payload chartResponse

	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return decimal.Zero, model.USD, err
	}

	if len(payload.Chart.Result) == 0 {
		return decimal.Zero, model.USD, ErrSymbolNotFound
	}

	meta := payload.Chart.Result[0].Meta

	if !meta.RegularMarketPrice.IsPositive() {
		return decimal.Zero, model.USD, ErrSymbolNotFound
	}

	quoteCurrency := model.USD

	if meta.Currency == "EUR" {
		quoteCurrency = model.EUR
	}

	return meta.RegularMarketPrice, quoteCurrency, nil
}
