package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const defaultRateURL = "https://api.exchangerate-api.com/v4/latest/USD"

// RateClient fetches the latest EUR-per-USD exchange rate.
type RateClient struct {
	BaseURL string
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewRateClient creates a client for the default rate source.
func NewRateClient() *RateClient {
	return &RateClient{
		BaseURL: defaultRateURL,
		Client:  &http.Client{Timeout: time.Second * 10},
		Limiter: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
}

type rateResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// FetchEURRate fetches the current EUR rate for one USD.
func (client *RateClient) FetchEURRate(ctx context.Context) (decimal.Decimal, error) {
	if client.Limiter != nil {
		if err := client.Limiter.Wait(ctx); err != nil {
			return decimal.Zero, err
		}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.BaseURL, nil)

	if err != nil {
		return decimal.Zero, err
	}

	response, err := client.Client.Do(request)

	if err != nil {
		return decimal.Zero, err
	}

	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate source status %d", response.StatusCode)
	}

	var payload rateResponse

	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return decimal.Zero, err
	}

	eurRate, ok := payload.Rates["EUR"]

	if !ok || !eurRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("rate source returned no usable EUR rate")
	}

	return eurRate, nil
}

// RefreshRate fetches a new rate unless the cached one is still fresh.
//
// A fetch failure keeps the previous rate, so readers never see a gap.
func (converter *Converter) RefreshRate(ctx context.Context, client *RateClient) (bool, error) {
	if converter.RateFresh() {
		return false, nil
	}

	eurRate, err := client.FetchEURRate(ctx)

	if err != nil {
		return false, err
	}

	converter.SetRate(eurRate, converter.now())

	return true, nil
}
