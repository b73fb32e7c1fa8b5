package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const defaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// CoinGeckoClient talks to the crypto price source.
type CoinGeckoClient struct {
	BaseURL string
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewCoinGeckoClient creates a client for the public CoinGecko API.
//
// The free tier rate limits aggressively, so outbound calls are throttled.
func NewCoinGeckoClient() *CoinGeckoClient {
	return &CoinGeckoClient{
		BaseURL: defaultCoinGeckoURL,
		Client:  &http.Client{Timeout: time.Second * 10},
		Limiter: rate.NewLimiter(rate.Every(time.Second*2), 5),
	}
}

type searchCoin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type searchResponse struct {
	Coins []searchCoin `json:"coins"`
}

type simplePrice struct {
	USD decimal.Decimal `json:"usd"`
}

func (client *CoinGeckoClient) get(ctx context.Context, path string, out any) error {
	if client.Limiter != nil {
		if err := client.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.BaseURL+path, nil)

	if err != nil {
		return err
	}

	response, err := client.Client.Do(request)

	if err != nil {
		return err
	}

	defer response.Body.Close()

	if response.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("crypto price source status %d", response.StatusCode)
	}

	return json.NewDecoder(response.Body).Decode(out)
}

// ResolveID finds the canonical identifier for a crypto symbol.
//
// The first case-insensitive exact symbol match wins.
func (client *CoinGeckoClient) ResolveID(ctx context.Context, symbol string) (string, error) {
	var results searchResponse
	path := "/search?query=" + url.QueryEscape(symbol)

	if err := client.get(ctx, path, &results); err != nil {
		return "", err
	}

	for _, coin := range results.Coins {
		if strings.EqualFold(coin.Symbol, symbol) {
			return coin.ID, nil
		}
	}

	return "", ErrSymbolNotFound
}

// FetchPrices fetches current USD prices for resolved identifiers in one
// request, keyed by comma-joined identifiers.
func (client *CoinGeckoClient) FetchPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	var results map[string]simplePrice
	path := "/simple/price?ids=" + url.QueryEscape(strings.Join(ids, ",")) + "&vs_currencies=usd"

	if err := client.get(ctx, path, &results); err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(results))

	for id, entry := range results {
		prices[id] = entry.USD
	}

	return prices, nil
}
