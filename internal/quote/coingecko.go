package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/tactician/internal/model"
)

// DefaultBaseURL is the public CoinGecko v3 API.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// MarketsPageSize covers the top instruments by market cap in one request.
const MarketsPageSize = 250

var (
	ErrRateLimited = errors.New("quote: upstream rate limited")
	ErrUpstream    = errors.New("quote: upstream request failed")
)

// CoinGecko fetches USD quotes from the /coins/markets endpoint.
type CoinGecko struct {
	baseURL string
	client  *http.Client
}

// NewCoinGecko creates a client. An empty baseURL uses DefaultBaseURL; a nil
// client uses one with a 10s timeout.
func NewCoinGecko(baseURL string, client *http.Client) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CoinGecko{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// marketRow is the subset of a /coins/markets entry the engine uses.
type marketRow struct {
	ID                       string              `json:"id"`
	Symbol                   string              `json:"symbol"`
	Name                     string              `json:"name"`
	CurrentPrice             decimal.NullDecimal `json:"current_price"`
	PriceChangePercentage24h decimal.NullDecimal `json:"price_change_percentage_24h"`
}

// Quotes fetches the current market page ordered by market cap.
func (c *CoinGecko) Quotes(ctx context.Context) ([]model.Quote, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("order", "market_cap_desc")
	q.Set("per_page", fmt.Sprint(MarketsPageSize))
	q.Set("page", "1")
	q.Set("sparkline", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/coins/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	return decodeMarkets(raw)
}

// decodeMarkets converts a /coins/markets payload into quotes. Rows without
// an id or a price are skipped.
func decodeMarkets(raw []byte) ([]model.Quote, error) {
	var rows []marketRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode markets: %v", ErrUpstream, err)
	}

	quotes := make([]model.Quote, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" || !r.CurrentPrice.Valid {
			continue
		}
		quotes = append(quotes, model.Quote{
			ID:           r.ID,
			Symbol:       r.Symbol,
			Name:         r.Name,
			Price:        r.CurrentPrice.Decimal,
			Change24hPct: r.PriceChangePercentage24h.Decimal,
		})
	}
	return quotes, nil
}
