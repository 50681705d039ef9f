package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrNoProvider is returned when the oracle was built without a live
// quote source.
var ErrNoProvider = errors.New("no quote provider configured")

// QuoteProvider fetches a live quote for one symbol. The concrete
// market-data vendor and its credentials live entirely behind this
// interface.
type QuoteProvider interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
	Name() string
}

// HTTPProvider fetches quotes from a REST endpoint that answers
// GET {base}/price?symbol=X with {"symbol": "...", "price": "..."}.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a REST quote client.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Name returns the provider name
func (p *HTTPProvider) Name() string {
	return "http"
}

// FetchPrice fetches the last price for a symbol
func (p *HTTPProvider) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	if p.baseURL == "" {
		return 0, errors.New("quote url not configured")
	}

	url := fmt.Sprintf("%s/price?symbol=%s", p.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote request returned status %d", resp.StatusCode)
	}

	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("malformed quote response: %w", err)
	}

	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed quote price %q: %w", payload.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive quote price %.8f", price)
	}

	return price, nil
}
