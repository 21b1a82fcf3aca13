// Package exchangerate fetches FX rates from the exchangerate-api.com
// public endpoint.
package exchangerate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client talks to the exchange rate API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates an exchange rate client. baseURL is the latest-rates
// endpoint root, e.g. "https://api.exchangerate-api.com/v4/latest".
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "exchangerate").Logger(),
	}
}

type ratesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// Rate returns the conversion rate from one currency code to another.
func (c *Client) Rate(from, to string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, from)

	resp, err := c.http.Get(url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch rates for %s: %w", from, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("exchange rate API returned status %d for %s", resp.StatusCode, from)
	}

	var payload ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rates response: %w", err)
	}

	rate, ok := payload.Rates[to]
	if !ok || rate <= 0 {
		return decimal.Zero, fmt.Errorf("no rate from %s to %s", from, to)
	}
	return decimal.NewFromFloat(rate), nil
}
