// Package yahoo provides a market data client for the Yahoo Finance v8 chart API.
// It implements domain.MarketDataProvider: current quotes, month-end closing
// prices, and dividend corporate actions.
package yahoo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/domain"
)

// Client for the Yahoo Finance chart API
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client.
// baseURL is normally "https://query2.finance.yahoo.com"; tests point it at a
// local stub server.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// chartResponse mirrors the subset of the v8 chart payload we consume.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp []int64 `json:"timestamp"`
			Events    struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
			} `json:"events"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// fetchChart performs one chart API request and decodes the response.
func (c *Client) fetchChart(symbol string, params url.Values) (*chartResponse, error) {
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "investrack/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API returned status %d", resp.StatusCode)
	}

	var raw chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %w", err)
	}

	if raw.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error: %s (%s)", raw.Chart.Error.Description, raw.Chart.Error.Code)
	}
	if len(raw.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart result for %s", symbol)
	}

	return &raw, nil
}

// Quote returns the current market price for a symbol.
func (c *Client) Quote(symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", "1d")

	raw, err := c.fetchChart(symbol, params)
	if err != nil {
		return decimal.Zero, err
	}

	price := raw.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return decimal.Zero, fmt.Errorf("no market price for %s", symbol)
	}

	c.log.Debug().Str("symbol", symbol).Float64("price", price).Msg("Fetched quote")
	return decimal.NewFromFloat(price), nil
}

// MonthlyCloses returns month-end closing prices keyed by "YYYY-MM" for the
// window [from, to]. Adjusted closes are preferred; raw closes are the
// fallback. Months where the provider reports no close are absent from the map.
func (c *Client) MonthlyCloses(symbol string, from, to time.Time) (map[string]decimal.Decimal, error) {
	params := url.Values{}
	params.Set("interval", "1mo")
	params.Set("period1", fmt.Sprintf("%d", from.Unix()))
	params.Set("period2", fmt.Sprintf("%d", to.Unix()))

	raw, err := c.fetchChart(symbol, params)
	if err != nil {
		return nil, err
	}

	result := raw.Chart.Result[0]

	// Prefer adjusted closes when the provider includes them
	var closes []*float64
	if len(result.Indicators.AdjClose) > 0 && len(result.Indicators.AdjClose[0].AdjClose) > 0 {
		closes = result.Indicators.AdjClose[0].AdjClose
	} else if len(result.Indicators.Quote) > 0 {
		closes = result.Indicators.Quote[0].Close
	}

	prices := make(map[string]decimal.Decimal, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		monthKey := time.Unix(ts, 0).UTC().Format("2006-01")
		prices[monthKey] = decimal.NewFromFloat(*closes[i])
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("months", len(prices)).
		Msg("Fetched monthly closes")

	return prices, nil
}

// DividendEvents returns dividend corporate actions for the window [from, to],
// sorted ascending by ex-date.
func (c *Client) DividendEvents(symbol string, from, to time.Time) ([]domain.DividendEvent, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("period1", fmt.Sprintf("%d", from.Unix()))
	params.Set("period2", fmt.Sprintf("%d", to.Unix()))
	params.Set("events", "div")

	raw, err := c.fetchChart(symbol, params)
	if err != nil {
		return nil, err
	}

	dividends := raw.Chart.Result[0].Events.Dividends
	events := make([]domain.DividendEvent, 0, len(dividends))
	for _, div := range dividends {
		if div.Amount <= 0 {
			continue
		}
		events = append(events, domain.DividendEvent{
			Date:   time.Unix(div.Date, 0).UTC(),
			Amount: decimal.NewFromFloat(div.Amount),
		})
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})

	c.log.Debug().
		Str("symbol", symbol).
		Int("events", len(events)).
		Msg("Fetched dividend events")

	return events, nil
}
