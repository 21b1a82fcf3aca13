package yahoo

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("range"))
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"regularMarketPrice":187.44,"regularMarketTime":1714000000}}],"error":null}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())

	price, err := client.Quote("AAPL")
	require.NoError(t, err)
	assert.Equal(t, "187.44", price.String())
}

func TestQuoteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())

	_, err := client.Quote("NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No data found")
}

func TestQuoteHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())

	_, err := client.Quote("AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestMonthlyCloses(t *testing.T) {
	// Timestamps for 2024-01-01 and 2024-02-01 UTC
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1mo", r.URL.Query().Get("interval"))
		fmt.Fprint(w, `{"chart":{"result":[{
			"meta":{"regularMarketPrice":190.0},
			"timestamp":[1704067200,1706745600,1709251200],
			"indicators":{
				"quote":[{"close":[185.0,null,188.5]}],
				"adjclose":[{"adjclose":[184.2,null,188.1]}]
			}
		}],"error":null}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	closes, err := client.MonthlyCloses("AAPL", from, to)
	require.NoError(t, err)

	// Adjusted closes win; null entries are skipped
	assert.Len(t, closes, 2)
	assert.Equal(t, "184.2", closes["2024-01"].String())
	assert.Equal(t, "188.1", closes["2024-03"].String())
	_, ok := closes["2024-02"]
	assert.False(t, ok)
}

func TestDividendEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "div", r.URL.Query().Get("events"))
		fmt.Fprint(w, `{"chart":{"result":[{
			"meta":{"regularMarketPrice":190.0},
			"events":{"dividends":{
				"1715299200":{"amount":0.25,"date":1715299200},
				"1707350400":{"amount":0.24,"date":1707350400}
			}}
		}],"error":null}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	events, err := client.DividendEvents("AAPL", from, to)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Sorted ascending by ex-date
	assert.Equal(t, "0.24", events[0].Amount.String())
	assert.Equal(t, "0.25", events[1].Amount.String())
	assert.True(t, events[0].Date.Before(events[1].Date))
}
