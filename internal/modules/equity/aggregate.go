package equity

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/domain"
)

// InstrumentSeries pairs one instrument's monthly series with its currency.
type InstrumentSeries struct {
	Currency domain.Currency
	Points   []Point
}

// Aggregate merges per-instrument series into one portfolio series in the
// display currency. For each month present in any input series, values and
// invested amounts are summed per currency bucket, then each bucket is
// converted at that month's point in time and the converted sums added
// together. Output is chronological.
func Aggregate(series []InstrumentSeries, display domain.Currency, converter domain.CurrencyConverter) ([]Point, error) {
	type bucket struct {
		value    decimal.Decimal
		invested decimal.Decimal
	}
	months := make(map[string]map[domain.Currency]*bucket)

	for _, s := range series {
		for _, p := range s.Points {
			byCurrency, ok := months[p.Month]
			if !ok {
				byCurrency = make(map[domain.Currency]*bucket)
				months[p.Month] = byCurrency
			}
			b, ok := byCurrency[s.Currency]
			if !ok {
				b = &bucket{value: decimal.Zero, invested: decimal.Zero}
				byCurrency[s.Currency] = b
			}
			b.value = b.value.Add(p.Value)
			b.invested = b.invested.Add(p.Invested)
		}
	}

	result := make([]Point, 0, len(months))
	for month, byCurrency := range months {
		asOf, err := time.Parse(monthKeyFormat, month)
		if err != nil {
			return nil, fmt.Errorf("invalid month key %q: %w", month, err)
		}

		total := decimal.Zero
		invested := decimal.Zero
		for currency, b := range byCurrency {
			value, err := converter.Convert(b.value, currency, display, asOf)
			if err != nil {
				return nil, fmt.Errorf("failed to convert %s for %s: %w", currency, month, err)
			}
			inv, err := converter.Convert(b.invested, currency, display, asOf)
			if err != nil {
				return nil, fmt.Errorf("failed to convert %s for %s: %w", currency, month, err)
			}
			total = total.Add(value)
			invested = invested.Add(inv)
		}

		result = append(result, Point{
			Month:    month,
			Value:    total.Round(2),
			Invested: invested.Round(2),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		a, _ := time.Parse(monthKeyFormat, result[i].Month)
		b, _ := time.Parse(monthKeyFormat, result[j].Month)
		return a.Before(b)
	})
	return result, nil
}

// Period names accepted by FilterPeriod.
const (
	PeriodSixMonths   = "6-months"
	PeriodCurrentYear = "current-year"
	PeriodLastYear    = "last-year"
	PeriodFiveYears   = "5-years"
	PeriodAllTime     = "all-time"
)

// ValidPeriod reports whether period is one of the accepted period names.
func ValidPeriod(period string) bool {
	switch period {
	case PeriodSixMonths, PeriodCurrentYear, PeriodLastYear, PeriodFiveYears, PeriodAllTime:
		return true
	}
	return false
}

// FilterPeriod keeps the points of a chronological series that fall inside
// the named period, evaluated relative to now. Unknown period names behave
// like all-time.
func FilterPeriod(points []Point, period string, now time.Time) []Point {
	var from, to time.Time
	switch period {
	case PeriodSixMonths:
		from = monthStart(now.AddDate(0, -5, 0))
	case PeriodCurrentYear:
		from = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	case PeriodLastYear:
		from = time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, time.UTC)
		to = time.Date(now.Year()-1, 12, 1, 0, 0, 0, 0, time.UTC)
	case PeriodFiveYears:
		from = monthStart(now.AddDate(-5, 0, 0))
	default:
		return points
	}

	var out []Point
	for _, p := range points {
		m, err := time.Parse(monthKeyFormat, p.Month)
		if err != nil {
			continue
		}
		if m.Before(from) {
			continue
		}
		if !to.IsZero() && m.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out
}
