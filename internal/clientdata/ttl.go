package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Short-lived data (changes frequently)
	TTLCurrentPrice = 15 * time.Minute // Current price cache, matches the quote TTL default
	TTLExchangeRate = time.Hour        // Currency exchange rates

	// Historical windows. A window key changes whenever its bounds change,
	// so these mostly protect against hammering the provider within a session.
	TTLMonthlyCloses  = time.Hour     // Month-end close series
	TTLDividendEvents = 6 * time.Hour // Dividend corporate actions

	// Derived aggregates
	TTLDashboardChart = 15 * time.Minute // Portfolio chart responses per user/period/currency
)
