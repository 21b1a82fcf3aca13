package database

// schemas maps database names to their embedded schema.
// All statements are idempotent so Migrate can run on every startup.
//
// Conventions:
//   - IDs are UUID strings.
//   - Monetary and quantity values are stored as TEXT and parsed with
//     shopspring/decimal, so no precision is lost round-tripping.
//   - Dates are stored as Unix milliseconds. Dividend synchronization matches
//     provider ex-dates against stored dates at millisecond precision, so the
//     storage must not truncate below that.
var schemas = map[string]string{
	"app": `
CREATE TABLE IF NOT EXISTS investments (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    symbol        TEXT NOT NULL,
    name          TEXT NOT NULL,
    type          TEXT NOT NULL,
    currency      TEXT NOT NULL DEFAULT 'USD',
    current_price TEXT NOT NULL DEFAULT '0',
    shares        TEXT NOT NULL DEFAULT '0',
    created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_investments_user ON investments(user_id);
CREATE INDEX IF NOT EXISTS idx_investments_symbol ON investments(symbol);

CREATE TABLE IF NOT EXISTS transactions (
    id            TEXT PRIMARY KEY,
    investment_id TEXT NOT NULL REFERENCES investments(id) ON DELETE CASCADE,
    type          TEXT NOT NULL CHECK (type IN ('BUY', 'SELL')),
    quantity      TEXT NOT NULL,
    price         TEXT NOT NULL,
    date          INTEGER NOT NULL,
    tax           TEXT,
    observation   TEXT,
    created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_investment_date ON transactions(investment_id, date);

CREATE TABLE IF NOT EXISTS dividends (
    id            TEXT PRIMARY KEY,
    investment_id TEXT NOT NULL REFERENCES investments(id) ON DELETE CASCADE,
    amount        TEXT NOT NULL,
    date          INTEGER NOT NULL,
    tax           TEXT,
    observation   TEXT,
    created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dividends_investment_date ON dividends(investment_id, date);

CREATE TABLE IF NOT EXISTS sell_gain_loss (
    id                   TEXT PRIMARY KEY,
    investment_id        TEXT NOT NULL REFERENCES investments(id) ON DELETE CASCADE,
    transaction_id       TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
    realized_profit_loss TEXT NOT NULL,
    created_at           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sell_gain_loss_investment ON sell_gain_loss(investment_id);
`,

	"client_data": `
CREATE TABLE IF NOT EXISTS current_prices (
    symbol     TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prices_expires ON current_prices(expires_at);

CREATE TABLE IF NOT EXISTS monthly_closes (
    window     TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_closes_expires ON monthly_closes(expires_at);

CREATE TABLE IF NOT EXISTS dividend_events (
    window     TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_expires ON dividend_events(expires_at);

CREATE TABLE IF NOT EXISTS exchangerate (
    pair       TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exchangerate_expires ON exchangerate(expires_at);

CREATE TABLE IF NOT EXISTS dashboard_chart (
    cache_key  TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dashboard_expires ON dashboard_chart(expires_at);
`,
}

// Schema returns the embedded schema for a database name.
// Used by tests to create the same tables against an in-memory database.
func Schema(name string) string {
	return schemas[name]
}
