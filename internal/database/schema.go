package database

// Decimal columns are stored as TEXT so values round-trip exactly; all
// arithmetic happens in Go on exact decimals. Timestamps are epoch
// milliseconds UTC, snapshot dates are YYYY-MM-DD strings.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id                   TEXT PRIMARY KEY,
    name                 TEXT NOT NULL,
    api_key_encrypted    TEXT NOT NULL DEFAULT '',
    api_secret_encrypted TEXT NOT NULL DEFAULT '',
    last_sync_at         INTEGER,
    sync_status          TEXT NOT NULL DEFAULT 'idle',
    created_at           INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
    id              TEXT PRIMARY KEY,
    account_id      TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    exchange_id     TEXT,
    type            TEXT NOT NULL,
    base_asset      TEXT NOT NULL,
    quote_asset     TEXT,
    quantity        TEXT NOT NULL,
    price           TEXT,
    total_value_usd TEXT,
    fee_asset       TEXT,
    fee_amount      TEXT,
    executed_at     INTEGER NOT NULL,
    raw_data        TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_exchange_id
    ON transactions(exchange_id) WHERE exchange_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_account_asset
    ON transactions(account_id, base_asset, executed_at);
CREATE INDEX IF NOT EXISTS idx_transactions_account_type
    ON transactions(account_id, type, executed_at);

CREATE TABLE IF NOT EXISTS balance_snapshots (
    account_id  TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    asset       TEXT NOT NULL,
    free        TEXT NOT NULL,
    locked      TEXT NOT NULL,
    value_usd   TEXT,
    snapshot_at INTEGER NOT NULL,
    PRIMARY KEY (account_id, asset, snapshot_at)
);

CREATE TABLE IF NOT EXISTS price_history (
    symbol   TEXT NOT NULL,
    interval TEXT NOT NULL,
    open_at  INTEGER NOT NULL,
    open     TEXT NOT NULL,
    high     TEXT NOT NULL,
    low      TEXT NOT NULL,
    close    TEXT NOT NULL,
    volume   TEXT NOT NULL,
    PRIMARY KEY (symbol, interval, open_at)
);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
    account_id         TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    snapshot_date      TEXT NOT NULL,
    total_value_usd    TEXT NOT NULL,
    invested_usd       TEXT NOT NULL,
    pnl_unrealized_usd TEXT NOT NULL,
    pnl_realized_usd   TEXT NOT NULL,
    btc_quantity       TEXT,
    btc_avg_buy_price  TEXT,
    composition        TEXT,
    PRIMARY KEY (account_id, snapshot_date)
);
`
