package store

// schemaStatements is the bootstrap DDL, one statement per table plus the
// indexes that make range queries on trade_date/timestamp prune partitions
// the way a real time-partitioned engine would. Dates are stored as
// YYYY-MM-DD text and timestamps as RFC3339 text, which sqlite compares
// lexicographically in the correct order.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS symbols (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		market TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		industry TEXT NOT NULL DEFAULT '',
		list_date TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE IF NOT EXISTS daily_bars (
		code TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		amount REAL NOT NULL,
		change REAL NOT NULL,
		change_pct REAL NOT NULL,
		turnover_rate REAL NOT NULL,
		PRIMARY KEY (code, trade_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_bars_date ON daily_bars(trade_date)`,

	`CREATE TABLE IF NOT EXISTS minute_bars (
		code TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		amount REAL NOT NULL,
		PRIMARY KEY (code, timestamp)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_minute_bars_ts ON minute_bars(timestamp)`,

	`CREATE TABLE IF NOT EXISTS financials (
		code TEXT NOT NULL,
		end_date TEXT NOT NULL,
		pub_date TEXT NOT NULL,
		revenue REAL NOT NULL,
		net_profit REAL NOT NULL,
		total_asset REAL NOT NULL,
		total_equity REAL NOT NULL,
		eps REAL NOT NULL,
		roe REAL NOT NULL,
		PRIMARY KEY (code, end_date)
	)`,

	`CREATE TABLE IF NOT EXISTS valuations (
		code TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		pe_ttm REAL NOT NULL,
		pb REAL NOT NULL,
		ps REAL NOT NULL,
		peg REAL NOT NULL,
		market_cap REAL NOT NULL,
		dividend_yield REAL NOT NULL,
		PRIMARY KEY (code, trade_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_valuations_date ON valuations(trade_date)`,

	`CREATE TABLE IF NOT EXISTS tech_indicators (
		code TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		ma5 REAL NOT NULL, ma10 REAL NOT NULL, ma20 REAL NOT NULL, ma60 REAL NOT NULL,
		macd REAL NOT NULL, macd_sig REAL NOT NULL, macd_hist REAL NOT NULL,
		rsi14 REAL NOT NULL,
		kdj_k REAL NOT NULL, kdj_d REAL NOT NULL, kdj_j REAL NOT NULL,
		boll_upper REAL NOT NULL, boll_mid REAL NOT NULL, boll_lower REAL NOT NULL,
		cci REAL NOT NULL, atr REAL NOT NULL, obv REAL NOT NULL,
		PRIMARY KEY (code, trade_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tech_indicators_date ON tech_indicators(trade_date)`,

	`CREATE TABLE IF NOT EXISTS fund_flows (
		code TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		main_net_inflow REAL NOT NULL,
		retail_net_inflow REAL NOT NULL,
		PRIMARY KEY (code, trade_date)
	)`,

	`CREATE TABLE IF NOT EXISTS margins (
		code TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		margin_balance REAL NOT NULL,
		short_balance REAL NOT NULL,
		PRIMARY KEY (code, trade_date)
	)`,

	`CREATE TABLE IF NOT EXISTS dragon_tigers (
		code TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		seat_name TEXT NOT NULL,
		buy_amount REAL NOT NULL,
		sell_amount REAL NOT NULL,
		PRIMARY KEY (code, trade_date, seat_name)
	)`,

	`CREATE TABLE IF NOT EXISTS northbound_flows (
		trade_date TEXT PRIMARY KEY,
		net_inflow REAL NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS market_sentiments (
		trade_date TEXT PRIMARY KEY,
		advance_count INTEGER NOT NULL,
		decline_count INTEGER NOT NULL,
		limit_up_count INTEGER NOT NULL,
		limit_down_count INTEGER NOT NULL,
		sentiment_score REAL NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS limit_up_stocks (
		code TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		limit_type TEXT NOT NULL,
		seal_amount REAL NOT NULL,
		PRIMARY KEY (code, trade_date)
	)`,

	`CREATE TABLE IF NOT EXISTS news_articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		publish_time TEXT NOT NULL,
		related_symbols TEXT NOT NULL DEFAULT '',
		embedding BLOB
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_news_source_id ON news_articles(source, source_id) WHERE source_id != ''`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_news_source_url ON news_articles(source, url) WHERE source_id = ''`,
	`CREATE INDEX IF NOT EXISTS idx_news_publish_time ON news_articles(publish_time)`,

	`CREATE TABLE IF NOT EXISTS sectors (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sector_quotes (
		sector_code TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		index_value REAL NOT NULL,
		change_pct REAL NOT NULL,
		PRIMARY KEY (sector_code, trade_date)
	)`,

	`CREATE TABLE IF NOT EXISTS watchlist (
		code TEXT PRIMARY KEY
	)`,

	`CREATE TABLE IF NOT EXISTS sync_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_name TEXT NOT NULL,
		target_code TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_retry_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		resolved_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_errors_key ON sync_errors(task_name, target_code, resolved_at)`,

	`CREATE TABLE IF NOT EXISTS doctor_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		report_json TEXT NOT NULL
	)`,
}
