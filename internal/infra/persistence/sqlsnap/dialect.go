package sqlsnap

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the per-engine differences of the normalized schema.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat
	BigInt      string
	Float       string
}

var (
	// SQLite targets modernc.org/sqlite.
	SQLite = Dialect{Name: "sqlite", Placeholder: sq.Question, BigInt: "INTEGER", Float: "REAL"}
	// Postgres targets pgx through database/sql.
	Postgres = Dialect{Name: "postgres", Placeholder: sq.Dollar, BigInt: "BIGINT", Float: "DOUBLE PRECISION"}
)

const (
	tableAccounts = "accounts"
	tablePrices   = "account_prices"
	tableRequests = "waste_requests"
	tableItems    = "waste_items"
	tableMeta     = "snapshot_meta"
)

// deleteOrder lists tables children first so foreign keys hold while clearing.
var deleteOrder = []string{tableItems, tableRequests, tablePrices, tableAccounts, tableMeta}

// Schema returns the idempotent DDL statements for the dialect.
func (d Dialect) Schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	role TEXT NOT NULL CHECK (role IN ('customer', 'collector')),
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	latitude %s NULL,
	longitude %s NULL,
	active BOOLEAN NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`, tableAccounts, d.Float, d.Float),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	account_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
	material TEXT NOT NULL,
	price %s NOT NULL CHECK (price >= 0),
	PRIMARY KEY (account_id, material)
)`, tablePrices, tableAccounts, d.Float),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s PRIMARY KEY,
	request_id TEXT NOT NULL UNIQUE,
	customer_id TEXT NOT NULL REFERENCES %s(id),
	collector_id TEXT NULL REFERENCES %s(id),
	pickup_address TEXT NOT NULL,
	pickup_city TEXT NOT NULL,
	pickup_date TEXT NOT NULL,
	pickup_time TEXT NOT NULL,
	special_instructions TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK (status IN ('pending', 'assigned', 'in_progress', 'completed', 'cancelled')),
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`, tableRequests, d.BigInt, tableAccounts, tableAccounts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s PRIMARY KEY,
	request_id %s NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
	waste_type TEXT NOT NULL,
	quantity %s NOT NULL CHECK (quantity > 0)
)`, tableItems, d.BigInt, d.BigInt, tableRequests, d.Float),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_customer ON %s(customer_id)`, tableRequests, tableRequests),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_collector ON %s(collector_id)`, tableRequests, tableRequests),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_request ON %s(request_id)`, tableItems, tableItems),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	meta_key TEXT PRIMARY KEY,
	meta_value TEXT NOT NULL
)`, tableMeta),
	}
}
