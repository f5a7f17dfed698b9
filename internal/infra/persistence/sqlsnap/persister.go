// Package sqlsnap persists memory store snapshots into a normalized
// relational schema shared by the SQLite and Postgres backends. Every Save
// rewrites all tables inside one SQL transaction so the database always holds
// exactly one complete snapshot.
package sqlsnap

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"wastelink/internal/infra/persistence/memory"
	"wastelink/pkg/domain"
)

var _ memory.Persister = (*Persister)(nil)

const (
	metaVersion       = "version"
	metaNextRequestID = "next_request_id"
	metaNextItemID    = "next_item_id"

	insertBatchSize = 100
)

// Persister implements memory.Persister on a *sql.DB.
type Persister struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

// New applies the dialect schema to db and returns a persister bound to it.
// The persister owns db and closes it on Close.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Persister, error) {
	p := &Persister{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
	}
	if err := p.Migrate(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Migrate applies the idempotent schema.
func (p *Persister) Migrate(ctx context.Context) error {
	for _, stmt := range p.dialect.Schema() {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s schema: %w", p.dialect.Name, err)
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (p *Persister) DB() *sql.DB { return p.db }

// Close releases the database handle.
func (p *Persister) Close() error { return p.db.Close() }

type accountRow struct {
	ID        string   `db:"id"`
	Role      string   `db:"role"`
	Name      string   `db:"name"`
	Email     string   `db:"email"`
	Phone     string   `db:"phone"`
	Address   string   `db:"address"`
	City      string   `db:"city"`
	Latitude  *float64 `db:"latitude"`
	Longitude *float64 `db:"longitude"`
	Active    bool     `db:"active"`
	CreatedAt string   `db:"created_at"`
	UpdatedAt string   `db:"updated_at"`
}

type priceRow struct {
	AccountID string  `db:"account_id"`
	Material  string  `db:"material"`
	Price     float64 `db:"price"`
}

type requestRow struct {
	ID                  int64   `db:"id"`
	RequestID           string  `db:"request_id"`
	CustomerID          string  `db:"customer_id"`
	CollectorID         *string `db:"collector_id"`
	PickupAddress       string  `db:"pickup_address"`
	PickupCity          string  `db:"pickup_city"`
	PickupDate          string  `db:"pickup_date"`
	PickupTime          string  `db:"pickup_time"`
	SpecialInstructions string  `db:"special_instructions"`
	Status              string  `db:"status"`
	CreatedAt           string  `db:"created_at"`
	UpdatedAt           string  `db:"updated_at"`
}

type itemRow struct {
	ID        int64   `db:"id"`
	RequestID int64   `db:"request_id"`
	WasteType string  `db:"waste_type"`
	Quantity  float64 `db:"quantity"`
}

type metaRow struct {
	Key   string `db:"meta_key"`
	Value string `db:"meta_value"`
}

var (
	accountColumns = []string{"id", "role", "name", "email", "phone", "address", "city", "latitude", "longitude", "active", "created_at", "updated_at"}
	priceColumns   = []string{"account_id", "material", "price"}
	requestColumns = []string{
		"id", "request_id", "customer_id", "collector_id", "pickup_address", "pickup_city",
		"pickup_date", "pickup_time", "special_instructions", "status", "created_at", "updated_at",
	}
	itemColumns = []string{"id", "request_id", "waste_type", "quantity"}
	metaColumns = []string{"meta_key", "meta_value"}
)

// Save replaces the stored dataset with snapshot.
func (p *Persister) Save(ctx context.Context, snapshot memory.Snapshot) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, table := range deleteOrder {
		query, args, buildErr := p.sb.Delete(table).ToSql()
		if buildErr != nil {
			return buildErr
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	accounts, prices := accountValues(snapshot.Accounts)
	if err = p.insert(ctx, tx, tableAccounts, accountColumns, accounts); err != nil {
		return err
	}
	if err = p.insert(ctx, tx, tablePrices, priceColumns, prices); err != nil {
		return err
	}
	if err = p.insert(ctx, tx, tableRequests, requestColumns, requestValues(snapshot.Requests)); err != nil {
		return err
	}
	if err = p.insert(ctx, tx, tableItems, itemColumns, itemValues(snapshot.Items)); err != nil {
		return err
	}
	meta := [][]any{
		{metaVersion, strconv.Itoa(memory.SnapshotVersion)},
		{metaNextRequestID, strconv.FormatInt(snapshot.NextRequestID, 10)},
		{metaNextItemID, strconv.FormatInt(snapshot.NextItemID, 10)},
	}
	if err = p.insert(ctx, tx, tableMeta, metaColumns, meta); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Persister) insert(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		builder := p.sb.Insert(table).Columns(columns...)
		for _, row := range rows[start:end] {
			builder = builder.Values(row...)
		}
		query, args, err := builder.ToSql()
		if err != nil {
			return fmt.Errorf("build insert %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func accountValues(accounts map[string]domain.Account) (accountRows, priceRows [][]any) {
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := accounts[id]
		accountRows = append(accountRows, []any{
			id, string(a.Role), a.Name, a.Email, a.Phone, a.Address, a.City,
			nullFloat(a.Latitude), nullFloat(a.Longitude), a.Active, formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
		})
		materials := make([]string, 0, len(a.Prices))
		for m := range a.Prices {
			materials = append(materials, string(m))
		}
		sort.Strings(materials)
		for _, m := range materials {
			priceRows = append(priceRows, []any{id, m, a.Prices[domain.Material(m)]})
		}
	}
	return accountRows, priceRows
}

func requestValues(requests map[int64]domain.WasteRequest) [][]any {
	ids := sortedKeys(requests)
	rows := make([][]any, 0, len(ids))
	for _, id := range ids {
		r := requests[id]
		rows = append(rows, []any{
			id, r.RequestID, r.CustomerID, nullString(r.CollectorID), r.PickupAddress, r.PickupCity,
			r.PickupDate, r.PickupTime, r.SpecialInstructions, string(r.Status),
			formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		})
	}
	return rows
}

func itemValues(items map[int64]domain.WasteItem) [][]any {
	ids := sortedKeys(items)
	rows := make([][]any, 0, len(ids))
	for _, id := range ids {
		it := items[id]
		rows = append(rows, []any{id, it.RequestID, string(it.WasteType), it.Quantity})
	}
	return rows
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Load reads the stored snapshot. ok is false when nothing has been saved yet.
func (p *Persister) Load(ctx context.Context) (memory.Snapshot, bool, error) {
	var meta []metaRow
	if err := p.selectAll(ctx, &meta, tableMeta, "meta_key", metaColumns); err != nil {
		return memory.Snapshot{}, false, err
	}
	if len(meta) == 0 {
		return memory.Snapshot{}, false, nil
	}
	snapshot := memory.Snapshot{
		Accounts: map[string]domain.Account{},
		Requests: map[int64]domain.WasteRequest{},
		Items:    map[int64]domain.WasteItem{},
	}
	for _, m := range meta {
		switch m.Key {
		case metaVersion:
			v, err := strconv.Atoi(m.Value)
			if err != nil {
				return memory.Snapshot{}, false, fmt.Errorf("decode snapshot version: %w", err)
			}
			if v > memory.SnapshotVersion {
				return memory.Snapshot{}, false, fmt.Errorf("snapshot version %d is newer than supported %d", v, memory.SnapshotVersion)
			}
			snapshot.Version = v
		case metaNextRequestID, metaNextItemID:
			n, err := strconv.ParseInt(m.Value, 10, 64)
			if err != nil {
				return memory.Snapshot{}, false, fmt.Errorf("decode %s: %w", m.Key, err)
			}
			if m.Key == metaNextRequestID {
				snapshot.NextRequestID = n
			} else {
				snapshot.NextItemID = n
			}
		}
	}

	var accounts []accountRow
	if err := p.selectAll(ctx, &accounts, tableAccounts, "id", accountColumns); err != nil {
		return memory.Snapshot{}, false, err
	}
	for _, row := range accounts {
		a, err := row.toDomain()
		if err != nil {
			return memory.Snapshot{}, false, err
		}
		snapshot.Accounts[a.ID] = a
	}
	var prices []priceRow
	if err := p.selectAll(ctx, &prices, tablePrices, "account_id, material", priceColumns); err != nil {
		return memory.Snapshot{}, false, err
	}
	for _, row := range prices {
		a, ok := snapshot.Accounts[row.AccountID]
		if !ok {
			continue
		}
		if a.Prices == nil {
			a.Prices = map[domain.Material]float64{}
		}
		a.Prices[domain.Material(row.Material)] = row.Price
		snapshot.Accounts[row.AccountID] = a
	}

	var requests []requestRow
	if err := p.selectAll(ctx, &requests, tableRequests, "id", requestColumns); err != nil {
		return memory.Snapshot{}, false, err
	}
	for _, row := range requests {
		r, err := row.toDomain()
		if err != nil {
			return memory.Snapshot{}, false, err
		}
		snapshot.Requests[r.ID] = r
	}
	var items []itemRow
	if err := p.selectAll(ctx, &items, tableItems, "id", itemColumns); err != nil {
		return memory.Snapshot{}, false, err
	}
	for _, row := range items {
		snapshot.Items[row.ID] = domain.WasteItem{
			ID:        row.ID,
			RequestID: row.RequestID,
			WasteType: domain.Material(row.WasteType),
			Quantity:  row.Quantity,
		}
	}
	return snapshot, true, nil
}

func (p *Persister) selectAll(ctx context.Context, dst any, table, orderBy string, columns []string) error {
	query, args, err := p.sb.Select(columns...).From(table).OrderBy(orderBy).ToSql()
	if err != nil {
		return fmt.Errorf("build select %s: %w", table, err)
	}
	if err := sqlscan.Select(ctx, p.db, dst, query, args...); err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	return nil
}

func (row accountRow) toDomain() (domain.Account, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %s created_at: %w", row.ID, err)
	}
	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %s updated_at: %w", row.ID, err)
	}
	return domain.Account{
		Base:      domain.Base{ID: row.ID, CreatedAt: created, UpdatedAt: updated},
		Role:      domain.Role(row.Role),
		Name:      row.Name,
		Email:     row.Email,
		Phone:     row.Phone,
		Address:   row.Address,
		City:      row.City,
		Latitude:  row.Latitude,
		Longitude: row.Longitude,
		Active:    row.Active,
	}, nil
}

func (row requestRow) toDomain() (domain.WasteRequest, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return domain.WasteRequest{}, fmt.Errorf("request %d created_at: %w", row.ID, err)
	}
	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return domain.WasteRequest{}, fmt.Errorf("request %d updated_at: %w", row.ID, err)
	}
	return domain.WasteRequest{
		ID:                  row.ID,
		RequestID:           row.RequestID,
		CustomerID:          row.CustomerID,
		CollectorID:         row.CollectorID,
		PickupAddress:       row.PickupAddress,
		PickupCity:          row.PickupCity,
		PickupDate:          row.PickupDate,
		PickupTime:          row.PickupTime,
		SpecialInstructions: row.SpecialInstructions,
		Status:              domain.RequestStatus(row.Status),
		CreatedAt:           created,
		UpdatedAt:           updated,
	}, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }
