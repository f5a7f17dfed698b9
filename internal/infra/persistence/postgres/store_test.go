package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"wastelink/pkg/domain"
)

func TestNewStoreSurfacesOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("no driver") })
	defer restore()
	if _, err := NewStore(context.Background(), "", domain.NewRulesEngine()); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestNewStoreSurfacesPingError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewStore(ctx, "postgres://wastelink@127.0.0.1:1/wastelink?sslmode=disable&connect_timeout=1", domain.NewRulesEngine())
	if err == nil {
		t.Fatalf("expected ping failure against a closed port")
	}
}

// TestStoreRoundTrip runs only when WASTELINK_TEST_POSTGRES_DSN points at a disposable database.
func TestStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("WASTELINK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skipf("WASTELINK_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var requestID int64
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		customer, err := tx.CreateAccount(domain.Account{Role: domain.RoleCustomer, Name: "Ravi", Email: "ravi@example.com", Active: true})
		if err != nil {
			return err
		}
		req, err := tx.CreateRequest(domain.WasteRequest{
			RequestID: "WR-PGTEST-" + customer.ID[:5], CustomerID: customer.ID,
			PickupAddress: "4 Residency Road", PickupCity: "Chennai", PickupDate: "2024-06-01", PickupTime: "08:00",
			Items: []domain.WasteItem{{WasteType: domain.MaterialOrganic, Quantity: 7}},
		})
		requestID = req.ID
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := NewStore(ctx, dsn, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close(ctx) }()
	req, ok := reopened.GetRequest(requestID)
	if !ok || len(req.Items) != 1 || req.Items[0].Quantity != 7 {
		t.Fatalf("request did not survive restart: %+v", req)
	}
	var rows int
	if err := reopened.DB().QueryRowContext(ctx, `SELECT count(*) FROM waste_items WHERE request_id = $1`, requestID).Scan(&rows); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one stored item row, got %d", rows)
	}
}
