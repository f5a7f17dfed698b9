package core

import (
	"context"
	"strconv"
	"testing"

	"wastelink/pkg/domain"
)

func TestRegisterAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := f.svc.Directory()

	if f.customer.ID == "" || !f.customer.Active || f.customer.Role != domain.RoleCustomer {
		t.Fatalf("unexpected customer %+v", f.customer)
	}
	if f.collector.Prices[domain.MaterialPlastic] != 12.5 {
		t.Fatalf("collector prices not stored: %+v", f.collector.Prices)
	}

	cases := []struct {
		name  string
		input RegisterAccountInput
		kind  domain.ErrorKind
	}{
		{"duplicate email", RegisterAccountInput{Role: domain.RoleCustomer, Name: "Ada Again", Email: "ADA@example.com "}, domain.KindConflict},
		{"unknown role", RegisterAccountInput{Role: "admin", Name: "Root", Email: "root@example.com"}, domain.KindInvalidInput},
		{"missing name", RegisterAccountInput{Role: domain.RoleCustomer, Email: "anon@example.com"}, domain.KindInvalidInput},
		{"missing email", RegisterAccountInput{Role: domain.RoleCustomer, Name: "Anon"}, domain.KindInvalidInput},
		{"customer with prices", RegisterAccountInput{Role: domain.RoleCustomer, Name: "Trader", Email: "t@example.com", Prices: map[Material]float64{domain.MaterialPaper: 1}}, domain.KindInvalidInput},
		{"negative price", RegisterAccountInput{Role: domain.RoleCollector, Name: "Cheap", Email: "cheap@example.com", Prices: map[Material]float64{domain.MaterialPaper: -1}}, domain.KindInvalidInput},
		{"unknown material price", RegisterAccountInput{Role: domain.RoleCollector, Name: "Odd", Email: "odd@example.com", Prices: map[Material]float64{"rubber": 3}}, domain.KindInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := dir.RegisterAccount(ctx, tc.input)
			requireKind(t, err, tc.kind)
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := f.svc.Directory()

	lat, lon := 6.45, 3.39
	updated, err := dir.UpdateProfile(ctx, f.collector.ID, ProfileUpdate{
		City:      strPtr(" Ikeja "),
		Latitude:  &lat,
		Longitude: &lon,
		Prices:    map[Material]float64{domain.MaterialGlass: 3},
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.City != "Ikeja" || updated.Name != "GreenCycle" {
		t.Fatalf("unexpected profile %+v", updated)
	}
	if len(updated.Prices) != 1 || updated.Prices[domain.MaterialGlass] != 3 {
		t.Fatalf("price list must be replaced, got %+v", updated.Prices)
	}
	if updated.Latitude == nil || *updated.Latitude != lat {
		t.Fatalf("latitude not stored")
	}

	_, err = dir.UpdateProfile(ctx, f.collector.ID, ProfileUpdate{Email: strPtr("ada@example.com")})
	requireKind(t, err, domain.KindConflict)
	_, err = dir.UpdateProfile(ctx, f.customer.ID, ProfileUpdate{Prices: map[Material]float64{domain.MaterialMetal: 1}})
	requireKind(t, err, domain.KindInvalidInput)
	_, err = dir.UpdateProfile(ctx, f.customer.ID, ProfileUpdate{Name: strPtr("  ")})
	requireKind(t, err, domain.KindInvalidInput)
	_, err = dir.UpdateProfile(ctx, "ghost", ProfileUpdate{Name: strPtr("Ghost")})
	requireKind(t, err, domain.KindNotFound)

	same, err := dir.UpdateProfile(ctx, f.customer.ID, ProfileUpdate{Email: strPtr("ADA@example.com")})
	if err != nil {
		t.Fatalf("re-casing own email: %v", err)
	}
	if same.Email != "ADA@example.com" {
		t.Fatalf("unexpected email %q", same.Email)
	}
}

func TestDeactivateAndQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := f.svc.Directory()

	if ok, err := dir.IsCollector(ctx, f.rival.ID); err != nil || !ok {
		t.Fatalf("expected rival to be a collector, got (%v, %v)", ok, err)
	}
	if ok, _ := dir.IsCollector(ctx, f.customer.ID); ok {
		t.Fatalf("customer must not count as collector")
	}

	deactivated, err := dir.Deactivate(ctx, f.rival.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if deactivated.Active {
		t.Fatalf("expected inactive account")
	}
	again, err := dir.Deactivate(ctx, f.rival.ID)
	if err != nil || again.Active {
		t.Fatalf("second deactivate must be a no-op, got (%+v, %v)", again, err)
	}
	_, err = dir.Deactivate(ctx, "ghost")
	requireKind(t, err, domain.KindNotFound)

	if ok, _ := dir.IsCollector(ctx, f.rival.ID); ok {
		t.Fatalf("deactivated collector must not count as collector")
	}
	if ok, _ := dir.AccountExists(ctx, f.rival.ID); !ok {
		t.Fatalf("deactivated accounts are kept")
	}
	if ok, _ := dir.AccountExists(ctx, "ghost"); ok {
		t.Fatalf("unknown account reported as existing")
	}

	collectors, err := dir.ActiveAccountsByRole(ctx, domain.RoleCollector)
	if err != nil {
		t.Fatalf("list collectors: %v", err)
	}
	if len(collectors) != 1 || collectors[0].ID != f.collector.ID {
		t.Fatalf("expected only the active collector, got %+v", collectors)
	}
	_, err = dir.ActiveAccountsByRole(ctx, "admin")
	requireKind(t, err, domain.KindInvalidInput)

	got, err := dir.GetAccount(ctx, f.rival.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Active {
		t.Fatalf("stored account still active")
	}
	_, err = dir.GetAccount(ctx, "ghost")
	requireKind(t, err, domain.KindNotFound)
}

func TestAccountIDFunc(t *testing.T) {
	n := 0
	f := newFixture(t, WithAccountIDFunc(func() string {
		n++
		return "acct-" + strconv.Itoa(n)
	}))
	if f.customer.ID != "acct-1" || f.collector.ID != "acct-2" || f.rival.ID != "acct-3" {
		t.Fatalf("expected ids from the supplied source, got %s %s %s", f.customer.ID, f.collector.ID, f.rival.ID)
	}
	got, err := f.svc.Directory().GetAccount(context.Background(), "acct-2")
	if err != nil || got.Name != "GreenCycle" {
		t.Fatalf("lookup by minted id: (%+v, %v)", got, err)
	}
}
