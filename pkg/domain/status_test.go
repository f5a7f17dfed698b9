package domain

import "testing"

func TestRequestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusAssigned, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusAssigned, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusPending, StatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestRequestStatusHelpers(t *testing.T) {
	if StatusAssigned.Normalize() != StatusInProgress {
		t.Fatalf("assigned should normalize to in_progress")
	}
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() || StatusPending.Terminal() {
		t.Fatalf("unexpected terminal classification")
	}
	if RequestStatus("shipped").Valid() {
		t.Fatalf("unknown status should be invalid")
	}
	order := []RequestStatus{StatusPending, StatusAssigned, StatusCompleted, StatusCancelled}
	want := []int{0, 1, 2, 3}
	for i, s := range order {
		if s.Priority() != want[i] {
			t.Fatalf("priority of %s = %d, want %d", s, s.Priority(), want[i])
		}
	}
}

func TestMaterialAndRoleValidation(t *testing.T) {
	for _, m := range Materials {
		if !m.Valid() {
			t.Fatalf("material %s should be valid", m)
		}
	}
	if Material("wood").Valid() {
		t.Fatalf("wood is not a known material")
	}
	if !RoleCollector.Valid() || Role("admin").Valid() {
		t.Fatalf("unexpected role validation")
	}
}

func TestRequestFilterMatches(t *testing.T) {
	collector := "col-1"
	req := WasteRequest{CustomerID: "cust-1", CollectorID: &collector, PickupCity: "Lagos ", Status: StatusAssigned}
	cases := []struct {
		name   string
		filter RequestFilter
		want   bool
	}{
		{"empty", RequestFilter{}, true},
		{"customer", RequestFilter{CustomerID: "cust-1"}, true},
		{"other customer", RequestFilter{CustomerID: "cust-2"}, false},
		{"collector", RequestFilter{CollectorID: collector}, true},
		{"unassigned", RequestFilter{Unassigned: true}, false},
		{"city folds case", RequestFilter{City: "lagos"}, true},
		{"status alias", RequestFilter{Statuses: []RequestStatus{StatusInProgress}}, true},
		{"status miss", RequestFilter{Statuses: []RequestStatus{StatusPending}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(req); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
	if !(AccountFilter{Role: RoleCustomer}).Matches(Account{Role: RoleCustomer}) {
		t.Fatalf("role filter should match")
	}
	if (AccountFilter{ActiveOnly: true}).Matches(Account{Active: false}) {
		t.Fatalf("inactive account should not match")
	}
}
