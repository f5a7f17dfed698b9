// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by wastelink.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityAccount identifies a customer or collector account.
	EntityAccount EntityType = "account"
	// EntityRequest identifies a waste pickup request.
	EntityRequest EntityType = "waste_request"
	// EntityItem identifies a single material line of a request.
	EntityItem EntityType = "waste_item"
)

// Role distinguishes the two sides of the marketplace.
type Role string

// Account roles.
const (
	RoleCustomer  Role = "customer"
	RoleCollector Role = "collector"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleCollector
}

// Material enumerates the waste material types a request item or price list may reference.
type Material string

// Canonical material types.
const (
	MaterialEWaste    Material = "e-waste"
	MaterialPlastic   Material = "plastic"
	MaterialPaper     Material = "paper"
	MaterialMetal     Material = "metal"
	MaterialGlass     Material = "glass"
	MaterialOrganic   Material = "organic"
	MaterialHazardous Material = "hazardous"
	MaterialMixed     Material = "mixed"
)

// Materials lists every material type in display order.
var Materials = []Material{
	MaterialEWaste,
	MaterialPlastic,
	MaterialPaper,
	MaterialMetal,
	MaterialGlass,
	MaterialOrganic,
	MaterialHazardous,
	MaterialMixed,
}

// Valid reports whether m is a known material.
func (m Material) Valid() bool {
	for _, known := range Materials {
		if m == known {
			return true
		}
	}
	return false
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for records keyed by an opaque string id.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is a registered customer or collector.
type Account struct {
	Base
	Role      Role                 `json:"role"`
	Name      string               `json:"name"`
	Email     string               `json:"email"`
	Phone     string               `json:"phone,omitempty"`
	Address   string               `json:"address,omitempty"`
	City      string               `json:"city,omitempty"`
	Latitude  *float64             `json:"latitude,omitempty"`
	Longitude *float64             `json:"longitude,omitempty"`
	Prices    map[Material]float64 `json:"prices,omitempty"`
	Active    bool                 `json:"active"`
}

// IsCollector reports whether the account is an active collector.
func (a Account) IsCollector() bool {
	return a.Active && a.Role == RoleCollector
}

// WasteRequest is a customer's ask for a pickup. Items are owned by the request.
type WasteRequest struct {
	ID                  int64         `json:"id"`
	RequestID           string        `json:"request_id"`
	CustomerID          string        `json:"customer_id"`
	CollectorID         *string       `json:"collector_id,omitempty"`
	PickupAddress       string        `json:"pickup_address"`
	PickupCity          string        `json:"pickup_city"`
	PickupDate          string        `json:"pickup_date"`
	PickupTime          string        `json:"pickup_time"`
	SpecialInstructions string        `json:"special_instructions,omitempty"`
	Status              RequestStatus `json:"status"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	Items               []WasteItem   `json:"items,omitempty"`
}

// AssignedTo reports whether collectorID is the request's assigned collector.
func (r WasteRequest) AssignedTo(collectorID string) bool {
	return r.CollectorID != nil && *r.CollectorID == collectorID
}

// TotalQuantity sums the quantity of all items in kilograms.
func (r WasteRequest) TotalQuantity() float64 {
	var total float64
	for _, item := range r.Items {
		total += item.Quantity
	}
	return total
}

// WasteItem is one (material, quantity) pair of a request.
type WasteItem struct {
	ID        int64    `json:"id"`
	RequestID int64    `json:"request_id"`
	WasteType Material `json:"waste_type"`
	Quantity  float64  `json:"quantity"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured for rule evaluation.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
