package core

import "wastelink/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Role               = domain.Role
	Material           = domain.Material
	RequestStatus      = domain.RequestStatus
	Account            = domain.Account
	WasteRequest       = domain.WasteRequest
	WasteItem          = domain.WasteItem
	Change             = domain.Change
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityAccount = domain.EntityAccount
	EntityRequest = domain.EntityRequest
	EntityItem    = domain.EntityItem
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
