package core

import (
	"context"
	"fmt"

	"wastelink/pkg/domain"
)

// RequestLifecycleRuleName identifies violations raised by RequestLifecycleRule.
const RequestLifecycleRuleName = "request_lifecycle"

// RequestLifecycleRule blocks illegal status transitions and collector
// reassignment on waste requests.
func RequestLifecycleRule() domain.Rule {
	return requestLifecycleRule{}
}

type requestLifecycleRule struct{}

var terminalStatuses = toSet(string(domain.StatusCompleted), string(domain.StatusCancelled))

func (requestLifecycleRule) Name() string { return RequestLifecycleRuleName }

func (requestLifecycleRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityRequest {
			continue
		}
		after, ok := change.After.(domain.WasteRequest)
		if !ok {
			continue
		}
		if !after.Status.Valid() {
			res.Violations = append(res.Violations, lifecycleViolation(after, "request %s is set to invalid status %s", after.RequestID, after.Status))
			continue
		}
		if change.Action == domain.ActionCreate {
			if after.Status.Normalize() != domain.StatusPending {
				res.Violations = append(res.Violations, lifecycleViolation(after, "request %s must be created pending, got %s", after.RequestID, after.Status))
			}
			continue
		}

		before, ok := change.Before.(domain.WasteRequest)
		if !ok {
			continue
		}
		from, to := before.Status.Normalize(), after.Status.Normalize()
		if _, terminal := terminalStatuses[string(from)]; terminal && from != to {
			res.Violations = append(res.Violations, lifecycleViolation(after, "cannot move request %s from terminal status %s to %s", after.RequestID, from, to))
			continue
		}
		if from != to && !from.CanTransition(to) {
			res.Violations = append(res.Violations, lifecycleViolation(after, "request %s cannot move from %s to %s", after.RequestID, from, to))
		}
		if before.CollectorID != nil && !after.AssignedTo(*before.CollectorID) {
			res.Violations = append(res.Violations, lifecycleViolation(after, "request %s is already assigned to collector %s", after.RequestID, *before.CollectorID))
		}
		if before.CollectorID == nil && after.CollectorID != nil && from != domain.StatusPending {
			res.Violations = append(res.Violations, lifecycleViolation(after, "request %s can only be assigned while pending", after.RequestID))
		}
	}
	return res, nil
}

func lifecycleViolation(r domain.WasteRequest, format string, args ...any) domain.Violation {
	return domain.Violation{
		Rule:     RequestLifecycleRuleName,
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Entity:   domain.EntityRequest,
		EntityID: r.RequestID,
	}
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
