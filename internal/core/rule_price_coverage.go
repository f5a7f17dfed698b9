package core

import (
	"context"
	"fmt"

	"wastelink/pkg/domain"
)

// PriceCoverageRuleName identifies findings raised by PriceCoverageRule.
const PriceCoverageRuleName = "price_coverage"

// PriceCoverageRule warns when a collector is assigned a request containing
// materials missing from their price list. It never blocks.
func PriceCoverageRule() domain.Rule {
	return priceCoverageRule{}
}

type priceCoverageRule struct{}

func (priceCoverageRule) Name() string { return PriceCoverageRuleName }

func (priceCoverageRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityRequest {
			continue
		}
		after, ok := change.After.(domain.WasteRequest)
		if !ok || after.CollectorID == nil {
			continue
		}
		if before, ok := change.Before.(domain.WasteRequest); ok && before.CollectorID != nil {
			continue
		}
		collector, ok := view.FindAccount(*after.CollectorID)
		if !ok {
			continue
		}
		reported := map[domain.Material]bool{}
		for _, item := range after.Items {
			if _, priced := collector.Prices[item.WasteType]; priced || reported[item.WasteType] {
				continue
			}
			reported[item.WasteType] = true
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     PriceCoverageRuleName,
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("collector %s has no price for %s on request %s", collector.ID, item.WasteType, after.RequestID),
				Entity:   domain.EntityRequest,
				EntityID: after.RequestID,
			})
		}
	}
	return res, nil
}
