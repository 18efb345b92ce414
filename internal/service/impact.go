package service

import (
	"fmt"
	"strings"

	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/pipeline"
)

// ImpactAnalyzer answers "what breaks if I edit these fields" from the static
// rule table and the stage graph. Pure evaluation: no store, no network.
type ImpactAnalyzer struct {
	graph *pipeline.Graph
	rules model.ImpactRuleSet
	costs CostTable
}

func NewImpactAnalyzer(graph *pipeline.Graph, rules model.ImpactRuleSet, costs CostTable) *ImpactAnalyzer {
	return &ImpactAnalyzer{graph: graph, rules: rules, costs: costs}
}

// ComputeImpact evaluates the rule for each changed field at the given stage.
// Unknown fields are fail-open: reported as safe with a generic description,
// never a block. Affected stages come back sorted by pipeline order whatever
// the input order was.
func (ia *ImpactAnalyzer) ComputeImpact(stage model.ProjectStatus, changedFields []string) *model.ImpactReport {
	report := &model.ImpactReport{
		Safe:              []model.FieldImpact{},
		Destructive:       []model.FieldImpact{},
		AllAffectedStages: []model.ProjectStatus{},
	}

	var affected []model.ProjectStatus
	for _, field := range changedFields {
		rule, ok := ia.rules.Lookup(stage, field)
		if !ok || rule.Kind == model.ImpactSafe {
			desc := rule.Description
			if !ok {
				desc = "no known downstream impact"
			}
			report.Safe = append(report.Safe, model.FieldImpact{Field: field, Description: desc})
			continue
		}
		report.Destructive = append(report.Destructive, model.FieldImpact{
			Field:          field,
			Description:    rule.Description,
			AffectedStages: rule.AffectedStages,
		})
		affected = append(affected, rule.AffectedStages...)
	}

	report.AllAffectedStages = ia.graph.SortStages(affected)

	var costCents int64
	for _, stage := range report.AllAffectedStages {
		if report.RestartFrom == nil && ia.graph.IsRestartPoint(stage) {
			s := stage
			report.RestartFrom = &s
		}
		if estimate, ok := ia.costs.StageEstimates[stage]; ok {
			costCents += estimate
		}
	}
	report.EstimatedCostUSD = model.USD(costCents)

	if len(report.Destructive) > 0 && costCents > 0 {
		report.WarningText = ia.warningText(report, costCents)
	}
	return report
}

func (ia *ImpactAnalyzer) warningText(report *model.ImpactReport, costCents int64) string {
	fields := make([]string, 0, len(report.Destructive))
	for _, f := range report.Destructive {
		fields = append(fields, f.Field)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Editing %s will invalidate downstream work.", strings.Join(fields, ", "))
	for _, stage := range report.AllAffectedStages {
		if estimate, ok := ia.costs.StageEstimates[stage]; ok {
			fmt.Fprintf(&b, " %s: $%.2f.", stage, model.USD(estimate))
		}
	}
	fmt.Fprintf(&b, " Estimated regeneration cost: $%.2f.", model.USD(costCents))
	return b.String()
}
