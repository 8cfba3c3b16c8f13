package tools

import (
	"fmt"
	"math"
)

func creditRepairTools() *Toolset {
	return &Toolset{
		Label: "Credit repair",
		Handlers: map[string]Handler{
			"analyze_credit_report":          analyzeCreditReport,
			"create_credit_improvement_plan": createCreditImprovementPlan,
		},
	}
}

// CreditScoreRange buckets a FICO-style score.
func CreditScoreRange(score float64) string {
	switch {
	case score >= 800:
		return "Excellent"
	case score >= 740:
		return "Very Good"
	case score >= 670:
		return "Good"
	case score >= 580:
		return "Fair"
	default:
		return "Poor"
	}
}

func analyzeCreditReport(params map[string]any) (map[string]any, error) {
	score, err := number(params, "credit_score")
	if err != nil {
		return nil, err
	}

	utilization := "Low impact"
	if optNumber(params, "credit_utilization", 0) > 30 {
		utilization = "High impact"
	}

	return map[string]any{
		"score_analysis": map[string]any{
			"current_score":         score,
			"score_range":           CreditScoreRange(score),
			"improvement_potential": math.Min(850-score, 150),
		},
		"negative_items_count": len(list(params, "negative_items")),
		"utilization_impact":   utilization,
		"recommendations": []string{
			"Dispute inaccurate items",
			"Reduce credit utilization below 30%",
			"Set up payment reminders",
		},
	}, nil
}

func createCreditImprovementPlan(params map[string]any) (map[string]any, error) {
	current, err := number(params, "current_score")
	if err != nil {
		return nil, err
	}
	target, err := number(params, "target_score")
	if err != nil {
		return nil, err
	}
	diff := target - current
	step := math.Floor(diff / 6)

	goals := make([]map[string]any, 0, 6)
	for i := 1; i <= 6; i++ {
		goals = append(goals, map[string]any{
			"month":        i,
			"target_score": current + float64(i)*step,
			"actions":      []string{"Pay down balances", "Dispute negative items", "Monitor progress"},
		})
	}

	return map[string]any{
		"plan_duration":      fmt.Sprintf("%d months", int(math.Ceil(diff/10))),
		"monthly_goals":      goals,
		"estimated_timeline": fmt.Sprintf("%d months", int(math.Ceil(diff/15))),
	}, nil
}
