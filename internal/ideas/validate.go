package ideas

import (
	"fmt"
	"math"
	"strings"
)

// percentageTolerance is how far a segment split may drift from 100.
const percentageTolerance = 1.0

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func validateFields(f IdeaFields) error {
	var problems []string
	for _, kv := range []struct{ name, value string }{
		{"title", f.Title},
		{"description", f.Description},
		{"problem", f.Problem},
		{"solution", f.Solution},
		{"category", f.Category},
	} {
		if blank(kv.value) {
			problems = append(problems, kv.name+" is required")
		}
	}
	if len(problems) > 0 {
		return invalid("idea", problems...)
	}
	return nil
}

func validateCriteria(c CriteriaScores) error {
	var problems []string
	for _, nc := range c.All() {
		if math.IsNaN(nc.Score) || nc.Score < 0 || nc.Score > 10 {
			problems = append(problems, fmt.Sprintf("%s score %v is outside 0-10", nc.Name, nc.Score))
		}
		if blank(nc.Explanation) {
			problems = append(problems, nc.Name+" explanation is required")
		}
	}
	if len(problems) > 0 {
		return invalid("score", problems...)
	}
	return nil
}

func validatePlan(p PlanSections) error {
	var problems []string
	for _, kv := range []struct{ name, value string }{
		{"tech", p.Tech},
		{"talent", p.Talent},
		{"finance", p.Finance},
		{"legal", p.Legal},
	} {
		if blank(kv.value) {
			problems = append(problems, kv.name+" section is required")
		}
	}
	if len(problems) > 0 {
		return invalid("plan", problems...)
	}
	return nil
}

func validateCompetitors(list []Competitor) error {
	if len(list) == 0 {
		return invalid("competitors", "list is empty")
	}
	var problems []string
	main := 0
	for i, c := range list {
		if c.IsMainIdea {
			main++
		}
		if blank(c.Name) {
			problems = append(problems, fmt.Sprintf("entry %d has no name", i))
		}
		if c.VisionCompleteness < 1 || c.VisionCompleteness > 10 {
			problems = append(problems, fmt.Sprintf("%s vision completeness %d is outside 1-10", c.Name, c.VisionCompleteness))
		}
		if c.ExecutionAbility < 1 || c.ExecutionAbility > 10 {
			problems = append(problems, fmt.Sprintf("%s execution ability %d is outside 1-10", c.Name, c.ExecutionAbility))
		}
	}
	if main != 1 {
		problems = append(problems, fmt.Sprintf("expected exactly one main idea entry, found %d", main))
	}
	if len(problems) > 0 {
		return invalid("competitors", problems...)
	}
	return nil
}

func validateRisks(list []RiskFactor) error {
	if len(list) == 0 {
		return invalid("risks", "list is empty")
	}
	var problems []string
	cells := make(map[[2]int]string)
	for i, r := range list {
		if blank(r.Factor) {
			problems = append(problems, fmt.Sprintf("entry %d has no factor", i))
		}
		if r.Impact < 1 || r.Impact > 3 {
			problems = append(problems, fmt.Sprintf("%s impact %d is outside 1-3", r.Factor, r.Impact))
		}
		if r.Likelihood < 1 || r.Likelihood > 3 {
			problems = append(problems, fmt.Sprintf("%s likelihood %d is outside 1-3", r.Factor, r.Likelihood))
		}
		cell := [2]int{r.Impact, r.Likelihood}
		if prev, ok := cells[cell]; ok {
			problems = append(problems, fmt.Sprintf("%s and %s share impact %d / likelihood %d", prev, r.Factor, r.Impact, r.Likelihood))
		}
		cells[cell] = r.Factor
	}
	if len(problems) > 0 {
		return invalid("risks", problems...)
	}
	return nil
}

func validateConsumers(list []ConsumerSegment) error {
	if len(list) == 0 {
		return invalid("consumer segments", "list is empty")
	}
	var problems []string
	var sum float64
	for i, c := range list {
		if blank(c.Name) {
			problems = append(problems, fmt.Sprintf("entry %d has no name", i))
		}
		if c.Percentage <= 0 || c.Percentage > 100 {
			problems = append(problems, fmt.Sprintf("%s percentage %v is outside (0, 100]", c.Name, c.Percentage))
		}
		sum += c.Percentage
	}
	if math.Abs(sum-100) > percentageTolerance {
		problems = append(problems, fmt.Sprintf("percentages sum to %.1f, want 100", sum))
	}
	if len(problems) > 0 {
		return invalid("consumer segments", problems...)
	}
	return nil
}

func validateCriteriaInput(problem string, c Criteria) error {
	var problems []string
	if blank(problem) {
		problems = append(problems, "problem statement is required")
	}
	for _, kv := range []struct {
		name  string
		value int
	}{
		{"technical complexity", c.TechnicalComplexity},
		{"market size", c.MarketSize},
		{"initial funding", c.InitialFunding},
	} {
		if kv.value < 1 || kv.value > 10 {
			problems = append(problems, fmt.Sprintf("%s %d is outside 1-10", kv.name, kv.value))
		}
	}
	if len(problems) > 0 {
		return invalid("idea request", problems...)
	}
	return nil
}
