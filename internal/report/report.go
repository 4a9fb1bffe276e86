// Package report renders an idea and its derived artifacts as a Markdown
// dossier, optionally converted to HTML.
package report

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/startopia/startopia/internal/ideas"
)

// Dossier is everything known about one idea.
type Dossier struct {
	Idea  *ideas.Idea
	Score *ideas.Score
	Plan  *ideas.Plan
}

// Load gathers the dossier for ideaID. It returns nil when the idea does
// not exist.
func Load(ctx context.Context, svc *ideas.Service, ideaID string) (*Dossier, error) {
	idea, err := svc.GetIdea(ctx, ideaID)
	if err != nil || idea == nil {
		return nil, err
	}
	score, err := svc.GetEvaluation(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	plan, err := svc.GetPlan(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	return &Dossier{Idea: idea, Score: score, Plan: plan}, nil
}

// Compose renders the dossier as Markdown. Sections without content are
// left out.
func Compose(d Dossier) string {
	idea := d.Idea
	var sections []string

	header := fmt.Sprintf("# %s\n\n*%s*", idea.Title, idea.Category)
	if !idea.CreatedAt.IsZero() {
		header += fmt.Sprintf(" · created %s", idea.CreatedAt.Format("January 2, 2006"))
	}
	header += "\n\n" + idea.Description
	sections = append(sections, header)
	sections = append(sections, fmt.Sprintf("## Problem\n\n%s\n\n## Solution\n\n%s", idea.Problem, idea.Solution))

	if d.Score != nil {
		sections = append(sections, scoreSection(d.Score))
	}
	if d.Plan != nil {
		sections = append(sections, planSection(d.Plan))
	}
	if len(idea.Competitors) > 0 {
		sections = append(sections, competitorSection(idea.Competitors))
	}
	if len(idea.Risks) > 0 {
		sections = append(sections, riskSection(idea.Risks))
	}
	if len(idea.ConsumerSegments) > 0 {
		sections = append(sections, consumerSection(idea.ConsumerSegments))
	}

	return strings.Join(sections, "\n\n---\n\n") + "\n"
}

var criterionLabels = map[string]string{
	"innovation":    "Innovation",
	"market_fit":    "Market fit",
	"feasibility":   "Feasibility",
	"scalability":   "Scalability",
	"profitability": "Profitability",
}

func scoreSection(s *ideas.Score) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Evaluation\n\n**Overall: %.1f / 10**\n\n", s.OverallScore)
	b.WriteString("| Criterion | Score | Notes |\n|---|---|---|\n")
	for _, c := range s.CriteriaScores.All() {
		fmt.Fprintf(&b, "| %s | %g | %s |\n", criterionLabels[c.Name], c.Score, cell(c.Explanation))
	}
	return strings.TrimRight(b.String(), "\n")
}

func planSection(p *ideas.Plan) string {
	return fmt.Sprintf("## Plan\n\n### Technology\n\n%s\n\n### Talent\n\n%s\n\n### Finance\n\n%s\n\n### Legal\n\n%s",
		p.Tech, p.Talent, p.Finance, p.Legal)
}

func competitorSection(list []ideas.Competitor) string {
	sorted := append([]ideas.Competitor(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].VisionCompleteness+sorted[i].ExecutionAbility > sorted[j].VisionCompleteness+sorted[j].ExecutionAbility
	})

	var b strings.Builder
	b.WriteString("## Competitive landscape\n\n| Name | Vision | Execution |\n|---|---|---|\n")
	for _, c := range sorted {
		name := cell(c.Name)
		if c.IsMainIdea {
			name = "**" + name + "** (this idea)"
		}
		fmt.Fprintf(&b, "| %s | %d | %d |\n", name, c.VisionCompleteness, c.ExecutionAbility)
	}
	return strings.TrimRight(b.String(), "\n")
}

var levelNames = [4]string{"", "Low", "Medium", "High"}

func riskSection(list []ideas.RiskFactor) string {
	grid := map[[2]int][]string{}
	for _, r := range list {
		key := [2]int{r.Likelihood, r.Impact}
		grid[key] = append(grid[key], cell(r.Factor))
	}

	var b strings.Builder
	b.WriteString("## Risks\n\n| Likelihood / Impact | Low | Medium | High |\n|---|---|---|---|\n")
	for likelihood := 3; likelihood >= 1; likelihood-- {
		fmt.Fprintf(&b, "| **%s** |", levelNames[likelihood])
		for impact := 1; impact <= 3; impact++ {
			fmt.Fprintf(&b, " %s |", strings.Join(grid[[2]int{likelihood, impact}], "; "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	for _, r := range list {
		line := fmt.Sprintf("- **%s** (impact %s, likelihood %s)", r.Factor, level(r.Impact), level(r.Likelihood))
		if r.Mitigation != "" {
			line += ": " + r.Mitigation
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func consumerSection(list []ideas.ConsumerSegment) string {
	var b strings.Builder
	b.WriteString("## Consumer segments\n\n| Segment | Share |\n|---|---|\n")
	for _, c := range list {
		fmt.Fprintf(&b, "| %s | %.0f%% |\n", cell(c.Name), c.Percentage)
	}
	return strings.TrimRight(b.String(), "\n")
}

func level(n int) string {
	if n < 1 || n > 3 {
		return fmt.Sprint(n)
	}
	return strings.ToLower(levelNames[n])
}

// cell makes text safe for a single table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML converts Markdown to an HTML fragment.
func HTML(markdown string) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.Bytes(), nil
}
