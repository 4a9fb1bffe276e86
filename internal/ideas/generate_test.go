package ideas

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/startopia/startopia/internal/llm"
)

const scoreResponse = `{
	"innovation": {"score": 8, "explanation": "new angle"},
	"market_fit": {"score": 6, "explanation": "real need"},
	"feasibility": {"score": 7, "explanation": "small team can ship"},
	"scalability": {"score": 9, "explanation": "software margins"},
	"profitability": {"score": 5, "explanation": "pricing unclear"}
}`

type recordingObserver struct {
	outcomes map[string][]string
}

func (r *recordingObserver) ObserveGeneration(artifact, outcome string, _ time.Duration) {
	if r.outcomes == nil {
		r.outcomes = map[string][]string{}
	}
	r.outcomes[artifact] = append(r.outcomes[artifact], outcome)
}

func TestEvaluateIdeaComputesOverall(t *testing.T) {
	// The model's own overall is ignored.
	resp := strings.Replace(scoreResponse, "{\n", "{\"overallScore\": 9.9,\n", 1)
	svc, db, p := newTestService(t, resp)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	score, err := svc.EvaluateIdea(ctx, id, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.OverallScore != 7.0 {
		t.Errorf("expected overall 7.0, got %v", score.OverallScore)
	}
	if !strings.Contains(p.lastPrompt, "Title: X") || !strings.Contains(p.lastPrompt, "Problem: p") {
		t.Errorf("expected idea fields in prompt, got %q", p.lastPrompt)
	}

	doc, _ := db.Get(ctx, ScoresCollection, score.ID)
	var stored Score
	if err := doc.Decode(&stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.OverallScore != 7.0 || stored.IdeaID != id {
		t.Errorf("unexpected stored score %+v", stored)
	}
	idea, _ := svc.GetIdea(ctx, id)
	if idea.ScoreRef != score.ID {
		t.Errorf("expected scoreRef %s, got %s", score.ID, idea.ScoreRef)
	}
}

func TestEvaluateIdeaRejectsOutOfRange(t *testing.T) {
	resp := strings.Replace(scoreResponse, `"score": 9`, `"score": 12`, 1)
	svc, db, _ := newTestService(t, resp)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	_, err := svc.EvaluateIdea(ctx, id, "u1")
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	var oerr *llm.OutputError
	if !errors.As(err, &oerr) {
		t.Errorf("expected schema failure underneath, got %v", err)
	}
	docs, _ := db.Query(ctx, ScoresCollection)
	if len(docs) != 0 {
		t.Errorf("expected no score written, got %d", len(docs))
	}
}

func TestEvaluateIdeaMissingCriterion(t *testing.T) {
	svc, _, _ := newTestService(t, `{"innovation": {"score": 8, "explanation": "x"}}`)
	id := createSample(t, svc, "u1")

	_, err := svc.EvaluateIdea(context.Background(), id, "u1")
	var gerr *GenerationError
	if !errors.As(err, &gerr) || gerr.Artifact != ArtifactScore {
		t.Fatalf("expected score GenerationError, got %v", err)
	}
}

func TestEvaluateIdeaChecksOwnerBeforeGenerating(t *testing.T) {
	svc, _, p := newTestService(t, scoreResponse)
	id := createSample(t, svc, "u1")

	if _, err := svc.EvaluateIdea(context.Background(), id, "u2"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if p.calls != 0 {
		t.Errorf("expected no provider calls, got %d", p.calls)
	}
	if _, err := svc.EvaluateIdea(context.Background(), "missing", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEvaluateIdeaProviderFailure(t *testing.T) {
	svc, _, p := newTestService(t)
	p.err = errors.New("connection refused")
	id := createSample(t, svc, "u1")

	_, err := svc.EvaluateIdea(context.Background(), id, "u1")
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
}

func TestGenerationWithoutProvider(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	id := createSample(t, svc, "u1")

	_, err := svc.GeneratePlan(context.Background(), id, "u1")
	if !errors.Is(err, llm.ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestGeneratePlan(t *testing.T) {
	svc, _, _ := newTestService(t,
		`{"tech": "t1", "talent": "h1", "finance": "f1", "legal": "l1"}`,
		`{"tech": "t2", "talent": "h2", "finance": "f2", "legal": "l2"}`,
	)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	first, err := svc.GeneratePlan(ctx, id, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.GeneratePlan(ctx, id, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected plan id preserved, got %s then %s", first.ID, second.ID)
	}
	plan, _ := svc.GetPlan(ctx, id)
	if plan.Legal != "l2" {
		t.Errorf("expected regenerated plan, got %+v", plan)
	}
}

func TestGeneratePlanRejectsEmptySection(t *testing.T) {
	svc, _, _ := newTestService(t, `{"tech": "t", "talent": "", "finance": "f", "legal": "l"}`)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	if _, err := svc.GeneratePlan(ctx, id, "u1"); err == nil {
		t.Fatal("expected error for empty section")
	}
	if plan, _ := svc.GetPlan(ctx, id); plan != nil {
		t.Error("expected no plan written")
	}
}

func TestGenerateCompetitorsMissingMainIdea(t *testing.T) {
	svc, _, _ := newTestService(t,
		`{"competitors": [{"name": "X", "visionCompleteness": 7, "executionAbility": 3, "isMainIdea": true}, {"name": "Acme", "visionCompleteness": 6, "executionAbility": 8, "isMainIdea": false}]}`,
		`{"competitors": [{"name": "Acme", "visionCompleteness": 6, "executionAbility": 8, "isMainIdea": false}]}`,
	)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	first, err := svc.GenerateCompetitors(ctx, id, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 competitors, got %d", len(first))
	}

	_, err = svc.GenerateCompetitors(ctx, id, "u1")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	stored, _ := svc.GetCompetitors(ctx, id)
	if len(stored) != 2 || !stored[0].IsMainIdea {
		t.Errorf("expected prior competitors kept, got %+v", stored)
	}
}

func TestGenerateCompetitorsMissingMainIdeaOnFreshIdea(t *testing.T) {
	svc, _, _ := newTestService(t,
		`{"competitors": [{"name": "Acme", "visionCompleteness": 6, "executionAbility": 8, "isMainIdea": false}]}`,
	)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	if _, err := svc.GenerateCompetitors(ctx, id, "u1"); err == nil {
		t.Fatal("expected error")
	}
	idea, _ := svc.GetIdea(ctx, id)
	if idea.Competitors != nil {
		t.Errorf("expected competitors to stay absent, got %+v", idea.Competitors)
	}
}

func TestGenerateRiskAssessment(t *testing.T) {
	svc, _, _ := newTestService(t, "```json\n"+`{"risks": [
		{"factor": "Regulation", "impact": 3, "likelihood": 2, "mitigation": "Engage counsel early"},
		{"factor": "Churn", "impact": 2, "likelihood": 3, "mitigation": "Invest in onboarding"}
	]}`+"\n```")
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	risks, err := svc.GenerateRiskAssessment(ctx, id, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(risks) != 2 || risks[0].Factor != "Regulation" {
		t.Errorf("unexpected risks %+v", risks)
	}
	stored, _ := svc.GetRisks(ctx, id)
	if len(stored) != 2 || stored[1].Likelihood != 3 {
		t.Errorf("unexpected stored risks %+v", stored)
	}
}

func TestGenerateRiskAssessmentEmptyList(t *testing.T) {
	svc, _, _ := newTestService(t, `{"risks": []}`)
	id := createSample(t, svc, "u1")

	_, err := svc.GenerateRiskAssessment(context.Background(), id, "u1")
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GenerationError for empty list, got %v", err)
	}
}

func TestGenerateConsumerSegments(t *testing.T) {
	svc, _, _ := newTestService(t,
		`{"segments": [{"name": "Freelancers", "percentage": 50}, {"name": "Agencies", "percentage": 30}, {"name": "Enterprises", "percentage": 20}]}`,
	)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	segs, err := svc.GenerateConsumerSegments(ctx, id, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	stored, _ := svc.GetConsumers(ctx, id)
	if stored[0].Name != "Freelancers" || stored[0].Percentage != 50 {
		t.Errorf("unexpected stored segments %+v", stored)
	}
}

func TestGenerateIdeas(t *testing.T) {
	svc, _, p := newTestService(t, `{"ideas": [
		{"title": "A", "description": "da", "problem": "pa", "solution": "sa", "category": "ca"},
		{"title": "B", "description": "db", "problem": "pb", "solution": "sb", "category": "cb"},
		{"title": "C", "description": "dc", "problem": "pc", "solution": "sc", "category": "cc"}
	]}`)

	ideas, err := svc.GenerateIdeas(context.Background(), "remote teams lose context", Criteria{TechnicalComplexity: 4, MarketSize: 8, InitialFunding: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ideas) != 3 || ideas[1].Title != "B" {
		t.Errorf("unexpected ideas %+v", ideas)
	}
	if !strings.Contains(p.lastPrompt, "Market Size: 8 out of 10") {
		t.Errorf("expected criteria in prompt, got %q", p.lastPrompt)
	}
}

func TestGenerateIdeasWrongCount(t *testing.T) {
	svc, db, _ := newTestService(t, `{"ideas": [
		{"title": "A", "description": "da", "problem": "pa", "solution": "sa", "category": "ca"}
	]}`)

	_, err := svc.GenerateIdeas(context.Background(), "problem", Criteria{TechnicalComplexity: 5, MarketSize: 5, InitialFunding: 5})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(verr.Error(), "expected 3 ideas") {
		t.Errorf("unexpected message %q", verr.Error())
	}
	docs, _ := db.Query(context.Background(), IdeasCollection)
	if len(docs) != 0 {
		t.Errorf("expected nothing persisted, got %d", len(docs))
	}
}

func TestGenerateIdeasRejectsBadCriteria(t *testing.T) {
	svc, _, p := newTestService(t)
	_, err := svc.GenerateIdeas(context.Background(), "problem", Criteria{TechnicalComplexity: 0, MarketSize: 5, InitialFunding: 11})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 2 {
		t.Errorf("expected 2 problems, got %v", verr.Problems)
	}
	if p.calls != 0 {
		t.Error("expected no provider call")
	}
}

func TestGenerationIsObserved(t *testing.T) {
	svc, _, _ := newTestService(t, scoreResponse, `not json`)
	obs := &recordingObserver{}
	svc.WithObserver(obs)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	if _, err := svc.EvaluateIdea(ctx, id, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.EvaluateIdea(ctx, id, "u1")
	svc.EvaluateIdea(ctx, id, "u2")

	got := obs.outcomes[ArtifactScore]
	want := []string{"ok", "generation_error", "unauthorized"}
	if len(got) != len(want) {
		t.Fatalf("expected outcomes %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("outcome %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
