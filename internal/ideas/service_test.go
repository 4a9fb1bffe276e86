package ideas

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/startopia/startopia/internal/llm"
	"github.com/startopia/startopia/internal/store"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	responses  []string
	err        error
	calls      int
	lastPrompt string
}

func (m *mockProvider) Generate(_ context.Context, _, prompt string, _ int) (string, error) {
	m.calls++
	m.lastPrompt = prompt
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", nil
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, responses ...string) (*Service, *store.DB, *mockProvider) {
	t.Helper()
	db := openTestDB(t)
	p := &mockProvider{responses: responses}
	return NewService(db, llm.NewStructured(p, 512)), db, p
}

func sampleFields() IdeaFields {
	return IdeaFields{
		Title:       "X",
		Description: "d",
		Problem:     "p",
		Solution:    "s",
		Category:    "c",
	}
}

func createSample(t *testing.T, svc *Service, owner string) string {
	t.Helper()
	id, err := svc.CreateIdea(context.Background(), owner, sampleFields())
	if err != nil {
		t.Fatalf("create idea: %v", err)
	}
	return id
}

func strPtr(s string) *string { return &s }

func TestCreateAndGetIdea(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	id := createSample(t, svc, "u1")
	idea, err := svc.GetIdea(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idea == nil {
		t.Fatal("expected idea")
	}
	if idea.OwnerID != "u1" || idea.Title != "X" || idea.Category != "c" {
		t.Errorf("unexpected idea %+v", idea)
	}
	if idea.ScoreRef != "" || idea.PlanRef != "" || idea.Competitors != nil {
		t.Error("expected no derived artifacts on a new idea")
	}
	if idea.CreatedAt.IsZero() {
		t.Error("expected createdAt to be set")
	}
}

func TestCreateIdeaRequiresFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	f := sampleFields()
	f.Solution = "  "

	_, err := svc.CreateIdea(context.Background(), "u1", f)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if _, err := svc.CreateIdea(context.Background(), "", sampleFields()); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for missing owner, got %v", err)
	}
}

func TestGetIdeaMissingReturnsNil(t *testing.T) {
	svc, _, _ := newTestService(t)
	idea, err := svc.GetIdea(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idea != nil {
		t.Error("expected nil for missing idea")
	}
}

func TestUpdateIdeaByOwner(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	err := svc.UpdateIdea(ctx, id, "u1", IdeaUpdate{Title: strPtr("Y"), Category: strPtr("fintech")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idea, _ := svc.GetIdea(ctx, id)
	if idea.Title != "Y" || idea.Category != "fintech" {
		t.Errorf("expected patched fields, got %+v", idea.IdeaFields)
	}
	if idea.Description != "d" {
		t.Errorf("expected untouched description, got %q", idea.Description)
	}
}

func TestUpdateIdeaByOtherUserLeavesIdeaUnchanged(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	before, _ := db.Get(ctx, IdeasCollection, id)

	err := svc.UpdateIdea(ctx, id, "u2", IdeaUpdate{Title: strPtr("hack")})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	after, _ := db.Get(ctx, IdeasCollection, id)
	if !bytes.Equal(before.Body, after.Body) {
		t.Errorf("expected body unchanged\nbefore: %s\nafter:  %s", before.Body, after.Body)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("expected updated_at unchanged")
	}
	idea, _ := svc.GetIdea(ctx, id)
	if idea.Title != "X" {
		t.Errorf("expected title X, got %q", idea.Title)
	}
}

func TestUpdateIdeaMissing(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.UpdateIdea(context.Background(), "missing", "u1", IdeaUpdate{Title: strPtr("Y")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateIdeaRejectsEmptyCoreField(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	err := svc.UpdateIdea(ctx, id, "u1", IdeaUpdate{Title: strPtr("")})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	idea, _ := svc.GetIdea(ctx, id)
	if idea.Title != "X" {
		t.Errorf("expected title unchanged, got %q", idea.Title)
	}
}

func TestUpdateIdeaClearsListAndRef(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	plan, err := svc.UpsertPlan(ctx, id, "u1", samplePlan("v1"))
	if err != nil {
		t.Fatalf("upsert plan: %v", err)
	}
	risks := []RiskFactor{{Factor: "churn", Impact: 2, Likelihood: 2, Mitigation: "onboarding"}}
	if err := svc.UpdateIdea(ctx, id, "u1", IdeaUpdate{Risks: &risks, PlanRef: strPtr(plan.ID)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idea, _ := svc.GetIdea(ctx, id)
	if len(idea.Risks) != 1 || idea.PlanRef != plan.ID {
		t.Fatalf("expected risk and plan ref set, got %+v", idea)
	}

	var cleared []RiskFactor
	if err := svc.UpdateIdea(ctx, id, "u1", IdeaUpdate{Risks: &cleared, PlanRef: strPtr("")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idea, _ = svc.GetIdea(ctx, id)
	if idea.Risks != nil || idea.PlanRef != "" {
		t.Errorf("expected risks and plan ref cleared, got %+v", idea)
	}
}

func TestUpdateIdeaRejectsForeignRef(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	victim := createSample(t, svc, "u1")
	own := createSample(t, svc, "u2")
	score, err := svc.UpsertScore(ctx, victim, "u1", sampleCriteria(8, 6, 7, 9, 5))
	if err != nil {
		t.Fatalf("upsert score: %v", err)
	}

	err = svc.UpdateIdea(ctx, own, "u2", IdeaUpdate{ScoreRef: strPtr(score.ID)})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if err := svc.UpdateIdea(ctx, own, "u2", IdeaUpdate{PlanRef: strPtr("missing")}); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown plan, got %v", err)
	}
	idea, _ := svc.GetIdea(ctx, own)
	if idea.ScoreRef != "" || idea.PlanRef != "" {
		t.Errorf("expected refs untouched, got score=%q plan=%q", idea.ScoreRef, idea.PlanRef)
	}

	if _, err := svc.ResetIdea(ctx, own, "u2"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := svc.DeleteIdea(ctx, own, "u2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if doc, _ := db.Get(ctx, ScoresCollection, score.ID); doc == nil {
		t.Error("expected the other idea's score to survive")
	}
}

func TestResetIgnoresSmuggledRef(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	victim := createSample(t, svc, "u1")
	own := createSample(t, svc, "u2")
	score, err := svc.UpsertScore(ctx, victim, "u1", sampleCriteria(8, 6, 7, 9, 5))
	if err != nil {
		t.Fatalf("upsert score: %v", err)
	}
	// Written straight to the store, bypassing UpdateIdea.
	if err := db.Patch(ctx, IdeasCollection, own, map[string]any{fieldScoreRef: score.ID}); err != nil {
		t.Fatalf("patch: %v", err)
	}

	eval, err := svc.GetEvaluation(ctx, own)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval != nil {
		t.Errorf("expected no evaluation through a foreign ref, got %+v", eval)
	}
	if _, err := svc.ResetIdea(ctx, own, "u2"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if doc, _ := db.Get(ctx, ScoresCollection, score.ID); doc == nil {
		t.Error("expected the other idea's score to survive reset")
	}
	if eval, _ := svc.GetEvaluation(ctx, victim); eval == nil || eval.ID != score.ID {
		t.Errorf("expected owner's evaluation intact, got %+v", eval)
	}
}

func TestResetIdea(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	score, err := svc.UpsertScore(ctx, id, "u1", sampleCriteria(8, 6, 7, 9, 5))
	if err != nil {
		t.Fatalf("upsert score: %v", err)
	}
	plan, err := svc.UpsertPlan(ctx, id, "u1", samplePlan("v1"))
	if err != nil {
		t.Fatalf("upsert plan: %v", err)
	}
	if err := svc.ReplaceRisks(ctx, id, "u1", []RiskFactor{{Factor: "f", Impact: 1, Likelihood: 1, Mitigation: "m"}}); err != nil {
		t.Fatalf("replace risks: %v", err)
	}
	before, _ := svc.GetIdea(ctx, id)

	got, err := svc.ResetIdea(ctx, id, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id {
		t.Errorf("expected reset to return %s, got %s", id, got)
	}

	if doc, _ := db.Get(ctx, ScoresCollection, score.ID); doc != nil {
		t.Error("expected score record deleted")
	}
	if doc, _ := db.Get(ctx, PlansCollection, plan.ID); doc != nil {
		t.Error("expected plan record deleted")
	}

	after, _ := svc.GetIdea(ctx, id)
	if after.ScoreRef != "" || after.PlanRef != "" {
		t.Errorf("expected refs cleared, got score=%q plan=%q", after.ScoreRef, after.PlanRef)
	}
	if after.Risks != nil || after.Competitors != nil || after.ConsumerSegments != nil {
		t.Error("expected list artifacts cleared")
	}
	if after.IdeaFields != before.IdeaFields || after.OwnerID != before.OwnerID {
		t.Errorf("expected core fields unchanged, got %+v", after.IdeaFields)
	}

	eval, err := svc.GetEvaluation(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval != nil {
		t.Error("expected no evaluation after reset")
	}
}

func TestResetIdeaByOtherUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := createSample(t, svc, "u1")
	if _, err := svc.UpsertScore(ctx, id, "u1", sampleCriteria(5, 5, 5, 5, 5)); err != nil {
		t.Fatalf("upsert score: %v", err)
	}

	if _, err := svc.ResetIdea(ctx, id, "u2"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if eval, _ := svc.GetEvaluation(ctx, id); eval == nil {
		t.Error("expected score to survive a rejected reset")
	}
}

func TestDeleteIdeaCascades(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	id := createSample(t, svc, "u1")
	score, _ := svc.UpsertScore(ctx, id, "u1", sampleCriteria(5, 5, 5, 5, 5))
	plan, _ := svc.UpsertPlan(ctx, id, "u1", samplePlan("v1"))

	if err := svc.DeleteIdea(ctx, id, "u2"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.DeleteIdea(ctx, id, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if idea, _ := svc.GetIdea(ctx, id); idea != nil {
		t.Error("expected idea deleted")
	}
	if doc, _ := db.Get(ctx, ScoresCollection, score.ID); doc != nil {
		t.Error("expected score deleted")
	}
	if doc, _ := db.Get(ctx, PlansCollection, plan.ID); doc != nil {
		t.Error("expected plan deleted")
	}
	if err := svc.DeleteIdea(ctx, id, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListIdeasByOwnerNewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"first", "second", "third"} {
		f := sampleFields()
		f.Title = title
		id, err := svc.CreateIdea(ctx, "u1", f)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}
	createSample(t, svc, "u2")

	list, err := svc.ListIdeasByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 ideas, got %d", len(list))
	}
	if list[0].ID != ids[2] || list[2].ID != ids[0] {
		t.Errorf("expected newest first, got %s, %s, %s", list[0].Title, list[1].Title, list[2].Title)
	}

	all, err := svc.ListAllIdeas(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 ideas in total, got %d", len(all))
	}
}

func TestCorruptListReadsAsAbsent(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	id := createSample(t, svc, "u1")

	if err := db.Patch(ctx, IdeasCollection, id, map[string]any{fieldCompetitors: "{not json"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	idea, err := svc.GetIdea(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idea.Competitors != nil {
		t.Errorf("expected corrupt competitors to read as nil, got %+v", idea.Competitors)
	}
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"ok":               nil,
		"unauthorized":     ErrUnauthorized,
		"not_found":        ErrNotFound,
		"validation_error": invalid("x", "bad"),
		"generation_error": &GenerationError{Artifact: "score", Err: errors.New("boom")},
		"error":            errors.New("other"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Errorf("Outcome(%v) = %q, want %q", err, got, want)
		}
	}
}
