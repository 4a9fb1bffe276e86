package ideas

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/startopia/startopia/internal/store"
)

// upsertLinked writes body as the one record of coll linked to ideaID. An
// existing record keeps its id and has its body replaced; otherwise a new
// record is inserted under the idea's unique key. The idea's reference is
// patched when it does not already point at the record.
func (s *Service) upsertLinked(ctx context.Context, coll, refField, ideaID, requesterID string, body any) (string, error) {
	var id string
	attempt := func() error {
		return s.store.RunInTx(ctx, func(tx store.Ops) error {
			doc, err := loadOwned(ctx, tx, ideaID, requesterID)
			if err != nil {
				return err
			}
			existing, err := tx.Query(ctx, coll, store.Eq(fieldIdeaID, ideaID))
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				id = existing[0].ID
				if err := tx.Replace(ctx, coll, id, body); err != nil {
					return err
				}
			} else {
				id, err = tx.InsertUnique(ctx, coll, ideaID, body)
				if err != nil {
					return err
				}
			}
			current := doc.ScoreRef
			if refField == fieldPlanRef {
				current = doc.PlanRef
			}
			if current == id {
				return nil
			}
			return tx.Patch(ctx, IdeasCollection, ideaID, map[string]any{refField: id})
		})
	}

	err := attempt()
	if errors.Is(err, store.ErrDuplicate) {
		// A concurrent writer inserted first; the retry finds its record.
		err = attempt()
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpsertScore stores criteria as the idea's Score. The overall score is
// recomputed from the criteria.
func (s *Service) UpsertScore(ctx context.Context, ideaID, requesterID string, criteria CriteriaScores) (*Score, error) {
	if err := validateCriteria(criteria); err != nil {
		return nil, err
	}
	score := Score{
		IdeaID:         ideaID,
		OverallScore:   criteria.Overall(),
		CriteriaScores: criteria,
	}
	id, err := s.upsertLinked(ctx, ScoresCollection, fieldScoreRef, ideaID, requesterID, score)
	if err != nil {
		return nil, err
	}
	score.ID = id
	return &score, nil
}

// UpsertPlan stores sections as the idea's Plan.
func (s *Service) UpsertPlan(ctx context.Context, ideaID, requesterID string, sections PlanSections) (*Plan, error) {
	if err := validatePlan(sections); err != nil {
		return nil, err
	}
	plan := Plan{IdeaID: ideaID, PlanSections: sections}
	id, err := s.upsertLinked(ctx, PlansCollection, fieldPlanRef, ideaID, requesterID, plan)
	if err != nil {
		return nil, err
	}
	plan.ID = id
	return &plan, nil
}

// ReplaceCompetitors overwrites the idea's competitor set.
func (s *Service) ReplaceCompetitors(ctx context.Context, ideaID, requesterID string, list []Competitor) error {
	if err := validateCompetitors(list); err != nil {
		return err
	}
	return replaceList(ctx, s, ideaID, requesterID, fieldCompetitors, list)
}

// ReplaceRisks overwrites the idea's risk list.
func (s *Service) ReplaceRisks(ctx context.Context, ideaID, requesterID string, list []RiskFactor) error {
	if err := validateRisks(list); err != nil {
		return err
	}
	return replaceList(ctx, s, ideaID, requesterID, fieldRisks, list)
}

// ReplaceConsumers overwrites the idea's consumer segments.
func (s *Service) ReplaceConsumers(ctx context.Context, ideaID, requesterID string, list []ConsumerSegment) error {
	if err := validateConsumers(list); err != nil {
		return err
	}
	return replaceList(ctx, s, ideaID, requesterID, fieldConsumers, list)
}

func replaceList[T any](ctx context.Context, s *Service, ideaID, requesterID, field string, list []T) error {
	blob, err := encodeList(list)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", field, err)
	}
	return s.store.RunInTx(ctx, func(tx store.Ops) error {
		if _, err := loadOwned(ctx, tx, ideaID, requesterID); err != nil {
			return err
		}
		return tx.Patch(ctx, IdeasCollection, ideaID, map[string]any{field: blob})
	})
}

// GetEvaluation returns the idea's Score. A missing idea, an unset
// reference or a reference to a deleted record all read as nil.
func (s *Service) GetEvaluation(ctx context.Context, ideaID string) (*Score, error) {
	var score Score
	ok, err := s.getLinked(ctx, ScoresCollection, ideaID, func(d ideaDoc) string { return d.ScoreRef }, &score)
	if err != nil || !ok {
		return nil, err
	}
	return &score, nil
}

// GetPlan returns the idea's Plan, or nil.
func (s *Service) GetPlan(ctx context.Context, ideaID string) (*Plan, error) {
	var plan Plan
	ok, err := s.getLinked(ctx, PlansCollection, ideaID, func(d ideaDoc) string { return d.PlanRef }, &plan)
	if err != nil || !ok {
		return nil, err
	}
	return &plan, nil
}

func (s *Service) getLinked(ctx context.Context, coll, ideaID string, ref func(ideaDoc) string, out any) (bool, error) {
	doc, err := s.store.Get(ctx, IdeasCollection, ideaID)
	if err != nil || doc == nil {
		return false, err
	}
	var d ideaDoc
	if err := doc.Decode(&d); err != nil {
		return false, err
	}
	id := ref(d)
	if id == "" {
		return false, nil
	}
	linked, err := s.store.Get(ctx, coll, id)
	if err != nil {
		return false, err
	}
	if linked == nil {
		log.Printf("Idea %s references missing %s record %s", ideaID, coll, id)
		return false, nil
	}
	var back struct {
		IdeaID string `json:"ideaId"`
	}
	if err := linked.Decode(&back); err != nil {
		return false, err
	}
	if back.IdeaID != ideaID {
		log.Printf("Idea %s references %s record %s of idea %s", ideaID, coll, id, back.IdeaID)
		return false, nil
	}
	if err := linked.Decode(out); err != nil {
		return false, err
	}
	switch v := out.(type) {
	case *Score:
		v.ID = linked.ID
	case *Plan:
		v.ID = linked.ID
	}
	return true, nil
}

// GetCompetitors returns the idea's competitor set, empty when none is
// stored.
func (s *Service) GetCompetitors(ctx context.Context, ideaID string) ([]Competitor, error) {
	idea, err := s.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if idea == nil || idea.Competitors == nil {
		return []Competitor{}, nil
	}
	return idea.Competitors, nil
}

// GetRisks returns the idea's risk list, or nil.
func (s *Service) GetRisks(ctx context.Context, ideaID string) ([]RiskFactor, error) {
	idea, err := s.GetIdea(ctx, ideaID)
	if err != nil || idea == nil {
		return nil, err
	}
	return idea.Risks, nil
}

// GetConsumers returns the idea's consumer segments, or nil.
func (s *Service) GetConsumers(ctx context.Context, ideaID string) ([]ConsumerSegment, error) {
	idea, err := s.GetIdea(ctx, ideaID)
	if err != nil || idea == nil {
		return nil, err
	}
	return idea.ConsumerSegments, nil
}
