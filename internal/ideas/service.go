// Package ideas owns the Idea aggregate: its core fields, the derived
// artifacts generated from them, and the rules for writing both.
package ideas

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/startopia/startopia/internal/llm"
	"github.com/startopia/startopia/internal/store"
)

// Generator returns structured content validated against schema.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, schema *llm.Schema, out any) error
}

// Observer receives one call per generation operation.
type Observer interface {
	ObserveGeneration(artifact, outcome string, took time.Duration)
}

// Service mediates every read and write of idea-linked data.
type Service struct {
	store    store.Store
	gen      Generator
	observer Observer
}

// NewService creates an orchestrator. gen may be nil when only CRUD is
// needed; generation calls then fail with a GenerationError.
func NewService(st store.Store, gen Generator) *Service {
	return &Service{store: st, gen: gen}
}

// WithObserver sets the generation observer.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// CreateIdea stores a new idea bound to ownerID and returns its id.
func (s *Service) CreateIdea(ctx context.Context, ownerID string, fields IdeaFields) (string, error) {
	if blank(ownerID) {
		return "", invalid("idea", "owner is required")
	}
	if err := validateFields(fields); err != nil {
		return "", err
	}
	id, err := s.store.Insert(ctx, IdeasCollection, ideaDoc{OwnerID: ownerID, IdeaFields: fields})
	if err != nil {
		return "", fmt.Errorf("creating idea: %w", err)
	}
	log.Printf("Created idea %s for %s: %s", id, ownerID, fields.Title)
	return id, nil
}

// UpdateIdea applies the set fields of u. The ownership check and the write
// happen in one transaction.
func (s *Service) UpdateIdea(ctx context.Context, ideaID, requesterID string, u IdeaUpdate) error {
	patch, err := buildPatch(u)
	if err != nil {
		return err
	}
	return s.store.RunInTx(ctx, func(tx store.Ops) error {
		if _, err := loadOwned(ctx, tx, ideaID, requesterID); err != nil {
			return err
		}
		if err := checkRefs(ctx, tx, ideaID, patch); err != nil {
			return err
		}
		if len(patch) == 0 {
			return nil
		}
		if err := tx.Patch(ctx, IdeasCollection, ideaID, patch); err != nil {
			return fmt.Errorf("updating idea %s: %w", ideaID, err)
		}
		return nil
	})
}

// checkRefs rejects a reference that does not name a record of this idea.
func checkRefs(ctx context.Context, tx store.Ops, ideaID string, patch map[string]any) error {
	var problems []string
	for field, coll := range map[string]string{fieldScoreRef: ScoresCollection, fieldPlanRef: PlansCollection} {
		ref, ok := patch[field].(string)
		if !ok {
			continue
		}
		belongs, err := linkedTo(ctx, tx, coll, ref, ideaID)
		if err != nil {
			return err
		}
		if !belongs {
			problems = append(problems, fmt.Sprintf("%s %s is not a %s record of this idea", field, ref, coll))
		}
	}
	if len(problems) > 0 {
		return invalid("idea update", problems...)
	}
	return nil
}

// linkedTo reports whether coll/id exists and points back at ideaID.
func linkedTo(ctx context.Context, ops store.Ops, coll, id, ideaID string) (bool, error) {
	doc, err := ops.Get(ctx, coll, id)
	if err != nil || doc == nil {
		return false, err
	}
	var back struct {
		IdeaID string `json:"ideaId"`
	}
	if err := doc.Decode(&back); err != nil {
		return false, err
	}
	return back.IdeaID == ideaID, nil
}

func buildPatch(u IdeaUpdate) (map[string]any, error) {
	patch := map[string]any{}
	var problems []string
	for _, kv := range []struct {
		name  string
		value *string
	}{
		{"title", u.Title},
		{"description", u.Description},
		{"problem", u.Problem},
		{"solution", u.Solution},
		{"category", u.Category},
	} {
		if kv.value == nil {
			continue
		}
		if blank(*kv.value) {
			problems = append(problems, kv.name+" cannot be empty")
			continue
		}
		patch[kv.name] = *kv.value
	}
	if len(problems) > 0 {
		return nil, invalid("idea update", problems...)
	}

	setRef := func(field string, v *string) {
		if v == nil {
			return
		}
		if *v == "" {
			patch[field] = nil
		} else {
			patch[field] = *v
		}
	}
	setRef(fieldScoreRef, u.ScoreRef)
	setRef(fieldPlanRef, u.PlanRef)

	if u.Competitors != nil {
		if err := setList(patch, fieldCompetitors, *u.Competitors, validateCompetitors); err != nil {
			return nil, err
		}
	}
	if u.Risks != nil {
		if err := setList(patch, fieldRisks, *u.Risks, validateRisks); err != nil {
			return nil, err
		}
	}
	if u.ConsumerSegments != nil {
		if err := setList(patch, fieldConsumers, *u.ConsumerSegments, validateConsumers); err != nil {
			return nil, err
		}
	}
	return patch, nil
}

func setList[T any](patch map[string]any, field string, list []T, validate func([]T) error) error {
	if list == nil {
		patch[field] = nil
		return nil
	}
	if err := validate(list); err != nil {
		return err
	}
	blob, err := encodeList(list)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", field, err)
	}
	patch[field] = blob
	return nil
}

// ResetIdea deletes the idea's Score and Plan and clears every derived
// artifact, keeping the core fields. It runs as one transaction.
func (s *Service) ResetIdea(ctx context.Context, ideaID, requesterID string) (string, error) {
	err := s.store.RunInTx(ctx, func(tx store.Ops) error {
		if _, err := loadOwned(ctx, tx, ideaID, requesterID); err != nil {
			return err
		}
		if err := deleteLinked(ctx, tx, ideaID); err != nil {
			return err
		}
		return tx.Patch(ctx, IdeasCollection, ideaID, map[string]any{
			fieldScoreRef:    nil,
			fieldPlanRef:     nil,
			fieldCompetitors: nil,
			fieldRisks:       nil,
			fieldConsumers:   nil,
		})
	})
	if err != nil {
		return "", err
	}
	log.Printf("Reset idea %s", ideaID)
	return ideaID, nil
}

// DeleteIdea removes the idea together with its Score and Plan.
func (s *Service) DeleteIdea(ctx context.Context, ideaID, requesterID string) error {
	err := s.store.RunInTx(ctx, func(tx store.Ops) error {
		if _, err := loadOwned(ctx, tx, ideaID, requesterID); err != nil {
			return err
		}
		if err := deleteLinked(ctx, tx, ideaID); err != nil {
			return err
		}
		return tx.Delete(ctx, IdeasCollection, ideaID)
	})
	if err != nil {
		return err
	}
	log.Printf("Deleted idea %s", ideaID)
	return nil
}

// deleteLinked removes the Score and Plan records pointing back at the
// idea. The idea's own refs are not followed.
func deleteLinked(ctx context.Context, tx store.Ops, ideaID string) error {
	for _, coll := range []string{ScoresCollection, PlansCollection} {
		related, err := tx.Query(ctx, coll, store.Eq(fieldIdeaID, ideaID))
		if err != nil {
			return err
		}
		for _, r := range related {
			if err := tx.Delete(ctx, coll, r.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetIdea returns the idea with its lists decoded, or nil if it does not
// exist.
func (s *Service) GetIdea(ctx context.Context, ideaID string) (*Idea, error) {
	doc, err := s.store.Get(ctx, IdeasCollection, ideaID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return decodeIdea(doc)
}

// ListIdeasByOwner returns the owner's ideas, newest first.
func (s *Service) ListIdeasByOwner(ctx context.Context, ownerID string) ([]Idea, error) {
	docs, err := s.store.Query(ctx, IdeasCollection, store.Eq(fieldOwnerID, ownerID))
	if err != nil {
		return nil, err
	}
	return decodeNewestFirst(docs)
}

// ListAllIdeas returns every idea, newest first.
func (s *Service) ListAllIdeas(ctx context.Context) ([]Idea, error) {
	docs, err := s.store.Query(ctx, IdeasCollection)
	if err != nil {
		return nil, err
	}
	return decodeNewestFirst(docs)
}

func decodeNewestFirst(docs []store.Document) ([]Idea, error) {
	out := make([]Idea, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		idea, err := decodeIdea(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *idea)
	}
	return out, nil
}

func decodeIdea(doc *store.Document) (*Idea, error) {
	var d ideaDoc
	if err := doc.Decode(&d); err != nil {
		return nil, err
	}
	return d.toIdea(doc.ID, doc.CreatedAt), nil
}

// loadOwned reads the stored idea and checks that requesterID owns it.
func loadOwned(ctx context.Context, ops store.Ops, ideaID, requesterID string) (ideaDoc, error) {
	var d ideaDoc
	doc, err := ops.Get(ctx, IdeasCollection, ideaID)
	if err != nil {
		return d, err
	}
	if doc == nil {
		return d, fmt.Errorf("%w: %s", ErrNotFound, ideaID)
	}
	if err := doc.Decode(&d); err != nil {
		return d, err
	}
	if requesterID == "" || d.OwnerID != requesterID {
		return d, ErrUnauthorized
	}
	return d, nil
}
