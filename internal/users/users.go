// Package users keeps one record per identity-provider subject.
package users

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/startopia/startopia/internal/store"
)

// Collection holds user documents, keyed by external id.
const Collection = "users"

// User is an authenticated person.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	SavedIdeas []string  `json:"savedIdeas,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type userDoc struct {
	ExternalID string   `json:"externalId"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	SavedIdeas []string `json:"savedIdeas,omitempty"`
}

// Service reads and writes users.
type Service struct {
	store store.Store
}

// NewService creates a user service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Login records a successful authentication. A new subject gets a user
// record; an existing one has its name and email refreshed when they
// changed. Empty profile values never overwrite stored ones.
func (s *Service) Login(ctx context.Context, externalID, name, email string) (*User, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, errors.New("login requires an external id")
	}

	u, err := s.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		if _, err := s.store.InsertUnique(ctx, Collection, externalID, userDoc{ExternalID: externalID, Name: name, Email: email}); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("creating user %s: %w", externalID, err)
		}
		if u, err = s.Get(ctx, externalID); err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("user %s vanished after insert", externalID)
		}
		log.Printf("Created user %s", externalID)
		return u, nil
	}

	patch := map[string]any{}
	if name != "" && name != u.Name {
		patch["name"] = name
	}
	if email != "" && email != u.Email {
		patch["email"] = email
	}
	if len(patch) == 0 {
		return u, nil
	}
	if err := s.store.Patch(ctx, Collection, u.ID, patch); err != nil {
		return nil, fmt.Errorf("refreshing user %s: %w", externalID, err)
	}
	if v, ok := patch["name"]; ok {
		u.Name = v.(string)
	}
	if v, ok := patch["email"]; ok {
		u.Email = v.(string)
	}
	return u, nil
}

// Get finds a user by external id. It returns nil when none exists.
func (s *Service) Get(ctx context.Context, externalID string) (*User, error) {
	docs, err := s.store.Query(ctx, Collection, store.Eq("externalId", externalID))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var d userDoc
	if err := docs[0].Decode(&d); err != nil {
		return nil, err
	}
	return &User{
		ID:         docs[0].ID,
		ExternalID: d.ExternalID,
		Name:       d.Name,
		Email:      d.Email,
		SavedIdeas: d.SavedIdeas,
		CreatedAt:  docs[0].CreatedAt,
	}, nil
}
