package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/startopia/startopia/internal/identity"
	"github.com/startopia/startopia/internal/ideas"
)

const maxBodyBytes = 1 << 20

type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &badRequest{msg: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

func (s *Server) handleListIdeas(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	list, err := s.ideas.ListIdeasByOwner(r.Context(), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateIdea(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	var fields ideas.IdeaFields
	if err := decodeBody(r, &fields); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.ideas.CreateIdea(r.Context(), p.UserID, fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type generateIdeasRequest struct {
	Problem string `json:"problem"`
	ideas.Criteria
}

func (s *Server) handleGenerateIdeas(w http.ResponseWriter, r *http.Request, _ *identity.Principal) {
	var req generateIdeasRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	list, err := s.ideas.GenerateIdeas(r.Context(), req.Problem, req.Criteria)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ideas": list})
}

func (s *Server) handleGetIdea(w http.ResponseWriter, r *http.Request, _ *identity.Principal) {
	idea, err := s.ideas.GetIdea(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if idea == nil {
		writeError(w, ideas.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

func (s *Server) handleUpdateIdea(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	var raw map[string]json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, err)
		return
	}
	u, err := parseUpdate(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	if err := s.ideas.UpdateIdea(r.Context(), id, p.UserID, u); err != nil {
		writeError(w, err)
		return
	}
	idea, err := s.ideas.GetIdea(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

var null = []byte("null")

// parseUpdate reads a PATCH body. Absent keys are untouched. JSON null
// clears references and lists and is ignored for core fields.
func parseUpdate(raw map[string]json.RawMessage) (ideas.IdeaUpdate, error) {
	var u ideas.IdeaUpdate
	core := map[string]**string{
		"title":       &u.Title,
		"description": &u.Description,
		"problem":     &u.Problem,
		"solution":    &u.Solution,
		"category":    &u.Category,
	}
	for key, dst := range core {
		v, ok := raw[key]
		if !ok || bytes.Equal(v, null) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return u, &badRequest{msg: fmt.Sprintf("%s must be a string", key)}
		}
		*dst = &s
	}

	refs := map[string]**string{"scoreRef": &u.ScoreRef, "planRef": &u.PlanRef}
	for key, dst := range refs {
		v, ok := raw[key]
		if !ok {
			continue
		}
		s := ""
		if !bytes.Equal(v, null) {
			if err := json.Unmarshal(v, &s); err != nil {
				return u, &badRequest{msg: fmt.Sprintf("%s must be a string or null", key)}
			}
		}
		*dst = &s
	}

	if v, ok := raw["competitors"]; ok {
		list, err := parseList[ideas.Competitor]("competitors", v)
		if err != nil {
			return u, err
		}
		u.Competitors = &list
	}
	if v, ok := raw["risks"]; ok {
		list, err := parseList[ideas.RiskFactor]("risks", v)
		if err != nil {
			return u, err
		}
		u.Risks = &list
	}
	if v, ok := raw["consumerSegments"]; ok {
		list, err := parseList[ideas.ConsumerSegment]("consumerSegments", v)
		if err != nil {
			return u, err
		}
		u.ConsumerSegments = &list
	}
	return u, nil
}

func parseList[T any](key string, v json.RawMessage) ([]T, error) {
	if bytes.Equal(v, null) {
		return nil, nil
	}
	var list []T
	if err := json.Unmarshal(v, &list); err != nil {
		return nil, &badRequest{msg: fmt.Sprintf("%s must be a list or null: %v", key, err)}
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}

func (s *Server) handleDeleteIdea(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	if err := s.ideas.DeleteIdea(r.Context(), r.PathValue("id"), p.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetIdea(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	id, err := s.ideas.ResetIdea(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// requireIdea writes a 404 and returns false when the idea does not exist.
func (s *Server) requireIdea(w http.ResponseWriter, r *http.Request) bool {
	idea, err := s.ideas.GetIdea(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return false
	}
	if idea == nil {
		writeError(w, ideas.ErrNotFound)
		return false
	}
	return true
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	score, err := s.ideas.EvaluateIdea(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request, _ *identity.Principal) {
	if !s.requireIdea(w, r) {
		return
	}
	score, err := s.ideas.GetEvaluation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	plan, err := s.ideas.GeneratePlan(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request, _ *identity.Principal) {
	if !s.requireIdea(w, r) {
		return
	}
	plan, err := s.ideas.GetPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleGenerateCompetitors(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	list, err := s.ideas.GenerateCompetitors(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetCompetitors(w http.ResponseWriter, r *http.Request, _ *identity.Principal) {
	if !s.requireIdea(w, r) {
		return
	}
	list, err := s.ideas.GetCompetitors(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleReplaceCompetitors(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	var list []ideas.Competitor
	if err := decodeBody(r, &list); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ideas.ReplaceCompetitors(r.Context(), r.PathValue("id"), p.UserID, list); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGenerateRisks(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	list, err := s.ideas.GenerateRiskAssessment(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRisks(w http.ResponseWriter, r *http.Request, _ *identity.Principal) {
	if !s.requireIdea(w, r) {
		return
	}
	list, err := s.ideas.GetRisks(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleReplaceRisks(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	var list []ideas.RiskFactor
	if err := decodeBody(r, &list); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ideas.ReplaceRisks(r.Context(), r.PathValue("id"), p.UserID, list); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGenerateConsumers(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	list, err := s.ideas.GenerateConsumerSegments(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetConsumers(w http.ResponseWriter, r *http.Request, _ *identity.Principal) {
	if !s.requireIdea(w, r) {
		return
	}
	list, err := s.ideas.GetConsumers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleReplaceConsumers(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	var list []ideas.ConsumerSegment
	if err := decodeBody(r, &list); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ideas.ReplaceConsumers(r.Context(), r.PathValue("id"), p.UserID, list); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
