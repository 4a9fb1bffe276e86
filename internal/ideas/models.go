package ideas

import (
	"encoding/json"
	"log"
	"math"
	"time"
)

// Collections used by the orchestrator.
const (
	IdeasCollection  = "ideas"
	ScoresCollection = "scores"
	PlansCollection  = "plans"
)

// Stored field names on idea documents.
const (
	fieldOwnerID     = "ownerId"
	fieldIdeaID      = "ideaId"
	fieldScoreRef    = "scoreRef"
	fieldPlanRef     = "planRef"
	fieldCompetitors = "competitors"
	fieldRisks       = "risks"
	fieldConsumers   = "consumers"
)

// IdeaFields are the authored core fields of an idea.
type IdeaFields struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Problem     string `json:"problem"`
	Solution    string `json:"solution"`
	Category    string `json:"category"`
}

// Idea is the aggregate root with its list-valued artifacts decoded.
type Idea struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	IdeaFields
	ScoreRef         string            `json:"scoreRef,omitempty"`
	PlanRef          string            `json:"planRef,omitempty"`
	Competitors      []Competitor      `json:"competitors,omitempty"`
	Risks            []RiskFactor      `json:"risks,omitempty"`
	ConsumerSegments []ConsumerSegment `json:"consumerSegments,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// ideaDoc is the stored form. List artifacts are kept as serialized JSON
// strings on the idea itself and never leave this package in that form.
type ideaDoc struct {
	OwnerID string `json:"ownerId"`
	IdeaFields
	ScoreRef    string `json:"scoreRef,omitempty"`
	PlanRef     string `json:"planRef,omitempty"`
	Competitors string `json:"competitors,omitempty"`
	Risks       string `json:"risks,omitempty"`
	Consumers   string `json:"consumers,omitempty"`
}

func (d ideaDoc) toIdea(id string, createdAt time.Time) *Idea {
	idea := &Idea{
		ID:         id,
		OwnerID:    d.OwnerID,
		IdeaFields: d.IdeaFields,
		ScoreRef:   d.ScoreRef,
		PlanRef:    d.PlanRef,
		CreatedAt:  createdAt,
	}
	decodeList(id, fieldCompetitors, d.Competitors, &idea.Competitors)
	decodeList(id, fieldRisks, d.Risks, &idea.Risks)
	decodeList(id, fieldConsumers, d.Consumers, &idea.ConsumerSegments)
	return idea
}

// decodeList parses a serialized list. A corrupt blob reads as absent.
func decodeList[T any](ideaID, field, blob string, out *[]T) {
	if blob == "" {
		return
	}
	if err := json.Unmarshal([]byte(blob), out); err != nil {
		log.Printf("Ignoring unreadable %s on idea %s: %v", field, ideaID, err)
		*out = nil
	}
}

func encodeList[T any](list []T) (string, error) {
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CriterionScore is one evaluation criterion.
type CriterionScore struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// CriteriaScores is the fixed set of evaluation criteria.
type CriteriaScores struct {
	Innovation    CriterionScore `json:"innovation"`
	MarketFit     CriterionScore `json:"market_fit"`
	Feasibility   CriterionScore `json:"feasibility"`
	Scalability   CriterionScore `json:"scalability"`
	Profitability CriterionScore `json:"profitability"`
}

// NamedCriterion pairs a criterion with its key.
type NamedCriterion struct {
	Name string
	CriterionScore
}

// All returns the criteria in display order.
func (c CriteriaScores) All() []NamedCriterion {
	return []NamedCriterion{
		{"innovation", c.Innovation},
		{"market_fit", c.MarketFit},
		{"feasibility", c.Feasibility},
		{"scalability", c.Scalability},
		{"profitability", c.Profitability},
	}
}

// Overall is the mean of the five criteria rounded to one decimal.
func (c CriteriaScores) Overall() float64 {
	var sum float64
	all := c.All()
	for _, nc := range all {
		sum += nc.Score
	}
	// Scale before dividing so a half-step mean such as 7.05 stays exact.
	tenths := sum * 10 / float64(len(all))
	return math.Round(tenths+1e-9) / 10
}

// Score is the evaluation of an idea. OverallScore is always derived from
// CriteriaScores.
type Score struct {
	ID             string         `json:"id,omitempty"`
	IdeaID         string         `json:"ideaId"`
	OverallScore   float64        `json:"overallScore"`
	CriteriaScores CriteriaScores `json:"criteriaScores"`
}

// Plan is the go-to-market plan for an idea.
type Plan struct {
	ID     string `json:"id,omitempty"`
	IdeaID string `json:"ideaId"`
	PlanSections
}

// PlanSections are the plan's free-text fields.
type PlanSections struct {
	Tech    string `json:"tech"`
	Talent  string `json:"talent"`
	Finance string `json:"finance"`
	Legal   string `json:"legal"`
}

// Competitor is a point on the vision/execution chart. Exactly one entry of
// a set is the idea itself.
type Competitor struct {
	Name               string `json:"name"`
	VisionCompleteness int    `json:"visionCompleteness"`
	ExecutionAbility   int    `json:"executionAbility"`
	IsMainIdea         bool   `json:"isMainIdea"`
}

// RiskFactor is one cell of the 3x3 impact/likelihood matrix.
type RiskFactor struct {
	Factor     string `json:"factor"`
	Impact     int    `json:"impact"`
	Likelihood int    `json:"likelihood"`
	Mitigation string `json:"mitigation"`
}

// ConsumerSegment is a share of the target market.
type ConsumerSegment struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
}

// Criteria steer idea generation. Each is on a 1-10 scale.
type Criteria struct {
	TechnicalComplexity int `json:"technicalComplexity"`
	MarketSize          int `json:"marketSize"`
	InitialFunding      int `json:"initialFunding"`
}

// IdeaUpdate is a partial update. Nil fields are left untouched. A pointer
// to "" clears ScoreRef or PlanRef; a pointer to a nil slice clears a list.
type IdeaUpdate struct {
	Title       *string
	Description *string
	Problem     *string
	Solution    *string
	Category    *string

	ScoreRef         *string
	PlanRef          *string
	Competitors      *[]Competitor
	Risks            *[]RiskFactor
	ConsumerSegments *[]ConsumerSegment
}
