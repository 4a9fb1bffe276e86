package ideas

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/startopia/startopia/internal/llm"
)

// Artifact names used in errors, logs and metrics.
const (
	ArtifactIdeas       = "ideas"
	ArtifactScore       = "score"
	ArtifactPlan        = "plan"
	ArtifactCompetitors = "competitors"
	ArtifactRisks       = "risks"
	ArtifactConsumers   = "consumers"
)

const systemPrompt = `You are an experienced startup analyst and venture partner. You give concrete, candid assessments grounded in how real markets behave. Always answer with a single JSON object and nothing else.`

const ideaContext = `Startup idea:
Title: %s
Category: %s
Description: %s
Problem: %s
Solution: %s`

const evaluatePrompt = ideaContext + `

Evaluate this idea on five criteria, each scored from 0 to 10 with a short explanation:
- innovation: how new the approach is compared with existing offerings
- market_fit: how well the solution matches a real, paying need
- feasibility: how achievable it is with current technology and a small team
- scalability: how well it grows without costs growing in step
- profitability: how credible the path to sustainable margins is

Respond with ONLY this JSON:
{
    "innovation": {"score": 0, "explanation": "..."},
    "market_fit": {"score": 0, "explanation": "..."},
    "feasibility": {"score": 0, "explanation": "..."},
    "scalability": {"score": 0, "explanation": "..."},
    "profitability": {"score": 0, "explanation": "..."}
}`

const planPrompt = ideaContext + `

Write a go-to-market plan with four sections of one or two paragraphs each:
- tech: the technology to build first and how to stage it
- talent: the first hires and the skills the founding team needs
- finance: funding needs, first revenue and the main cost drivers
- legal: regulatory, licensing and IP concerns to handle early

Respond with ONLY this JSON:
{"tech": "...", "talent": "...", "finance": "...", "legal": "..."}`

const competitorsPrompt = ideaContext + `

Place this idea and four to six real-world competitors or close analogues on a vision/execution chart. Rate each on visionCompleteness and executionAbility as integers from 1 to 10. Include the idea itself exactly once, named by its title, with isMainIdea true; every other entry has isMainIdea false.

Respond with ONLY this JSON:
{"competitors": [{"name": "...", "visionCompleteness": 1, "executionAbility": 1, "isMainIdea": false}]}`

const risksPrompt = ideaContext + `

Identify the main risks for this idea. Rate impact and likelihood as integers from 1 (low) to 3 (high) and give a concrete mitigation for each. Use each impact/likelihood combination at most once.

Respond with ONLY this JSON:
{"risks": [{"factor": "...", "impact": 1, "likelihood": 1, "mitigation": "..."}]}`

const consumersPrompt = ideaContext + `

Split the target market for this idea into three to six consumer segments. Give each a short name and the percentage of the market it represents. The percentages must add up to 100.

Respond with ONLY this JSON:
{"segments": [{"name": "...", "percentage": 0}]}`

const ideasPrompt = `Generate 3 startup ideas based on the following problem statement and criteria:
Problem: %s
Technical Complexity: %d out of 10
Market Size: %d out of 10
Initial Funding Requirement: %d out of 10

Each idea needs a short title, a one-paragraph description, the specific problem it addresses, the proposed solution and a one or two word category.

Respond with ONLY this JSON:
{"ideas": [{"title": "...", "description": "...", "problem": "...", "solution": "...", "category": "..."}]}`

var (
	criterionSchema = `{"type": "object", "required": ["score", "explanation"], "properties": {"score": {"type": "number", "minimum": 0, "maximum": 10}, "explanation": {"type": "string", "minLength": 1}}}`

	scoreSchema = llm.MustCompileSchema("score", `{
		"type": "object",
		"required": ["innovation", "market_fit", "feasibility", "scalability", "profitability"],
		"properties": {
			"innovation": `+criterionSchema+`,
			"market_fit": `+criterionSchema+`,
			"feasibility": `+criterionSchema+`,
			"scalability": `+criterionSchema+`,
			"profitability": `+criterionSchema+`
		}
	}`)

	planSchema = llm.MustCompileSchema("plan", `{
		"type": "object",
		"required": ["tech", "talent", "finance", "legal"],
		"properties": {
			"tech": {"type": "string", "minLength": 1},
			"talent": {"type": "string", "minLength": 1},
			"finance": {"type": "string", "minLength": 1},
			"legal": {"type": "string", "minLength": 1}
		}
	}`)

	competitorsSchema = llm.MustCompileSchema("competitors", `{
		"type": "object",
		"required": ["competitors"],
		"properties": {
			"competitors": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["name", "visionCompleteness", "executionAbility", "isMainIdea"],
					"properties": {
						"name": {"type": "string", "minLength": 1},
						"visionCompleteness": {"type": "integer", "minimum": 1, "maximum": 10},
						"executionAbility": {"type": "integer", "minimum": 1, "maximum": 10},
						"isMainIdea": {"type": "boolean"}
					}
				}
			}
		}
	}`)

	risksSchema = llm.MustCompileSchema("risks", `{
		"type": "object",
		"required": ["risks"],
		"properties": {
			"risks": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["factor", "impact", "likelihood", "mitigation"],
					"properties": {
						"factor": {"type": "string", "minLength": 1},
						"impact": {"type": "integer", "minimum": 1, "maximum": 3},
						"likelihood": {"type": "integer", "minimum": 1, "maximum": 3},
						"mitigation": {"type": "string"}
					}
				}
			}
		}
	}`)

	consumersSchema = llm.MustCompileSchema("consumers", `{
		"type": "object",
		"required": ["segments"],
		"properties": {
			"segments": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["name", "percentage"],
					"properties": {
						"name": {"type": "string", "minLength": 1},
						"percentage": {"type": "number"}
					}
				}
			}
		}
	}`)

	ideasSchema = llm.MustCompileSchema("ideas", `{
		"type": "object",
		"required": ["ideas"],
		"properties": {
			"ideas": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["title", "description", "problem", "solution", "category"],
					"properties": {
						"title": {"type": "string"},
						"description": {"type": "string"},
						"problem": {"type": "string"},
						"solution": {"type": "string"},
						"category": {"type": "string"}
					}
				}
			}
		}
	}`)
)

// EvaluateIdea scores the idea on the five criteria and upserts its Score.
// Scores outside 0-10 or a missing criterion fail as a GenerationError and
// nothing is written.
func (s *Service) EvaluateIdea(ctx context.Context, ideaID, requesterID string) (score *Score, err error) {
	defer s.observe(ArtifactScore, time.Now(), &err)

	idea, err := s.ownedIdea(ctx, ideaID, requesterID)
	if err != nil {
		return nil, err
	}
	var criteria CriteriaScores
	if err := s.generate(ctx, ArtifactScore, contextPrompt(evaluatePrompt, idea), scoreSchema, &criteria); err != nil {
		return nil, err
	}
	if verr := validateCriteria(criteria); verr != nil {
		return nil, &GenerationError{Artifact: ArtifactScore, Err: verr}
	}
	score, err = s.UpsertScore(ctx, ideaID, requesterID, criteria)
	if err != nil {
		return nil, err
	}
	log.Printf("Evaluated idea %s: overall %.1f", ideaID, score.OverallScore)
	return score, nil
}

// GeneratePlan writes the idea's go-to-market plan.
func (s *Service) GeneratePlan(ctx context.Context, ideaID, requesterID string) (plan *Plan, err error) {
	defer s.observe(ArtifactPlan, time.Now(), &err)

	idea, err := s.ownedIdea(ctx, ideaID, requesterID)
	if err != nil {
		return nil, err
	}
	var sections PlanSections
	if err := s.generate(ctx, ArtifactPlan, contextPrompt(planPrompt, idea), planSchema, &sections); err != nil {
		return nil, err
	}
	plan, err = s.UpsertPlan(ctx, ideaID, requesterID, sections)
	if err != nil {
		return nil, err
	}
	log.Printf("Generated plan for idea %s", ideaID)
	return plan, nil
}

// GenerateCompetitors replaces the idea's competitor set. A result without
// exactly one main idea entry is a ValidationError and the stored set is
// kept.
func (s *Service) GenerateCompetitors(ctx context.Context, ideaID, requesterID string) (list []Competitor, err error) {
	defer s.observe(ArtifactCompetitors, time.Now(), &err)

	idea, err := s.ownedIdea(ctx, ideaID, requesterID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Competitors []Competitor `json:"competitors"`
	}
	if err := s.generate(ctx, ArtifactCompetitors, contextPrompt(competitorsPrompt, idea), competitorsSchema, &out); err != nil {
		return nil, err
	}
	if err := s.ReplaceCompetitors(ctx, ideaID, requesterID, out.Competitors); err != nil {
		return nil, err
	}
	log.Printf("Generated %d competitors for idea %s", len(out.Competitors), ideaID)
	return out.Competitors, nil
}

// GenerateRiskAssessment replaces the idea's risk list.
func (s *Service) GenerateRiskAssessment(ctx context.Context, ideaID, requesterID string) (list []RiskFactor, err error) {
	defer s.observe(ArtifactRisks, time.Now(), &err)

	idea, err := s.ownedIdea(ctx, ideaID, requesterID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Risks []RiskFactor `json:"risks"`
	}
	if err := s.generate(ctx, ArtifactRisks, contextPrompt(risksPrompt, idea), risksSchema, &out); err != nil {
		return nil, err
	}
	if err := s.ReplaceRisks(ctx, ideaID, requesterID, out.Risks); err != nil {
		return nil, err
	}
	log.Printf("Generated %d risks for idea %s", len(out.Risks), ideaID)
	return out.Risks, nil
}

// GenerateConsumerSegments replaces the idea's consumer segments.
func (s *Service) GenerateConsumerSegments(ctx context.Context, ideaID, requesterID string) (list []ConsumerSegment, err error) {
	defer s.observe(ArtifactConsumers, time.Now(), &err)

	idea, err := s.ownedIdea(ctx, ideaID, requesterID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Segments []ConsumerSegment `json:"segments"`
	}
	if err := s.generate(ctx, ArtifactConsumers, contextPrompt(consumersPrompt, idea), consumersSchema, &out); err != nil {
		return nil, err
	}
	if err := s.ReplaceConsumers(ctx, ideaID, requesterID, out.Segments); err != nil {
		return nil, err
	}
	log.Printf("Generated %d consumer segments for idea %s", len(out.Segments), ideaID)
	return out.Segments, nil
}

// GenerateIdeas proposes three ideas for a problem statement. Nothing is
// stored; the caller creates the ones it keeps.
func (s *Service) GenerateIdeas(ctx context.Context, problem string, c Criteria) (ideas []IdeaFields, err error) {
	defer s.observe(ArtifactIdeas, time.Now(), &err)

	if err := validateCriteriaInput(problem, c); err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(ideasPrompt, problem, c.TechnicalComplexity, c.MarketSize, c.InitialFunding)
	var out struct {
		Ideas []IdeaFields `json:"ideas"`
	}
	if err := s.generate(ctx, ArtifactIdeas, prompt, ideasSchema, &out); err != nil {
		return nil, err
	}
	if len(out.Ideas) != 3 {
		return nil, invalid("generated ideas", fmt.Sprintf("expected 3 ideas, got %d", len(out.Ideas)))
	}
	var problems []string
	for i, idea := range out.Ideas {
		if verr := validateFields(idea); verr != nil {
			var v *ValidationError
			errors.As(verr, &v)
			for _, p := range v.Problems {
				problems = append(problems, fmt.Sprintf("idea %d: %s", i+1, p))
			}
		}
	}
	if len(problems) > 0 {
		return nil, invalid("generated ideas", problems...)
	}
	log.Printf("Generated 3 ideas for problem: %.60s", problem)
	return out.Ideas, nil
}

// ownedIdea loads the idea and checks ownership before any generation call.
func (s *Service) ownedIdea(ctx context.Context, ideaID, requesterID string) (IdeaFields, error) {
	d, err := loadOwned(ctx, s.store, ideaID, requesterID)
	if err != nil {
		return IdeaFields{}, err
	}
	return d.IdeaFields, nil
}

func (s *Service) generate(ctx context.Context, artifact, prompt string, schema *llm.Schema, out any) error {
	if s.gen == nil {
		return &GenerationError{Artifact: artifact, Err: llm.ErrNoProvider}
	}
	if err := s.gen.Generate(ctx, systemPrompt, prompt, schema, out); err != nil {
		return &GenerationError{Artifact: artifact, Err: err}
	}
	return nil
}

func (s *Service) observe(artifact string, start time.Time, err *error) {
	outcome := Outcome(*err)
	if *err != nil {
		log.Printf("Generating %s failed (%s): %v", artifact, outcome, *err)
	}
	if s.observer != nil {
		s.observer.ObserveGeneration(artifact, outcome, time.Since(start))
	}
}

func contextPrompt(tmpl string, f IdeaFields) string {
	return fmt.Sprintf(tmpl, f.Title, f.Category, f.Description, f.Problem, f.Solution)
}
