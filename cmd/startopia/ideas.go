package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/startopia/startopia/internal/ideas"
	"github.com/startopia/startopia/internal/report"
)

var ideaCmd = &cobra.Command{
	Use:   "idea",
	Short: "Create, inspect and grow ideas",
}

var (
	ideaUser   string
	ideaFields ideas.IdeaFields
	listAll    bool
)

// withIdeas opens the store and runs fn with an orchestrator.
func withIdeas(cmd *cobra.Command, fn func(ctx context.Context, svc *ideas.Service) error) error {
	ctx := cmd.Context()
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, newIdeaService(db))
}

func requireUser() error {
	if ideaUser == "" {
		return errors.New("--user is required")
	}
	return nil
}

var ideaCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an idea",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		return withIdeas(cmd, func(ctx context.Context, svc *ideas.Service) error {
			id, err := svc.CreateIdea(ctx, ideaUser, ideaFields)
			if err != nil {
				return err
			}
			fmt.Printf("Created idea %s\n", id)
			return nil
		})
	},
}

var ideaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ideas, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !listAll {
			if err := requireUser(); err != nil {
				return err
			}
		}
		return withIdeas(cmd, func(ctx context.Context, svc *ideas.Service) error {
			var list []ideas.Idea
			var err error
			if listAll {
				list, err = svc.ListAllIdeas(ctx)
			} else {
				list, err = svc.ListIdeasByOwner(ctx, ideaUser)
			}
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No ideas yet. Add one with: startopia idea create or startopia generate")
				return nil
			}
			for _, idea := range list {
				markers := ""
				if idea.ScoreRef != "" {
					markers += " [scored]"
				}
				if idea.PlanRef != "" {
					markers += " [plan]"
				}
				fmt.Printf("  %s  %s (%s)%s\n", idea.ID, idea.Title, idea.Category, markers)
			}
			return nil
		})
	},
}

var ideaShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show an idea's core fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIdeas(cmd, func(ctx context.Context, svc *ideas.Service) error {
			idea, err := svc.GetIdea(ctx, args[0])
			if err != nil {
				return err
			}
			if idea == nil {
				return fmt.Errorf("%w: %s", ideas.ErrNotFound, args[0])
			}
			fmt.Printf("%s\n  Owner: %s\n  Category: %s\n  Created: %s\n\n", idea.Title, idea.OwnerID, idea.Category, idea.CreatedAt.Format("2006-01-02 15:04"))
			fmt.Printf("Description: %s\nProblem: %s\nSolution: %s\n", idea.Description, idea.Problem, idea.Solution)
			fmt.Printf("\nCompetitors: %d  Risks: %d  Segments: %d\n", len(idea.Competitors), len(idea.Risks), len(idea.ConsumerSegments))
			return nil
		})
	},
}

var ideaUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Change an idea's core fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		var u ideas.IdeaUpdate
		flags := cmd.Flags()
		for name, dst := range map[string]**string{
			"title":       &u.Title,
			"description": &u.Description,
			"problem":     &u.Problem,
			"solution":    &u.Solution,
			"category":    &u.Category,
		} {
			if flags.Changed(name) {
				v, _ := flags.GetString(name)
				*dst = &v
			}
		}
		return withIdeas(cmd, func(ctx context.Context, svc *ideas.Service) error {
			if err := svc.UpdateIdea(ctx, args[0], ideaUser, u); err != nil {
				return err
			}
			fmt.Printf("Updated idea %s\n", args[0])
			return nil
		})
	},
}

var ideaResetCmd = &cobra.Command{
	Use:   "reset [id]",
	Short: "Drop every generated artifact, keeping the core fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		return withIdeas(cmd, func(ctx context.Context, svc *ideas.Service) error {
			if _, err := svc.ResetIdea(ctx, args[0], ideaUser); err != nil {
				return err
			}
			fmt.Printf("Reset idea %s\n", args[0])
			return nil
		})
	},
}

var ideaDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an idea with its score and plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		return withIdeas(cmd, func(ctx context.Context, svc *ideas.Service) error {
			if err := svc.DeleteIdea(ctx, args[0], ideaUser); err != nil {
				return err
			}
			fmt.Printf("Deleted idea %s\n", args[0])
			return nil
		})
	},
}

// generationCmd builds a subcommand that runs one generation for an idea.
func generationCmd(use, short string, run func(ctx context.Context, svc *ideas.Service, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			return withIdeas(cmd, func(ctx context.Context, svc *ideas.Service) error {
				return run(ctx, svc, args[0])
			})
		},
	}
}

var ideaEvaluateCmd = generationCmd("evaluate", "Score an idea on five criteria", func(ctx context.Context, svc *ideas.Service, id string) error {
	score, err := svc.EvaluateIdea(ctx, id, ideaUser)
	if err != nil {
		return err
	}
	fmt.Printf("Overall: %.1f\n", score.OverallScore)
	for _, c := range score.CriteriaScores.All() {
		fmt.Printf("  %-14s %4.1f  %s\n", c.Name, c.Score, c.Explanation)
	}
	return nil
})

var ideaPlanCmd = generationCmd("plan", "Write a go-to-market plan", func(ctx context.Context, svc *ideas.Service, id string) error {
	plan, err := svc.GeneratePlan(ctx, id, ideaUser)
	if err != nil {
		return err
	}
	fmt.Printf("Tech:\n  %s\n\nTalent:\n  %s\n\nFinance:\n  %s\n\nLegal:\n  %s\n", plan.Tech, plan.Talent, plan.Finance, plan.Legal)
	return nil
})

var ideaCompetitorsCmd = generationCmd("competitors", "Map competitors on vision and execution", func(ctx context.Context, svc *ideas.Service, id string) error {
	list, err := svc.GenerateCompetitors(ctx, id, ideaUser)
	if err != nil {
		return err
	}
	for _, c := range list {
		marker := ""
		if c.IsMainIdea {
			marker = " *"
		}
		fmt.Printf("  %-30s vision %2d  execution %2d%s\n", c.Name, c.VisionCompleteness, c.ExecutionAbility, marker)
	}
	return nil
})

var ideaRisksCmd = generationCmd("risks", "Assess risks on the impact/likelihood matrix", func(ctx context.Context, svc *ideas.Service, id string) error {
	list, err := svc.GenerateRiskAssessment(ctx, id, ideaUser)
	if err != nil {
		return err
	}
	for _, r := range list {
		fmt.Printf("  [impact %d, likelihood %d] %s\n      %s\n", r.Impact, r.Likelihood, r.Factor, r.Mitigation)
	}
	return nil
})

var ideaConsumersCmd = generationCmd("consumers", "Split the target market into segments", func(ctx context.Context, svc *ideas.Service, id string) error {
	list, err := svc.GenerateConsumerSegments(ctx, id, ideaUser)
	if err != nil {
		return err
	}
	for _, s := range list {
		fmt.Printf("  %5.1f%%  %s\n", s.Percentage, s.Name)
	}
	return nil
})

var ideaReportCmd = &cobra.Command{
	Use:   "report [id]",
	Short: "Print the idea's dossier as Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIdeas(cmd, func(ctx context.Context, svc *ideas.Service) error {
			d, err := report.Load(ctx, svc, args[0])
			if err != nil {
				return err
			}
			if d == nil {
				return fmt.Errorf("%w: %s", ideas.ErrNotFound, args[0])
			}
			fmt.Print(report.Compose(*d))
			return nil
		})
	},
}

// --- generate command ---

var (
	genCriteria ideas.Criteria
	genSave     bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [problem statement]",
	Short: "Propose three ideas for a problem",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if genSave {
			if err := requireUser(); err != nil {
				return err
			}
		}
		problem := strings.Join(args, " ")
		return withIdeas(cmd, func(ctx context.Context, svc *ideas.Service) error {
			proposals, err := svc.GenerateIdeas(ctx, problem, genCriteria)
			if err != nil {
				return err
			}
			for i, p := range proposals {
				fmt.Printf("%d. %s (%s)\n   %s\n", i+1, p.Title, p.Category, p.Description)
				if genSave {
					id, err := svc.CreateIdea(ctx, ideaUser, p)
					if err != nil {
						return err
					}
					fmt.Printf("   saved as %s\n", id)
				}
				fmt.Println()
			}
			return nil
		})
	},
}

func init() {
	ideaCmd.PersistentFlags().StringVarP(&ideaUser, "user", "u", "", "Acting user id")
	ideaListCmd.Flags().BoolVar(&listAll, "all", false, "List ideas of every user")

	for _, c := range []*cobra.Command{ideaCreateCmd, ideaUpdateCmd} {
		c.Flags().StringVar(&ideaFields.Title, "title", "", "Title")
		c.Flags().StringVar(&ideaFields.Description, "description", "", "One-paragraph description")
		c.Flags().StringVar(&ideaFields.Problem, "problem", "", "Problem addressed")
		c.Flags().StringVar(&ideaFields.Solution, "solution", "", "Proposed solution")
		c.Flags().StringVar(&ideaFields.Category, "category", "", "Category")
	}

	ideaCmd.AddCommand(ideaCreateCmd, ideaListCmd, ideaShowCmd, ideaUpdateCmd, ideaResetCmd, ideaDeleteCmd)
	ideaCmd.AddCommand(ideaEvaluateCmd, ideaPlanCmd, ideaCompetitorsCmd, ideaRisksCmd, ideaConsumersCmd, ideaReportCmd)

	generateCmd.Flags().IntVar(&genCriteria.TechnicalComplexity, "complexity", 5, "Technical complexity, 1-10")
	generateCmd.Flags().IntVar(&genCriteria.MarketSize, "market", 5, "Market size, 1-10")
	generateCmd.Flags().IntVar(&genCriteria.InitialFunding, "funding", 5, "Initial funding requirement, 1-10")
	generateCmd.Flags().BoolVar(&genSave, "save", false, "Save the proposals as ideas")
	generateCmd.Flags().StringVarP(&ideaUser, "user", "u", "", "Owner of saved ideas")
}
