package router

import (
	"github.com/sorcerai/storm-mcp/internal/registry"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

// Rule is a routing policy for one task type. Static rules name a preferred
// and a fallback backend. Dynamic rules classify the task content and map
// the resulting category to a backend.
type Rule struct {
	Preferred  registry.BackendID
	Fallback   registry.BackendID
	Reason     string
	Dynamic    bool
	Categories map[Category]registry.BackendID
}

func staticRules() map[swarm.TaskType]Rule {
	c, g, k := registry.Claude, registry.Gemini, registry.Kimi
	return map[swarm.TaskType]Rule{
		swarm.TypePerspective:   {Preferred: c, Fallback: g, Reason: "strong analytical perspectives"},
		swarm.TypeResearchFacts: {Preferred: c, Fallback: g, Reason: "accurate fact research"},
		swarm.TypeFactCheck:     {Preferred: c, Fallback: g, Reason: "careful verification"},
		swarm.TypeDocument:      {Preferred: g, Fallback: c, Reason: "1M token context window"},
		swarm.TypeSystemDesign:  {Preferred: g, Fallback: c, Reason: "system design strength"},
		swarm.TypeReasoning:     {Preferred: g, Fallback: c, Reason: "thinking mode"},
		swarm.TypePremium:       {Preferred: k, Fallback: c, Reason: "premium technical depth"},
		swarm.TypeMath:          {Preferred: k, Fallback: c, Reason: "mathematical precision"},

		swarm.TypeOutline:       {Preferred: c, Fallback: g, Reason: "clear structure"},
		swarm.TypeReviewOutline: {Preferred: c, Fallback: g, Reason: "nuanced review"},
		swarm.TypeVerifyLogic:   {Preferred: g, Fallback: c, Reason: "thinking mode for logical verification"},

		swarm.TypeIntroduction: {Preferred: c, Fallback: g, Reason: "strong introductions"},
		swarm.TypeConclusion:   {Preferred: c, Fallback: g, Reason: "strong conclusions"},

		swarm.TypePolish:          {Preferred: c, Fallback: g, Reason: "best at polish"},
		swarm.TypeFinalPolish:     {Preferred: c, Fallback: g, Reason: "final polish pass"},
		swarm.TypeLogicCheck:      {Preferred: g, Fallback: c, Reason: "thinking mode for final logic check"},
		swarm.TypeTechnicalReview: {Preferred: c, Fallback: k, Reason: "technical understanding"},
	}
}

func sectionRule(cfg Config) Rule {
	return Rule{
		Dynamic: true,
		Reason:  "route by section content",
		Categories: map[Category]registry.BackendID{
			CategoryArchitecture: cfg.ArchitectureBackend,
			CategoryPremium:      cfg.PremiumBackend,
			CategoryDefault:      cfg.DefaultBackend,
		},
	}
}
