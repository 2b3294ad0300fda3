package registry

import (
	"errors"
	"fmt"
	"slices"
)

// BackendID identifies one LLM backend integration.
type BackendID string

const (
	Claude BackendID = "claude"
	Gemini BackendID = "gemini"
	Kimi   BackendID = "kimi"
)

var ErrUnknownBackend = errors.New("unknown backend")

// QualityTier orders backends by the rigor they are trusted with.
// Higher values outrank lower ones.
type QualityTier int

const (
	TierSpecialized QualityTier = iota + 1
	TierExcellent
	TierPremium
)

func (t QualityTier) String() string {
	switch t {
	case TierSpecialized:
		return "SPECIALIZED"
	case TierExcellent:
		return "EXCELLENT"
	case TierPremium:
		return "PREMIUM"
	default:
		return fmt.Sprintf("TIER(%d)", int(t))
	}
}

// Profile is the static capability record for a backend.
type Profile struct {
	ID                  BackendID   `json:"id"`
	Model               string      `json:"model"`
	Strengths           []string    `json:"strengths"`
	PreferredTaskTypes  []string    `json:"preferred_task_types"`
	ContextWindowTokens int         `json:"context_window_tokens"`
	QualityTier         QualityTier `json:"quality_tier"`
}

// Prefers reports whether taskType is listed in the profile's preferred task types.
func (p Profile) Prefers(taskType string) bool {
	return slices.Contains(p.PreferredTaskTypes, taskType)
}

// Registry is a read-only lookup of backend profiles. It is populated once
// at construction and never mutated afterwards, so it is safe for concurrent use.
type Registry struct {
	profiles map[BackendID]Profile
	order    []BackendID
}

func New(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[BackendID]Profile, len(profiles))}
	for _, p := range profiles {
		if p.ID == "" {
			return nil, errors.New("profile has empty backend id")
		}
		if _, dup := r.profiles[p.ID]; dup {
			return nil, fmt.Errorf("duplicate profile for backend %q", p.ID)
		}
		r.profiles[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	return r, nil
}

// Default returns the registry of the three built-in backends.
func Default() *Registry {
	r, err := New(DefaultProfiles()...)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultProfiles describes the built-in backends in registration order.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			ID:    Claude,
			Model: "claude-sonnet-4-20250514",
			Strengths: []string{
				"superior_reasoning", "best_code_generation", "mathematical_rigor",
				"creative_excellence", "synthesis_mastery", "polish_perfection",
				"nuanced_understanding", "research_depth", "analytical_precision",
			},
			PreferredTaskTypes: []string{
				"general_excellence", "complex_reasoning", "creative_writing", "data_analysis",
				"synthesis", "fact_checking", "review", "optimization", "coordination",
			},
			ContextWindowTokens: 200_000,
			QualityTier:         TierExcellent,
		},
		{
			ID:    Gemini,
			Model: "gemini-2.5-pro",
			Strengths: []string{
				"massive_context_1M", "multimodal_processing", "thinking_mode", "deep_analysis",
				"system_architecture", "complex_reasoning", "structured_thinking",
			},
			PreferredTaskTypes: []string{
				"documents_over_200K", "system_design", "architecture_planning",
				"thinking_mode_tasks", "complex_reasoning", "multimodal_analysis",
			},
			ContextWindowTokens: 1_000_000,
			QualityTier:         TierSpecialized,
		},
		{
			ID:    Kimi,
			Model: "kimi-k2-0711-preview",
			Strengths: []string{
				"exceptional_technical_depth", "mathematical_precision", "advanced_algorithm_design",
				"complex_proof_generation", "coding_excellence", "research_methodology",
			},
			PreferredTaskTypes: []string{
				"mathematical_proofs", "advanced_algorithms", "technical_analysis",
				"coding_challenges", "research_methodology", "precision_calculations",
			},
			ContextWindowTokens: 128_000,
			QualityTier:         TierPremium,
		},
	}
}

// Profile returns the profile registered for id.
func (r *Registry) Profile(id BackendID) (Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
	}
	return p, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id BackendID) bool {
	_, ok := r.profiles[id]
	return ok
}

// IDs returns the registered backends in registration order.
func (r *Registry) IDs() []BackendID {
	return slices.Clone(r.order)
}

// LargestContext returns the backend with the largest context window among
// candidates. Ties go to the backend registered first. Unregistered
// candidates are ignored.
func (r *Registry) LargestContext(candidates []BackendID) (BackendID, bool) {
	var (
		best    BackendID
		bestCtx = -1
	)
	for _, id := range r.order {
		if !slices.Contains(candidates, id) {
			continue
		}
		if w := r.profiles[id].ContextWindowTokens; w > bestCtx {
			best, bestCtx = id, w
		}
	}
	return best, bestCtx >= 0
}

// HighestTier returns the candidate with the highest quality tier.
// Ties go to the backend registered first.
func (r *Registry) HighestTier(candidates []BackendID) (BackendID, bool) {
	var (
		best     BackendID
		bestTier QualityTier
	)
	for _, id := range r.order {
		if !slices.Contains(candidates, id) {
			continue
		}
		if t := r.profiles[id].QualityTier; t > bestTier {
			best, bestTier = id, t
		}
	}
	return best, bestTier > 0
}
