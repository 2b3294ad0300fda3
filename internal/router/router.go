package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/sorcerai/storm-mcp/internal/registry"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

var ErrNoAvailableBackend = errors.New("no available backend")

const DefaultLargeContextThreshold = 200_000

// Category is the content class a dynamic rule maps to a backend.
type Category string

const (
	CategoryLargeContext Category = "large_context"
	CategoryArchitecture Category = "architecture"
	CategoryPremium      Category = "premium"
	CategoryDefault      Category = "default"
)

type Config struct {
	DefaultBackend      registry.BackendID
	ArchitectureBackend registry.BackendID
	PremiumBackend      registry.BackendID
	// LargeContextThreshold is measured in characters of section body.
	LargeContextThreshold int
}

func (c Config) withDefaults() Config {
	if c.DefaultBackend == "" {
		c.DefaultBackend = registry.Claude
	}
	if c.ArchitectureBackend == "" {
		c.ArchitectureBackend = registry.Gemini
	}
	if c.PremiumBackend == "" {
		c.PremiumBackend = registry.Kimi
	}
	if c.LargeContextThreshold <= 0 {
		c.LargeContextThreshold = DefaultLargeContextThreshold
	}
	return c
}

// Content is what dynamic routing inspects.
type Content struct {
	Title       string
	Description string
	Body        string
}

var architectureRe = regexp.MustCompile(`architecture|system\sdesign|design\spattern|framework`)

type Router struct {
	reg        *registry.Registry
	available  map[registry.BackendID]bool
	rules      map[swarm.TaskType]Rule
	cfg        Config
	classifier Classifier

	mu      sync.Mutex
	premium map[string]bool
}

// New creates a router over the backends that have a configured adapter.
func New(reg *registry.Registry, available []registry.BackendID, cfg Config) (*Router, error) {
	cfg = cfg.withDefaults()
	r := &Router{
		reg:       reg,
		available: make(map[registry.BackendID]bool, len(available)),
		rules:     staticRules(),
		cfg:       cfg,
		premium:   make(map[string]bool),
	}
	for _, id := range available {
		if !reg.Has(id) {
			return nil, fmt.Errorf("%w: %q", registry.ErrUnknownBackend, id)
		}
		r.available[id] = true
	}
	r.rules[swarm.TypeWriteSection] = sectionRule(cfg)

	for tt, rule := range r.rules {
		for _, id := range ruleBackends(rule) {
			if !reg.Has(id) {
				return nil, fmt.Errorf("rule %s: %w: %q", tt, registry.ErrUnknownBackend, id)
			}
		}
	}
	return r, nil
}

func ruleBackends(r Rule) []registry.BackendID {
	ids := []registry.BackendID{}
	if r.Preferred != "" {
		ids = append(ids, r.Preferred)
	}
	if r.Fallback != "" {
		ids = append(ids, r.Fallback)
	}
	for _, id := range r.Categories {
		ids = append(ids, id)
	}
	return ids
}

// SetClassifier installs the premium-content classifier. Without one the
// keyword heuristic decides.
func (r *Router) SetClassifier(c Classifier) {
	r.classifier = c
}

func (r *Router) Config() Config { return r.cfg }

// Available reports whether backend has a configured adapter.
func (r *Router) Available(id registry.BackendID) bool {
	return r.available[id]
}

// Rule returns the routing rule for taskType.
func (r *Router) Rule(taskType swarm.TaskType) (Rule, bool) {
	rule, ok := r.rules[taskType]
	return rule, ok
}

// Route picks the backend that executes a task of taskType. content is
// consulted only for dynamic rules and may be nil.
func (r *Router) Route(ctx context.Context, taskType swarm.TaskType, content *Content) (registry.BackendID, error) {
	rule, ok := r.rules[taskType]
	if !ok {
		return "", fmt.Errorf("%w: %s", swarm.ErrUnknownTaskType, taskType)
	}
	if !rule.Dynamic {
		switch {
		case r.available[rule.Preferred]:
			return rule.Preferred, nil
		case r.available[rule.Fallback]:
			return rule.Fallback, nil
		}
		return "", fmt.Errorf("%w for %s: %s and %s not configured", ErrNoAvailableBackend, taskType, rule.Preferred, rule.Fallback)
	}

	cat := CategoryDefault
	if content != nil {
		cat = r.ClassifySection(ctx, *content)
	}
	return r.BackendFor(cat)
}

// ClassifySection assigns a content category: large context first, then
// architecture wording, then premium evaluation.
func (r *Router) ClassifySection(ctx context.Context, c Content) Category {
	if len(c.Body) > r.cfg.LargeContextThreshold {
		return CategoryLargeContext
	}
	combined := strings.ToLower(c.Title + " " + c.Description)
	if architectureRe.MatchString(combined) {
		return CategoryArchitecture
	}
	if r.IsPremium(ctx, strings.TrimSpace(c.Title+" "+c.Description)) {
		return CategoryPremium
	}
	return CategoryDefault
}

// BackendFor resolves a section category to a configured backend. An
// unconfigured category backend falls back to the default backend.
func (r *Router) BackendFor(cat Category) (registry.BackendID, error) {
	if cat == CategoryLargeContext {
		if id, ok := r.reg.LargestContext(r.availableIDs()); ok {
			return id, nil
		}
		return "", fmt.Errorf("%w for large context content", ErrNoAvailableBackend)
	}
	rule := r.rules[swarm.TypeWriteSection]
	if id, ok := rule.Categories[cat]; ok && r.available[id] {
		return id, nil
	}
	if r.available[r.cfg.DefaultBackend] {
		return r.cfg.DefaultBackend, nil
	}
	return "", fmt.Errorf("%w for %s content", ErrNoAvailableBackend, cat)
}

func (r *Router) availableIDs() []registry.BackendID {
	var ids []registry.BackendID
	for _, id := range r.reg.IDs() {
		if r.available[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsPremium decides whether content warrants the premium backend. The
// classifier decides when it answers. On classifier failure the keyword
// heuristic decides for that call only. Classifier answers are cached per
// content string.
func (r *Router) IsPremium(ctx context.Context, content string) bool {
	r.mu.Lock()
	if v, ok := r.premium[content]; ok {
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()

	premium, source := r.evaluatePremium(ctx, content)
	slog.Info("premium decision", "content", truncate(content, 80), "premium", premium, "source", source)
	if source != "classifier" || ctx.Err() != nil {
		return premium
	}

	r.mu.Lock()
	r.premium[content] = premium
	r.mu.Unlock()
	return premium
}

func (r *Router) evaluatePremium(ctx context.Context, content string) (bool, string) {
	if r.classifier == nil {
		return KeywordHeuristic(content), "heuristic"
	}
	d, err := r.classifier.Classify(ctx, content)
	if err != nil {
		slog.Warn("premium classifier failed, using keyword heuristic", "error", err)
		return KeywordHeuristic(content), "heuristic"
	}
	return d == Premium, "classifier"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
