package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sorcerai/storm-mcp/internal/config"
	"github.com/sorcerai/storm-mcp/internal/executor"
	"github.com/sorcerai/storm-mcp/internal/llm"
	"github.com/sorcerai/storm-mcp/internal/pipeline"
	"github.com/sorcerai/storm-mcp/internal/registry"
	"github.com/sorcerai/storm-mcp/internal/router"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

// runtime is the wired pipeline core shared by every command.
type runtime struct {
	registry  *registry.Registry
	router    *router.Router
	orch      *pipeline.Orchestrator
	available []registry.BackendID
	defaults  pipeline.Options
}

// buildBackends creates an adapter for every configured backend. Offline
// mode replaces them all with simulated backends.
func buildBackends(ctx context.Context, cfg *config.Config, offline bool) (map[registry.BackendID]llm.Backend, error) {
	out := make(map[registry.BackendID]llm.Backend)
	if offline {
		for _, id := range []registry.BackendID{registry.Claude, registry.Gemini, registry.Kimi} {
			out[id] = llm.NewSimulated(string(id))
		}
		return out, nil
	}

	if b := cfg.Backends.Claude; b.Configured() {
		out[registry.Claude] = llm.NewAnthropic(llm.AnthropicConfig{
			APIKey:  b.APIKey,
			Model:   b.Model,
			BaseURL: b.BaseURL,
		})
	}
	if b := cfg.Backends.Gemini; b.Configured() {
		g, err := llm.NewGemini(ctx, llm.GeminiConfig{APIKey: b.APIKey, Model: b.Model})
		if err != nil {
			return nil, err
		}
		out[registry.Gemini] = g
	}
	if b := cfg.Backends.Kimi; b.Configured() {
		out[registry.Kimi] = llm.NewOpenAICompat(llm.OpenAICompatConfig{
			Name:    string(registry.Kimi),
			APIKey:  b.APIKey,
			Model:   b.Model,
			BaseURL: b.BaseURL,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no backend configured: set an API key or use --offline")
	}
	return out, nil
}

// availableRoster drops roster entries whose backend has no adapter.
func availableRoster(roster []swarm.AgentSpec, backends map[registry.BackendID]llm.Backend) []swarm.AgentSpec {
	if len(roster) == 0 {
		roster = swarm.DefaultRoster()
	}
	var out []swarm.AgentSpec
	for _, spec := range roster {
		if _, ok := backends[spec.Backend]; ok {
			out = append(out, spec)
		}
	}
	return out
}

// classifierBackend picks the adapter that grades premium content.
func classifierBackend(backends map[registry.BackendID]llm.Backend) llm.Backend {
	for _, id := range []registry.BackendID{registry.Claude, registry.Kimi, registry.Gemini} {
		if b, ok := backends[id]; ok {
			return b
		}
	}
	return nil
}

func defaultOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		ResearchDepth:   cfg.Pipeline.ResearchDepth,
		ArticleLength:   cfg.Pipeline.ArticleLength,
		Parallelization: cfg.Pipeline.Parallelization,
		Swarm: swarm.Config{
			Topology:  swarm.Topology(cfg.Swarm.Topology),
			MaxAgents: cfg.Swarm.MaxAgents,
			Strategy:  cfg.Swarm.Strategy,
		},
	}
}

func newRuntime(ctx context.Context, cfg *config.Config, offline bool, events pipeline.Events, rec pipeline.Recorder) (*runtime, error) {
	backends, err := buildBackends(ctx, cfg, offline)
	if err != nil {
		return nil, err
	}

	reg := registry.Default()
	var available []registry.BackendID
	for _, id := range reg.IDs() {
		if _, ok := backends[id]; ok {
			available = append(available, id)
		}
	}

	rtr, err := router.New(reg, available, router.Config{
		DefaultBackend:        registry.BackendID(cfg.Router.DefaultBackend),
		ArchitectureBackend:   registry.BackendID(cfg.Router.ArchitectureBackend),
		PremiumBackend:        registry.BackendID(cfg.Router.PremiumBackend),
		LargeContextThreshold: cfg.Router.LargeContextThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("init router: %w", err)
	}
	if cfg.Router.Classifier == "llm" && !offline {
		if b := classifierBackend(backends); b != nil {
			rtr.SetClassifier(&router.LLMClassifier{Backend: b, Timeout: cfg.Router.ClassifierTimeout})
		}
	}

	roster := availableRoster(cfg.Swarm.Roster, backends)
	if len(roster) == 0 {
		return nil, fmt.Errorf("no roster agent runs on a configured backend")
	}

	pc := pipeline.Config{
		Registry: reg,
		Router:   rtr,
		Executor: executor.New(rtr, backends, cfg.Pipeline.CallTimeout),
		Roster:   roster,
		Lengths:  cfg.Pipeline.Lengths,
		Events:   events,
		Recorder: rec,
	}

	slog.Info("pipeline ready", "backends", available, "agents", len(roster), "offline", offline)
	return &runtime{
		registry:  reg,
		router:    rtr,
		orch:      pipeline.New(pc),
		available: available,
		defaults:  defaultOptions(cfg),
	}, nil
}
