// Package pipeline runs the four-phase article pipeline over a swarm:
// research, outline, write and polish.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/sorcerai/storm-mcp/internal/article"
	"github.com/sorcerai/storm-mcp/internal/executor"
	"github.com/sorcerai/storm-mcp/internal/registry"
	"github.com/sorcerai/storm-mcp/internal/router"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

var researchDepths = []string{"shallow", "standard", "deep"}

type Options struct {
	ResearchDepth   string       `json:"research_depth"`
	ArticleLength   string       `json:"article_length"`
	Parallelization bool         `json:"parallelization"`
	Swarm           swarm.Config `json:"swarm"`
}

func DefaultOptions() Options {
	return Options{
		ResearchDepth:   "deep",
		ArticleLength:   "comprehensive",
		Parallelization: true,
	}
}

// Validate checks the run options before any swarm is created.
func (o Options) Validate() error {
	if !slices.Contains(researchDepths, o.ResearchDepth) {
		return fmt.Errorf("invalid research depth %q", o.ResearchDepth)
	}
	return nil
}

// Recorder persists a finished or failed run.
type Recorder interface {
	RecordRun(ctx context.Context, sw *swarm.Swarm, res *Result) error
}

type Result struct {
	SwarmID string          `json:"swarm_id"`
	Topic   string          `json:"topic"`
	Article string          `json:"article"`
	Outline article.Outline `json:"outline"`
	Metrics swarm.Metrics   `json:"metrics"`
	Err     string          `json:"error,omitempty"`
}

type Config struct {
	Registry *registry.Registry
	Router   *router.Router
	Executor *executor.Executor
	// Roster spawns the agents of every new swarm. Empty uses swarm.DefaultRoster.
	Roster   []swarm.AgentSpec
	// Lengths adds or overrides article length profiles.
	Lengths  map[string]int
	Events   Events
	Recorder Recorder
}

// Orchestrator owns every swarm it creates and drives their pipelines.
type Orchestrator struct {
	reg      *registry.Registry
	router   *router.Router
	exec     *executor.Executor
	roster   []swarm.AgentSpec
	lengths  map[string]int
	events   Events
	recorder Recorder

	mu      sync.RWMutex
	swarms  map[string]*swarm.Swarm
	order   []string
	started map[string]bool
	results map[string]*Result
}

func New(cfg Config) *Orchestrator {
	roster := cfg.Roster
	if len(roster) == 0 {
		roster = swarm.DefaultRoster()
	}
	lengths := maps.Clone(article.DefaultLengths)
	maps.Copy(lengths, cfg.Lengths)
	return &Orchestrator{
		reg:      cfg.Registry,
		router:   cfg.Router,
		exec:     cfg.Executor,
		roster:   roster,
		lengths:  lengths,
		events:   cfg.Events,
		recorder: cfg.Recorder,
		swarms:   make(map[string]*swarm.Swarm),
		started:  make(map[string]bool),
		results:  make(map[string]*Result),
	}
}

// CreateSwarm builds a swarm for topic and spawns the roster.
func (o *Orchestrator) CreateSwarm(topic string, cfg swarm.Config) (*swarm.Swarm, error) {
	sw, err := swarm.New(topic, cfg)
	if err != nil {
		return nil, err
	}
	if err := sw.Populate(o.roster, o.reg); err != nil {
		return nil, fmt.Errorf("populate swarm: %w", err)
	}

	o.mu.Lock()
	o.swarms[sw.ID] = sw
	o.order = append(o.order, sw.ID)
	o.mu.Unlock()

	slog.Info("swarm created", "id", sw.ID, "topic", topic, "agents", len(o.roster), "topology", sw.Config.Topology)
	o.emit(Event{Type: EventSwarmCreated, SwarmID: sw.ID, Data: map[string]any{
		"topic":    topic,
		"agents":   len(o.roster),
		"topology": sw.Config.Topology,
	}})
	return sw, nil
}

// validate checks opts against the orchestrator's length profiles. An empty
// length uses the medium profile.
func (o *Orchestrator) validate(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if _, ok := o.lengths[opts.ArticleLength]; opts.ArticleLength != "" && !ok {
		return fmt.Errorf("invalid article length %q", opts.ArticleLength)
	}
	return nil
}

// RunPipeline creates a swarm for topic and runs it to completion.
func (o *Orchestrator) RunPipeline(ctx context.Context, topic string, opts Options) (*Result, error) {
	if err := o.validate(opts); err != nil {
		return nil, err
	}
	sw, err := o.CreateSwarm(topic, opts.Swarm)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, sw, opts)
}

// RunAsync creates a swarm and runs its pipeline in the background under ctx.
func (o *Orchestrator) RunAsync(ctx context.Context, topic string, opts Options) (*swarm.Swarm, error) {
	if err := o.validate(opts); err != nil {
		return nil, err
	}
	sw, err := o.CreateSwarm(topic, opts.Swarm)
	if err != nil {
		return nil, err
	}
	if err := o.claim(sw.ID); err != nil {
		return nil, err
	}
	go o.background(ctx, sw, opts)
	return sw, nil
}

// StartSwarm runs the pipeline of a swarm made by CreateSwarm in the
// background. A swarm runs at most once.
func (o *Orchestrator) StartSwarm(ctx context.Context, id string, opts Options) (*swarm.Swarm, error) {
	if err := o.validate(opts); err != nil {
		return nil, err
	}
	sw, ok := o.Swarm(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSwarm, id)
	}
	if err := o.claim(id); err != nil {
		return nil, err
	}
	go o.background(ctx, sw, opts)
	return sw, nil
}

func (o *Orchestrator) background(ctx context.Context, sw *swarm.Swarm, opts Options) {
	if _, err := o.drive(ctx, sw, opts); err != nil {
		slog.Error("pipeline failed", "swarm", sw.ID, "error", err)
	}
}

func (o *Orchestrator) claim(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started[id] {
		return fmt.Errorf("%w: %s", ErrSwarmStarted, id)
	}
	o.started[id] = true
	return nil
}

// Run drives sw through every phase. On failure the swarm is left in the
// failed state with its partial ledger intact.
func (o *Orchestrator) Run(ctx context.Context, sw *swarm.Swarm, opts Options) (*Result, error) {
	if err := o.validate(opts); err != nil {
		return nil, err
	}
	if err := o.claim(sw.ID); err != nil {
		return nil, err
	}
	return o.drive(ctx, sw, opts)
}

func (o *Orchestrator) drive(ctx context.Context, sw *swarm.Swarm, opts Options) (*Result, error) {
	r := &run{o: o, sw: sw, opts: opts}

	slog.Info("starting pipeline", "swarm", sw.ID, "topic", sw.Topic, "depth", opts.ResearchDepth, "length", opts.ArticleLength)

	steps := []struct {
		phase swarm.Phase
		fn    func(context.Context) error
	}{
		{swarm.PhaseResearching, r.research},
		{swarm.PhaseOutlining, r.outline},
		{swarm.PhaseWriting, r.write},
		{swarm.PhasePolishing, r.polish},
	}
	for _, step := range steps {
		sw.SetPhase(step.phase)
		o.emit(Event{Type: EventPhaseStarted, SwarmID: sw.ID, Phase: step.phase})
		if err := step.fn(ctx); err != nil {
			return nil, o.fail(ctx, r, step.phase, err)
		}
		o.emit(Event{Type: EventPhaseCompleted, SwarmID: sw.ID, Phase: step.phase})
		slog.Info("phase completed", "swarm", sw.ID, "phase", step.phase)
	}

	sw.SetPhase(swarm.PhaseDone)
	res := &Result{
		SwarmID: sw.ID,
		Topic:   sw.Topic,
		Article: r.article,
		Outline: r.outlineDoc,
		Metrics: sw.Metrics(),
	}
	o.finish(ctx, sw, res)
	o.emit(Event{Type: EventSwarmCompleted, SwarmID: sw.ID, Data: map[string]any{
		"words": article.CountWords(res.Article),
		"tasks": res.Metrics.TasksCompleted,
	}})
	slog.Info("pipeline completed", "swarm", sw.ID, "tasks", res.Metrics.TasksCompleted, "elapsed_ms", res.Metrics.ElapsedMs)
	return res, nil
}

func (o *Orchestrator) fail(ctx context.Context, r *run, phase swarm.Phase, err error) error {
	perr := phaseError(phase, err)
	r.sw.SetPhase(swarm.PhaseFailed)
	res := &Result{
		SwarmID: r.sw.ID,
		Topic:   r.sw.Topic,
		Outline: r.outlineDoc,
		Metrics: r.sw.Metrics(),
		Err:     perr.Error(),
	}
	o.finish(ctx, r.sw, res)
	o.emit(Event{Type: EventSwarmFailed, SwarmID: r.sw.ID, Phase: phase, Error: perr.Error()})
	slog.Error("pipeline phase failed", "swarm", r.sw.ID, "phase", phase, "error", err)
	return perr
}

func (o *Orchestrator) finish(ctx context.Context, sw *swarm.Swarm, res *Result) {
	o.mu.Lock()
	o.results[sw.ID] = res
	o.mu.Unlock()
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordRun(context.WithoutCancel(ctx), sw, res); err != nil {
		slog.Error("record run", "swarm", sw.ID, "error", err)
	}
}

func (o *Orchestrator) Swarm(id string) (*swarm.Swarm, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	sw, ok := o.swarms[id]
	return sw, ok
}

// Swarms returns every swarm in creation order.
func (o *Orchestrator) Swarms() []*swarm.Swarm {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*swarm.Swarm, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.swarms[id])
	}
	return out
}

// Result returns the outcome of a finished run.
func (o *Orchestrator) Result(id string) (*Result, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	res, ok := o.results[id]
	return res, ok
}

// Metrics snapshots the swarm with the given id.
func (o *Orchestrator) Metrics(id string) (swarm.Metrics, error) {
	sw, ok := o.Swarm(id)
	if !ok {
		return swarm.Metrics{}, fmt.Errorf("%w: %s", ErrUnknownSwarm, id)
	}
	return sw.Metrics(), nil
}
