package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sorcerai/storm-mcp/internal/executor"
	"github.com/sorcerai/storm-mcp/internal/llm"
	"github.com/sorcerai/storm-mcp/internal/registry"
	"github.com/sorcerai/storm-mcp/internal/router"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

// scripted wraps the simulated backend with per-prompt failures, delays and
// canned replies.
type scripted struct {
	*llm.Simulated
	fail     func(prompt string) error
	delay    func(prompt string) time.Duration
	override func(prompt string) (string, bool)
}

func newScripted(id registry.BackendID) *scripted {
	return &scripted{Simulated: llm.NewSimulated(string(id))}
}

func (s *scripted) GenerateText(ctx context.Context, prompt string, opts llm.Options) (*llm.Response, error) {
	if s.delay != nil {
		if d := s.delay(prompt); d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
	}
	if s.fail != nil {
		if err := s.fail(prompt); err != nil {
			return nil, err
		}
	}
	if s.override != nil {
		if text, ok := s.override(prompt); ok {
			return &llm.Response{Text: text, Model: "scripted"}, nil
		}
	}
	return s.Simulated.GenerateText(ctx, prompt, opts)
}

type fixedClassifier router.Decision

func (f fixedClassifier) Classify(context.Context, string) (router.Decision, error) {
	return router.Decision(f), nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

type recorder struct {
	mu   sync.Mutex
	runs []*Result
}

func (r *recorder) RecordRun(_ context.Context, _ *swarm.Swarm, res *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, res)
	return nil
}

type testEnv struct {
	orch     *Orchestrator
	backends map[registry.BackendID]*scripted
	events   *eventLog
	rec      *recorder
}

func newTestEnv(t *testing.T, decision router.Decision, available ...registry.BackendID) *testEnv {
	t.Helper()
	return newTestEnvWith(t, router.Config{}, decision, available...)
}

func newTestEnvWith(t *testing.T, rcfg router.Config, decision router.Decision, available ...registry.BackendID) *testEnv {
	t.Helper()
	reg := registry.Default()
	if len(available) == 0 {
		available = reg.IDs()
	}
	env := &testEnv{
		backends: make(map[registry.BackendID]*scripted),
		events:   &eventLog{},
		rec:      &recorder{},
	}
	adapters := make(map[registry.BackendID]llm.Backend)
	for _, id := range available {
		b := newScripted(id)
		env.backends[id] = b
		adapters[id] = b
	}
	rtr, err := router.New(reg, available, rcfg)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	rtr.SetClassifier(fixedClassifier(decision))

	var roster []swarm.AgentSpec
	for _, spec := range swarm.DefaultRoster() {
		if _, ok := adapters[spec.Backend]; ok {
			roster = append(roster, spec)
		}
	}
	env.orch = New(Config{
		Registry: reg,
		Router:   rtr,
		Executor: executor.New(rtr, adapters, time.Second),
		Roster:   roster,
		Events:   env.events,
		Recorder: env.rec,
	})
	return env
}

func TestRunPipelineOffline(t *testing.T) {
	env := newTestEnv(t, router.Standard)

	res, err := env.orch.RunPipeline(context.Background(), "Distributed consensus", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Article == "" {
		t.Fatal("expected an article")
	}

	want := []string{"## Introduction", "## Core Concepts", "## System Architecture", "## Applications", "## Conclusion"}
	last := -1
	for _, h := range want {
		i := strings.Index(res.Article, h)
		if i <= last {
			t.Fatalf("heading %q out of order in article:\n%s", h, res.Article)
		}
		last = i
	}

	m := res.Metrics
	if m.Status != swarm.StatusCompleted || m.Phase != swarm.PhaseDone {
		t.Errorf("unexpected final state %s/%s", m.Status, m.Phase)
	}
	// 12 research + 3 outline + 5 sections + 4 polish passes
	if m.TasksCompleted != 24 || m.TasksTotal != 24 || m.TasksFailed != 0 {
		t.Errorf("unexpected task counts %+v", m)
	}
	if m.TotalAgents != 10 {
		t.Errorf("expected 10 agents, got %d", m.TotalAgents)
	}
	if len(env.rec.runs) != 1 || env.rec.runs[0].Err != "" {
		t.Errorf("expected one recorded successful run, got %+v", env.rec.runs)
	}
	if got, ok := env.orch.Result(res.SwarmID); !ok || got.Article != res.Article {
		t.Error("expected result to be retained")
	}
}

func TestPhaseOrdering(t *testing.T) {
	env := newTestEnv(t, router.Standard)

	if _, err := env.orch.RunPipeline(context.Background(), "Distributed consensus", DefaultOptions()); err != nil {
		t.Fatal(err)
	}

	events := env.events.snapshot()
	lastResearch, firstWriting := -1, -1
	for i, ev := range events {
		switch {
		case ev.Phase == swarm.PhaseResearching && (ev.Type == EventTaskCompleted || ev.Type == EventTaskFailed):
			lastResearch = i
		case ev.Phase == swarm.PhaseWriting && ev.Type == EventTaskStarted && firstWriting < 0:
			firstWriting = i
		}
	}
	if lastResearch < 0 || firstWriting < 0 {
		t.Fatalf("missing events: research=%d writing=%d", lastResearch, firstWriting)
	}
	if firstWriting < lastResearch {
		t.Errorf("writing task started at %d before research settled at %d", firstWriting, lastResearch)
	}
}

func TestAgentNeverHoldsTwoTasks(t *testing.T) {
	env := newTestEnv(t, router.Premium)
	for _, b := range env.backends {
		b.delay = func(string) time.Duration { return 2 * time.Millisecond }
	}

	res, err := env.orch.RunPipeline(context.Background(), "Lattice cryptography", DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	active := make(map[string]int)
	for _, ev := range env.events.snapshot() {
		switch ev.Type {
		case EventTaskStarted:
			active[ev.AgentID]++
			if active[ev.AgentID] > 1 {
				t.Fatalf("agent %s started task %s while busy", ev.AgentID, ev.TaskID)
			}
		case EventTaskCompleted, EventTaskFailed:
			active[ev.AgentID]--
		}
	}

	sw, _ := env.orch.Swarm(res.SwarmID)
	perAgent := make(map[string]int)
	for _, task := range sw.Tasks() {
		if task.Status == swarm.TaskCompleted {
			perAgent[task.AgentID]++
		}
	}
	for id, u := range res.Metrics.AgentUtilization {
		if u.TasksCompleted != perAgent[id] {
			t.Errorf("agent %s: completed count %d, ledger shows %d", u.Name, u.TasksCompleted, perAgent[id])
		}
	}
}

func TestSectionOrderIndependentOfCompletion(t *testing.T) {
	env := newTestEnv(t, router.Standard)
	outline := "1. Introduction\n2. Architecture\n3. Conclusion"
	env.backends[registry.Claude].override = func(p string) (string, bool) {
		return outline, strings.Contains(p, "outline") && !strings.Contains(p, "Write a detailed section")
	}
	env.backends[registry.Gemini].override = func(p string) (string, bool) {
		return outline, strings.Contains(p, "Verify the logical structure")
	}
	env.backends[registry.Claude].delay = func(p string) time.Duration {
		if strings.Contains(p, "Section: Introduction") {
			return 80 * time.Millisecond
		}
		return 0
	}

	res, err := env.orch.RunPipeline(context.Background(), "Consensus", DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	intro := strings.Index(res.Article, "## Introduction")
	arch := strings.Index(res.Article, "## Architecture")
	concl := strings.Index(res.Article, "## Conclusion")
	if intro < 0 || !(intro < arch && arch < concl) {
		t.Fatalf("sections out of outline order:\n%s", res.Article)
	}

	sw, _ := env.orch.Swarm(res.SwarmID)
	var introDone, archDone time.Time
	for _, task := range sw.TasksOfType(swarm.TypeIntroduction, swarm.TypeWriteSection) {
		switch task.Result.Section {
		case "Introduction":
			introDone = task.CompletedAt
		case "Architecture":
			archDone = task.CompletedAt
			if task.Backend != registry.Gemini {
				t.Errorf("expected architecture section on gemini, got %s", task.Backend)
			}
		}
	}
	if !archDone.Before(introDone) {
		t.Errorf("expected architecture to finish before the slow introduction")
	}
}

func TestResearchFailureAbortsPipeline(t *testing.T) {
	env := newTestEnv(t, router.Standard)
	env.backends[registry.Claude].fail = func(p string) error {
		if strings.Contains(p, "Social Implications") {
			return &llm.BackendError{Backend: "claude", Op: "messages", Err: errors.New("529 overloaded")}
		}
		return nil
	}

	_, err := env.orch.RunPipeline(context.Background(), "Distributed consensus", DefaultOptions())
	var pe *PhaseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PhaseError, got %v", err)
	}
	if pe.Phase != swarm.PhaseResearching || pe.TaskID == "" {
		t.Errorf("unexpected phase error %+v", pe)
	}
	var be *llm.BackendError
	if !errors.As(err, &be) {
		t.Errorf("expected BackendError cause, got %v", err)
	}

	sws := env.orch.Swarms()
	if len(sws) != 1 {
		t.Fatalf("expected one swarm, got %d", len(sws))
	}
	sw := sws[0]
	if sw.Status() != swarm.StatusFailed {
		t.Errorf("expected failed swarm, got %s", sw.Status())
	}
	failed, _ := sw.Task(pe.TaskID)
	if failed.Status != swarm.TaskFailed {
		t.Errorf("expected failing task recorded as failed, got %s", failed.Status)
	}
	if n := len(sw.TasksOfType(swarm.TypeOutline, swarm.TypeWriteSection)); n != 0 {
		t.Errorf("expected no later-phase tasks, got %d", n)
	}
	if m, _ := env.orch.Metrics(sw.ID); m.TasksFailed < 1 {
		t.Errorf("expected failed tasks in metrics, got %+v", m)
	}
	if len(env.rec.runs) != 1 || env.rec.runs[0].Err == "" {
		t.Errorf("expected recorded failed run, got %+v", env.rec.runs)
	}
}

func TestClaudeOnly(t *testing.T) {
	env := newTestEnv(t, router.Standard, registry.Claude)
	opts := DefaultOptions()
	opts.Parallelization = false

	res, err := env.orch.RunPipeline(context.Background(), "Distributed consensus", opts)
	if err != nil {
		t.Fatal(err)
	}
	// 9 research + 2 outline + 5 sections + 3 polish passes
	if res.Metrics.TasksCompleted != 19 {
		t.Errorf("expected 19 tasks, got %d", res.Metrics.TasksCompleted)
	}
	for b, n := range res.Metrics.BackendTasks {
		if b != registry.Claude && n > 0 {
			t.Errorf("unexpected tasks on %s", b)
		}
	}
}

func TestPremiumTopicAddsTasks(t *testing.T) {
	env := newTestEnv(t, router.Premium)

	res, err := env.orch.RunPipeline(context.Background(), "Lattice cryptography", DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	sw, _ := env.orch.Swarm(res.SwarmID)
	for _, tt := range []swarm.TaskType{swarm.TypePremium, swarm.TypeMath, swarm.TypeTechnicalReview} {
		tasks := sw.TasksOfType(tt)
		if len(tasks) != 1 {
			t.Errorf("%s: expected 1 task, got %d", tt, len(tasks))
			continue
		}
		if tt != swarm.TypeTechnicalReview && tasks[0].Backend != registry.Kimi {
			t.Errorf("%s: expected kimi, got %s", tt, tasks[0].Backend)
		}
	}
	for _, task := range sw.TasksOfType(swarm.TypeWriteSection) {
		p := task.Payload.(swarm.Section)
		want := registry.Kimi
		if p.Section.Title == "System Architecture" {
			want = registry.Gemini
		}
		if task.Backend != want {
			t.Errorf("section %q: expected %s, got %s", p.Section.Title, want, task.Backend)
		}
	}
}

func TestPremiumIntroductionRoutesToKimi(t *testing.T) {
	for _, tt := range []struct {
		decision router.Decision
		kinds    map[string]swarm.TaskType
		want     registry.BackendID
	}{
		{router.Premium, map[string]swarm.TaskType{"Introduction": swarm.TypeWriteSection, "Conclusion": swarm.TypeWriteSection}, registry.Kimi},
		{router.Standard, map[string]swarm.TaskType{"Introduction": swarm.TypeIntroduction, "Conclusion": swarm.TypeConclusion}, registry.Claude},
	} {
		env := newTestEnv(t, tt.decision)
		res, err := env.orch.RunPipeline(context.Background(), "Quantum Cryptography", DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		sw, _ := env.orch.Swarm(res.SwarmID)
		seen := 0
		for _, task := range sw.TasksOfType(swarm.TypeIntroduction, swarm.TypeConclusion, swarm.TypeWriteSection) {
			p := task.Payload.(swarm.Section)
			kind, ok := tt.kinds[p.Section.Title]
			if !ok {
				continue
			}
			seen++
			if task.Type != kind || task.Backend != tt.want {
				t.Errorf("%s decision, %q: got %s on %s, want %s on %s",
					tt.decision, p.Section.Title, task.Type, task.Backend, kind, tt.want)
			}
		}
		if seen != 2 {
			t.Errorf("%s decision: expected introduction and conclusion tasks, got %d", tt.decision, seen)
		}
	}
}

func TestResearchHeavySectionUsesLargeContext(t *testing.T) {
	env := newTestEnvWith(t, router.Config{LargeContextThreshold: 500}, router.Standard)
	notes := strings.Repeat("Field applications keep growing across industries. ", 20)
	for _, b := range env.backends {
		b.override = func(p string) (string, bool) {
			return notes, strings.Contains(p, "generate a unique perspective")
		}
	}

	res, err := env.orch.RunPipeline(context.Background(), "Edge computing", DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	sw, _ := env.orch.Swarm(res.SwarmID)
	for _, task := range sw.TasksOfType(swarm.TypeWriteSection) {
		p := task.Payload.(swarm.Section)
		switch p.Section.Title {
		case "Applications":
			if task.Backend != registry.Gemini || p.Body == "" {
				t.Errorf("expected research-heavy section on gemini, got %s", task.Backend)
			}
		case "Core Concepts":
			if task.Backend != registry.Claude {
				t.Errorf("expected core concepts on claude, got %s", task.Backend)
			}
		}
	}
}

func TestPolishNearIdempotent(t *testing.T) {
	env := newTestEnv(t, router.Standard)
	res, err := env.orch.RunPipeline(context.Background(), "Distributed consensus", DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	sw, err := env.orch.CreateSwarm("Distributed consensus", swarm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	r := &run{o: env.orch, sw: sw, opts: DefaultOptions(), sections: []string{res.Article}}
	if err := r.polish(context.Background()); err != nil {
		t.Fatal(err)
	}
	before, after := len(strings.Fields(res.Article)), len(strings.Fields(r.article))
	if diff := after - before; diff < -2 || diff > 2 {
		t.Errorf("repolish changed word count %d -> %d", before, after)
	}
}

func TestInvalidOptions(t *testing.T) {
	env := newTestEnv(t, router.Standard)
	opts := DefaultOptions()
	opts.ResearchDepth = "bottomless"
	if _, err := env.orch.RunPipeline(context.Background(), "x", opts); err == nil {
		t.Fatal("expected invalid depth error")
	}
	opts = DefaultOptions()
	opts.ArticleLength = "epic"
	if _, err := env.orch.RunPipeline(context.Background(), "x", opts); err == nil {
		t.Fatal("expected invalid length error")
	}
	if _, err := env.orch.RunAsync(context.Background(), "x", opts); err == nil {
		t.Fatal("expected invalid length error")
	}
	if len(env.orch.Swarms()) != 0 {
		t.Error("no swarm should be created for invalid options")
	}
	sw, err := env.orch.CreateSwarm("x", swarm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.orch.StartSwarm(context.Background(), sw.ID, opts); err == nil {
		t.Error("expected invalid length error on start")
	}
	if st := sw.Metrics().Status; st != swarm.StatusReady {
		t.Errorf("swarm should not start with invalid options, status %s", st)
	}
	if _, err := env.orch.Metrics("missing"); !errors.Is(err, ErrUnknownSwarm) {
		t.Errorf("expected ErrUnknownSwarm, got %v", err)
	}
}

func TestLengthProfilesExtendDefaults(t *testing.T) {
	o := New(Config{Lengths: map[string]int{"brief": 600, "short": 900}})
	for _, length := range []string{"brief", "comprehensive", ""} {
		if err := o.validate(Options{ResearchDepth: "deep", ArticleLength: length}); err != nil {
			t.Errorf("length %q: %v", length, err)
		}
	}
	if err := o.validate(Options{ResearchDepth: "deep", ArticleLength: "epic"}); err == nil {
		t.Error("expected unknown length to be rejected")
	}
	if got := o.lengths["short"]; got != 900 {
		t.Errorf("expected override of short, got %d", got)
	}
}

func TestCancelledContext(t *testing.T) {
	env := newTestEnv(t, router.Standard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.orch.RunPipeline(ctx, "x", DefaultOptions())
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != swarm.PhaseResearching {
		t.Fatalf("expected researching PhaseError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSwarmRunsOnce(t *testing.T) {
	env := newTestEnv(t, router.Standard)
	sw, err := env.orch.CreateSwarm("Distributed consensus", swarm.Config{Topology: swarm.TopologyMesh})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.orch.Run(context.Background(), sw, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if _, err := env.orch.Run(context.Background(), sw, DefaultOptions()); !errors.Is(err, ErrSwarmStarted) {
		t.Errorf("expected ErrSwarmStarted, got %v", err)
	}
	if _, err := env.orch.StartSwarm(context.Background(), sw.ID, DefaultOptions()); !errors.Is(err, ErrSwarmStarted) {
		t.Errorf("expected ErrSwarmStarted from StartSwarm, got %v", err)
	}
	if _, err := env.orch.StartSwarm(context.Background(), "missing", DefaultOptions()); !errors.Is(err, ErrUnknownSwarm) {
		t.Errorf("expected ErrUnknownSwarm, got %v", err)
	}
}

func TestStartSwarmInBackground(t *testing.T) {
	env := newTestEnv(t, router.Standard)
	sw, err := env.orch.CreateSwarm("Distributed consensus", swarm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.orch.StartSwarm(context.Background(), sw.ID, DefaultOptions()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if res, ok := env.orch.Result(sw.ID); ok {
			if res.Err != "" || res.Article == "" {
				t.Fatalf("unexpected result %+v", res)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for background run")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
