package swarm

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sorcerai/storm-mcp/internal/registry"
)

const DefaultMaxAgents = 10

type Config struct {
	Topology  Topology `json:"topology" yaml:"topology"`
	MaxAgents int      `json:"max_agents" yaml:"max_agents"`
	Strategy  string   `json:"strategy" yaml:"strategy"`
}

func (c Config) withDefaults() Config {
	if c.Topology == "" {
		c.Topology = TopologyHierarchical
	}
	if c.MaxAgents <= 0 {
		c.MaxAgents = DefaultMaxAgents
	}
	if c.Strategy == "" {
		c.Strategy = "specialized"
	}
	return c
}

// Swarm is the agent roster and task ledger for one pipeline run. All
// methods are safe for concurrent use. Accessors return copies.
type Swarm struct {
	ID        string
	Topic     string
	Config    Config
	CreatedAt time.Time

	mu         sync.RWMutex
	status     Status
	phase      Phase
	agents     []*Agent
	agentByID  map[string]*Agent
	tasks      []*Task
	taskByID   map[string]*Task
	finishedAt time.Time
	now        func() time.Time
}

func New(topic string, cfg Config) (*Swarm, error) {
	cfg = cfg.withDefaults()
	if !cfg.Topology.Valid() {
		return nil, fmt.Errorf("invalid topology %q", cfg.Topology)
	}
	return &Swarm{
		ID:        uuid.New().String(),
		Topic:     topic,
		Config:    cfg,
		CreatedAt: time.Now(),
		status:    StatusInitializing,
		phase:     PhaseInitializing,
		agentByID: make(map[string]*Agent),
		taskByID:  make(map[string]*Task),
		now:       time.Now,
	}, nil
}

// Populate spawns one agent per roster entry in order and marks the swarm ready.
func (s *Swarm) Populate(roster []AgentSpec, reg *registry.Registry) error {
	if len(roster) > s.Config.MaxAgents {
		return fmt.Errorf("%w: %d > %d", ErrTooManyAgents, len(roster), s.Config.MaxAgents)
	}
	for _, spec := range roster {
		if !reg.Has(spec.Backend) {
			return fmt.Errorf("agent %q: %w: %q", spec.Name, registry.ErrUnknownBackend, spec.Backend)
		}
		if !spec.Role.Valid() {
			return fmt.Errorf("agent %q: invalid role %q", spec.Name, spec.Role)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, spec := range roster {
		a := &Agent{
			ID:      uuid.New().String(),
			Name:    spec.Name,
			Role:    spec.Role,
			Backend: spec.Backend,
			Status:  AgentIdle,
		}
		s.agents = append(s.agents, a)
		s.agentByID[a.ID] = a
	}
	s.status = StatusReady
	return nil
}

func (s *Swarm) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Swarm) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetPhase records the pipeline position and derives the swarm status.
func (s *Swarm) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
	switch p {
	case PhaseDone:
		s.status = StatusCompleted
		s.finishedAt = s.now()
	case PhaseFailed:
		s.status = StatusFailed
		s.finishedAt = s.now()
	case PhaseInitializing:
	default:
		s.status = StatusRunning
	}
}

// FinishedAt is when the swarm reached done or failed, or zero while it runs.
func (s *Swarm) FinishedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finishedAt
}

func (s *Swarm) Agent(id string) (Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agentByID[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// Agents returns all agents in creation order.
func (s *Swarm) Agents() []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Agent, len(s.agents))
	for i, a := range s.agents {
		out[i] = *a
	}
	return out
}

// AgentsOn returns the agents bound to backend in creation order.
func (s *Swarm) AgentsOn(backend registry.BackendID) []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Agent
	for _, a := range s.agents {
		if a.Backend == backend {
			out = append(out, *a)
		}
	}
	return out
}

// SelectAgent picks the first agent on backend with role, then the first
// agent on backend with any role, then the first agent on fallback.
func (s *Swarm) SelectAgent(backend registry.BackendID, role Role, fallback registry.BackendID) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.Backend == backend && a.Role == role {
			return *a, nil
		}
	}
	for _, a := range s.agents {
		if a.Backend == backend {
			return *a, nil
		}
	}
	for _, a := range s.agents {
		if a.Backend == fallback {
			return *a, nil
		}
	}
	return Agent{}, fmt.Errorf("%w: backend %s role %s", ErrNoAgent, backend, role)
}

// TaskOption adjusts a task before it is recorded.
type TaskOption func(*Task)

// WithThinking requests the backend's extended reasoning mode.
func WithThinking() TaskOption {
	return func(t *Task) { t.Thinking = true }
}

// NewTask records a task in created state.
func (s *Swarm) NewTask(p Payload, opts ...TaskOption) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Task{
		ID:        ulid.Make().String(),
		Type:      p.TaskType(),
		Payload:   p,
		Status:    TaskCreated,
		CreatedAt: s.now(),
	}
	for _, opt := range opts {
		opt(t)
	}
	s.tasks = append(s.tasks, t)
	s.taskByID[t.ID] = t
	return *t
}

// Assign binds a created task to an agent. The binding is permanent.
func (s *Swarm) Assign(taskID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.taskByID[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if _, ok := s.agentByID[agentID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if t.Status != TaskCreated {
		return fmt.Errorf("%w: assign %s task %s", ErrInvalidState, t.Status, taskID)
	}
	t.AgentID = agentID
	t.Status = TaskAssigned
	return nil
}

// Start moves an assigned task to executing on its agent. It fails if the
// agent is already working on a different task or is in error state.
func (s *Swarm) Start(taskID string, backend registry.BackendID) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.taskByID[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if t.Status != TaskAssigned {
		return Task{}, fmt.Errorf("%w: start %s task %s", ErrInvalidState, t.Status, taskID)
	}
	a := s.agentByID[t.AgentID]
	switch a.Status {
	case AgentWorking:
		return Task{}, fmt.Errorf("%w: %s has %s", ErrAgentBusy, a.Name, a.CurrentTaskID)
	case AgentError:
		return Task{}, fmt.Errorf("%w: %s", ErrAgentFailed, a.Name)
	}
	a.Status = AgentWorking
	a.CurrentTaskID = t.ID
	t.Status = TaskExecuting
	t.Backend = backend
	t.StartedAt = s.now()
	return *t, nil
}

// Complete records a result and returns the agent to idle.
func (s *Swarm) Complete(taskID string, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, a, err := s.executing(taskID)
	if err != nil {
		return err
	}
	t.Status = TaskCompleted
	t.Result = r
	t.CompletedAt = s.now()
	a.Status = AgentIdle
	a.CurrentTaskID = ""
	a.CompletedTasks++
	return nil
}

// Fail records the cause and puts the agent in error state. Agents are not
// recovered automatically.
func (s *Swarm) Fail(taskID string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.taskByID[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	t.Status = TaskFailed
	if cause != nil {
		t.Err = cause.Error()
	}
	t.CompletedAt = s.now()
	if a, ok := s.agentByID[t.AgentID]; ok && a.CurrentTaskID == t.ID {
		a.Status = AgentError
		a.CurrentTaskID = ""
	}
	return nil
}

func (s *Swarm) executing(taskID string) (*Task, *Agent, error) {
	t, ok := s.taskByID[taskID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if t.Status != TaskExecuting {
		return nil, nil, fmt.Errorf("%w: complete %s task %s", ErrInvalidState, t.Status, taskID)
	}
	return t, s.agentByID[t.AgentID], nil
}

func (s *Swarm) Task(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.taskByID[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Tasks returns all tasks in creation order.
func (s *Swarm) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = *t
	}
	return out
}

// TasksOfType returns tasks of the given types in creation order.
func (s *Swarm) TasksOfType(types ...TaskType) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Task
	for _, t := range s.tasks {
		if slices.Contains(types, t.Type) {
			out = append(out, *t)
		}
	}
	return out
}
