package swarm

import (
	"errors"
	"time"

	"github.com/sorcerai/storm-mcp/internal/article"
	"github.com/sorcerai/storm-mcp/internal/llm"
	"github.com/sorcerai/storm-mcp/internal/registry"
)

var (
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrUnknownTask     = errors.New("unknown task")
	ErrNoAgent         = errors.New("no agent available")
	ErrAgentBusy       = errors.New("agent is working on another task")
	ErrAgentFailed     = errors.New("agent is in error state")
	ErrTooManyAgents   = errors.New("roster exceeds max agents")
	ErrInvalidState    = errors.New("invalid task state transition")
)

type Role string

const (
	RoleResearcher  Role = "researcher"
	RoleCoordinator Role = "coordinator"
	RoleReviewer    Role = "reviewer"
	RoleSpecialist  Role = "specialist"
	RoleOptimizer   Role = "optimizer"
	RoleArchitect   Role = "architect"
	RoleCoder       Role = "coder"
	RoleAnalyst     Role = "analyst"
)

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	switch r {
	case RoleResearcher, RoleCoordinator, RoleReviewer, RoleSpecialist,
		RoleOptimizer, RoleArchitect, RoleCoder, RoleAnalyst:
		return true
	}
	return false
}

type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentError   AgentStatus = "error"
)

type TaskStatus string

const (
	TaskCreated   TaskStatus = "created"
	TaskAssigned  TaskStatus = "assigned"
	TaskExecuting TaskStatus = "executing"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Topology is recorded on the swarm but does not change routing or execution.
type Topology string

const (
	TopologyHierarchical Topology = "hierarchical"
	TopologyMesh         Topology = "mesh"
	TopologyRing         Topology = "ring"
	TopologyStar         Topology = "star"
)

func (t Topology) Valid() bool {
	switch t {
	case TopologyHierarchical, TopologyMesh, TopologyRing, TopologyStar:
		return true
	}
	return false
}

// Phase is the orchestrator's position in the article pipeline.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseResearching  Phase = "researching"
	PhaseOutlining    Phase = "outlining"
	PhaseWriting      Phase = "writing"
	PhasePolishing    Phase = "polishing"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

type Agent struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Role           Role               `json:"role"`
	Backend        registry.BackendID `json:"backend"`
	Status         AgentStatus        `json:"status"`
	CurrentTaskID  string             `json:"current_task_id,omitempty"`
	CompletedTasks int                `json:"completed_tasks"`
}

type Task struct {
	ID      string             `json:"id"`
	Type    TaskType           `json:"type"`
	Payload Payload            `json:"payload"`
	AgentID string             `json:"agent_id,omitempty"`
	Backend registry.BackendID `json:"backend,omitempty"`
	// Thinking requests the backend's extended reasoning mode when it has one.
	Thinking    bool       `json:"thinking,omitempty"`
	Status      TaskStatus `json:"status"`
	Result      *Result    `json:"result,omitempty"`
	Err         string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   time.Time  `json:"started_at,omitzero"`
	CompletedAt time.Time  `json:"completed_at,omitzero"`
}

// Result is the normalized output of a task. Which fields are set depends
// on the task type.
type Result struct {
	Text         string             `json:"text"`
	Perspective  string             `json:"perspective,omitempty"`
	Questions    []string           `json:"questions,omitempty"`
	Outline      *article.Outline   `json:"outline,omitempty"`
	Section      string             `json:"section,omitempty"`
	Position     int                `json:"position,omitempty"`
	WordCount    int                `json:"word_count,omitempty"`
	Citations    []int              `json:"citations,omitempty"`
	Improvements []string           `json:"improvements,omitempty"`
	Issues       []string           `json:"issues,omitempty"`
	Backend      registry.BackendID `json:"backend"`
	Model        string             `json:"model,omitempty"`
	Usage        llm.Usage          `json:"usage"`
}
