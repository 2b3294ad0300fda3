package pipeline

import (
	"time"

	"github.com/sorcerai/storm-mcp/internal/swarm"
)

type EventType string

const (
	EventSwarmCreated   EventType = "swarm_created"
	EventPhaseStarted   EventType = "phase_started"
	EventPhaseCompleted EventType = "phase_completed"
	EventTaskStarted    EventType = "task_started"
	EventTaskCompleted  EventType = "task_completed"
	EventTaskFailed     EventType = "task_failed"
	EventSwarmCompleted EventType = "swarm_completed"
	EventSwarmFailed    EventType = "swarm_failed"

	// EventScheduleRun is published by the scheduler, not the pipeline.
	EventScheduleRun EventType = "schedule_run"
)

type Event struct {
	Type     EventType      `json:"type"`
	SwarmID  string         `json:"swarm_id"`
	Phase    swarm.Phase    `json:"phase,omitempty"`
	TaskID   string         `json:"task_id,omitempty"`
	TaskType swarm.TaskType `json:"task_type,omitempty"`
	AgentID  string         `json:"agent_id,omitempty"`
	Error    string         `json:"error,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Time     time.Time      `json:"time"`
}

// Events receives pipeline progress. Implementations must not block.
type Events interface {
	Publish(ev Event)
}

func (o *Orchestrator) emit(ev Event) {
	if o.events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	o.events.Publish(ev)
}
