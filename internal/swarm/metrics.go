package swarm

import (
	"github.com/sorcerai/storm-mcp/internal/llm"
	"github.com/sorcerai/storm-mcp/internal/registry"
)

type AgentUtilization struct {
	Name           string             `json:"name"`
	Role           Role               `json:"role"`
	Backend        registry.BackendID `json:"backend"`
	Status         AgentStatus        `json:"status"`
	TasksCompleted int                `json:"tasks_completed"`
}

type Metrics struct {
	SwarmID          string                      `json:"swarm_id"`
	Topic            string                      `json:"topic"`
	Status           Status                      `json:"status"`
	Phase            Phase                       `json:"phase"`
	Topology         Topology                    `json:"topology"`
	TotalAgents      int                         `json:"total_agents"`
	TasksTotal       int                         `json:"tasks_total"`
	TasksCompleted   int                         `json:"tasks_completed"`
	TasksFailed      int                         `json:"tasks_failed"`
	AgentUtilization map[string]AgentUtilization `json:"agent_utilization"`
	BackendAgents    map[registry.BackendID]int  `json:"backend_agents"`
	BackendTasks     map[registry.BackendID]int  `json:"backend_tasks"`
	Usage            llm.Usage                   `json:"usage"`
	ElapsedMs        int64                       `json:"elapsed_ms"`
}

// Metrics takes a consistent snapshot of the swarm. Utilization is keyed by
// agent id.
func (s *Swarm) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := Metrics{
		SwarmID:          s.ID,
		Topic:            s.Topic,
		Status:           s.status,
		Phase:            s.phase,
		Topology:         s.Config.Topology,
		TotalAgents:      len(s.agents),
		TasksTotal:       len(s.tasks),
		AgentUtilization: make(map[string]AgentUtilization, len(s.agents)),
		BackendAgents:    make(map[registry.BackendID]int),
		BackendTasks:     make(map[registry.BackendID]int),
	}
	for _, a := range s.agents {
		m.AgentUtilization[a.ID] = AgentUtilization{
			Name:           a.Name,
			Role:           a.Role,
			Backend:        a.Backend,
			Status:         a.Status,
			TasksCompleted: a.CompletedTasks,
		}
		m.BackendAgents[a.Backend]++
	}
	for _, t := range s.tasks {
		switch t.Status {
		case TaskCompleted:
			m.TasksCompleted++
			m.BackendTasks[t.Backend]++
			if t.Result != nil {
				m.Usage = m.Usage.Add(t.Result.Usage)
			}
		case TaskFailed:
			m.TasksFailed++
		}
	}

	end := s.finishedAt
	if end.IsZero() {
		end = s.now()
	}
	m.ElapsedMs = end.Sub(s.CreatedAt).Milliseconds()
	return m
}
