package swarm

import "github.com/sorcerai/storm-mcp/internal/registry"

// AgentSpec is one roster line used to spawn an agent.
type AgentSpec struct {
	Backend registry.BackendID `json:"backend" yaml:"backend"`
	Role    Role               `json:"role" yaml:"role"`
	Name    string             `json:"name" yaml:"name"`
}

// DefaultRoster is five Claude agents, three Gemini agents and two Kimi agents.
func DefaultRoster() []AgentSpec {
	return []AgentSpec{
		{registry.Claude, RoleResearcher, "Lead Researcher"},
		{registry.Claude, RoleCoordinator, "Project Manager"},
		{registry.Claude, RoleReviewer, "Quality Controller"},
		{registry.Claude, RoleSpecialist, "Domain Expert"},
		{registry.Claude, RoleOptimizer, "Performance Optimizer"},

		{registry.Gemini, RoleResearcher, "Deep Context Researcher"},
		{registry.Gemini, RoleArchitect, "System Designer"},
		{registry.Gemini, RoleSpecialist, "Thinking Mode Specialist"},

		{registry.Kimi, RoleCoder, "Master Technical Expert"},
		{registry.Kimi, RoleAnalyst, "Mathematical Specialist"},
	}
}
