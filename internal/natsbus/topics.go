package natsbus

import (
	"fmt"
	"strings"

	"github.com/sorcerai/storm-mcp/internal/pipeline"
)

// Event subjects are events.<kind>.<swarm id>, where kind is the event
// type prefix: swarm, phase or task.

const (
	TopicEventsAll      = "events.>"
	TopicEventsSwarm    = "events.swarm.*"
	TopicEventsPhase    = "events.phase.*"
	TopicEventsTask     = "events.task.*"
	TopicEventsSchedule = "events.schedule.run"
)

// TopicEvent is the subject an event is published on.
func TopicEvent(ev pipeline.Event) string {
	kind, _, _ := strings.Cut(string(ev.Type), "_")
	return fmt.Sprintf("events.%s.%s", kind, ev.SwarmID)
}

// TopicSwarmEvents matches every event of one swarm.
func TopicSwarmEvents(swarmID string) string {
	return fmt.Sprintf("events.*.%s", swarmID)
}
