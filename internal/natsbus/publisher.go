package natsbus

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/sorcerai/storm-mcp/internal/pipeline"
)

// Publisher forwards pipeline events onto the bus.
type Publisher struct {
	client *Client
}

func NewPublisher(c *Client) *Publisher {
	return &Publisher{client: c}
}

// Publish implements pipeline.Events. Publish failures are logged and
// dropped so a slow bus never stalls a run.
func (p *Publisher) Publish(ev pipeline.Event) {
	if err := p.client.PublishJSON(TopicEvent(ev), ev); err != nil {
		slog.Warn("publish event", "type", ev.Type, "swarm", ev.SwarmID, "error", err)
	}
}

// SubscribeEvents decodes pipeline events on topic and hands them to fn.
func (c *Client) SubscribeEvents(topic string, fn func(pipeline.Event)) (*nats.Subscription, error) {
	sub, err := c.Subscribe(topic, func(msg *nats.Msg) {
		var ev pipeline.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("decode event", "subject", msg.Subject, "error", err)
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return sub, nil
}
