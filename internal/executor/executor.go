// Package executor runs a single swarm task against its routed backend.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sorcerai/storm-mcp/internal/llm"
	"github.com/sorcerai/storm-mcp/internal/registry"
	"github.com/sorcerai/storm-mcp/internal/router"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

var (
	ErrUnknownTaskType = swarm.ErrUnknownTaskType
	ErrEmptyOutline    = errors.New("outline has no sections")
)

const DefaultCallTimeout = 5 * time.Minute

type Executor struct {
	router   *router.Router
	backends map[registry.BackendID]llm.Backend
	timeout  time.Duration
}

// New creates an executor. timeout bounds each backend call; zero uses
// DefaultCallTimeout.
func New(r *router.Router, backends map[registry.BackendID]llm.Backend, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Executor{router: r, backends: backends, timeout: timeout}
}

// Execute routes and runs an assigned task, then records its outcome in the
// swarm ledger. The router decides the executing backend. The agent binding
// decides only who owns the task.
func (e *Executor) Execute(ctx context.Context, sw *swarm.Swarm, taskID string) (*swarm.Result, error) {
	task, ok := sw.Task(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", swarm.ErrUnknownTask, taskID)
	}

	backendID, routeErr := e.router.Route(ctx, task.Type, routingContent(task.Payload))
	if _, err := sw.Start(taskID, backendID); err != nil {
		return nil, err
	}
	if routeErr != nil {
		return nil, e.fail(sw, task, routeErr)
	}
	b, ok := e.backends[backendID]
	if !ok {
		return nil, e.fail(sw, task, fmt.Errorf("%w: no adapter for %s", router.ErrNoAvailableBackend, backendID))
	}

	start := time.Now()
	res, err := e.run(ctx, b, task)
	if err != nil {
		var be *llm.BackendError
		if !errors.As(err, &be) && !errors.Is(err, ErrUnknownTaskType) {
			err = &llm.BackendError{Backend: b.Name(), Op: string(task.Type), Err: err}
		}
		return nil, e.fail(sw, task, err)
	}
	res.Backend = backendID

	if err := sw.Complete(taskID, res); err != nil {
		return nil, err
	}
	slog.Debug("task completed",
		"swarm", sw.ID,
		"task", taskID,
		"type", task.Type,
		"backend", backendID,
		"tokens", res.Usage.Total,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

func (e *Executor) fail(sw *swarm.Swarm, task swarm.Task, cause error) error {
	if err := sw.Fail(task.ID, cause); err != nil {
		slog.Error("record task failure", "task", task.ID, "error", err)
	}
	slog.Warn("task failed", "swarm", sw.ID, "task", task.ID, "type", task.Type, "error", cause)
	return fmt.Errorf("task %s (%s): %w", task.ID, task.Type, cause)
}

func routingContent(p swarm.Payload) *router.Content {
	s, ok := p.(swarm.Section)
	if !ok {
		return nil
	}
	return &router.Content{
		Title:       s.Section.Title,
		Description: s.Section.Description,
		Body:        s.Body,
	}
}

// call issues one bounded generation request.
func (e *Executor) call(ctx context.Context, fn func(context.Context) (*llm.Response, error)) (*llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return fn(ctx)
}

func (e *Executor) generate(ctx context.Context, b llm.Backend, prompt string, opts llm.Options) (*llm.Response, error) {
	return e.call(ctx, func(ctx context.Context) (*llm.Response, error) {
		return b.GenerateText(ctx, prompt, opts)
	})
}
