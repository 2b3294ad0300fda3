package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sorcerai/storm-mcp/internal/article"
	"github.com/sorcerai/storm-mcp/internal/llm"
	"github.com/sorcerai/storm-mcp/internal/registry"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

// run is the state of one pipeline pass over a swarm.
type run struct {
	o    *Orchestrator
	sw   *swarm.Swarm
	opts Options

	premiumTopic bool
	notes        []swarm.ResearchNote
	sources      []llm.Source
	outlineDoc   article.Outline
	sections     []string
	article      string
}

func (r *run) defaultBackend() registry.BackendID {
	return r.o.router.Config().DefaultBackend
}

func (r *run) premiumBackend() registry.BackendID {
	return r.o.router.Config().PremiumBackend
}

// largeBackend is the registered backend with the largest context window.
func (r *run) largeBackend() registry.BackendID {
	id, _ := r.o.reg.LargestContext(r.o.reg.IDs())
	return id
}

// job is one task bound to its agent and waiting to run.
type job struct {
	task  swarm.Task
	agent swarm.Agent
}

func (r *run) newJob(p swarm.Payload, a swarm.Agent, opts ...swarm.TaskOption) (job, error) {
	t := r.sw.NewTask(p, opts...)
	if err := r.sw.Assign(t.ID, a.ID); err != nil {
		return job{}, err
	}
	t, _ = r.sw.Task(t.ID)
	return job{task: t, agent: a}, nil
}

// runOne runs a single job and returns its result.
func (r *run) runOne(ctx context.Context, j job) (*swarm.Result, error) {
	res, err := r.runJobs(ctx, []job{j}, false)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// runJobs executes jobs and returns results in input order. In parallel
// mode each agent gets its own goroutine that runs that agent's jobs in
// order, so no agent ever holds two tasks at once. The first failure
// cancels the rest. Jobs not yet started when that happens stay assigned.
func (r *run) runJobs(ctx context.Context, jobs []job, parallel bool) ([]*swarm.Result, error) {
	results := make([]*swarm.Result, len(jobs))

	if !parallel {
		for i, j := range jobs {
			res, err := r.exec(ctx, j)
			if err != nil {
				return results, err
			}
			results[i] = res
		}
		return results, nil
	}

	var (
		queues = make(map[string][]int)
		agents []string
	)
	for i, j := range jobs {
		if _, ok := queues[j.agent.ID]; !ok {
			agents = append(agents, j.agent.ID)
		}
		queues[j.agent.ID] = append(queues[j.agent.ID], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, agentID := range agents {
		queue := queues[agentID]
		g.Go(func() error {
			for _, i := range queue {
				if gctx.Err() != nil {
					return nil
				}
				res, err := r.exec(gctx, jobs[i])
				if err != nil {
					return err
				}
				results[i] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *run) exec(ctx context.Context, j job) (*swarm.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.o.emit(Event{
		Type:     EventTaskStarted,
		SwarmID:  r.sw.ID,
		Phase:    r.sw.Phase(),
		TaskID:   j.task.ID,
		TaskType: j.task.Type,
		AgentID:  j.agent.ID,
	})
	res, err := r.o.exec.Execute(ctx, r.sw, j.task.ID)
	if err != nil {
		r.o.emit(Event{
			Type:     EventTaskFailed,
			SwarmID:  r.sw.ID,
			Phase:    r.sw.Phase(),
			TaskID:   j.task.ID,
			TaskType: j.task.Type,
			AgentID:  j.agent.ID,
			Error:    err.Error(),
		})
		return nil, &taskError{taskID: j.task.ID, err: err}
	}
	r.o.emit(Event{
		Type:     EventTaskCompleted,
		SwarmID:  r.sw.ID,
		Phase:    r.sw.Phase(),
		TaskID:   j.task.ID,
		TaskType: j.task.Type,
		AgentID:  j.agent.ID,
		Data: map[string]any{
			"backend": res.Backend,
			"tokens":  res.Usage.Total,
		},
	})
	return res, nil
}

// pick returns agents[i % len], or ok=false when agents is empty.
func pick(agents []swarm.Agent, i int) (swarm.Agent, bool) {
	if len(agents) == 0 {
		return swarm.Agent{}, false
	}
	return agents[i%len(agents)], true
}

func (r *run) anyAgent() (swarm.Agent, error) {
	all := r.sw.Agents()
	if len(all) == 0 {
		return swarm.Agent{}, fmt.Errorf("%w: swarm has no agents", swarm.ErrNoAgent)
	}
	return all[0], nil
}
