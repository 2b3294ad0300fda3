package store

import (
	"context"
	"fmt"

	"github.com/sorcerai/storm-mcp/internal/pipeline"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

// RecordRun persists a finished run, its task ledger and its article.
// It implements pipeline.Recorder.
func (s *Store) RecordRun(ctx context.Context, sw *swarm.Swarm, res *pipeline.Result) error {
	run := &SwarmRun{
		ID:        sw.ID,
		Topic:     sw.Topic,
		Status:    res.Metrics.Status,
		Phase:     res.Metrics.Phase,
		Topology:  string(sw.Config.Topology),
		Error:     res.Err,
		Metrics:   res.Metrics,
		StartedAt: sw.CreatedAt,
	}
	if finished := sw.FinishedAt(); !finished.IsZero() {
		run.CompletedAt = &finished
	}
	if err := s.SaveSwarmRun(run); err != nil {
		return err
	}
	if err := s.SaveTasks(ctx, sw.ID, sw.Tasks()); err != nil {
		return fmt.Errorf("record tasks: %w", err)
	}
	if res.Article == "" {
		return nil
	}
	return s.SaveArticle(&Article{
		SwarmID: sw.ID,
		Topic:   sw.Topic,
		Outline: res.Outline,
		Body:    res.Article,
	})
}
