package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sorcerai/storm-mcp/internal/config"
	"github.com/sorcerai/storm-mcp/internal/natsbus"
	"github.com/sorcerai/storm-mcp/internal/pipeline"
	"github.com/sorcerai/storm-mcp/internal/schedule"
	"github.com/sorcerai/storm-mcp/internal/store"
)

// Runner executes one article pipeline.
type Runner interface {
	RunPipeline(ctx context.Context, topic string, opts pipeline.Options) (*pipeline.Result, error)
}

// Scheduler triggers configured article runs when their schedules come due.
type Scheduler struct {
	store        *store.Store
	runner       Runner
	natsClient   *natsbus.Client
	pollInterval time.Duration
	defaults     pipeline.Options
	now          func() time.Time
}

// New builds a scheduler. client may be nil, in which case run events are
// not published.
func New(s *store.Store, r Runner, client *natsbus.Client, cfg config.SchedulerConfig, defaults pipeline.Options) *Scheduler {
	return &Scheduler{
		store:        s,
		runner:       r,
		natsClient:   client,
		pollInterval: cfg.PollInterval,
		defaults:     defaults,
		now:          time.Now,
	}
}

// Sync stores the configured schedules and removes any no longer declared.
// Existing schedules keep their next run unless the cron expression changed.
func (s *Scheduler) Sync(schedules []config.ScheduleConfig) error {
	now := s.now()
	names := make([]string, 0, len(schedules))
	for _, sc := range schedules {
		parsed, err := schedule.Parse(sc.Cron)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", sc.Name, err)
		}
		next, err := parsed.Next(now)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", sc.Name, err)
		}
		if err := s.store.SaveSchedule(&store.Schedule{
			Name:      sc.Name,
			Cron:      sc.Cron,
			Topic:     sc.Topic,
			Length:    sc.Length,
			Depth:     sc.Depth,
			NextRunAt: &next,
		}); err != nil {
			return err
		}
		names = append(names, sc.Name)
		slog.Info("schedule registered", "name", sc.Name, "schedule", schedule.Describe(sc.Cron), "next_run", next)
	}
	return s.store.DeleteSchedulesNotIn(names)
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	due, err := s.store.GetDueSchedules(s.now())
	if err != nil {
		slog.Error("failed to get due schedules", "error", err)
		return
	}

	for _, sc := range due {
		if ctx.Err() != nil {
			return
		}
		s.execute(ctx, sc)
	}
}

func (s *Scheduler) execute(ctx context.Context, sc store.Schedule) {
	slog.Info("running scheduled article", "name", sc.Name, "topic", sc.Topic)

	opts := s.defaults
	if sc.Length != "" {
		opts.ArticleLength = sc.Length
	}
	if sc.Depth != "" {
		opts.ResearchDepth = sc.Depth
	}

	ranAt := s.now()
	res, err := s.runner.RunPipeline(ctx, sc.Topic, opts)

	status, errMsg, swarmID := "completed", "", ""
	if res != nil {
		swarmID = res.SwarmID
	}
	if err != nil {
		status, errMsg = "failed", err.Error()
		slog.Error("scheduled article failed", "name", sc.Name, "error", err)
	}

	next := schedule.NextRun(sc.Cron, s.now())
	if err := s.store.UpdateScheduleRun(sc.Name, status, errMsg, swarmID, ranAt, next); err != nil {
		slog.Error("failed to update schedule run", "name", sc.Name, "error", err)
	}

	s.publishRunEvent(sc, status, swarmID)
}

func (s *Scheduler) publishRunEvent(sc store.Schedule, status, swarmID string) {
	if s.natsClient == nil {
		return
	}

	event := pipeline.Event{
		Type:    pipeline.EventScheduleRun,
		SwarmID: swarmID,
		Data: map[string]any{
			"name":   sc.Name,
			"topic":  sc.Topic,
			"status": status,
		},
		Time: s.now().UTC(),
	}
	if err := s.natsClient.PublishJSON(natsbus.TopicEventsSchedule, event); err != nil {
		slog.Warn("publish schedule event", "name", sc.Name, "error", err)
	}
}
