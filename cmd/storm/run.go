package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sorcerai/storm-mcp/internal/pipeline"
	"github.com/sorcerai/storm-mcp/internal/registry"
	"github.com/sorcerai/storm-mcp/internal/store"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

var (
	runLength     string
	runDepth      string
	runOffline    bool
	runSequential bool
	runOutput     string
	runSave       bool
)

var runCmd = &cobra.Command{
	Use:   "run <topic>",
	Short: "Generate one article",
	Long: `Run the full pipeline for a topic and print the finished article.

The article goes to stdout, or to the file named by --output. A summary of
the swarm is printed to stderr.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runArticle,
}

func init() {
	runCmd.Flags().StringVarP(&runLength, "length", "l", "", "article length: short, medium, long or comprehensive")
	runCmd.Flags().StringVarP(&runDepth, "depth", "d", "", "research depth: shallow, standard or deep")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "use simulated backends instead of the real APIs")
	runCmd.Flags().BoolVar(&runSequential, "sequential", false, "run section and research tasks one at a time")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write the article to this file")
	runCmd.Flags().BoolVar(&runSave, "save", false, "record the run in the store")
}

func runArticle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rec pipeline.Recorder
	if runSave {
		db, err := store.New(cfg.Store)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		defer db.Close()
		rec = db
	}

	rt, err := newRuntime(ctx, cfg, runOffline, nil, rec)
	if err != nil {
		return err
	}

	opts := rt.defaults
	if runLength != "" {
		opts.ArticleLength = runLength
	}
	if runDepth != "" {
		opts.ResearchDepth = runDepth
	}
	if runSequential {
		opts.Parallelization = false
	}

	res, err := rt.orch.RunPipeline(ctx, strings.Join(args, " "), opts)
	if err != nil {
		for _, sw := range rt.orch.Swarms() {
			printSummary(cmd.ErrOrStderr(), sw.Metrics())
		}
		return err
	}

	out := cmd.OutOrStdout()
	if runOutput != "" {
		if err := os.WriteFile(runOutput, []byte(res.Article), 0o644); err != nil {
			return fmt.Errorf("write article: %w", err)
		}
	} else {
		fmt.Fprintln(out, res.Article)
	}
	printSummary(cmd.ErrOrStderr(), res.Metrics)
	return nil
}

func printSummary(w io.Writer, m swarm.Metrics) {
	status := color.New(color.FgGreen)
	if m.Status != swarm.StatusCompleted {
		status = color.New(color.FgRed)
	}
	bold := color.New(color.Bold)

	fmt.Fprintf(w, "\n%s %s\n", bold.Sprint("Swarm"), m.SwarmID)
	fmt.Fprintf(w, "  Status:   %s (%s)\n", status.Sprint(m.Status), m.Phase)
	fmt.Fprintf(w, "  Tasks:    %d completed, %d failed, %d total\n", m.TasksCompleted, m.TasksFailed, m.TasksTotal)
	fmt.Fprintf(w, "  Agents:   %d\n", m.TotalAgents)
	fmt.Fprintf(w, "  Tokens:   %d prompt, %d completion\n", m.Usage.Prompt, m.Usage.Completion)
	fmt.Fprintf(w, "  Elapsed:  %dms\n", m.ElapsedMs)

	backends := make([]registry.BackendID, 0, len(m.BackendTasks))
	for id := range m.BackendTasks {
		backends = append(backends, id)
	}
	slices.Sort(backends)
	for _, id := range backends {
		fmt.Fprintf(w, "  %-9s %d tasks\n", string(id)+":", m.BackendTasks[id])
	}
}
