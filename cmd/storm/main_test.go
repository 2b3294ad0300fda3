package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/sorcerai/storm-mcp/internal/config"
	"github.com/sorcerai/storm-mcp/internal/pipeline"
	"github.com/sorcerai/storm-mcp/internal/registry"
	"github.com/sorcerai/storm-mcp/internal/store"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

func testConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	for _, k := range []string{"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "KIMI_API_KEY", "STORM_STORE_PATH", "STORM_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "storm.yaml")
	body = "store:\n  path: " + filepath.Join(dir, "storm.db") + "\n" + body
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestBuildBackendsRequiresKey(t *testing.T) {
	cfg := testConfig(t, "")
	if _, err := buildBackends(context.Background(), cfg, false); err == nil {
		t.Fatal("expected error without any API key")
	}
}

func TestNewRuntimeUsesConfiguredBackends(t *testing.T) {
	cfg := testConfig(t, `
backends:
  claude:
    api_key: test-claude
  kimi:
    api_key: test-kimi
`)
	rt, err := newRuntime(context.Background(), cfg, false, nil, nil)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	want := []registry.BackendID{registry.Claude, registry.Kimi}
	if len(rt.available) != len(want) {
		t.Fatalf("expected %v, got %v", want, rt.available)
	}
	for i, id := range want {
		if rt.available[i] != id {
			t.Errorf("available[%d] = %s, want %s", i, rt.available[i], id)
		}
	}
	if rt.router.Available(registry.Gemini) {
		t.Error("gemini should not be available without a key")
	}

	sw, err := rt.orch.CreateSwarm("topic", swarm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(sw.AgentsOn(registry.Gemini)); n != 0 {
		t.Errorf("expected no gemini agents, got %d", n)
	}
	if n := len(sw.Agents()); n != 7 {
		t.Errorf("expected 7 agents, got %d", n)
	}
}

func TestAvailableRosterDefaults(t *testing.T) {
	cfg := testConfig(t, "")
	backends, err := buildBackends(context.Background(), cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := availableRoster(nil, backends); len(got) != len(swarm.DefaultRoster()) {
		t.Errorf("expected full default roster, got %d agents", len(got))
	}
}

func TestRunOffline(t *testing.T) {
	cfg := testConfig(t, `
pipeline:
  article_length: short
  research_depth: shallow
`)
	rt, err := newRuntime(context.Background(), cfg, true, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rt.defaults.ArticleLength != "short" || rt.defaults.ResearchDepth != "shallow" {
		t.Errorf("unexpected defaults %+v", rt.defaults)
	}

	res, err := rt.orch.RunPipeline(context.Background(), "Vector clocks", rt.defaults)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(res.Article, "## Introduction") {
		t.Errorf("article missing introduction:\n%s", res.Article)
	}

	var buf bytes.Buffer
	printSummary(&buf, res.Metrics)
	out := buf.String()
	for _, want := range []string{res.SwarmID, "completed", "claude:"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestExport(t *testing.T) {
	cfg := testConfig(t, "")
	db, err := store.New(cfg.Store)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	rt, err := newRuntime(context.Background(), cfg, true, nil, db)
	if err != nil {
		t.Fatal(err)
	}
	opts := pipeline.DefaultOptions()
	opts.ArticleLength = "short"
	res, err := rt.orch.RunPipeline(context.Background(), "Gossip protocols", opts)
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "runs.jsonl.zst")
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	if err := runExport(cmd, cfg.Store.Path, out); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Export complete: 1 runs") {
		t.Errorf("unexpected output %q", buf.String())
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var ids []string
	err = store.ReadExport(f, func(rec store.ExportRecord) error {
		ids = append(ids, rec.Run.ID)
		if rec.Article == nil || rec.Article.Body != res.Article {
			t.Errorf("exported article does not match the run")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != res.SwarmID {
		t.Errorf("unexpected exported runs %v", ids)
	}
}

func TestExportMissingStore(t *testing.T) {
	cmd := &cobra.Command{}
	err := runExport(cmd, filepath.Join(t.TempDir(), "missing.db"), filepath.Join(t.TempDir(), "out.zst"))
	if err == nil {
		t.Fatal("expected error for missing store")
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	if got := buf.String(); got != "storm dev\n" {
		t.Errorf("unexpected version output %q", got)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1610612736, "1.5 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
