package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPolishInstructions(t *testing.T) {
	got := PolishInstructions([]string{"grammar", "flow", "make it sing"})
	want := "Fix any grammatical errors, Enhance the flow between sentences and paragraphs, make it sing"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if PolishInstructions(nil) != "" {
		t.Error("expected empty instructions for no options")
	}
}

func TestSectionPromptSources(t *testing.T) {
	p := SectionPrompt("Intro", "1. Intro", []Source{
		{Title: "A", Content: "alpha"},
		{Title: "B", Content: "beta"},
	}, "")
	for _, want := range []string{"Section: Intro", "[1] A: alpha", "[2] B: beta"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestHelpersUseStyle(t *testing.T) {
	var seen string
	h := helpers{
		gen: func(_ context.Context, prompt string, _ Options) (*Response, error) {
			seen = prompt
			return &Response{Text: "ok"}, nil
		},
		style: promptStyle{polish: "be precise"},
	}
	if _, err := h.PolishText(context.Background(), "body", []string{"clarity"}, Options{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(seen, "be precise") || !strings.Contains(seen, PolishMarker+"body") {
		t.Errorf("unexpected prompt: %q", seen)
	}
}

func TestSimulatedPolishEchoes(t *testing.T) {
	s := NewSimulated("claude")
	text := "First paragraph [1].\n\nSecond paragraph."

	resp, err := s.GenerateText(context.Background(), PolishPrompt(text, []string{"grammar"}, ""), Options{MaxOutputTokens: 10})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != text {
		t.Errorf("expected polish to echo input, got %q", resp.Text)
	}
	if resp.Usage.Total != resp.Usage.Prompt+resp.Usage.Completion {
		t.Errorf("inconsistent usage: %+v", resp.Usage)
	}
}

func TestSimulatedOutlineAndClassifier(t *testing.T) {
	s := NewSimulated("claude")
	ctx := context.Background()

	resp, err := s.GenerateText(ctx, OutlinePrompt("Go", "facts", ""), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.Text, "1. Introduction") {
		t.Errorf("unexpected outline: %q", resp.Text)
	}

	resp, err = s.GenerateText(ctx, "Topic\nDecision: [PREMIUM or STANDARD]", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Text, "Decision: STANDARD") {
		t.Errorf("unexpected decision: %q", resp.Text)
	}
}

func TestSimulatedHonoursContext(t *testing.T) {
	s := &Simulated{ID: "gemini", Latency: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.GenerateText(ctx, "hello", Options{})
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if be.Backend != "gemini" {
		t.Errorf("expected backend gemini, got %q", be.Backend)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestUsageAdd(t *testing.T) {
	u := Usage{Prompt: 1, Completion: 2, Total: 3}.Add(Usage{Prompt: 10, Completion: 20, Total: 30})
	if u != (Usage{Prompt: 11, Completion: 22, Total: 33}) {
		t.Errorf("unexpected sum %+v", u)
	}
}

func TestGeminiThinkingLeavesAnswerBudget(t *testing.T) {
	cfg := generateConfig(Options{MaxOutputTokens: 1000, Thinking: true, System: "be brief"})
	if cfg.ThinkingConfig == nil || *cfg.ThinkingConfig.ThinkingBudget != thinkingBudget {
		t.Fatalf("expected thinking budget %d, got %+v", thinkingBudget, cfg.ThinkingConfig)
	}
	if want := int32(1000 + thinkingBudget); cfg.MaxOutputTokens != want {
		t.Errorf("max output tokens = %d, want %d", cfg.MaxOutputTokens, want)
	}
	if cfg.SystemInstruction == nil {
		t.Error("expected system instruction")
	}

	plain := generateConfig(Options{MaxOutputTokens: 1000})
	if plain.ThinkingConfig != nil || plain.MaxOutputTokens != 1000 {
		t.Errorf("unexpected config without thinking: %+v", plain)
	}
	if unbounded := generateConfig(Options{Thinking: true}); unbounded.MaxOutputTokens != 0 {
		t.Errorf("expected no output limit, got %d", unbounded.MaxOutputTokens)
	}
}
