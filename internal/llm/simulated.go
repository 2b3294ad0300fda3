package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Markers shared by prompt builders and the simulated backend. Text after
// the last marker is the payload a polish or verification pass rewrites.
const (
	PolishMarker  = "Text to polish:\n"
	ArticleMarker = "Article:\n"
)

// Simulated is an offline backend that returns deterministic canned
// responses keyed on the prompt. Rewrite passes echo their input so repeated
// polishing is stable.
type Simulated struct {
	ID      string
	Latency time.Duration
}

// NewSimulated returns an offline stand-in for the named backend.
func NewSimulated(name string) *Simulated {
	return &Simulated{ID: name}
}

func (s *Simulated) Name() string { return s.ID }

func (s *Simulated) GenerateText(ctx context.Context, prompt string, opts Options) (*Response, error) {
	if s.Latency > 0 {
		t := time.NewTimer(s.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, backendErr(s.ID, "generate", ctx.Err())
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, backendErr(s.ID, "generate", err)
	}

	text := s.respond(prompt)
	if opts.MaxOutputTokens > 0 && len(text)/4 > opts.MaxOutputTokens && !isRewrite(prompt) {
		text = text[:opts.MaxOutputTokens*4]
	}
	p, c := int64(len(prompt)/4), int64(len(text)/4)
	return &Response{
		Text:  text,
		Model: "simulated-" + s.ID,
		Usage: Usage{Prompt: p, Completion: c, Total: p + c},
	}, nil
}

func isRewrite(prompt string) bool {
	return strings.Contains(prompt, PolishMarker) || strings.Contains(prompt, ArticleMarker)
}

func (s *Simulated) respond(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(prompt, PolishMarker):
		return after(prompt, PolishMarker)
	case strings.Contains(prompt, ArticleMarker) && strings.Contains(lower, "fact-check"):
		return "Fact-check report:\nAll statements are consistent with the provided research.\nNo corrections required."
	case strings.Contains(prompt, ArticleMarker) && strings.Contains(lower, "technical review"):
		return "Technical review:\nTerminology and claims are technically sound.\nNo corrections required."
	case strings.Contains(prompt, ArticleMarker):
		return after(prompt, ArticleMarker)
	case strings.Contains(lower, "decision: [premium or standard]"):
		return "Reasoning: simulated evaluation.\nDecision: STANDARD"
	case strings.Contains(lower, "write a detailed section"):
		title := lineValue(prompt, "Section: ")
		return fmt.Sprintf("%s is examined here in depth, drawing on the collected research [1]. "+
			"The discussion connects the central ideas to practical consequences and open problems [2].", title)
	case strings.Contains(lower, "outline"):
		return simulatedOutline
	case strings.Contains(lower, "perspective"):
		return "Key insights:\n- The topic spans several disciplines.\nQuestions:\nWhat are the main drivers?\nWho is affected most?\nWhat changes are likely next?"
	default:
		return fmt.Sprintf("Simulated %s response: %s", s.ID, firstLine(prompt))
	}
}

const simulatedOutline = `1. Introduction
- Background
- Scope
2. Core Concepts
- Definitions
- Key mechanisms
3. System Architecture
- Components
- Data flow
4. Applications
- Current use
- Emerging use
5. Conclusion
- Summary
- Outlook`

func after(s, marker string) string {
	i := strings.LastIndex(s, marker)
	return strings.TrimSpace(s[i+len(marker):])
}

func lineValue(s, prefix string) string {
	for _, line := range strings.Split(s, "\n") {
		if v, ok := strings.CutPrefix(line, prefix); ok {
			return strings.TrimSpace(v)
		}
	}
	return "This section"
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if len(line) > 80 {
		line = line[:80]
	}
	return line
}
