package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "gemini-2.5-pro"
	thinkingBudget     = 8192
)

// Gemini is the Google Gemini backend.
type Gemini struct {
	helpers
	client *genai.Client
	model  string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	g := &Gemini{client: client, model: model}
	g.helpers = helpers{
		gen: g.GenerateText,
		style: promptStyle{
			outline: "Reason through the structure step by step before writing the final outline.",
		},
	}
	return g, nil
}

func (g *Gemini) Name() string { return "gemini" }

// generateConfig maps Options onto a Gemini request. Thinking tokens count
// against MaxOutputTokens, so a set limit is raised by the thinking budget.
func generateConfig(opts Options) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	if opts.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	if opts.Thinking {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(thinkingBudget))}
		if cfg.MaxOutputTokens > 0 {
			cfg.MaxOutputTokens += thinkingBudget
		}
	}
	return cfg
}

func (g *Gemini) GenerateText(ctx context.Context, prompt string, opts Options) (*Response, error) {
	cfg := generateConfig(opts)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, backendErr(g.Name(), "generate content", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, backendErr(g.Name(), "generate content", errors.New("response contained no text"))
	}

	out := &Response{Text: text, Model: g.model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			Prompt:     int64(u.PromptTokenCount),
			Completion: int64(u.CandidatesTokenCount),
			Total:      int64(u.TotalTokenCount),
		}
	}
	return out, nil
}
