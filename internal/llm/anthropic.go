package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// Anthropic is the Claude backend.
type Anthropic struct {
	helpers
	client anthropic.Client
	model  string
}

// AnthropicConfig configures the Claude backend.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	a := &Anthropic{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
	a.helpers = helpers{gen: a.GenerateText}
	return a
}

func (a *Anthropic) Name() string { return "claude" }

func (a *Anthropic) GenerateText(ctx context.Context, prompt string, opts Options) (*Response, error) {
	maxTokens := int64(opts.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(opts.Temperature),
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, backendErr(a.Name(), "messages", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if b.Len() == 0 {
		return nil, backendErr(a.Name(), "messages", errors.New("response contained no text"))
	}

	return &Response{
		Text:  b.String(),
		Model: string(resp.Model),
		Usage: Usage{
			Prompt:     resp.Usage.InputTokens,
			Completion: resp.Usage.OutputTokens,
			Total:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}
