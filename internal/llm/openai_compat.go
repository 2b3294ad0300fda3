package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultKimiModel   = "kimi-k2-0711-preview"
	defaultKimiBaseURL = "https://api.moonshot.ai/v1"
)

// OpenAICompat talks to any OpenAI-compatible Chat Completions endpoint.
// It backs Kimi through the Moonshot API.
type OpenAICompat struct {
	helpers
	name   string
	client openai.Client
	model  string
}

type OpenAICompatConfig struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

// NewOpenAICompat creates a Chat Completions backend. Empty fields default
// to the Kimi endpoint and model.
func NewOpenAICompat(cfg OpenAICompatConfig) *OpenAICompat {
	name := cfg.Name
	if name == "" {
		name = "kimi"
	}
	model := cfg.Model
	if model == "" {
		model = defaultKimiModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultKimiBaseURL
	}
	c := &OpenAICompat{
		name: name,
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(baseURL),
		),
		model: model,
	}
	c.helpers = helpers{
		gen: c.GenerateText,
		style: promptStyle{
			outline: "Use at least five main sections with two to four subsections each, and suggest where data, case studies or figures belong.",
			section: "Give every paragraph a clear topic sentence, support claims with data and facts, and connect ideas with transitions.",
			polish:  "Preserve the original meaning while using more precise technical vocabulary and keeping the logic coherent.",
		},
	}
	return c
}

func (c *OpenAICompat) Name() string { return c.name }

func (c *OpenAICompat) GenerateText(ctx context.Context, prompt string, opts Options) (*Response, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if opts.System != "" {
		messages = append(messages, openai.SystemMessage(opts.System))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxOutputTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, backendErr(c.name, "chat completions", err)
	}
	if len(resp.Choices) == 0 {
		return nil, backendErr(c.name, "chat completions", errors.New("response contained no choices"))
	}

	return &Response{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
	}, nil
}
