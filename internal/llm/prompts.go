package llm

import (
	"context"
	"fmt"
	"strings"
)

var polishInstructions = map[string]string{
	"grammar":     "Fix any grammatical errors",
	"clarity":     "Improve clarity and readability",
	"flow":        "Enhance the flow between sentences and paragraphs",
	"consistency": "Keep terminology, tense and tone consistent throughout",
	"citations":   "Ensure citations are properly formatted",
	"formatting":  "Improve formatting and structure",
	"seo":         "Optimize for search engines while maintaining quality",
	"perfection":  "Refine every sentence to publication quality",
	"voice":       "Give the article a confident, unified authorial voice",
	"impact":      "Strengthen the opening and closing for maximum impact",
}

// PolishInstructions expands polish option names into instruction phrases.
// Unknown options pass through verbatim.
func PolishInstructions(options []string) string {
	parts := make([]string, 0, len(options))
	for _, opt := range options {
		if s, ok := polishInstructions[opt]; ok {
			parts = append(parts, s)
			continue
		}
		parts = append(parts, opt)
	}
	return strings.Join(parts, ", ")
}

// OutlinePrompt builds the outline request. extra is appended as
// backend-specific guidance when non-empty.
func OutlinePrompt(topic, information, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a comprehensive outline for an article about %q based on the following researched information:\n\n%s\n\n", topic, information)
	b.WriteString("The outline should:\n")
	b.WriteString("1. Have clear main sections\n")
	b.WriteString("2. Include relevant subsections\n")
	b.WriteString("3. Follow a logical flow\n")
	b.WriteString("4. Cover all important aspects of the topic\n\n")
	b.WriteString("Format main sections as numbered lines (1., 2., ...) and subsections as lines starting with '-'.")
	if extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	return b.String()
}

// SectionPrompt builds the section-writing request.
func SectionPrompt(title, outline string, sources []Source, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a detailed section for the following part of the article:\n\nSection: %s\nOutline:\n%s\n\n", title, outline)
	if len(sources) > 0 {
		b.WriteString("Use these sources for citations:\n")
		for i, s := range sources {
			fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, s.Title, s.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("Include inline citations where appropriate using [1], [2], etc. format.")
	if extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	return b.String()
}

// PolishPrompt builds the polish request.
func PolishPrompt(text string, options []string, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Polish the following text according to these requirements: %s\n\nText to polish:\n%s", PolishInstructions(options), text)
	if extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	return b.String()
}

// promptStyle holds the per-backend guidance appended to helper prompts.
type promptStyle struct {
	outline string
	section string
	polish  string
}

// helpers implements the optional helper interfaces on top of GenerateText.
type helpers struct {
	gen   func(ctx context.Context, prompt string, opts Options) (*Response, error)
	style promptStyle
}

func (h helpers) GenerateOutline(ctx context.Context, topic, information string, opts Options) (*Response, error) {
	return h.gen(ctx, OutlinePrompt(topic, information, h.style.outline), opts)
}

func (h helpers) GenerateArticleSection(ctx context.Context, title, outline string, sources []Source, opts Options) (*Response, error) {
	return h.gen(ctx, SectionPrompt(title, outline, sources, h.style.section), opts)
}

func (h helpers) PolishText(ctx context.Context, text string, polishOptions []string, opts Options) (*Response, error) {
	return h.gen(ctx, PolishPrompt(text, polishOptions, h.style.polish), opts)
}
