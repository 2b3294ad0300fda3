package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/sorcerai/storm-mcp/internal/article"
	"github.com/sorcerai/storm-mcp/internal/llm"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

const maxRewriteTokens = 32_000

func (e *Executor) run(ctx context.Context, b llm.Backend, t swarm.Task) (*swarm.Result, error) {
	opts := func(temp float64, maxTokens int) llm.Options {
		return llm.Options{Temperature: temp, MaxOutputTokens: maxTokens, Thinking: t.Thinking}
	}

	switch p := t.Payload.(type) {
	case swarm.Perspective:
		resp, err := e.generate(ctx, b, perspectivePrompt(p), opts(0.8, 1000))
		if err != nil {
			return nil, err
		}
		r := result(resp)
		r.Perspective = p.Perspective
		r.Questions = article.ExtractQuestions(resp.Text)
		return r, nil

	case swarm.Facts:
		return e.text(ctx, b, factsPrompt(p), opts(0.5, 2000))

	case swarm.DocumentAnalysis:
		return e.text(ctx, b, documentPrompt(p), opts(0.5, 3000))

	case swarm.SystemDesign:
		return e.text(ctx, b, systemDesignPrompt(p), opts(0.6, 2500))

	case swarm.Reasoning:
		return e.text(ctx, b, reasoningPrompt(p), opts(0.7, 2000))

	case swarm.PremiumAnalysis:
		return e.text(ctx, b, premiumPrompt(p), opts(0.4, 3000))

	case swarm.Math:
		return e.text(ctx, b, mathPrompt(p), opts(0.3, 3000))

	case swarm.Outline:
		return e.outline(ctx, b, p, opts(0.6, 1500))

	case swarm.OutlineReview:
		resp, err := e.generate(ctx, b, reviewOutlinePrompt(p), opts(0.6, 1500))
		if err != nil {
			return nil, err
		}
		return outlineResult(resp, p.Outline), nil

	case swarm.OutlineVerify:
		resp, err := e.generate(ctx, b, verifyOutlinePrompt(p), opts(0.5, 1500))
		if err != nil {
			return nil, err
		}
		return outlineResult(resp, p.Outline), nil

	case swarm.Section:
		return e.section(ctx, b, p, opts(0.7, 2*p.TargetWords))

	case swarm.Polish:
		return e.polish(ctx, b, p, opts(0.5, rewriteBudget(p.Article)))

	case swarm.FactCheck:
		resp, err := e.generate(ctx, b, factCheckPrompt(p), opts(0.3, 2000))
		if err != nil {
			return nil, err
		}
		r := result(resp)
		r.Issues = article.FactCheckIssues(resp.Text)
		return r, nil

	case swarm.TechnicalReview:
		resp, err := e.generate(ctx, b, technicalReviewPrompt(p), opts(0.4, 2000))
		if err != nil {
			return nil, err
		}
		r := result(resp)
		r.Issues = article.FactCheckIssues(resp.Text)
		return r, nil

	case swarm.ArticleVerify:
		resp, err := e.generate(ctx, b, articleVerifyPrompt(p), opts(0.5, rewriteBudget(p.Article)))
		if err != nil {
			return nil, err
		}
		r := result(resp)
		r.WordCount = article.CountWords(resp.Text)
		r.Improvements = article.Improvements(p.Article, resp.Text)
		return r, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, t.Type)
	}
}

func result(resp *llm.Response) *swarm.Result {
	return &swarm.Result{Text: resp.Text, Model: resp.Model, Usage: resp.Usage}
}

func (e *Executor) text(ctx context.Context, b llm.Backend, prompt string, opts llm.Options) (*swarm.Result, error) {
	resp, err := e.generate(ctx, b, prompt, opts)
	if err != nil {
		return nil, err
	}
	return result(resp), nil
}

func (e *Executor) outline(ctx context.Context, b llm.Backend, p swarm.Outline, opts llm.Options) (*swarm.Result, error) {
	insights := aggregateInsights(p.Research)
	resp, err := e.call(ctx, func(ctx context.Context) (*llm.Response, error) {
		if og, ok := b.(llm.OutlineGenerator); ok {
			return og.GenerateOutline(ctx, p.Topic, insights, opts)
		}
		return b.GenerateText(ctx, llm.OutlinePrompt(p.Topic, insights, ""), opts)
	})
	if err != nil {
		return nil, err
	}
	o := article.ParseOutline(resp.Text)
	if len(o.Sections) == 0 {
		return nil, &llm.BackendError{Backend: b.Name(), Op: "parse outline", Err: ErrEmptyOutline}
	}
	r := result(resp)
	r.Outline = &o
	return r, nil
}

// outlineResult parses a reviewed or verified outline. A response without
// outline structure keeps the input outline and records the response as notes.
func outlineResult(resp *llm.Response, prev article.Outline) *swarm.Result {
	o := article.ParseOutline(resp.Text)
	if len(o.Sections) == 0 {
		o = prev
		o.Notes = strings.TrimSpace(resp.Text)
	}
	if o.Title == "" {
		o.Title = prev.Title
	}
	r := result(resp)
	r.Outline = &o
	return r
}

func (e *Executor) section(ctx context.Context, b llm.Backend, p swarm.Section, opts llm.Options) (*swarm.Result, error) {
	opts.System = sectionSystem(p)
	outline := p.Outline.String()
	resp, err := e.call(ctx, func(ctx context.Context) (*llm.Response, error) {
		if sw, ok := b.(llm.SectionWriter); ok {
			return sw.GenerateArticleSection(ctx, p.Section.Title, outline, p.Sources, opts)
		}
		return b.GenerateText(ctx, llm.SectionPrompt(p.Section.Title, outline, p.Sources, ""), opts)
	})
	if err != nil {
		return nil, err
	}
	r := result(resp)
	r.Section = p.Section.Title
	r.Position = p.Position
	r.WordCount = article.CountWords(resp.Text)
	r.Citations = article.ExtractCitations(resp.Text)
	return r, nil
}

func (e *Executor) polish(ctx context.Context, b llm.Backend, p swarm.Polish, opts llm.Options) (*swarm.Result, error) {
	options := p.Options
	if c := strings.TrimSpace(p.Corrections); c != "" {
		options = append(append([]string(nil), options...), "Apply the corrections from this review where they are justified:\n"+c+"\n")
	}
	resp, err := e.call(ctx, func(ctx context.Context) (*llm.Response, error) {
		if pl, ok := b.(llm.Polisher); ok {
			return pl.PolishText(ctx, p.Article, options, opts)
		}
		return b.GenerateText(ctx, llm.PolishPrompt(p.Article, options, ""), opts)
	})
	if err != nil {
		return nil, err
	}
	r := result(resp)
	r.WordCount = article.CountWords(resp.Text)
	r.Improvements = article.Improvements(p.Article, resp.Text)
	return r, nil
}

func rewriteBudget(text string) int {
	return min(len(text)+1000, maxRewriteTokens)
}
