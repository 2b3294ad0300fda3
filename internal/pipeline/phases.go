package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sorcerai/storm-mcp/internal/article"
	"github.com/sorcerai/storm-mcp/internal/executor"
	"github.com/sorcerai/storm-mcp/internal/llm"
	"github.com/sorcerai/storm-mcp/internal/router"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

var perspectives = []string{
	"Technical Implementation",
	"Business Impact",
	"Social Implications",
	"Future Trends",
	"Historical Context",
	"Ethical Considerations",
}

var factFocuses = []string{"general_facts", "technical_facts", "contextual_facts"}

func (r *run) research(ctx context.Context) error {
	var (
		topic   = r.sw.Topic
		def     = r.sw.AgentsOn(r.defaultBackend())
		large   = r.sw.AgentsOn(r.largeBackend())
		premium = r.sw.AgentsOn(r.premiumBackend())
		jobs    []job
	)

	add := func(p swarm.Payload, a swarm.Agent, opts ...swarm.TaskOption) error {
		j, err := r.newJob(p, a, opts...)
		if err != nil {
			return err
		}
		jobs = append(jobs, j)
		return nil
	}

	for i, label := range perspectives {
		var (
			a  swarm.Agent
			ok bool
		)
		switch {
		case strings.Contains(label, "Technical") || strings.Contains(label, "Implementation"):
			a, ok = pick(premium, i)
		case strings.Contains(label, "Future") || strings.Contains(label, "Trends"):
			a, ok = pick(large, i)
		}
		if !ok {
			a, ok = pick(def, i)
		}
		if !ok {
			var err error
			if a, err = r.anyAgent(); err != nil {
				return err
			}
		}
		if err := add(swarm.Perspective{Topic: topic, Perspective: label}, a); err != nil {
			return err
		}
	}

	factAgents := [][]swarm.Agent{def, premium, large}
	for i, focus := range factFocuses {
		a, ok := first(factAgents[i])
		if !ok {
			a, ok = at(def, i)
		}
		if !ok {
			continue
		}
		if err := add(swarm.Facts{Topic: topic, Depth: r.opts.ResearchDepth, Focus: focus}, a); err != nil {
			return err
		}
	}

	if len(large) > 0 {
		if err := add(swarm.DocumentAnalysis{Topic: topic, Depth: r.opts.ResearchDepth}, large[0], swarm.WithThinking()); err != nil {
			return err
		}
	}
	if len(large) > 1 {
		if err := add(swarm.SystemDesign{Topic: topic, Depth: r.opts.ResearchDepth}, large[1], swarm.WithThinking()); err != nil {
			return err
		}
	}
	if len(large) > 2 && r.opts.ResearchDepth == "deep" {
		problem := fmt.Sprintf("What are the hardest open questions about %q, and how should a thorough article resolve them?", topic)
		if err := add(swarm.Reasoning{Problem: problem}, large[2], swarm.WithThinking()); err != nil {
			return err
		}
	}

	if len(premium) > 0 && r.o.router.IsPremium(ctx, topic) {
		r.premiumTopic = true
		p := swarm.PremiumAnalysis{Topic: topic, Depth: r.opts.ResearchDepth, Justification: "Premium technical expertise required"}
		if err := add(p, premium[0]); err != nil {
			return err
		}
		if len(premium) > 1 && r.opts.ResearchDepth == "deep" {
			problem := fmt.Sprintf("Identify and work through the key quantitative and formal aspects of %q.", topic)
			if err := add(swarm.Math{Problem: problem}, premium[1]); err != nil {
				return err
			}
		}
	}

	results, err := r.runJobs(ctx, jobs, r.opts.Parallelization)
	if err != nil {
		return err
	}
	for i, res := range results {
		r.collect(jobs[i].task, res)
	}
	return nil
}

// collect turns a settled research result into outline notes and section sources.
func (r *run) collect(t swarm.Task, res *swarm.Result) {
	var label string
	switch p := t.Payload.(type) {
	case swarm.Perspective:
		label = fmt.Sprintf("Perspective (%s)", p.Perspective)
	case swarm.Facts:
		label = fmt.Sprintf("Facts (%s)", strings.ReplaceAll(p.Focus, "_", " "))
		r.sources = append(r.sources, llm.Source{Title: label, Content: res.Text})
	case swarm.DocumentAnalysis:
		label = "Document analysis"
	case swarm.SystemDesign:
		label = "System design"
	case swarm.Reasoning:
		label = "Reasoning"
	case swarm.PremiumAnalysis:
		label = "Technical analysis"
		r.sources = append(r.sources, llm.Source{Title: label, Content: res.Text})
	case swarm.Math:
		label = "Mathematical analysis"
	default:
		label = string(t.Type)
	}
	r.notes = append(r.notes, swarm.ResearchNote{Label: label, Text: res.Text})
}

func (r *run) outline(ctx context.Context) error {
	def := r.defaultBackend()

	drafter, err := r.sw.SelectAgent(def, swarm.RoleArchitect, def)
	if err != nil {
		return err
	}
	j, err := r.newJob(swarm.Outline{Topic: r.sw.Topic, Research: r.notes}, drafter)
	if err != nil {
		return err
	}
	res, err := r.runOne(ctx, j)
	if err != nil {
		return err
	}
	draft := *res.Outline

	reviewer, err := r.sw.SelectAgent(def, swarm.RoleReviewer, def)
	if err != nil {
		return err
	}
	if j, err = r.newJob(swarm.OutlineReview{Topic: r.sw.Topic, Outline: draft}, reviewer); err != nil {
		return err
	}
	if res, err = r.runOne(ctx, j); err != nil {
		return err
	}
	final := *res.Outline

	if large := r.sw.AgentsOn(r.largeBackend()); len(large) > 0 {
		if j, err = r.newJob(swarm.OutlineVerify{Topic: r.sw.Topic, Outline: final}, large[0], swarm.WithThinking()); err != nil {
			return err
		}
		if res, err = r.runOne(ctx, j); err != nil {
			return err
		}
		final = *res.Outline
	}

	if len(final.Sections) == 0 {
		return executor.ErrEmptyOutline
	}
	r.outlineDoc = final
	return nil
}

func (r *run) write(ctx context.Context) error {
	var (
		sections = r.outlineDoc.Sections
		words    = article.SectionWords(r.o.lengths, r.opts.ArticleLength, len(sections))
		jobs     = make([]job, 0, len(sections))
	)
	for i, sec := range sections {
		body := r.sectionMaterial(sec)
		kind, a, err := r.sectionAgent(ctx, sec, body)
		if err != nil {
			return fmt.Errorf("section %q: %w", sec.Title, err)
		}
		p := swarm.Section{
			Kind:        kind,
			Topic:       r.sw.Topic,
			Section:     sec,
			Position:    i,
			Outline:     r.outlineDoc,
			TargetWords: words,
			Sources:     r.sources,
			Body:        body,
		}
		j, err := r.newJob(p, a)
		if err != nil {
			return err
		}
		jobs = append(jobs, j)
	}

	results, err := r.runJobs(ctx, jobs, r.opts.Parallelization)
	if err != nil {
		return err
	}
	r.sections = make([]string, len(results))
	for i, res := range results {
		r.sections[i] = formatSection(sections[i].Title, res.Text)
	}
	return nil
}

// sectionAgent picks the task kind and the owning agent for a section.
// Introductions and conclusions go to a reviewer unless the router places
// them in a specialised category, in which case they are written as
// ordinary sections on that category's backend.
func (r *run) sectionAgent(ctx context.Context, sec article.Section, body string) (swarm.TaskType, swarm.Agent, error) {
	def := r.defaultBackend()
	title := strings.ToLower(sec.Title)

	kind := swarm.TypeWriteSection
	switch {
	case strings.Contains(title, "introduction"):
		kind = swarm.TypeIntroduction
	case strings.Contains(title, "conclusion"):
		kind = swarm.TypeConclusion
	}

	cat := r.o.router.ClassifySection(ctx, router.Content{
		Title:       sec.Title,
		Description: sec.Description,
		Body:        body,
	})
	if kind != swarm.TypeWriteSection {
		if cat == router.CategoryDefault {
			a, err := r.sw.SelectAgent(def, swarm.RoleReviewer, def)
			return kind, a, err
		}
		kind = swarm.TypeWriteSection
	}
	backend, err := r.o.router.BackendFor(cat)
	if err != nil {
		return "", swarm.Agent{}, err
	}

	var role swarm.Role
	switch cat {
	case router.CategoryLargeContext:
		role = swarm.RoleResearcher
	case router.CategoryArchitecture:
		role = swarm.RoleArchitect
	case router.CategoryPremium:
		role = swarm.RoleCoder
	default:
		switch {
		case strings.Contains(title, "technical"):
			role = swarm.RoleSpecialist
		case strings.Contains(title, "analysis"):
			role = swarm.RoleAnalyst
		default:
			role = swarm.RoleResearcher
		}
	}
	a, err := r.sw.SelectAgent(backend, role, def)
	return kind, a, err
}

// sectionMaterial gathers the research notes that mention the section title.
func (r *run) sectionMaterial(sec article.Section) string {
	title := strings.ToLower(strings.TrimSpace(sec.Title))
	if title == "" {
		return ""
	}
	var b strings.Builder
	for _, n := range r.notes {
		if strings.Contains(strings.ToLower(n.Text), title) {
			b.WriteString(n.Text)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// formatSection prefixes the body with a markdown heading unless the model
// already wrote one.
func formatSection(title, body string) string {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "#") {
		return body
	}
	return "## " + title + "\n\n" + body
}

func first(agents []swarm.Agent) (swarm.Agent, bool) {
	return at(agents, 0)
}

func at(agents []swarm.Agent, i int) (swarm.Agent, bool) {
	if i < len(agents) {
		return agents[i], true
	}
	return swarm.Agent{}, false
}

var errNoArticle = errors.New("polish produced an empty article")
