package executor

import (
	"fmt"
	"strings"

	"github.com/sorcerai/storm-mcp/internal/llm"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

var depthPrompts = map[string]string{
	"shallow":  "Provide a brief overview of key facts about",
	"standard": "Research and provide comprehensive facts about",
	"deep":     "Conduct deep research and provide detailed, verified facts about",
}

var focusLabels = map[string]string{
	"general_facts":    "general background and core facts",
	"technical_facts":  "technical details, mechanisms and specifications",
	"contextual_facts": "historical, social and economic context",
}

func perspectivePrompt(p swarm.Perspective) string {
	return fmt.Sprintf(`As an expert in %s, generate a unique perspective on %q.

Your perspective should:
1. Reflect your specific expertise area
2. Identify unique angles others might miss
3. Suggest important questions to explore
4. Highlight potential challenges or opportunities

Provide a structured response with:
- Key insights from your perspective
- Important questions to investigate
- Unique angles to explore`, p.Perspective, p.Topic)
}

func factsPrompt(p swarm.Facts) string {
	lead, ok := depthPrompts[p.Depth]
	if !ok {
		lead = depthPrompts["standard"]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q.\n\n", lead, p.Topic)
	if f, ok := focusLabels[p.Focus]; ok {
		fmt.Fprintf(&b, "Concentrate on %s.\n\n", f)
	}
	b.WriteString(`Include:
1. Core facts and statistics
2. Recent developments
3. Key players or entities
4. Important dates and milestones
5. Verified sources for each fact

Focus on accuracy and verifiability.`)
	return b.String()
}

func documentPrompt(p swarm.DocumentAnalysis) string {
	return fmt.Sprintf(`Perform a deep long-form analysis of %q at %s depth.

Survey the full body of material on the topic and provide:
1. The major threads and how they connect
2. Patterns and tensions across sources
3. Gaps in current understanding
4. Meaningful conclusions for a general reader`, p.Topic, depthOrStandard(p.Depth))
}

func systemDesignPrompt(p swarm.SystemDesign) string {
	return fmt.Sprintf(`Design a comprehensive system architecture for: %s

Provide:
1. High-level system architecture
2. Component breakdown and responsibilities
3. Data flow and communication patterns
4. Technology stack recommendations
5. Scalability considerations
6. Security and reliability measures`, p.Topic)
}

func reasoningPrompt(p swarm.Reasoning) string {
	return fmt.Sprintf(`Analyze this complex problem step-by-step:

%s

Break down the problem, consider multiple approaches, and provide a well-reasoned solution.`, p.Problem)
}

func premiumPrompt(p swarm.PremiumAnalysis) string {
	return fmt.Sprintf(`Provide premium technical analysis for: %s

Justification for premium analysis: %s

Deliver:
1. Deep technical insights with mathematical rigor
2. Advanced algorithm analysis with complexity bounds
3. Cutting-edge research connections
4. Implementation considerations at scale
5. Performance optimization strategies
6. Future research directions`, p.Topic, p.Justification)
}

func mathPrompt(p swarm.Math) string {
	return fmt.Sprintf(`Solve this mathematical problem with high precision:

%s

Provide:
1. Step-by-step derivation
2. Mathematical proofs where applicable
3. Verification of results
4. Alternative approaches if relevant`, p.Problem)
}

func aggregateInsights(notes []swarm.ResearchNote) string {
	if len(notes) == 0 {
		return "No research data provided"
	}
	parts := make([]string, len(notes))
	for i, n := range notes {
		parts[i] = fmt.Sprintf("%s: %s", n.Label, n.Text)
	}
	return strings.Join(parts, "\n\n")
}

func reviewOutlinePrompt(p swarm.OutlineReview) string {
	return fmt.Sprintf(`Review and enhance this outline for an article about %q:

%s

Improve the outline by:
1. Ensuring logical flow
2. Adding missing important topics
3. Balancing section lengths
4. Improving section titles for clarity
5. Suggesting better organization if needed

Return the enhanced outline with main sections as numbered lines and subsections as lines starting with '-', then explain your changes.`, p.Topic, p.Outline.String())
}

func verifyOutlinePrompt(p swarm.OutlineVerify) string {
	return fmt.Sprintf(`Verify the logical structure and flow of this article outline:

Topic: %s
Outline:
%s

Check for:
1. Logical progression of ideas
2. Missing critical topics
3. Redundant sections
4. Better organization possibilities
5. Overall coherence

Return the corrected outline with main sections as numbered lines and subsections as lines starting with '-', followed by your recommendations.`, p.Topic, p.Outline.String())
}

func sectionSystem(p swarm.Section) string {
	var role string
	switch p.TaskType() {
	case swarm.TypeIntroduction:
		role = "the introduction, which should frame the topic and preview the article's structure"
	case swarm.TypeConclusion:
		role = "the conclusion, which should synthesize the article's findings and close with an outlook"
	default:
		role = fmt.Sprintf("section %d", p.Position+1)
	}
	s := fmt.Sprintf("You are writing %s of an article about %q.", role, p.Topic)
	if p.TargetWords > 0 {
		s += fmt.Sprintf(" Aim for about %d words.", p.TargetWords)
	}
	if len(p.Section.Subsections) > 0 {
		titles := make([]string, len(p.Section.Subsections))
		for i, sub := range p.Section.Subsections {
			titles[i] = sub.Title
		}
		s += " Cover these subsections: " + strings.Join(titles, "; ") + "."
	}
	return s
}

func factCheckPrompt(p swarm.FactCheck) string {
	return `Fact-check this article for accuracy.

Identify:
1. Any factual errors or inaccuracies
2. Statements that need verification
3. Outdated information
4. Missing attributions or sources
5. Suggested corrections

Provide a detailed fact-checking report.

` + llm.ArticleMarker + p.Article
}

func technicalReviewPrompt(p swarm.TechnicalReview) string {
	return fmt.Sprintf(`Perform a technical review of this article about %q.

Check terminology, technical claims, algorithms and any quantitative statements.
List each problem with a concrete correction. Do not rewrite the article.

`, p.Topic) + llm.ArticleMarker + p.Article
}

func articleVerifyPrompt(p swarm.ArticleVerify) string {
	return fmt.Sprintf(`Verify the logical consistency of this article about %q.

Check that claims follow from one another, sections connect, and nothing contradicts an earlier statement.
Return the complete corrected article and nothing else.

`, p.Topic) + llm.ArticleMarker + p.Article
}

func depthOrStandard(d string) string {
	if d == "" {
		return "standard"
	}
	return d
}
