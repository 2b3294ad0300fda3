package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sorcerai/storm-mcp/internal/llm"
)

type Decision string

const (
	Premium  Decision = "PREMIUM"
	Standard Decision = "STANDARD"
)

// Classifier makes the premium/standard call for a piece of content.
type Classifier interface {
	Classify(ctx context.Context, content string) (Decision, error)
}

var premiumKeywords = []string{
	"mathematical", "algorithm", "technical", "advanced", "complex",
	"quantum", "cryptography", "verification", "optimization",
	"theory", "research", "engineering", "scientific", "analysis",
}

// KeywordHeuristic reports whether content contains any premium keyword,
// case-insensitively.
func KeywordHeuristic(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range premiumKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// LLMClassifier asks a backend to grade content against a fixed rubric.
type LLMClassifier struct {
	Backend llm.Backend
	Timeout time.Duration
}

func (c *LLMClassifier) Classify(ctx context.Context, content string) (Decision, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	resp, err := c.Backend.GenerateText(ctx, classifierPrompt(content), llm.Options{
		Temperature:     0.3,
		MaxOutputTokens: 300,
	})
	if err != nil {
		return "", fmt.Errorf("classify content: %w", err)
	}
	return ParseDecision(resp.Text), nil
}

func classifierPrompt(content string) string {
	return fmt.Sprintf(`Analyze this content and determine if it would benefit from premium technical expertise for maximum quality writing:

Content: %q

Evaluate if this content would benefit from premium technical analysis in:
1. Mathematical concepts or proofs
2. Advanced algorithm or system design
3. Technical depth and precision
4. Cutting-edge specifications
5. Scientific/mathematical calculations
6. Security or cryptographic concepts
7. Advanced computing concepts
8. Machine learning theory and implementation
9. Formal verification or system architecture
10. Complex optimization or research methodology

Respond with:
- PREMIUM: If this content would benefit from premium technical expertise
- STANDARD: If standard models are sufficient for this content

Reasoning: [Brief explanation]

Decision: [PREMIUM or STANDARD]`, content)
}

// ParseDecision reads the word after the last "decision:" marker. Without
// a clear marker the text counts as premium only if it mentions premium and
// never standard. Anything else is STANDARD.
func ParseDecision(text string) Decision {
	lower := strings.ToLower(text)
	if i := strings.LastIndex(lower, "decision:"); i >= 0 {
		fields := strings.Fields(lower[i+len("decision:"):])
		if len(fields) > 0 {
			switch strings.Trim(fields[0], "[]*().,:;!\"'`") {
			case "premium":
				return Premium
			case "standard":
				return Standard
			}
		}
	}
	if strings.Contains(lower, "premium") && !strings.Contains(lower, "standard") {
		return Premium
	}
	return Standard
}
