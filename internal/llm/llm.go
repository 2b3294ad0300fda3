// Package llm defines the text-generation capability the swarm consumes and
// the adapters that provide it for each hosted model.
package llm

import (
	"context"
	"fmt"
)

// Usage reports token accounting for a single generation call.
type Usage struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Prompt:     u.Prompt + o.Prompt,
		Completion: u.Completion + o.Completion,
		Total:      u.Total + o.Total,
	}
}

// Options are the sampling parameters for one call.
type Options struct {
	Temperature     float64
	MaxOutputTokens int
	System          string
	// Thinking asks backends that support an extended reasoning mode to use it.
	Thinking bool
}

type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Backend is the one capability every model integration provides.
type Backend interface {
	Name() string
	GenerateText(ctx context.Context, prompt string, opts Options) (*Response, error)
}

// Source is a reference passed to section writers for inline citation.
type Source struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// OutlineGenerator is implemented by backends with a dedicated outline prompt.
type OutlineGenerator interface {
	GenerateOutline(ctx context.Context, topic, information string, opts Options) (*Response, error)
}

// SectionWriter is implemented by backends with a dedicated section prompt.
type SectionWriter interface {
	GenerateArticleSection(ctx context.Context, title, outline string, sources []Source, opts Options) (*Response, error)
}

// Polisher is implemented by backends with a dedicated polish prompt.
type Polisher interface {
	PolishText(ctx context.Context, text string, polishOptions []string, opts Options) (*Response, error)
}

// BackendError wraps a transport, auth, quota or malformed-response failure
// from a model call.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func backendErr(backend, op string, err error) error {
	return &BackendError{Backend: backend, Op: op, Err: err}
}
