// Package article holds the text helpers for outlines, sections and
// finished articles.
package article

import (
	"fmt"
	"regexp"
	"strings"
)

type Subsection struct {
	Title string `json:"title"`
}

type Section struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Subsections []Subsection `json:"subsections,omitempty"`
}

type Outline struct {
	Title    string    `json:"title,omitempty"`
	Sections []Section `json:"sections"`
	// Notes carries reviewer or verifier commentary that did not parse as
	// outline structure.
	Notes string `json:"notes,omitempty"`
}

var (
	titleRe      = regexp.MustCompile(`^#\s+(.+)$`)
	mainRe       = regexp.MustCompile(`^(?:#{1,6}\s+)?(?:(?:\d+|[IVX]+)\.)\s*|^#{2,6}\s+`)
	subRe        = regexp.MustCompile(`^(?:[a-zA-Z]\.|[-*+])\s*`)
	emphasisTrim = "*_ "
)

// ParseOutline reads a model's outline text. Numbered, Roman-numbered and
// markdown heading lines start sections. Lettered and bulleted lines become
// subsections of the current section. A lone level-one heading before any
// section is taken as the article title. When every heading is level one,
// each becomes a section.
func ParseOutline(text string) Outline {
	var (
		out     Outline
		current *Section
	)
	flush := func() {
		if current != nil && current.Title != "" {
			out.Sections = append(out.Sections, *current)
		}
		current = nil
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if m := titleRe.FindStringSubmatch(trimmed); m != nil && !mainRe.MatchString(trimmed) {
			if current == nil && len(out.Sections) == 0 {
				if out.Title == "" {
					out.Title = cleanTitle(m[1])
					continue
				}
				// A second level-one heading means the headings are sections.
				current = &Section{Title: out.Title}
				out.Title = ""
			}
			flush()
			current = &Section{Title: cleanTitle(m[1])}
			continue
		}
		if loc := mainRe.FindStringIndex(trimmed); loc != nil {
			flush()
			current = &Section{Title: cleanTitle(trimmed[loc[1]:])}
			continue
		}
		if current != nil {
			if loc := subRe.FindStringIndex(trimmed); loc != nil {
				if t := cleanTitle(trimmed[loc[1]:]); t != "" {
					current.Subsections = append(current.Subsections, Subsection{Title: t})
				}
			}
		}
	}
	flush()
	return out
}

func cleanTitle(s string) string {
	s = strings.Trim(strings.TrimSpace(s), emphasisTrim)
	s = strings.TrimSuffix(s, ":")
	return strings.Trim(s, emphasisTrim)
}

// String renders the outline in the numbered form ParseOutline accepts.
func (o Outline) String() string {
	var b strings.Builder
	if o.Title != "" {
		fmt.Fprintf(&b, "# %s\n", o.Title)
	}
	for i, s := range o.Sections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Title)
		for _, sub := range s.Subsections {
			fmt.Fprintf(&b, "- %s\n", sub.Title)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Titles returns the section titles in order.
func (o Outline) Titles() []string {
	titles := make([]string, len(o.Sections))
	for i, s := range o.Sections {
		titles[i] = s.Title
	}
	return titles
}
