package swarm

import (
	"github.com/sorcerai/storm-mcp/internal/article"
	"github.com/sorcerai/storm-mcp/internal/llm"
)

type TaskType string

const (
	TypePerspective     TaskType = "generate_perspective"
	TypeResearchFacts   TaskType = "research_facts"
	TypeDocument        TaskType = "long_document_analysis"
	TypeSystemDesign    TaskType = "system_design"
	TypeReasoning       TaskType = "complex_reasoning"
	TypePremium         TaskType = "premium_technical_analysis"
	TypeMath            TaskType = "mathematical_analysis"
	TypeOutline         TaskType = "generate_outline"
	TypeReviewOutline   TaskType = "review_outline"
	TypeVerifyLogic     TaskType = "verify_logic"
	TypeWriteSection    TaskType = "write_section"
	TypeIntroduction    TaskType = "write_introduction"
	TypeConclusion      TaskType = "write_conclusion"
	TypePolish          TaskType = "polish_article"
	TypeFinalPolish     TaskType = "final_polish"
	TypeFactCheck       TaskType = "fact_check"
	TypeLogicCheck      TaskType = "logic_verification"
	TypeTechnicalReview TaskType = "technical_review"
)

// Payload is the typed input of a task. The set of implementations is
// closed to this package.
type Payload interface {
	TaskType() TaskType
	payload()
}

type Perspective struct {
	Topic       string `json:"topic"`
	Perspective string `json:"perspective"`
}

type Facts struct {
	Topic string `json:"topic"`
	Depth string `json:"depth"`
	Focus string `json:"focus"`
}

type DocumentAnalysis struct {
	Topic string `json:"topic"`
	Depth string `json:"depth"`
}

type SystemDesign struct {
	Topic string `json:"topic"`
	Depth string `json:"depth"`
}

type Reasoning struct {
	Problem string `json:"problem"`
}

type PremiumAnalysis struct {
	Topic         string `json:"topic"`
	Depth         string `json:"depth"`
	Justification string `json:"justification"`
}

type Math struct {
	Problem string `json:"problem"`
}

// ResearchNote is one settled research result fed to the outline drafter.
type ResearchNote struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

type Outline struct {
	Topic    string         `json:"topic"`
	Research []ResearchNote `json:"research"`
}

type OutlineReview struct {
	Topic   string          `json:"topic"`
	Outline article.Outline `json:"outline"`
}

type OutlineVerify struct {
	Topic   string          `json:"topic"`
	Outline article.Outline `json:"outline"`
}

// Section writes one outline section. Kind selects between the generic,
// introduction and conclusion writers.
type Section struct {
	Kind        TaskType        `json:"kind"`
	Topic       string          `json:"topic"`
	Section     article.Section `json:"section"`
	Position    int             `json:"position"`
	Outline     article.Outline `json:"outline"`
	TargetWords int             `json:"target_words"`
	Sources     []llm.Source    `json:"sources,omitempty"`
	// Body is existing section content, used for size-based routing.
	Body string `json:"body,omitempty"`
}

// Polish rewrites the article. Kind is polish_article or final_polish.
type Polish struct {
	Kind        TaskType `json:"kind"`
	Article     string   `json:"article"`
	Options     []string `json:"options"`
	Corrections string   `json:"corrections,omitempty"`
}

type FactCheck struct {
	Article string `json:"article"`
}

type ArticleVerify struct {
	Topic   string `json:"topic"`
	Article string `json:"article"`
}

type TechnicalReview struct {
	Topic   string `json:"topic"`
	Article string `json:"article"`
}

func (Perspective) TaskType() TaskType      { return TypePerspective }
func (Facts) TaskType() TaskType            { return TypeResearchFacts }
func (DocumentAnalysis) TaskType() TaskType { return TypeDocument }
func (SystemDesign) TaskType() TaskType     { return TypeSystemDesign }
func (Reasoning) TaskType() TaskType        { return TypeReasoning }
func (PremiumAnalysis) TaskType() TaskType  { return TypePremium }
func (Math) TaskType() TaskType             { return TypeMath }
func (Outline) TaskType() TaskType          { return TypeOutline }
func (OutlineReview) TaskType() TaskType    { return TypeReviewOutline }
func (OutlineVerify) TaskType() TaskType    { return TypeVerifyLogic }
func (FactCheck) TaskType() TaskType        { return TypeFactCheck }
func (ArticleVerify) TaskType() TaskType    { return TypeLogicCheck }
func (TechnicalReview) TaskType() TaskType  { return TypeTechnicalReview }

func (s Section) TaskType() TaskType {
	switch s.Kind {
	case TypeIntroduction, TypeConclusion:
		return s.Kind
	}
	return TypeWriteSection
}

func (p Polish) TaskType() TaskType {
	if p.Kind == TypeFinalPolish {
		return TypeFinalPolish
	}
	return TypePolish
}

func (Perspective) payload()      {}
func (Facts) payload()            {}
func (DocumentAnalysis) payload() {}
func (SystemDesign) payload()     {}
func (Reasoning) payload()        {}
func (PremiumAnalysis) payload()  {}
func (Math) payload()             {}
func (Outline) payload()          {}
func (OutlineReview) payload()    {}
func (OutlineVerify) payload()    {}
func (Section) payload()          {}
func (Polish) payload()           {}
func (FactCheck) payload()        {}
func (ArticleVerify) payload()    {}
func (TechnicalReview) payload()  {}
