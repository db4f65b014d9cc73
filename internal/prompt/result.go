package prompt

import (
	"strings"

	"github.com/reviewhub/reviewhub/internal/llm"
	"github.com/reviewhub/reviewhub/internal/model"
)

// Result is the structured review the model must return for one diff block
type Result struct {
	// Summary is a short assessment of the change
	Summary string `json:"summary" description:"One-paragraph assessment of the change"`

	// Findings lists the issues found; empty when the change is clean
	Findings []Finding `json:"findings" description:"Issues found in the diff; empty array when none"`
}

// Finding is a single issue reported by the model
type Finding struct {
	FilePath   string  `json:"file_path" description:"Path of the file the issue occurs in"`
	LineStart  int     `json:"line_start" description:"First line of the issue in the new file version"`
	LineEnd    int     `json:"line_end" description:"Last line of the issue in the new file version"`
	Type       string  `json:"type" description:"One of: security, bug, performance, style, nit"`
	Severity   string  `json:"severity" description:"One of: nit, low, medium, high, critical"`
	Message    string  `json:"message" description:"What is wrong and why it matters"`
	Suggestion string  `json:"suggestion,omitempty" description:"How to fix it"`
	Confidence float64 `json:"confidence" description:"Confidence in this finding, 0.0 to 1.0"`
	FixPatch   string  `json:"fix_patch,omitempty" description:"Ready-to-apply replacement for the flagged lines, verbatim code only"`
}

// ResultSchema returns the response schema for structured review output
func ResultSchema() *llm.ResponseSchema {
	return &llm.ResponseSchema{
		Name:        "code_review_result",
		Description: "Report every finding with its location, severity, and confidence.",
		Schema:      Result{},
		Strict:      true,
	}
}

// Comment converts a finding into a review comment. The caller assigns
// the comment ID and citations.
func (f *Finding) Comment() model.ReviewComment {
	start, end := f.LineStart, f.LineEnd
	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}

	conf := f.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return model.ReviewComment{
		FilePath:        strings.TrimSpace(f.FilePath),
		LineRange:       model.LineRange{Start: start, End: end},
		Type:            parseCommentType(f.Type),
		Severity:        model.ParseSeverity(f.Severity),
		Message:         strings.TrimSpace(f.Message),
		Suggestion:      strings.TrimSpace(f.Suggestion),
		ConfidenceScore: conf,
		FixPatch:        f.FixPatch,
	}
}

// parseCommentType normalizes a finding type, falling back to bug
func parseCommentType(s string) model.CommentType {
	switch t := model.CommentType(strings.ToLower(strings.TrimSpace(s))); t {
	case model.CommentTypeSecurity, model.CommentTypeBug, model.CommentTypePerformance,
		model.CommentTypeStyle, model.CommentTypeNit:
		return t
	}
	return model.CommentTypeBug
}
