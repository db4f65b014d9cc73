// Package prompt assembles review prompts from task metadata, diff
// content, and retrieved repository context.
package prompt

// Spec is the intermediate representation between a review task and the
// final prompt text.
// Note: Output format is handled by the llm client layer via ResponseSchema.
type Spec struct {
	// SystemRole defines the AI's role and persona
	SystemRole SystemRoleSpec

	// Goals defines what the AI should achieve
	Goals GoalsSpec

	// Constraints defines rules and constraints for the review
	Constraints ConstraintsSpec

	// Context provides the diff under review and its retrieved context
	Context ContextSpec
}

// SystemRoleSpec defines the AI's role (identity only)
type SystemRoleSpec struct {
	// Description describes the reviewer's role and focus areas
	Description string
}

// PersonaItem represents a reviewer lens with its ID and description
type PersonaItem struct {
	// ID is the persona identifier
	ID string
	// Description is the human-readable focus of the persona
	Description string
}

// GoalsSpec defines what the AI should achieve
type GoalsSpec struct {
	// Personas are the reviewer lenses applied to this review, in
	// priority order. Empty means a general-purpose review.
	Personas []PersonaItem
}

// ConstraintsSpec defines rules and constraints for review behavior and output
type ConstraintsSpec struct {
	// ScopeControl defines rules about what scope to review
	// e.g., "Review only code changed in this diff"
	ScopeControl []string

	// FocusOnIssuesOnly when true, tells the reviewer to only report issues
	// without explaining what the code changes do or praising them
	FocusOnIssuesOnly bool

	// SeverityLevels are the available severity grades (system constant)
	SeverityLevels []string

	// MinSeverity is the minimum severity to report
	// If empty, all findings are reported
	MinSeverity string

	// IncludeFixPatches asks for a ready-to-apply replacement snippet
	// on findings where a safe minimal fix exists
	IncludeFixPatches bool

	// Language specifies the response language (e.g., "Chinese", "English")
	Language string
}

// Snippet is a retrieved knowledge chunk included for grounding
type Snippet struct {
	// Citation locates the source, e.g. "See internal/auth/jwt.go:42"
	Citation string

	// Content is the chunk text
	Content string
}

// ContextSpec provides the change under review and its retrieved context
type ContextSpec struct {
	// RepoID is the owner/name repository identifier
	RepoID string

	// PRNumber is the pull request number; 0 for push reviews
	PRNumber int

	// Title is the PR title or head commit subject
	Title string

	// HeadSHA is the commit under review
	HeadSHA string

	// BaseSHA is the merge base; empty when the change has no base
	// (e.g., a branch-creating push)
	BaseSHA string

	// FilePath is the file this prompt covers
	FilePath string

	// Diff is the unified diff block for FilePath
	Diff string

	// Knowledge holds retrieved repository chunks, most similar first
	Knowledge []Snippet

	// Suppressions are learned false-positive patterns the reviewer
	// must not report again
	Suppressions []string
}
