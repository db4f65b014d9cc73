package prompt

import (
	"sort"
	"strings"

	"github.com/reviewhub/reviewhub/internal/model"
)

// defaultRole is the reviewer identity used for every review
const defaultRole = "You are an experienced software engineer performing a code review. " +
	"You read diffs carefully, reason about correctness and safety, and report only genuine issues."

// personaDescriptions maps known persona IDs to the lens they apply
var personaDescriptions = map[string]string{
	"security":    "Attack surface, injection, authentication and authorization flaws, secret handling, unsafe deserialization",
	"performance": "Algorithmic complexity, allocations in hot paths, N+1 queries, unbounded growth",
	"style":       "Naming, readability, idiomatic usage, dead code",
	"testing":     "Missing or weakened test coverage for the changed behavior",
	"concurrency": "Data races, deadlocks, goroutine and resource leaks, unsafe shared state",
	"api-design":  "Backward compatibility, error contracts, input validation at boundaries",
}

// PersonaDescription returns the focus description for a persona ID.
// Unknown personas get a generic description so user-defined lenses
// still render.
func PersonaDescription(id string) string {
	if desc, ok := personaDescriptions[id]; ok {
		return desc
	}
	return "Findings relevant to " + id
}

// KnownPersonas lists the persona IDs with built-in descriptions
func KnownPersonas() []string {
	ids := make([]string, 0, len(personaDescriptions))
	for id := range personaDescriptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// severityLevels lists the grades the model may assign, least severe first
func severityLevels() []string {
	return []string{
		string(model.SeverityNit),
		string(model.SeverityLow),
		string(model.SeverityMedium),
		string(model.SeverityHigh),
		string(model.SeverityCritical),
	}
}

// Builder builds prompt specifications from review tasks
type Builder struct{}

// NewBuilder creates a new prompt builder
func NewBuilder() *Builder {
	return &Builder{}
}

// BuildContext provides the per-review inputs for building prompts
type BuildContext struct {
	// Meta identifies the change under review
	Meta *model.PRMetadata

	// Push reports whether the change is a branch push rather than a
	// pull request; push reviews render commit context instead of PR
	// context
	Push bool

	// FilePath is the file whose diff this prompt covers
	FilePath string

	// Diff is the unified diff block for FilePath
	Diff string

	// Knowledge holds retrieved repository chunks, most similar first
	Knowledge []Snippet

	// Suppressions are learned false-positive reasons to withhold
	Suppressions []string

	// OutputLanguage is the human-readable language instruction for the
	// response (e.g., "Chinese (Simplified Chinese preferred)")
	OutputLanguage string
}

// Build converts a review configuration and per-review context into a Spec
func (b *Builder) Build(cfg *model.ReviewConfig, ctx *BuildContext) *Spec {
	return &Spec{
		SystemRole:  b.buildSystemRole(),
		Goals:       b.buildGoals(cfg),
		Constraints: b.buildConstraints(cfg, ctx),
		Context:     b.buildContext(ctx),
	}
}

// buildSystemRole builds the system role specification (identity only)
func (b *Builder) buildSystemRole() SystemRoleSpec {
	return SystemRoleSpec{
		Description: defaultRole,
	}
}

// buildGoals builds the goals specification from the configured personas
func (b *Builder) buildGoals(cfg *model.ReviewConfig) GoalsSpec {
	if cfg == nil || len(cfg.Personas) == 0 {
		return GoalsSpec{}
	}
	items := make([]PersonaItem, 0, len(cfg.Personas))
	for _, id := range cfg.Personas {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		items = append(items, PersonaItem{ID: id, Description: PersonaDescription(id)})
	}
	return GoalsSpec{Personas: items}
}

// buildConstraints builds the constraints specification
// Consolidates scope control, severity, and output style
func (b *Builder) buildConstraints(cfg *model.ReviewConfig, ctx *BuildContext) ConstraintsSpec {
	constraints := ConstraintsSpec{
		SeverityLevels:    severityLevels(),
		FocusOnIssuesOnly: true,
		ScopeControl: []string{
			"Review only code changed in this diff",
			"Line numbers refer to the new version of the file",
		},
	}

	if cfg != nil {
		// The lowest grade reports everything; stating it would only
		// invite threshold gaming
		if min := cfg.EffectiveSeverity(); min != model.SeverityNit {
			constraints.MinSeverity = string(min)
		}
		constraints.IncludeFixPatches = cfg.IncludeAutoFixPatches
	}

	if ctx != nil {
		constraints.Language = ctx.OutputLanguage
	}

	return constraints
}

// buildContext builds the context specification (change + retrieved context)
func (b *Builder) buildContext(ctx *BuildContext) ContextSpec {
	spec := ContextSpec{}
	if ctx == nil {
		return spec
	}

	if ctx.Meta != nil {
		spec.RepoID = ctx.Meta.RepoID
		spec.Title = ctx.Meta.Title
		spec.HeadSHA = ctx.Meta.HeadSHA
		if base := ctx.Meta.BaseSHA; strings.Trim(base, "0") != "" {
			spec.BaseSHA = base
		}
		if !ctx.Push {
			spec.PRNumber = ctx.Meta.PRNumber
		}
	}

	spec.FilePath = ctx.FilePath
	spec.Diff = ctx.Diff
	spec.Knowledge = ctx.Knowledge
	spec.Suppressions = ctx.Suppressions
	return spec
}
