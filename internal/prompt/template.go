package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Renderer renders prompt specifications into prompt text
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer creates a new prompt renderer
func NewRenderer() *Renderer {
	r := &Renderer{}
	r.initTemplates()
	return r
}

// initTemplates initializes the prompt templates
func (r *Renderer) initTemplates() {
	funcMap := template.FuncMap{
		"join":     strings.Join,
		"indent":   indent,
		"bullet":   bullet,
		"numbered": numbered,
		"quote":    quote,
		"fence":    fence,
		"add":      func(a, b int) int { return a + b },
	}

	r.tmpl = template.New("prompt").Funcs(funcMap)

	// Parse all templates
	// Note: Output format is handled by the llm client layer via ResponseSchema
	template.Must(r.tmpl.New("main").Parse(mainTemplate))
	template.Must(r.tmpl.New("system_role").Parse(systemRoleTemplate))
	template.Must(r.tmpl.New("goals").Parse(goalsTemplate))
	template.Must(r.tmpl.New("constraints").Parse(constraintsTemplate))
	template.Must(r.tmpl.New("context").Parse(contextTemplate))
}

// Render renders a Spec into the user prompt text: goals, constraints,
// and the diff context. Pair it with RenderSystemPrompt for the system
// message.
func (r *Renderer) Render(spec *Spec) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "main", spec); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// RenderSystemPrompt renders only the system prompt portion
func (r *Renderer) RenderSystemPrompt(spec *Spec) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "system_role", spec.SystemRole); err != nil {
		return "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	return buf.String(), nil
}

// Helper functions for templates
func indent(spaces int, s string) string {
	pad := strings.Repeat(" ", spaces)
	return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
}

func bullet(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
	return sb.String()
}

// numbered formats items as a numbered list (1. 2. 3. etc.)
func numbered(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, item := range items {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, item))
	}
	return sb.String()
}

// quote formats text as a markdown blockquote
func quote(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("> ")
		sb.WriteString(line)
	}
	return sb.String()
}

// fence wraps text in a fenced code block with the given language tag
func fence(lang, s string) string {
	return "```" + lang + "\n" + strings.TrimRight(s, "\n") + "\n```"
}

// Template definitions
// Note: Output format is handled by the llm client layer via ResponseSchema
const mainTemplate = `{{template "goals" .Goals}}

{{template "constraints" .Constraints}}

{{template "context" .Context}}`

const systemRoleTemplate = `{{.Description}}`

const goalsTemplate = `## Goals

Identify genuine issues introduced or touched by this change.
{{- if .Personas}}

Apply the following reviewer lenses in priority order:
{{range $i, $p := .Personas}}{{add $i 1}}. {{$p.ID}}: {{$p.Description}}
{{end}}
{{- else}}

Check correctness, security, performance, and maintainability based on
industry best practices (e.g., OWASP Top 10, CWE, performance anti-patterns).
{{- end}}`

const constraintsTemplate = `## Constraints
{{- if .ScopeControl}}

### Scope Control
{{bullet .ScopeControl}}
{{- end}}
{{- if .FocusOnIssuesOnly}}

### Focus
- Focus ONLY on reporting issues/problems found in the code
- Do NOT explain what the code changes do or what problem they fix
- Do NOT praise or commend the changes
{{- end}}

### Severity
Levels: {{range $i, $level := .SeverityLevels}}{{if $i}}, {{end}}{{$level}}{{end}}
{{- if .MinSeverity}}
Minimum severity to report: {{.MinSeverity}}

- Severity must be assessed objectively based on actual impact.
- Do NOT inflate or escalate severity solely to satisfy this threshold.
- If no issues genuinely meet the threshold, output no findings.
{{- end}}

### Output Style
- Report each finding once, against the line range it occurs on.
{{- if .IncludeFixPatches}}
- Where a safe, minimal fix exists, include it as a ready-to-apply replacement for the flagged lines.
{{- end}}
{{- if .Language}}
- Response language: {{.Language}}
{{- end}}`

const contextTemplate = `## Context

Repository: {{.RepoID}}
{{- if gt .PRNumber 0}}
PR #{{.PRNumber}}{{if .Title}}: {{.Title}}{{end}}
{{- else if .Title}}
Change: {{.Title}}
{{- end}}
{{- if and .BaseSHA .HeadSHA}}
Commit Range: {{.BaseSHA}}..{{.HeadSHA}}
{{- else if .HeadSHA}}
Commit: {{.HeadSHA}}
{{- end}}

### Diff{{if .FilePath}} ({{.FilePath}}){{end}}

{{fence "diff" .Diff}}
{{- if .Knowledge}}

### Repository Context

The following snippets were retrieved from this repository's knowledge
base. Use them to judge consistency with existing conventions, and cite
the ones that ground a finding.
{{range .Knowledge}}
{{.Citation}}:
{{quote .Content}}
{{end}}
{{- end}}
{{- if .Suppressions}}

### Known False Positives

Findings matching the following patterns were rejected by this
repository's developers in past reviews. Do NOT report them again:
{{bullet .Suppressions}}
{{- end}}`

// QuickRender is a convenience function to render a spec with default settings
func QuickRender(spec *Spec) (string, error) {
	return NewRenderer().Render(spec)
}
