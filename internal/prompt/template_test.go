package prompt

import (
	"strings"
	"testing"
)

func testSpec() *Spec {
	return &Spec{
		SystemRole: SystemRoleSpec{
			Description: "You are a reviewer.",
		},
		Goals: GoalsSpec{
			Personas: []PersonaItem{
				{ID: "security", Description: "Injection and auth flaws"},
			},
		},
		Constraints: ConstraintsSpec{
			ScopeControl:      []string{"Review only code changed in this diff"},
			FocusOnIssuesOnly: true,
			SeverityLevels:    []string{"nit", "low", "medium", "high", "critical"},
			MinSeverity:       "medium",
		},
		Context: ContextSpec{
			RepoID:   "acme/api",
			PRNumber: 42,
			Title:    "Add retry logic",
			BaseSHA:  "1111111111111111111111111111111111111111",
			HeadSHA:  "2222222222222222222222222222222222222222",
			FilePath: "main.go",
			Diff:     "diff --git a/main.go b/main.go\n+x := 1",
		},
	}
}

func TestRenderer_Render(t *testing.T) {
	renderer := NewRenderer()
	result, err := renderer.Render(testSpec())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	for _, want := range []string{
		"## Goals",
		"1. security: Injection and auth flaws",
		"## Constraints",
		"Review only code changed in this diff",
		"Minimum severity to report: medium",
		"## Context",
		"PR #42: Add retry logic",
		"Commit Range: 1111111111111111111111111111111111111111..2222222222222222222222222222222222222222",
		"### Diff (main.go)",
		"```diff\ndiff --git a/main.go b/main.go\n+x := 1\n```",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("rendered prompt missing %q\n---\n%s", want, result)
		}
	}

	// The role belongs to the system prompt, not the user prompt
	if strings.Contains(result, "You are a reviewer.") {
		t.Error("user prompt should not contain the system role")
	}
}

func TestRenderer_RenderSystemPrompt(t *testing.T) {
	renderer := NewRenderer()
	system, err := renderer.RenderSystemPrompt(testSpec())
	if err != nil {
		t.Fatalf("RenderSystemPrompt failed: %v", err)
	}
	if system != "You are a reviewer." {
		t.Errorf("system prompt = %q", system)
	}
}

func TestRenderer_RenderPushContext(t *testing.T) {
	renderer := NewRenderer()
	spec := testSpec()
	spec.Context.PRNumber = 0
	spec.Context.BaseSHA = ""

	result, err := renderer.Render(spec)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if strings.Contains(result, "PR #") {
		t.Error("push context should not mention a PR number")
	}
	if !strings.Contains(result, "Change: Add retry logic") {
		t.Error("push context should carry the commit subject")
	}
	if !strings.Contains(result, "Commit: 2222222222222222222222222222222222222222") {
		t.Error("push context should show the single commit")
	}
}

func TestRenderer_RenderKnowledge(t *testing.T) {
	renderer := NewRenderer()
	spec := testSpec()
	spec.Context.Knowledge = []Snippet{
		{Citation: "See db/conn.go:10", Content: "pool := newPool()\npool.SetMaxOpen(10)"},
	}

	result, err := renderer.Render(spec)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(result, "### Repository Context") {
		t.Error("knowledge section missing")
	}
	if !strings.Contains(result, "See db/conn.go:10:") {
		t.Error("citation missing")
	}
	if !strings.Contains(result, "> pool := newPool()\n> pool.SetMaxOpen(10)") {
		t.Errorf("snippet should be blockquoted:\n%s", result)
	}
}

func TestRenderer_RenderSuppressions(t *testing.T) {
	renderer := NewRenderer()
	spec := testSpec()
	spec.Context.Suppressions = []string{"error shadowing in generated code"}

	result, err := renderer.Render(spec)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(result, "### Known False Positives") {
		t.Error("suppression section missing")
	}
	if !strings.Contains(result, "- error shadowing in generated code") {
		t.Error("suppression entry missing")
	}
}

func TestRenderer_RenderNoPersonas(t *testing.T) {
	renderer := NewRenderer()
	spec := testSpec()
	spec.Goals.Personas = nil

	result, err := renderer.Render(spec)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(result, "correctness, security, performance, and maintainability") {
		t.Error("default goals missing when no personas are set")
	}
	if strings.Contains(result, "reviewer lenses") {
		t.Error("persona list should be absent")
	}
}

func TestRenderer_RenderLanguage(t *testing.T) {
	renderer := NewRenderer()
	spec := testSpec()
	spec.Constraints.Language = "Japanese"

	result, err := renderer.Render(spec)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(result, "Response language: Japanese") {
		t.Error("language instruction missing")
	}
}

func TestTemplateHelpers(t *testing.T) {
	t.Run("bullet", func(t *testing.T) {
		got := bullet([]string{"a", "b"})
		if got != "- a\n- b\n" {
			t.Errorf("bullet() = %q", got)
		}
		if bullet(nil) != "" {
			t.Error("bullet(nil) should be empty")
		}
	})

	t.Run("numbered", func(t *testing.T) {
		got := numbered([]string{"x", "y"})
		if got != "1. x\n2. y\n" {
			t.Errorf("numbered() = %q", got)
		}
	})

	t.Run("quote", func(t *testing.T) {
		got := quote("line1\nline2")
		if got != "> line1\n> line2" {
			t.Errorf("quote() = %q", got)
		}
	})

	t.Run("fence trims trailing newlines", func(t *testing.T) {
		got := fence("diff", "+x\n\n")
		if got != "```diff\n+x\n```" {
			t.Errorf("fence() = %q", got)
		}
	})

	t.Run("indent", func(t *testing.T) {
		got := indent(2, "a\nb")
		if got != "  a\n  b" {
			t.Errorf("indent() = %q", got)
		}
	})
}

func TestQuickRender(t *testing.T) {
	result, err := QuickRender(testSpec())
	if err != nil {
		t.Fatalf("QuickRender failed: %v", err)
	}
	if !strings.Contains(result, "## Goals") {
		t.Error("QuickRender output missing goals section")
	}
}
