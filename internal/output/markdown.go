package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reviewhub/reviewhub/internal/model"
)

// Banner is prepended to tracking issues so readers know the content
// was machine-generated.
const Banner = "> :robot: This review was generated automatically by ReviewHub."

// severityBadge maps severities to the marker shown before each finding
var severityBadge = map[model.Severity]string{
	model.SeverityCritical: ":rotating_light: **CRITICAL**",
	model.SeverityHigh:     ":red_circle: **HIGH**",
	model.SeverityMedium:   ":orange_circle: **MEDIUM**",
	model.SeverityLow:      ":yellow_circle: **LOW**",
	model.SeverityNit:      ":speech_balloon: **NIT**",
}

// ReviewBody renders the top-level body of a platform review: the
// summary followed by a severity breakdown.
func ReviewBody(review *model.ReviewResponse) string {
	var sb strings.Builder

	sb.WriteString("## Code Review\n\n")
	if review.Summary != "" {
		sb.WriteString(review.Summary)
		sb.WriteString("\n\n")
	}

	if len(review.Comments) == 0 {
		sb.WriteString("No issues found.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("**%d finding(s)**", len(review.Comments)))
	if breakdown := severityBreakdown(review.Stats.SeverityCounts); breakdown != "" {
		sb.WriteString(": ")
		sb.WriteString(breakdown)
	}
	sb.WriteString("\n")
	return sb.String()
}

// severityBreakdown formats severity counts from most to least severe
func severityBreakdown(counts model.CountMap) string {
	if len(counts) == 0 {
		return ""
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return model.Severity(keys[i]).Rank() > model.Severity(keys[j]).Rank()
	})

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d %s", counts[k], k))
	}
	return strings.Join(parts, ", ")
}

// CommentBody renders one finding as an inline review comment
func CommentBody(c *model.ReviewComment) string {
	var sb strings.Builder

	badge, ok := severityBadge[c.Severity]
	if !ok {
		badge = "**" + strings.ToUpper(string(c.Severity)) + "**"
	}
	sb.WriteString(badge)
	sb.WriteString(" (")
	sb.WriteString(string(c.Type))
	sb.WriteString(")\n\n")
	sb.WriteString(c.Message)
	sb.WriteString("\n")

	if c.Suggestion != "" {
		sb.WriteString("\n**Suggestion**: ")
		sb.WriteString(c.Suggestion)
		sb.WriteString("\n")
	}

	if c.FixPatch != "" {
		sb.WriteString("\n```suggestion\n")
		sb.WriteString(strings.TrimRight(c.FixPatch, "\n"))
		sb.WriteString("\n```\n")
	}

	if len(c.Citations) > 0 {
		sb.WriteString("\n")
		for _, cite := range c.Citations {
			sb.WriteString("> ")
			sb.WriteString(cite)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// IssueTitle builds the tracking issue title for a push review
func IssueTitle(meta *model.PRMetadata) string {
	short := meta.HeadSHA
	if len(short) > 8 {
		short = short[:8]
	}
	if meta.Title != "" {
		return fmt.Sprintf("Code review: %s (%s)", meta.Title, short)
	}
	return fmt.Sprintf("Code review for commit %s", short)
}

// IssueBody renders a push review as a tracking issue. Inline comments
// have no diff to attach to, so each finding is written out with its
// file location.
func IssueBody(meta *model.PRMetadata, review *model.ReviewResponse) string {
	var sb strings.Builder

	sb.WriteString(Banner)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("**Commit**: `%s`", meta.HeadSHA))
	if meta.Author != "" {
		sb.WriteString(fmt.Sprintf(" by @%s", meta.Author))
	}
	sb.WriteString("\n\n")

	if review.Summary != "" {
		sb.WriteString(review.Summary)
		sb.WriteString("\n\n")
	}

	if len(review.Comments) == 0 {
		sb.WriteString("No issues found.\n")
		return sb.String()
	}

	sb.WriteString("---\n\n")
	for i := range review.Comments {
		c := &review.Comments[i]
		sb.WriteString(fmt.Sprintf("### `%s:%d`\n\n", c.FilePath, c.LineRange.End))
		sb.WriteString(CommentBody(c))
		sb.WriteString("\n")
	}
	return sb.String()
}
