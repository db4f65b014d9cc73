// Package model defines the data models for the application.
// All models use GORM for ORM operations with SQLite database.
package model

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
)

// StringArray is a custom type for storing string arrays in SQLite
type StringArray []string

// Value implements driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, s)
}

// JSONMap is a custom type for storing JSON maps in SQLite
type JSONMap map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	data, err := json.Marshal(j)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, j)
}

// Vector is a custom type for storing embeddings as JSON arrays in SQLite
type Vector []float32

// Value implements driver.Valuer interface
func (v Vector) Value() (driver.Value, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(v)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = Vector{}
		return nil
	}
	var bytes []byte
	switch val := value.(type) {
	case []byte:
		bytes = val
	case string:
		bytes = []byte(val)
	}
	return json.Unmarshal(bytes, v)
}

// CountMap is a custom type for storing string-keyed counters in SQLite
type CountMap map[string]int

// Value implements driver.Valuer interface
func (c CountMap) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	data, err := json.Marshal(c)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (c *CountMap) Scan(value interface{}) error {
	if value == nil {
		*c = make(map[string]int)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, c)
}

// Platform identifies a Git hosting platform
const (
	PlatformGitHub = "github"
	PlatformGitea  = "gitea"
	PlatformGitLab = "gitlab"
)

// ValidPlatform reports whether the platform has a registered adapter type
func ValidPlatform(platform string) bool {
	switch platform {
	case PlatformGitHub, PlatformGitea, PlatformGitLab:
		return true
	}
	return false
}

// Source identifies how a review request entered the system
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceCLI     Source = "cli"
	SourceMCP     Source = "mcp"
)

// Severity grades a review finding
type Severity string

const (
	SeverityNit      Severity = "nit"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNit:      0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric ordering of the severity; unknown values rank lowest
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether the severity is a known grade
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether the severity meets or exceeds the threshold
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

// ParseSeverity normalizes a severity string, falling back to low
func ParseSeverity(s string) Severity {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Valid() {
		return sev
	}
	return SeverityLow
}

// CommentType classifies a review finding
type CommentType string

const (
	CommentTypeSecurity    CommentType = "security"
	CommentTypeBug         CommentType = "bug"
	CommentTypePerformance CommentType = "performance"
	CommentTypeStyle       CommentType = "style"
	CommentTypeNit         CommentType = "nit"
)

// shaPattern matches a full lowercase hex commit SHA
var shaPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// ValidSHA reports whether s is exactly 40 lowercase hex characters
func ValidSHA(s string) bool {
	return shaPattern.MatchString(s)
}

// PRMetadata identifies the pull request or push a review task operates on.
// It is immutable after creation and travels with the task through the queue.
type PRMetadata struct {
	RepoID      string `json:"repo_id"`
	PRNumber    int    `json:"pr_number"`
	BaseSHA     string `json:"base_sha"`
	HeadSHA     string `json:"head_sha"`
	Author      string `json:"author,omitempty"`
	Title       string `json:"title,omitempty"`
	Platform    string `json:"platform"`
	Source      Source `json:"source"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// Validate checks the metadata against the persistence invariants
func (m *PRMetadata) Validate() error {
	if m.RepoID == "" || !strings.Contains(m.RepoID, "/") {
		return fmt.Errorf("repo_id must be owner/name, got %q", m.RepoID)
	}
	if m.PRNumber < 1 {
		return fmt.Errorf("pr_number must be >= 1, got %d", m.PRNumber)
	}
	if !ValidSHA(m.BaseSHA) {
		return fmt.Errorf("base_sha must be 40 lowercase hex chars")
	}
	if !ValidSHA(m.HeadSHA) {
		return fmt.Errorf("head_sha must be 40 lowercase hex chars")
	}
	if !ValidPlatform(m.Platform) {
		return fmt.Errorf("unknown platform %q", m.Platform)
	}
	return nil
}

// Review configuration bounds
const (
	MinContextMatches     = 3
	MaxContextMatches     = 10
	DefaultContextMatches = 5
)

// ReviewConfig carries the per-request review options. Boolean fields use
// pointers so that an omitted field can default to enabled.
type ReviewConfig struct {
	UseRAGContext            *bool    `json:"use_rag_context,omitempty"`
	ApplyLearnedSuppressions *bool    `json:"apply_learned_suppressions,omitempty"`
	SeverityThreshold        Severity `json:"severity_threshold,omitempty"`
	IncludeAutoFixPatches    bool     `json:"include_auto_fix_patches,omitempty"`
	Personas                 []string `json:"personas,omitempty"`
	MaxContextMatches        int      `json:"max_context_matches,omitempty"`
	Language                 string   `json:"language,omitempty"`
}

// RAGEnabled reports whether retrieval context is requested (default true)
func (c *ReviewConfig) RAGEnabled() bool {
	return c.UseRAGContext == nil || *c.UseRAGContext
}

// SuppressionsEnabled reports whether learned suppressions apply (default true)
func (c *ReviewConfig) SuppressionsEnabled() bool {
	return c.ApplyLearnedSuppressions == nil || *c.ApplyLearnedSuppressions
}

// EffectiveSeverity returns the severity threshold, defaulting to low
func (c *ReviewConfig) EffectiveSeverity() Severity {
	if c.SeverityThreshold.Valid() {
		return c.SeverityThreshold
	}
	return SeverityLow
}

// ContextMatches returns the match count clamped to the allowed range
func (c *ReviewConfig) ContextMatches() int {
	k := c.MaxContextMatches
	if k == 0 {
		k = DefaultContextMatches
	}
	if k < MinContextMatches {
		k = MinContextMatches
	}
	if k > MaxContextMatches {
		k = MaxContextMatches
	}
	return k
}

// Normalized returns a copy with all defaults resolved to concrete values,
// suitable for hashing and persistence.
func (c ReviewConfig) Normalized() ReviewConfig {
	rag := c.RAGEnabled()
	rlhf := c.SuppressionsEnabled()
	out := ReviewConfig{
		UseRAGContext:            &rag,
		ApplyLearnedSuppressions: &rlhf,
		SeverityThreshold:        c.EffectiveSeverity(),
		IncludeAutoFixPatches:    c.IncludeAutoFixPatches,
		Personas:                 c.Personas,
		MaxContextMatches:        c.ContextMatches(),
		Language:                 c.Language,
	}
	if out.Personas == nil {
		out.Personas = []string{}
	}
	return out
}

// Hash returns a stable hex digest of the normalized configuration.
// Identical effective configurations always hash identically.
func (c ReviewConfig) Hash() string {
	n := c.Normalized()
	// Map keys are sorted by encoding/json, giving a canonical form
	canonical := map[string]interface{}{
		"use_rag_context":            n.RAGEnabled(),
		"apply_learned_suppressions": n.SuppressionsEnabled(),
		"severity_threshold":         string(n.SeverityThreshold),
		"include_auto_fix_patches":   n.IncludeAutoFixPatches,
		"personas":                   n.Personas,
		"max_context_matches":        n.MaxContextMatches,
		"language":                   n.Language,
	}
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ReviewFingerprint returns the idempotency key for a review execution.
// Tasks with identical fingerprints must not produce duplicate review artifacts.
func ReviewFingerprint(repoID, headSHA, configHash string) string {
	sum := sha256.Sum256([]byte(repoID + "|" + headSHA + "|" + configHash))
	return hex.EncodeToString(sum[:])
}

// LineRange addresses a span of lines in a file
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ReviewComment is a single finding produced by the review pipeline
type ReviewComment struct {
	ID              string      `json:"id"`
	FilePath        string      `json:"file_path"`
	LineRange       LineRange   `json:"line_range"`
	Type            CommentType `json:"type"`
	Severity        Severity    `json:"severity"`
	Message         string      `json:"message"`
	Suggestion      string      `json:"suggestion,omitempty"`
	ConfidenceScore float64     `json:"confidence_score"`
	FixPatch        string      `json:"fix_patch,omitempty"`
	Citations       []string    `json:"citations,omitempty"`
}

// CommentList is a custom type for storing review comments in SQLite
type CommentList []ReviewComment

// Value implements driver.Valuer interface
func (l CommentList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (l *CommentList) Scan(value interface{}) error {
	if value == nil {
		*l = CommentList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, l)
}

// ReviewStats aggregates execution counters for a finished review
type ReviewStats struct {
	SeverityCounts         CountMap `gorm:"type:text" json:"severity_counts"`
	ExecutionTimeMs        int64    `json:"execution_time_ms"`
	RAGContextUsed         bool     `json:"rag_context_used"`
	RAGMatches             int      `json:"rag_matches"`
	RLHFConstraintsApplied int      `json:"rlhf_constraints_applied"`
	TokensUsed             int64    `json:"tokens_used"`
}

// ReviewResponse is the published result of a review task
type ReviewResponse struct {
	ReviewID string          `json:"review_id"`
	Summary  string          `json:"summary"`
	Comments []ReviewComment `json:"comments"`
	Stats    ReviewStats     `json:"stats"`
}

// ReviewStatus represents the status of a review
type ReviewStatus string

const (
	ReviewStatusPending   ReviewStatus = "pending"
	ReviewStatusRunning   ReviewStatus = "running"
	ReviewStatusCompleted ReviewStatus = "completed"
	ReviewStatusFailed    ReviewStatus = "failed"
)

// Review represents a persisted code review
type Review struct {
	ID        string         `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Repository and change identification
	RepoID   string `gorm:"size:255;not null;index" json:"repo_id"`
	PRNumber int    `gorm:"index" json:"pr_number"`
	Platform string `gorm:"size:50;not null" json:"platform"`
	BaseSHA  string `gorm:"size:64" json:"base_sha"`
	HeadSHA  string `gorm:"size:64;index" json:"head_sha"`
	Author   string `gorm:"size:255" json:"author,omitempty"`
	Title    string `gorm:"size:512" json:"title,omitempty"`
	Source   Source `gorm:"size:20;not null;default:webhook" json:"source"`

	// Fingerprint deduplicates re-executions of the same change under the
	// same effective configuration
	Fingerprint string `gorm:"size:64;uniqueIndex" json:"fingerprint"`
	ConfigHash  string `gorm:"size:64" json:"config_hash"`

	// Task linkage
	TaskID  string `gorm:"size:36;index" json:"task_id"`
	TraceID string `gorm:"size:36" json:"trace_id"`

	// Status and results
	Status   ReviewStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	Summary  string       `gorm:"type:text" json:"summary,omitempty"`
	Comments CommentList  `gorm:"type:text" json:"comments,omitempty"`
	Stats    ReviewStats  `gorm:"embedded;embeddedPrefix:stats_" json:"stats"`

	// Timing
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`

	// Error handling
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
}

// ToResponse converts the persisted review into its wire form
func (r *Review) ToResponse() *ReviewResponse {
	return &ReviewResponse{
		ReviewID: r.ID,
		Summary:  r.Summary,
		Comments: r.Comments,
		Stats:    r.Stats,
	}
}

// AllModels returns all models for auto-migration
func AllModels() []interface{} {
	return []interface{}{
		&Review{},
		&ReviewTask{},
		&KnowledgeChunk{},
		&LearnedConstraint{},
		&FeedbackRecord{},
		&IndexJob{},
		&Repository{},
	}
}
