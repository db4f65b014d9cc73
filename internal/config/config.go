// Package config provides configuration management for the application.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reviewhub/reviewhub/consts"
	"github.com/reviewhub/reviewhub/pkg/logger"
	"github.com/reviewhub/reviewhub/pkg/telemetry"
)

// Default configuration values
const (
	defaultDatabasePath     = "./data/reviewhub.db"
	defaultBrokerURL        = "memory://"
	defaultResultTTLHours   = 24
	defaultTaskHardLimit    = 300
	defaultConcurrency      = 4
	defaultTasksPerWorker   = 100
	defaultMaxRetries       = 3
	defaultRetryBackoff     = 60
	defaultRetryBackoffMax  = 600
	defaultRAGThreshold     = 0.75
	defaultRAGMatches       = 5
	defaultRLHFThreshold    = 0.8
	defaultCommentPacingMs  = 1500
	defaultWorkspace        = "./workspace"
	defaultChunkSize        = 2000
	defaultChunkOverlap     = 200
	defaultMaxFileSize      = 1 << 20 // 1 MiB
	defaultReindexHours     = 24
	defaultLLMTimeout       = 120
	defaultEmbeddingModel   = "text-embedding-3-small"
	defaultEmbeddingDim     = 1536
	defaultEmbeddingBatch   = 32
	defaultConstraintExpiry = 90
	defaultReviewRetention  = 365
	defaultKnowledgeDays    = 180
	defaultFailedTaskDays   = 30
	defaultProbeInterval    = 60
	defaultCallbackTimeout  = 10
	defaultCallbackRetries  = 3
	defaultOTLPEndpoint     = "localhost:4317"
	defaultPrometheusPort   = 9090
	defaultTokenExpiry      = 24
	defaultRememberDays     = 7
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Auth      AuthConfig       `yaml:"auth"`
	Broker    BrokerConfig     `yaml:"broker"`
	Worker    WorkerConfig     `yaml:"worker"`
	Platforms []PlatformConfig `yaml:"platforms"`
	LLM       LLMConfig        `yaml:"llm"`
	Review    ReviewConfig     `yaml:"review"`
	Indexing  IndexingConfig   `yaml:"indexing"`
	Learning  LearningConfig   `yaml:"learning"`
	Retention RetentionConfig  `yaml:"retention"`
	Callback  CallbackConfig   `yaml:"callback"`
	Health    HealthConfig     `yaml:"health"`
	Logging   logger.Config    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Debug       bool     `yaml:"debug"`
	CORSOrigins []string `yaml:"cors_origins"` // Allowed CORS origins whitelist
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database file path
}

// AuthConfig holds operator API authentication configuration
type AuthConfig struct {
	Username     string `yaml:"username"`      // Operator username
	PasswordHash string `yaml:"password_hash"` // Operator password (bcrypt hash)
	JWTSecret    string `yaml:"jwt_secret"`    // JWT signing secret key
	TokenExpiry  int    `yaml:"token_expiry"`  // Normal token expiry in hours (default: 24)
	RememberDays int    `yaml:"remember_days"` // Remember me token expiry in days (default: 7)
}

// BrokerConfig holds task broker configuration
type BrokerConfig struct {
	// URL selects the broker backend by scheme:
	// redis://host:port/db or memory:// (single-process, for development and tests)
	URL string `yaml:"url"`
	// ResultBackend is the result store URL; defaults to the broker URL
	ResultBackend string `yaml:"result_backend"`
	// ResultTTLHours is how long task results are retained (default: 24)
	ResultTTLHours int `yaml:"result_ttl_hours"`
}

// WorkerConfig holds task worker configuration
type WorkerConfig struct {
	Concurrency       int      `yaml:"concurrency"`          // Worker goroutines per process
	Queues            []string `yaml:"queues"`               // Queues consumed, empty means all
	TaskHardLimit     int      `yaml:"task_hard_limit"`      // Hard execution limit in seconds (default: 300)
	MaxTasksPerWorker int      `yaml:"max_tasks_per_worker"` // Worker recycles after this many tasks (default: 100)
	MaxRetries        int      `yaml:"max_retries"`          // Maximum retry attempts per task (default: 3)
	RetryBackoff      int      `yaml:"retry_backoff"`        // Initial retry delay in seconds (default: 60)
	RetryBackoffMax   int      `yaml:"retry_backoff_max"`    // Maximum retry delay in seconds (default: 600)
}

// HardTimeout returns the hard execution limit as a duration
func (c *WorkerConfig) HardTimeout() time.Duration {
	limit := c.TaskHardLimit
	if limit <= 0 {
		limit = defaultTaskHardLimit
	}
	return time.Duration(limit) * time.Second
}

// SoftTimeout returns the soft limit at which tasks should checkpoint,
// fixed at 80% of the hard limit.
func (c *WorkerConfig) SoftTimeout() time.Duration {
	return c.HardTimeout() * 8 / 10
}

// PlatformConfig holds individual Git platform settings
type PlatformConfig struct {
	Type               string `yaml:"type"`                 // github, gitea, gitlab
	URL                string `yaml:"url"`                  // for self-hosted instances (supports both http:// and https://)
	Token              string `yaml:"token"`                // access token for API calls
	WebhookSecret      string `yaml:"webhook_secret"`       // webhook secret for signature validation
	SkipVerification   bool   `yaml:"skip_verification"`    // accept webhooks without signature verification
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // skip SSL certificate verification (for self-signed certs)
}

// LLMConfig holds language model configuration
type LLMConfig struct {
	Provider  string          `yaml:"provider"` // openai, anthropic, mock
	Model     string          `yaml:"model"`
	BaseURL   string          `yaml:"base_url"`
	APIKey    string          `yaml:"api_key"`
	Timeout   int             `yaml:"timeout"` // seconds
	MaxTokens int             `yaml:"max_tokens"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig holds embedding model configuration
type EmbeddingConfig struct {
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// ResolveAPIKey returns the API key following the configured precedence:
// config value, then REVIEWHUB_LLM_API_KEY, then the provider's own variable.
func (c *LLMConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if v := os.Getenv("REVIEWHUB_LLM_API_KEY"); v != "" {
		return v
	}
	switch c.Provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// ReviewConfig holds server-side review pipeline tuning
type ReviewConfig struct {
	RAGThreshold    float64 `yaml:"rag_threshold"`     // Minimum cosine similarity for retrieved context (default: 0.75)
	RAGMatches      int     `yaml:"rag_matches"`       // Requested context matches, clamped to [3,10] (default: 5)
	RLHFThreshold   float64 `yaml:"rlhf_threshold"`    // Minimum embedding similarity for constraint retrieval (default: 0.8)
	CommentPacingMs int     `yaml:"comment_pacing_ms"` // Delay between posted comments in milliseconds (default: 1500)
	OutputLanguage  string  `yaml:"output_language"`   // Output language for review comments (ISO 639-1 code, e.g., en, zh-cn)
}

// CommentPacing returns the delay between posted comments as a duration
func (c *ReviewConfig) CommentPacing() time.Duration {
	ms := c.CommentPacingMs
	if ms <= 0 {
		ms = defaultCommentPacingMs
	}
	return time.Duration(ms) * time.Millisecond
}

// IndexingConfig holds repository indexing configuration
type IndexingConfig struct {
	Workspace            string   `yaml:"workspace"`              // Working directory for cloned repositories
	ChunkSize            int      `yaml:"chunk_size"`             // Chunk size in characters (default: 2000)
	ChunkOverlap         int      `yaml:"chunk_overlap"`          // Overlap between consecutive chunks (default: 200)
	MaxFileSize          int64    `yaml:"max_file_size"`          // Files larger than this are skipped, in bytes (default: 1 MiB)
	IgnoredSuffixes      []string `yaml:"ignored_suffixes"`       // File suffixes excluded from indexing
	ReindexIntervalHours int      `yaml:"reindex_interval_hours"` // Hours between scheduled re-index runs, 0 disables (default: 24)
}

// ReindexInterval returns the scheduled re-index spacing as a duration
func (c *IndexingConfig) ReindexInterval() time.Duration {
	return time.Duration(c.ReindexIntervalHours) * time.Hour
}

// LearningConfig holds constraint learning configuration
type LearningConfig struct {
	ConstraintExpiryDays int `yaml:"constraint_expiry_days"` // Constraints untouched this long are expired (default: 90)
}

// RetentionConfig holds data retention configuration
type RetentionConfig struct {
	ReviewDays     int `yaml:"review_days"`      // Review result retention (default: 365)
	KnowledgeDays  int `yaml:"knowledge_days"`   // Knowledge chunk retention (default: 180)
	FailedTaskDays int `yaml:"failed_task_days"` // Failed task record retention (default: 30)
}

// CallbackConfig holds completion callback delivery configuration
type CallbackConfig struct {
	Timeout    int `yaml:"timeout"`     // Delivery timeout in seconds (default: 10)
	MaxRetries int `yaml:"max_retries"` // Delivery retry attempts (default: 3)
}

// HealthConfig holds dependency health probing configuration
type HealthConfig struct {
	ProbeInterval int `yaml:"probe_interval"` // Seconds between dependency probes (default: 60)
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:  "0.0.0.0",
			Port:  8080,
			Debug: false,
			CORSOrigins: []string{
				"http://localhost:8080",
			},
		},
		Database: DatabaseConfig{
			Path: defaultDatabasePath,
		},
		Auth: AuthConfig{
			Username:     "admin",
			PasswordHash: "", // Should be set via config file or environment variable
			JWTSecret:    "", // Should be set via config file or environment variable
			TokenExpiry:  defaultTokenExpiry,
			RememberDays: defaultRememberDays,
		},
		Broker: BrokerConfig{
			URL:            defaultBrokerURL,
			ResultBackend:  "",
			ResultTTLHours: defaultResultTTLHours,
		},
		Worker: WorkerConfig{
			Concurrency:       defaultConcurrency,
			Queues:            []string{},
			TaskHardLimit:     defaultTaskHardLimit,
			MaxTasksPerWorker: defaultTasksPerWorker,
			MaxRetries:        defaultMaxRetries,
			RetryBackoff:      defaultRetryBackoff,
			RetryBackoffMax:   defaultRetryBackoffMax,
		},
		Platforms: []PlatformConfig{},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o",
			Timeout:   defaultLLMTimeout,
			MaxTokens: 4096,
			Embedding: EmbeddingConfig{
				Model:     defaultEmbeddingModel,
				Dimension: defaultEmbeddingDim,
				BatchSize: defaultEmbeddingBatch,
			},
		},
		Review: ReviewConfig{
			RAGThreshold:    defaultRAGThreshold,
			RAGMatches:      defaultRAGMatches,
			RLHFThreshold:   defaultRLHFThreshold,
			CommentPacingMs: defaultCommentPacingMs,
		},
		Indexing: IndexingConfig{
			Workspace:    defaultWorkspace,
			ChunkSize:    defaultChunkSize,
			ChunkOverlap: defaultChunkOverlap,
			MaxFileSize:  defaultMaxFileSize,
			IgnoredSuffixes: []string{
				".png", ".jpg", ".jpeg", ".gif", ".ico", ".svg",
				".zip", ".tar", ".gz", ".jar", ".pdf",
				".min.js", ".min.css", ".lock", ".sum",
			},
			ReindexIntervalHours: defaultReindexHours,
		},
		Learning: LearningConfig{
			ConstraintExpiryDays: defaultConstraintExpiry,
		},
		Retention: RetentionConfig{
			ReviewDays:     defaultReviewRetention,
			KnowledgeDays:  defaultKnowledgeDays,
			FailedTaskDays: defaultFailedTaskDays,
		},
		Callback: CallbackConfig{
			Timeout:    defaultCallbackTimeout,
			MaxRetries: defaultCallbackRetries,
		},
		Health: HealthConfig{
			ProbeInterval: defaultProbeInterval,
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "text", // Default to human-readable text format instead of JSON
			File:       "",
			MaxSize:    100, // Max 100MB per log file
			MaxAge:     7,   // Retain logs for 7 days
			MaxBackups: 5,   // Keep 5 backup files
			Compress:   false,
		},
		Telemetry: telemetry.Config{
			Enabled:     false,
			ServiceName: consts.ServiceName,
			OTLP: telemetry.OTLPConfig{
				Enabled:  false,
				Endpoint: defaultOTLPEndpoint,
				Insecure: true,
			},
			Prometheus: telemetry.PrometheusConfig{
				Enabled: false,
				Port:    defaultPrometheusPort,
			},
		},
	}
}

// Load loads configuration from a YAML file with environment variable expansion
func Load(path string) (*Config, error) {
	cfg := Default()

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables in the configuration
	expanded := expandEnvVars(string(data))

	// Parse YAML
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values
// Only matches ${VAR_NAME} format (not $VAR_NAME) to avoid conflicts with special characters like bcrypt hashes
func expandEnvVars(content string) string {
	// Match ${VAR_NAME} patterns only (not $VAR_NAME to avoid bcrypt hash conflicts)
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := match[2 : len(match)-1]

		// Support default values: ${VAR_NAME:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]

		if value := os.Getenv(varName); value != "" {
			return value
		}

		// Return default value if provided
		if len(parts) > 1 {
			return parts[1]
		}

		return ""
	})
}

// Address returns the server address string
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// GetPlatform returns platform configuration by type
func (c *Config) GetPlatform(platformType string) *PlatformConfig {
	for i := range c.Platforms {
		if c.Platforms[i].Type == platformType {
			return &c.Platforms[i]
		}
	}
	return nil
}
