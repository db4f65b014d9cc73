package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestDefault tests the Default function
func TestDefault(t *testing.T) {
	cfg := Default()

	// Verify server defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %v, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %v, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Debug {
		t.Error("Server.Debug should be false by default")
	}

	// Verify database defaults
	if cfg.Database.Path != "./data/reviewhub.db" {
		t.Errorf("Database.Path = %v, want ./data/reviewhub.db", cfg.Database.Path)
	}

	// Verify broker defaults
	if cfg.Broker.URL != "memory://" {
		t.Errorf("Broker.URL = %v, want memory://", cfg.Broker.URL)
	}
	if cfg.Broker.ResultTTLHours != 24 {
		t.Errorf("Broker.ResultTTLHours = %v, want 24", cfg.Broker.ResultTTLHours)
	}

	// Verify worker defaults
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("Worker.Concurrency = %v, want 4", cfg.Worker.Concurrency)
	}
	if cfg.Worker.TaskHardLimit != 300 {
		t.Errorf("Worker.TaskHardLimit = %v, want 300", cfg.Worker.TaskHardLimit)
	}
	if cfg.Worker.MaxTasksPerWorker != 100 {
		t.Errorf("Worker.MaxTasksPerWorker = %v, want 100", cfg.Worker.MaxTasksPerWorker)
	}
	if cfg.Worker.MaxRetries != 3 {
		t.Errorf("Worker.MaxRetries = %v, want 3", cfg.Worker.MaxRetries)
	}
	if cfg.Worker.RetryBackoff != 60 {
		t.Errorf("Worker.RetryBackoff = %v, want 60", cfg.Worker.RetryBackoff)
	}
	if cfg.Worker.RetryBackoffMax != 600 {
		t.Errorf("Worker.RetryBackoffMax = %v, want 600", cfg.Worker.RetryBackoffMax)
	}

	// Verify review pipeline defaults
	if cfg.Review.RAGThreshold != 0.75 {
		t.Errorf("Review.RAGThreshold = %v, want 0.75", cfg.Review.RAGThreshold)
	}
	if cfg.Review.RAGMatches != 5 {
		t.Errorf("Review.RAGMatches = %v, want 5", cfg.Review.RAGMatches)
	}
	if cfg.Review.RLHFThreshold != 0.8 {
		t.Errorf("Review.RLHFThreshold = %v, want 0.8", cfg.Review.RLHFThreshold)
	}

	// Verify indexing defaults
	if cfg.Indexing.ChunkSize != 2000 {
		t.Errorf("Indexing.ChunkSize = %v, want 2000", cfg.Indexing.ChunkSize)
	}
	if cfg.Indexing.ChunkOverlap != 200 {
		t.Errorf("Indexing.ChunkOverlap = %v, want 200", cfg.Indexing.ChunkOverlap)
	}
	if cfg.Indexing.MaxFileSize != 1<<20 {
		t.Errorf("Indexing.MaxFileSize = %v, want %v", cfg.Indexing.MaxFileSize, 1<<20)
	}

	// Verify learning defaults
	if cfg.Learning.ConstraintExpiryDays != 90 {
		t.Errorf("Learning.ConstraintExpiryDays = %v, want 90", cfg.Learning.ConstraintExpiryDays)
	}

	// Verify health defaults
	if cfg.Health.ProbeInterval != 60 {
		t.Errorf("Health.ProbeInterval = %v, want 60", cfg.Health.ProbeInterval)
	}

	// Verify auth defaults
	if cfg.Auth.Username != "admin" {
		t.Errorf("Auth.Username = %v, want admin", cfg.Auth.Username)
	}
	if cfg.Auth.PasswordHash != "" {
		t.Error("Auth.PasswordHash should be empty by default")
	}
	if cfg.Auth.TokenExpiry != 24 {
		t.Errorf("Auth.TokenExpiry = %v, want 24", cfg.Auth.TokenExpiry)
	}

	// Verify logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %v, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %v, want text", cfg.Logging.Format)
	}

	// Verify telemetry defaults
	if cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled should be false by default")
	}
	if cfg.Telemetry.ServiceName != "reviewhub" {
		t.Errorf("Telemetry.ServiceName = %v, want reviewhub", cfg.Telemetry.ServiceName)
	}
}

// TestLoad tests loading configuration from file
func TestLoad(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "reviewhub.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  debug: true

database:
  path: "./test/db.sqlite"

broker:
  url: "redis://localhost:6379/0"

worker:
  concurrency: 8
  task_hard_limit: 120

platforms:
  - type: github
    webhook_secret: "hunter2"
  - type: gitea
    url: "https://git.example.com"
    token: "tok"
    webhook_secret: "s3cret"

llm:
  provider: anthropic
  model: claude-sonnet-4-20250514

logging:
  level: debug
  format: json
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	// Verify loaded values
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %v, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %v, want 9000", cfg.Server.Port)
	}
	if !cfg.Server.Debug {
		t.Error("Server.Debug should be true")
	}
	if cfg.Database.Path != "./test/db.sqlite" {
		t.Errorf("Database.Path = %v, want ./test/db.sqlite", cfg.Database.Path)
	}
	if cfg.Broker.URL != "redis://localhost:6379/0" {
		t.Errorf("Broker.URL = %v, want redis://localhost:6379/0", cfg.Broker.URL)
	}
	if cfg.Worker.Concurrency != 8 {
		t.Errorf("Worker.Concurrency = %v, want 8", cfg.Worker.Concurrency)
	}
	if cfg.Worker.TaskHardLimit != 120 {
		t.Errorf("Worker.TaskHardLimit = %v, want 120", cfg.Worker.TaskHardLimit)
	}
	if len(cfg.Platforms) != 2 {
		t.Fatalf("len(Platforms) = %d, want 2", len(cfg.Platforms))
	}
	if cfg.Platforms[1].URL != "https://git.example.com" {
		t.Errorf("Platforms[1].URL = %v, want https://git.example.com", cfg.Platforms[1].URL)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("LLM.Provider = %v, want anthropic", cfg.LLM.Provider)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}

	// Unset sections keep defaults
	if cfg.Review.RAGThreshold != 0.75 {
		t.Errorf("Review.RAGThreshold = %v, want default 0.75", cfg.Review.RAGThreshold)
	}
	if cfg.Worker.MaxTasksPerWorker != 100 {
		t.Errorf("Worker.MaxTasksPerWorker = %v, want default 100", cfg.Worker.MaxTasksPerWorker)
	}
}

// TestLoad_EnvVarExpansion tests environment variable expansion
func TestLoad_EnvVarExpansion(t *testing.T) {
	os.Setenv("TEST_DB_PATH", "/var/lib/reviewhub/test.db")
	defer os.Unsetenv("TEST_DB_PATH")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "reviewhub.yaml")

	configContent := `
database:
  path: ${TEST_DB_PATH}
broker:
  url: ${TEST_UNSET_BROKER:-memory://}
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Database.Path != "/var/lib/reviewhub/test.db" {
		t.Errorf("Database.Path = %v, want /var/lib/reviewhub/test.db", cfg.Database.Path)
	}
	if cfg.Broker.URL != "memory://" {
		t.Errorf("Broker.URL = %v, want memory:// (default expansion)", cfg.Broker.URL)
	}
}

// TestLoad_EnvVarOverrides tests environment variable overrides
func TestLoad_EnvVarOverrides(t *testing.T) {
	os.Setenv("REVIEWHUB_SERVER_HOST", "192.168.1.100")
	os.Setenv("REVIEWHUB_SERVER_PORT", "9999")
	os.Setenv("REVIEWHUB_SERVER_DEBUG", "true")
	os.Setenv("REVIEWHUB_DATABASE_PATH", "/override/path.db")
	os.Setenv("REVIEWHUB_BROKER_URL", "redis://cache:6379/1")
	os.Setenv("REVIEWHUB_LOG_LEVEL", "error")
	defer func() {
		os.Unsetenv("REVIEWHUB_SERVER_HOST")
		os.Unsetenv("REVIEWHUB_SERVER_PORT")
		os.Unsetenv("REVIEWHUB_SERVER_DEBUG")
		os.Unsetenv("REVIEWHUB_DATABASE_PATH")
		os.Unsetenv("REVIEWHUB_BROKER_URL")
		os.Unsetenv("REVIEWHUB_LOG_LEVEL")
	}()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "reviewhub.yaml")

	configContent := `
server:
  host: "0.0.0.0"
  port: 8080
  debug: false

database:
  path: "./default.db"

logging:
  level: info
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	// Verify environment variables override file values
	if cfg.Server.Host != "192.168.1.100" {
		t.Errorf("Server.Host = %v, want 192.168.1.100 (from env)", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %v, want 9999 (from env)", cfg.Server.Port)
	}
	if !cfg.Server.Debug {
		t.Error("Server.Debug should be true (from env)")
	}
	if cfg.Database.Path != "/override/path.db" {
		t.Errorf("Database.Path = %v, want /override/path.db (from env)", cfg.Database.Path)
	}
	if cfg.Broker.URL != "redis://cache:6379/1" {
		t.Errorf("Broker.URL = %v, want redis://cache:6379/1 (from env)", cfg.Broker.URL)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %v, want error (from env)", cfg.Logging.Level)
	}
}

// TestLoad_FileNotFound tests loading from non-existent file
func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/reviewhub.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file, got nil")
	}
}

// TestLoad_InvalidYAML tests loading invalid YAML
func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "reviewhub.yaml")

	configContent := `
server:
  host: [invalid
  port: not-a-number
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

// TestConfigExists tests the ConfigExists function
func TestConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "reviewhub.yaml")

	// File doesn't exist yet
	if ConfigExists(configPath) {
		t.Error("ConfigExists() should return false for non-existent file")
	}

	// Create the file
	if err := os.WriteFile(configPath, []byte("server:\n  port: 8080"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	// File should exist now
	if !ConfigExists(configPath) {
		t.Error("ConfigExists() should return true for existing file")
	}
}

// TestCreateDefault tests creating a default configuration file
func TestCreateDefault(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "reviewhub.yaml")

	if err := CreateDefault(configPath); err != nil {
		t.Fatalf("CreateDefault() error: %v", err)
	}

	if !ConfigExists(configPath) {
		t.Error("Config file should exist after creation")
	}

	// Load and verify content
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %v, want 8080 (default)", cfg.Server.Port)
	}
	if cfg.Broker.URL != "memory://" {
		t.Errorf("Broker.URL = %v, want memory:// (default)", cfg.Broker.URL)
	}
}

// TestWriteConfig tests writing configuration
func TestWriteConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "reviewhub.yaml")

	cfg := Default()
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 3000
	cfg.Database.Path = "/custom/path.db"

	if err := WriteConfig(configPath, cfg); err != nil {
		t.Fatalf("WriteConfig() error: %v", err)
	}

	// Reload and verify
	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if loaded.Server.Host != "localhost" {
		t.Errorf("Server.Host = %v, want localhost", loaded.Server.Host)
	}
	if loaded.Server.Port != 3000 {
		t.Errorf("Server.Port = %v, want 3000", loaded.Server.Port)
	}
	if loaded.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %v, want /custom/path.db", loaded.Database.Path)
	}
}

// TestParseBool tests the parseBool helper function
func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"true", true},
		{"TRUE", true},
		{"True", true},
		{"1", true},
		{"yes", true},
		{"YES", true},
		{"on", true},
		{"ON", true},
		{"false", false},
		{"FALSE", false},
		{"0", false},
		{"no", false},
		{"off", false},
		{"", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		result := parseBool(tt.input)
		if result != tt.expected {
			t.Errorf("parseBool(%q) = %v, want %v", tt.input, result, tt.expected)
		}
	}
}

// TestUpdateJWTSecretInConfig tests in-place JWT secret update
func TestUpdateJWTSecretInConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "reviewhub.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000

auth:
  username: operator
  jwt_secret: old-secret
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	newSecret := "new-secret-key-must-be-at-least-32-characters"
	if err := UpdateJWTSecretInConfig(configPath, newSecret); err != nil {
		t.Fatalf("UpdateJWTSecretInConfig() error: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Secret updated, other fields preserved
	if loaded.Auth.JWTSecret != newSecret {
		t.Errorf("Auth.JWTSecret = %v, want %v", loaded.Auth.JWTSecret, newSecret)
	}
	if loaded.Auth.Username != "operator" {
		t.Errorf("Auth.Username = %v, want operator (preserved)", loaded.Auth.Username)
	}
	if loaded.Server.Port != 9000 {
		t.Errorf("Server.Port = %v, want 9000 (preserved)", loaded.Server.Port)
	}

	// Header comment retained
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !strings.HasPrefix(string(data), "# ReviewHub Configuration") {
		t.Error("updated config should keep the header comment")
	}
}
