// Package config provides configuration management for the application.
// This file handles configuration file lifecycle and environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default path for the configuration file
const ConfigPath = "config/config.yaml"

// ConfigExists checks if the configuration file exists
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CreateDefault creates a default configuration file
func CreateDefault(path string) error {
	return WriteConfig(path, Default())
}

// WriteConfig writes configuration to file
func WriteConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Add header comment
	content := configHeader + string(data)

	// Write file with proper permissions
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// configHeader is the comment header for reviewhub.yaml
const configHeader = `# ReviewHub Configuration
#
# Environment Variable Support:
#   - Use ${VAR_NAME} or ${VAR_NAME:-default} syntax in values to reference
#     environment variables
#   - Or use REVIEWHUB_* prefix environment variables to override:
#     REVIEWHUB_SERVER_HOST, REVIEWHUB_SERVER_PORT, REVIEWHUB_SERVER_DEBUG
#     REVIEWHUB_DATABASE_PATH
#     REVIEWHUB_BROKER_URL, REVIEWHUB_RESULT_BACKEND
#     REVIEWHUB_AUTH_USERNAME, REVIEWHUB_AUTH_PASSWORD_HASH, REVIEWHUB_AUTH_JWT_SECRET
#     REVIEWHUB_LLM_PROVIDER, REVIEWHUB_LLM_MODEL, REVIEWHUB_LLM_BASE_URL, REVIEWHUB_LLM_API_KEY
#     REVIEWHUB_LOG_LEVEL, REVIEWHUB_LOG_FORMAT, REVIEWHUB_LOG_FILE
#

`

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if v := os.Getenv("REVIEWHUB_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("REVIEWHUB_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REVIEWHUB_SERVER_DEBUG"); v != "" {
		cfg.Server.Debug = parseBool(v)
	}

	// Database overrides
	if v := os.Getenv("REVIEWHUB_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Broker overrides
	if v := os.Getenv("REVIEWHUB_BROKER_URL"); v != "" {
		cfg.Broker.URL = v
	}
	if v := os.Getenv("REVIEWHUB_RESULT_BACKEND"); v != "" {
		cfg.Broker.ResultBackend = v
	}

	// Auth overrides
	if v := os.Getenv("REVIEWHUB_AUTH_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("REVIEWHUB_AUTH_PASSWORD_HASH"); v != "" {
		cfg.Auth.PasswordHash = v
	}
	if v := os.Getenv("REVIEWHUB_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	// LLM overrides (REVIEWHUB_LLM_API_KEY is handled by ResolveAPIKey)
	if v := os.Getenv("REVIEWHUB_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("REVIEWHUB_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("REVIEWHUB_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	// Logging overrides
	if v := os.Getenv("REVIEWHUB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REVIEWHUB_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("REVIEWHUB_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	// Telemetry overrides
	if v := os.Getenv("REVIEWHUB_TELEMETRY_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("REVIEWHUB_OTLP_ENABLED"); v != "" {
		cfg.Telemetry.OTLP.Enabled = parseBool(v)
	}
	if v := os.Getenv("REVIEWHUB_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLP.Endpoint = v
	}
	if v := os.Getenv("REVIEWHUB_PROMETHEUS_ENABLED"); v != "" {
		cfg.Telemetry.Prometheus.Enabled = parseBool(v)
	}
	if v := os.Getenv("REVIEWHUB_PROMETHEUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Telemetry.Prometheus.Port = port
		}
	}
}

// parseBool parses a boolean string value
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// UpdateJWTSecretInConfig updates the auth.jwt_secret field in the config file.
// It uses YAML parsing to safely update only the jwt_secret field while preserving all other fields.
func UpdateJWTSecretInConfig(configPath, jwtSecret string) error {
	// Read current config file
	content, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Backup current config before making changes
	backupPath := configPath + ".backup"
	if err := os.WriteFile(backupPath, content, 0644); err != nil {
		// Continue anyway, backup is optional
		fmt.Fprintf(os.Stderr, "[WARNING] Failed to create backup: %v\n", err)
	}

	// Parse YAML into a generic map to preserve all fields
	var cfg map[string]interface{}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// Get or create auth section
	authSection, ok := cfg["auth"].(map[string]interface{})
	if !ok {
		authSection = make(map[string]interface{})
		cfg["auth"] = authSection
	}

	// Update only the jwt_secret field, preserving all other fields
	authSection["jwt_secret"] = jwtSecret

	// Marshal back to YAML
	newContent, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Add header comment back
	finalContent := configHeader + string(newContent)

	// Write the updated config file
	if err := os.WriteFile(configPath, []byte(finalContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
