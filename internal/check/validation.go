package check

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/llm"
	"github.com/reviewhub/reviewhub/internal/platform"

	// Register platform adapters and LLM clients for validation
	_ "github.com/reviewhub/reviewhub/internal/llm/anthropic"
	_ "github.com/reviewhub/reviewhub/internal/llm/mock"
	_ "github.com/reviewhub/reviewhub/internal/llm/openai"
	_ "github.com/reviewhub/reviewhub/internal/platform/gitea"
	_ "github.com/reviewhub/reviewhub/internal/platform/github"
	_ "github.com/reviewhub/reviewhub/internal/platform/gitlab"
)

// ValidationResult represents the result of a config validation
type ValidationResult struct {
	Name     string
	Valid    bool
	Detail   string // e.g. "2 platforms"
	Error    error
	Warnings []string
}

// validateConfigs validates the configuration file and its content
func (c *Checker) validateConfigs() error {
	cfg, fileResult := c.validateConfigYaml()
	c.report.AddValidationResult(fileResult)
	printValidationResult(fileResult)

	if !fileResult.Valid {
		return fmt.Errorf("config.yaml validation failed: %w", fileResult.Error)
	}

	for _, result := range []ValidationResult{
		validateBroker(cfg),
		validatePlatforms(cfg),
		validateLLM(cfg),
		validateAuth(cfg),
	} {
		c.report.AddValidationResult(result)
		printValidationResult(result)
		if !result.Valid {
			return fmt.Errorf("%s validation failed: %w", result.Name, result.Error)
		}
	}

	return nil
}

// validateConfigsNonInteractive validates configuration for RunNonInteractive
func (c *Checker) validateConfigsNonInteractive(result *CheckResult) {
	cfg, fileResult := c.validateConfigYaml()
	if !fileResult.Valid {
		result.Success = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("Invalid config.yaml: %v", fileResult.Error))
		return
	}

	for _, vr := range []ValidationResult{
		validateBroker(cfg),
		validatePlatforms(cfg),
		validateLLM(cfg),
		validateAuth(cfg),
	} {
		if !vr.Valid {
			result.Success = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("Invalid %s: %v", vr.Name, vr.Error))
		}
		result.Warnings = append(result.Warnings, vr.Warnings...)
	}
}

// validateConfigYaml validates the main configuration file
func (c *Checker) validateConfigYaml() (*config.Config, ValidationResult) {
	path := c.ConfigPath()
	result := ValidationResult{Name: path}

	if !fileExists(path) {
		result.Valid = false
		result.Error = fmt.Errorf("file does not exist")
		return nil, result
	}

	cfg, err := config.Load(path)
	if err != nil {
		result.Valid = false
		result.Error = fmt.Errorf("format error: %v", err)
		return nil, result
	}

	result.Valid = true
	return cfg, result
}

// validateBroker checks that the broker URL names a supported backend
func validateBroker(cfg *config.Config) ValidationResult {
	result := ValidationResult{Name: "broker"}

	url := cfg.Broker.URL
	switch {
	case url == "":
		result.Valid = false
		result.Error = fmt.Errorf("broker.url is empty")
	case strings.HasPrefix(url, "memory://"):
		result.Valid = true
		result.Detail = "memory"
		result.Warnings = append(result.Warnings,
			"memory:// broker is single-process; queued tasks are lost on restart")
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		result.Valid = true
		result.Detail = "redis"
	default:
		result.Valid = false
		result.Error = fmt.Errorf("unsupported broker URL %q (expected redis:// or memory://)", url)
	}

	return result
}

// validatePlatforms checks every configured platform entry
func validatePlatforms(cfg *config.Config) ValidationResult {
	result := ValidationResult{Name: "platforms", Valid: true}

	if len(cfg.Platforms) == 0 {
		result.Warnings = append(result.Warnings,
			"No platforms configured; webhooks will be rejected")
		return result
	}

	for _, pc := range cfg.Platforms {
		if _, ok := platform.Registry[pc.Type]; !ok {
			result.Valid = false
			result.Error = fmt.Errorf("unknown platform type %q", pc.Type)
			return result
		}
		if pc.Token == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Platform %s has no token; API calls will fail", pc.Type))
		}
		if pc.WebhookSecret == "" && !pc.SkipVerification {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Platform %s has no webhook secret; signatures cannot be verified", pc.Type))
		}
	}

	result.Detail = fmt.Sprintf("%d platforms", len(cfg.Platforms))
	return result
}

// validateLLM checks that the configured LLM provider is usable
func validateLLM(cfg *config.Config) ValidationResult {
	result := ValidationResult{Name: "llm"}

	clientConfig := llm.NewClientConfig(cfg.LLM.Provider)
	clientConfig.APIKey = cfg.LLM.ResolveAPIKey()
	clientConfig.DefaultModel = cfg.LLM.Model

	client, err := llm.Create(cfg.LLM.Provider, clientConfig)
	if err != nil {
		result.Valid = false
		result.Error = fmt.Errorf("provider %q not usable: %v", cfg.LLM.Provider, err)
		return result
	}

	result.Valid = true
	result.Detail = cfg.LLM.Provider
	if !client.Available() {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("LLM provider %s has no API key; reviews cannot run", cfg.LLM.Provider))
	}
	if cfg.LLM.Provider == "mock" {
		result.Warnings = append(result.Warnings,
			"LLM provider is mock; reviews will return canned responses")
	}

	return result
}

// validateAuth surfaces missing operator credentials as warnings. The
// server starts without them; only the operator API is unavailable.
func validateAuth(cfg *config.Config) ValidationResult {
	result := ValidationResult{Name: "auth", Valid: true}

	if cfg.Auth.PasswordHash == "" {
		result.Warnings = append(result.Warnings,
			"Operator password not set; the operator API will reject logins")
	}
	if cfg.Auth.JWTSecret == "" {
		result.Warnings = append(result.Warnings,
			"JWT secret not set; generate one with 'reviewhub secret'")
	}

	return result
}

// printValidationResult prints the validation result
func printValidationResult(result ValidationResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	if result.Valid {
		if result.Detail != "" {
			green.Printf("  ✓ %s (%s)\n", result.Name, result.Detail)
		} else {
			green.Printf("  ✓ %s\n", result.Name)
		}
	} else if result.Error != nil {
		red.Printf("  ✗ %s: %v\n", result.Name, result.Error)
	} else {
		yellow.Printf("  ⚠ %s\n", result.Name)
	}

	for _, warning := range result.Warnings {
		yellow.Printf("    └─ %s\n", warning)
	}
}
