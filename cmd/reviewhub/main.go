// Package main is the entry point for the ReviewHub service.
// ReviewHub is a multi-tenant code review automation service that turns
// pull request events into LLM-backed reviews.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/reviewhub/reviewhub/consts"
	"github.com/reviewhub/reviewhub/internal/check"
	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/pkg/idgen"
)

// Build information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// init synchronizes build info to consts package for global access
func init() {
	consts.Version = Version
	consts.BuildTime = BuildTime
	consts.GitCommit = GitCommit
}

// configPath holds the path to the configuration file
var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "reviewhub",
	Short: "ReviewHub - AI-Powered Code Review Automation Service",
	Long: `ReviewHub receives pull request webhooks from GitHub, Gitea and GitLab,
queues them through a durable task broker, and posts LLM-generated review
comments back to the platform. Reviews are grounded in an indexed copy of
the repository and filtered by constraints learned from developer feedback.`,
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ReviewHub server with embedded workers",
	Long: `Start the HTTP server, worker pool and scheduler in one process.

On first run, use --check to interactively set up your environment:
  reviewhub serve --check

After initial setup, simply run:
  reviewhub serve`,
	Run: runServe,
}

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a standalone worker process",
	Long: `Start a worker pool that consumes tasks without serving HTTP.
Requires a redis:// broker so that server and workers share one queue.`,
	Run: runWorker,
}

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit <pr-url>",
	Short: "Queue a review for a pull request URL",
	Args:  cobra.ExactArgs(1),
	Run:   runSubmit,
}

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Interactively check and initialize the environment",
	Run: func(cmd *cobra.Command, args []string) {
		checker := check.NewChecker()
		if err := checker.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Environment check failed: %v\n", err)
			os.Exit(1)
		}
	},
}

// secretCmd generates a random secret suitable for auth.jwt_secret
var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random secret for auth.jwt_secret",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(idgen.NewSecureSecret(32))
	},
}

// hashPasswordCmd generates a bcrypt hash for auth.password_hash
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Generate a bcrypt hash for the operator password",
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		err := huh.NewInput().
			Title("Operator password").
			EchoMode(huh.EchoModePassword).
			Value(&password).
			Run()
		if err != nil {
			return err
		}
		if password == "" {
			return fmt.Errorf("password must not be empty")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Println(string(hash))
		return nil
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", consts.ProjectName, Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	},
}

func init() {
	// Disable auto-generated completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		fmt.Sprintf("config file path (default: %s)", config.ConfigPath))

	// Add commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(versionCmd)

	// Serve command flags
	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	serveCmd.Flags().Bool("debug", false, "enable debug mode")
	serveCmd.Flags().Bool("check", false, "run interactive environment check before starting")

	// Worker command flags
	workerCmd.Flags().Int("concurrency", 0, "worker slots (overrides config)")
	workerCmd.Flags().StringSlice("queues", nil, "queues to consume (overrides config)")

	// Submit command flags
	submitCmd.Flags().String("callback-url", "", "POST the review outcome to this URL when done")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration from the --config flag or default path
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.ConfigPath
	}
	if !config.ConfigExists(path) {
		return nil, fmt.Errorf("configuration not found: %s\nRun 'reviewhub check' to create it", path)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
