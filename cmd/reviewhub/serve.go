package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/consts"
	"github.com/reviewhub/reviewhub/internal/api/router"
	"github.com/reviewhub/reviewhub/internal/check"
	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/platform/prurl"
	"github.com/reviewhub/reviewhub/internal/server"
	"github.com/reviewhub/reviewhub/pkg/idgen"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

// runServe starts the HTTP server, worker pool and scheduler
func runServe(cmd *cobra.Command, args []string) {
	// Check if interactive check is enabled via --check flag
	interactiveCheck, _ := cmd.Flags().GetBool("check")

	if interactiveCheck {
		checker := check.NewChecker()
		if err := checker.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Environment check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\n✓ Environment check completed successfully")
	} else {
		checker := check.NewChecker()
		result := checker.RunNonInteractive()

		if !result.Success {
			check.PrintCheckResult(result)
			os.Exit(1)
		}

		// Print warnings but don't block startup
		for _, warn := range result.Warnings {
			fmt.Fprintf(os.Stderr, "[WARNING] %s\n", warn)
		}
	}

	// Record server start time
	consts.SetStartedAt(time.Now())

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override config with command line flags
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	}

	// Auto-generate JWT secret if empty and persist it for restarts
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		newSecret := idgen.NewSecureSecret(32)
		cfg.Auth.JWTSecret = newSecret

		path := configPath
		if path == "" {
			path = config.ConfigPath
		}
		if err := config.UpdateJWTSecretInConfig(path, newSecret); err != nil {
			fmt.Fprintf(os.Stderr, "[WARNING] Failed to save JWT secret to config file: %v\n", err)
			fmt.Fprintf(os.Stderr, "Using auto-generated JWT secret for this session only.\n\n")
		} else {
			fmt.Fprintf(os.Stderr, "[INFO] JWT secret was empty, auto-generated and saved to config file.\n\n")
		}
	}

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting ReviewHub",
		zap.String("version", Version),
	)

	rt, err := buildRuntime(cfg, true)
	if err != nil {
		logger.Fatal("Failed to initialize runtime", zap.Error(err))
	}
	defer rt.Close()

	srv := server.New(router.Deps{
		Config:     cfg,
		Store:      rt.store,
		Broker:     rt.queue,
		Dispatcher: rt.disp,
		Adapters:   rt.adapters,
		Monitor:    rt.monitor,
		Parser:     newPRParser(cfg),
	})
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	logger.Info("ReviewHub server is running",
		zap.String("address", cfg.Server.Address()),
		zap.String("broker", cfg.Broker.URL),
	)

	srv.WaitForShutdown()

	logger.Info("ReviewHub stopped")
}

// runWorker starts a standalone worker pool without the HTTP server
func runWorker(cmd *cobra.Command, args []string) {
	consts.SetStartedAt(time.Now())

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if concurrency, _ := cmd.Flags().GetInt("concurrency"); concurrency > 0 {
		cfg.Worker.Concurrency = concurrency
	}
	if queues, _ := cmd.Flags().GetStringSlice("queues"); len(queues) > 0 {
		cfg.Worker.Queues = queues
	}

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// A memory broker is process-local; a standalone worker would never
	// see tasks enqueued by the server.
	if strings.HasPrefix(cfg.Broker.URL, "memory://") {
		logger.Fatal("Standalone workers require a redis:// broker",
			zap.String("broker", cfg.Broker.URL),
		)
	}

	logger.Info("Starting ReviewHub worker",
		zap.String("version", Version),
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Strings("queues", cfg.Worker.Queues),
	)

	rt, err := buildRuntime(cfg, true)
	if err != nil {
		logger.Fatal("Failed to initialize runtime", zap.Error(err))
	}
	defer rt.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("ReviewHub worker stopped")
}

// newPRParser builds a PR URL parser aware of self-hosted platform hosts
func newPRParser(cfg *config.Config) *prurl.Parser {
	parser := prurl.NewParser()
	hosts := make([]struct{ Type, URL string }, 0, len(cfg.Platforms))
	for _, pc := range cfg.Platforms {
		hosts = append(hosts, struct{ Type, URL string }{pc.Type, pc.URL})
	}
	parser.RegisterHostsFromConfig(hosts)
	return parser
}
