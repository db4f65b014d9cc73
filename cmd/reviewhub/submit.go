package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/platform"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

// runSubmit queues a review for a PR URL from the command line. It
// talks to the broker directly, so with a memory:// broker the task is
// only executed by a separately running serve process if both share a
// redis backend.
func runSubmit(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Keep CLI output readable; diagnostics still go to the log file
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "text"
	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ref, err := newPRParser(cfg).Parse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot parse PR URL: %v\n", err)
		os.Exit(1)
	}

	rt, err := buildRuntime(cfg, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize runtime: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	adapter, ok := rt.adapters[ref.Platform]
	if !ok {
		fmt.Fprintf(os.Stderr, "Platform not configured: %s\n", ref.Platform)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	meta, err := adapter.ResolvePR(ctx, ref.RepoID, ref.Number)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve PR: %v\n", err)
		os.Exit(1)
	}
	meta.Source = model.SourceCLI
	meta.CallbackURL, _ = cmd.Flags().GetString("callback-url")

	payload, err := model.EncodePayload(&model.ReviewTaskPayload{
		Meta:  *meta,
		Event: string(platform.EventPullRequest),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode task payload: %v\n", err)
		os.Exit(1)
	}

	task := &model.ReviewTask{
		Type:    model.TaskTypeCodeReview,
		RepoID:  meta.RepoID,
		Payload: payload,
	}
	if err := rt.disp.Dispatch(ctx, task); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enqueue review: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Review queued for %s #%d\n", meta.RepoID, meta.PRNumber)
	fmt.Printf("  Task ID:  %s\n", task.TaskID)
	fmt.Printf("  Trace ID: %s\n", task.TraceID)
	fmt.Printf("  Track:    GET /tasks/%s\n", task.TaskID)
}
