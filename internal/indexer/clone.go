package indexer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/reviewhub/reviewhub/internal/model"
)

// cloneTimeout bounds a single git clone so a stuck remote cannot hold a
// worker slot past the task deadline
const cloneTimeout = 5 * time.Minute

// maskToken masks a token for logs and error messages
func maskToken(token string) string {
	if token == "" {
		return "(empty)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// credentialHelper writes a temporary GIT_ASKPASS script that answers
// git's password prompt with the access token, keeping the token out of
// the clone URL and the process list.
func credentialHelper(token string) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "git-askpass-*.sh")
	if err != nil {
		return "", nil, fmt.Errorf("creating credential helper: %w", err)
	}

	var script string
	if runtime.GOOS == "windows" {
		script = fmt.Sprintf("@echo off\necho %s\n", token)
	} else {
		script = fmt.Sprintf("#!/bin/sh\necho \"%s\"\n", token)
	}

	if _, err := tmpFile.WriteString(script); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("writing credential helper: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("closing credential helper: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpFile.Name(), 0700); err != nil {
			os.Remove(tmpFile.Name())
			return "", nil, fmt.Errorf("marking credential helper executable: %w", err)
		}
	}

	cleanup := func() { os.Remove(tmpFile.Name()) }
	return tmpFile.Name(), cleanup, nil
}

// cloneRepository clones the repository into a fresh directory under
// workspace and returns the checkout path with a cleanup function. The
// cleanup always removes the checkout, including on failure paths.
func cloneRepository(ctx context.Context, workspace string, req *model.IndexRequest) (string, func(), error) {
	if err := os.MkdirAll(workspace, 0750); err != nil {
		return "", nil, fmt.Errorf("creating workspace: %w", err)
	}
	dir, err := os.MkdirTemp(workspace, "index-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating checkout dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	args := []string{"clone", "--quiet", "--single-branch"}
	if req.IndexDepth != model.IndexDepthFull {
		args = append(args, "--depth", "1")
	}
	if req.Branch != "" {
		args = append(args, "--branch", req.Branch)
	}
	args = append(args, req.GitURL, dir)

	timeoutCtx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, "git", args...)
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_LFS_SKIP_SMUDGE=1",
	)

	if req.AccessToken != "" {
		helper, helperCleanup, err := credentialHelper(req.AccessToken)
		if err != nil {
			cleanup()
			return "", nil, err
		}
		defer helperCleanup()
		cmd.Env = append(cmd.Env, "GIT_ASKPASS="+helper)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("git clone failed for %s (token %s): %w (stderr: %s)",
			req.GitURL, maskToken(req.AccessToken), err, sanitizeGitOutput(stderr.String(), req.AccessToken))
	}

	return dir, cleanup, nil
}

// sanitizeGitOutput strips the access token from git output before it can
// reach logs or error messages
func sanitizeGitOutput(out, token string) string {
	out = strings.TrimSpace(out)
	if token != "" {
		out = strings.ReplaceAll(out, token, maskToken(token))
	}
	return out
}
