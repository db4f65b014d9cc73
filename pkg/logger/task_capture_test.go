package logger

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newCaptureLogger() (*TaskCaptureHook, *zap.Logger) {
	core, _ := observer.New(zapcore.DebugLevel)
	hook := NewTaskCaptureHook()
	return hook, zap.New(hook.WrapCore(core))
}

func TestTaskCapture_CollectsTaggedLines(t *testing.T) {
	hook, log := newCaptureLogger()

	hook.Start("task-1")
	log.Info("cloning repository", zap.String(FieldTaskID, "task-1"), zap.String("repo_id", "octo/demo"))
	log.Warn("chunk skipped", zap.String(FieldTaskID, "task-1"))

	lines := hook.Finish("task-1")
	if len(lines) != 2 {
		t.Fatalf("captured %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "cloning repository") {
		t.Errorf("line[0] = %q, want clone message", lines[0])
	}
	if !strings.Contains(lines[0], "repo_id=octo/demo") {
		t.Errorf("line[0] = %q, want repo_id field", lines[0])
	}
	if !strings.Contains(lines[1], "WARN") {
		t.Errorf("line[1] = %q, want WARN level", lines[1])
	}
}

func TestTaskCapture_IgnoresUncapturedTasks(t *testing.T) {
	hook, log := newCaptureLogger()

	// No Start call for task-2
	log.Info("orphan entry", zap.String(FieldTaskID, "task-2"))

	if lines := hook.Finish("task-2"); len(lines) != 0 {
		t.Errorf("captured %d lines without Start, want 0", len(lines))
	}
}

func TestTaskCapture_IgnoresUntaggedEntries(t *testing.T) {
	hook, log := newCaptureLogger()

	hook.Start("task-3")
	log.Info("no task field here")

	if lines := hook.Finish("task-3"); len(lines) != 0 {
		t.Errorf("captured %d untagged lines, want 0", len(lines))
	}
}

func TestTaskCapture_FieldsFromWith(t *testing.T) {
	hook, log := newCaptureLogger()

	hook.Start("task-4")
	child := log.With(zap.String(FieldTaskID, "task-4"))
	child.Info("picked up")

	lines := hook.Finish("task-4")
	if len(lines) != 1 {
		t.Fatalf("captured %d lines via With(), want 1", len(lines))
	}
}

func TestTaskCapture_BoundsBuffer(t *testing.T) {
	hook, log := newCaptureLogger()

	hook.Start("task-5")
	for i := 0; i < maxCapturedLines+20; i++ {
		log.Info(fmt.Sprintf("line %d", i), zap.String(FieldTaskID, "task-5"))
	}

	lines := hook.Finish("task-5")
	if len(lines) != maxCapturedLines {
		t.Fatalf("captured %d lines, want cap %d", len(lines), maxCapturedLines)
	}
	// Oldest lines should have been evicted
	if !strings.Contains(lines[len(lines)-1], fmt.Sprintf("line %d", maxCapturedLines+19)) {
		t.Errorf("last line = %q, want newest entry", lines[len(lines)-1])
	}
}

func TestTaskCapture_FinishTwice(t *testing.T) {
	hook, log := newCaptureLogger()

	hook.Start("task-6")
	log.Info("once", zap.String(FieldTaskID, "task-6"))

	first := hook.Finish("task-6")
	second := hook.Finish("task-6")
	if len(first) != 1 {
		t.Errorf("first Finish() = %d lines, want 1", len(first))
	}
	if len(second) != 0 {
		t.Errorf("second Finish() = %d lines, want 0", len(second))
	}
}
