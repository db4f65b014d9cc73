// Package logger provides structured logging capabilities for the application.
package logger

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	// FieldTaskID is the field key that routes log entries into task capture
	FieldTaskID = "task_id"

	// maxCapturedLines bounds the per-task buffer; older lines are dropped
	maxCapturedLines = 50
)

// TaskCaptureHook buffers log lines for tasks currently under capture.
// Workers start capture when they pick a task up and collect the buffered
// tail on failure so the result backend can expose it as a traceback.
type TaskCaptureHook struct {
	mu    sync.Mutex
	lines map[string][]string
}

// NewTaskCaptureHook creates an empty capture hook.
func NewTaskCaptureHook() *TaskCaptureHook {
	return &TaskCaptureHook{
		lines: make(map[string][]string),
	}
}

// Start begins buffering entries for the task ID.
func (h *TaskCaptureHook) Start(taskID string) {
	if taskID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.lines[taskID]; !ok {
		h.lines[taskID] = make([]string, 0, 8)
	}
}

// Finish stops buffering for the task ID and returns the captured lines.
func (h *TaskCaptureHook) Finish(taskID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	lines := h.lines[taskID]
	delete(h.lines, taskID)
	return lines
}

// append records a line for a task that is under capture. Entries for tasks
// without an active capture window are ignored so memory stays bounded.
func (h *TaskCaptureHook) append(taskID, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf, ok := h.lines[taskID]
	if !ok {
		return
	}
	if len(buf) >= maxCapturedLines {
		copy(buf, buf[1:])
		buf = buf[:len(buf)-1]
	}
	h.lines[taskID] = append(buf, line)
}

// taskCaptureCore wraps a zapcore.Core to intercept task-tagged entries.
type taskCaptureCore struct {
	zapcore.Core
	hook   *TaskCaptureHook
	fields []zapcore.Field
}

// WrapCore wraps a zapcore.Core with the capture hook.
func (h *TaskCaptureHook) WrapCore(core zapcore.Core) zapcore.Core {
	return &taskCaptureCore{
		Core:   core,
		hook:   h,
		fields: nil,
	}
}

// With creates a new Core with additional fields.
func (c *taskCaptureCore) With(fields []zapcore.Field) zapcore.Core {
	// Merge fields
	newFields := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	newFields = append(newFields, c.fields...)
	newFields = append(newFields, fields...)

	return &taskCaptureCore{
		Core:   c.Core.With(fields),
		hook:   c.hook,
		fields: newFields,
	}
}

// Check determines whether the supplied Entry should be logged.
func (c *taskCaptureCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

// Write intercepts log writes to capture task-tagged entries.
func (c *taskCaptureCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	// First, write to the underlying core
	if err := c.Core.Write(entry, fields); err != nil {
		return err
	}

	// Combine with context fields
	allFields := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	allFields = append(allFields, c.fields...)
	allFields = append(allFields, fields...)

	taskID := extractTaskID(allFields)
	if taskID == "" {
		return nil
	}

	c.hook.append(taskID, formatCaptureLine(entry, allFields))
	return nil
}

// Sync flushes the underlying core.
func (c *taskCaptureCore) Sync() error {
	return c.Core.Sync()
}

// extractTaskID finds the task_id field value, if present.
func extractTaskID(fields []zapcore.Field) string {
	for _, field := range fields {
		if field.Key == FieldTaskID && field.Type == zapcore.StringType {
			return field.String
		}
	}
	return ""
}

// formatCaptureLine renders an entry as a single traceback-friendly line.
func formatCaptureLine(entry zapcore.Entry, fields []zapcore.Field) string {
	line := entry.Time.Format(time.RFC3339) + " " + entry.Level.CapitalString() + " " + entry.Message
	for _, field := range fields {
		if field.Key == FieldTaskID {
			continue
		}
		line += " " + field.Key + "=" + fieldValueString(field)
	}
	return line
}

// fieldValueString converts a zap field value to its string form.
func fieldValueString(field zapcore.Field) string {
	switch field.Type {
	case zapcore.StringType:
		return field.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
		return fmt.Sprint(field.Integer)
	case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprint(uint64(field.Integer))
	case zapcore.BoolType:
		return fmt.Sprint(field.Integer == 1)
	case zapcore.DurationType:
		return time.Duration(field.Integer).String()
	case zapcore.TimeType, zapcore.TimeFullType:
		if t, ok := field.Interface.(time.Time); ok {
			return t.Format(time.RFC3339)
		}
		return time.Unix(0, field.Integer).Format(time.RFC3339)
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok && err != nil {
			return err.Error()
		}
		return "<nil>"
	default:
		if field.Interface != nil {
			return fmt.Sprint(field.Interface)
		}
		return ""
	}
}
