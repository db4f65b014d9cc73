package logger

import (
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// reset clears the global logger so each test initializes fresh
func reset() {
	globalLogger = nil
	once = sync.Once{}
}

func TestInit(t *testing.T) {
	reset()

	cfg := Config{Level: "info", Format: "json"}
	if err := Init(cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// Init is idempotent
	if err := Init(cfg); err != nil {
		t.Errorf("Init() second call error = %v", err)
	}
}

func TestInit_TextFormat(t *testing.T) {
	reset()

	if err := Init(Config{Level: "debug", Format: "text"}); err != nil {
		t.Fatalf("Init() with text format error = %v", err)
	}
}

func TestInit_InvalidLevelDefaultsToInfo(t *testing.T) {
	reset()

	if err := Init(Config{Level: "shouty", Format: "json"}); err != nil {
		t.Fatalf("Init() with unknown level error = %v", err)
	}
}

func TestInit_WithFile(t *testing.T) {
	reset()

	cfg := Config{
		Level:      "info",
		Format:     "json",
		File:       filepath.Join(t.TempDir(), "reviewhub.log"),
		MaxSize:    10,
		MaxAge:     7,
		MaxBackups: 5,
	}
	if err := Init(cfg); err != nil {
		t.Fatalf("Init() with file error = %v", err)
	}
	Info("written to file", zap.String("key", "value"))
}

func TestInit_FileDefaults(t *testing.T) {
	reset()

	// MaxSize, MaxAge, MaxBackups unset use the built-in defaults
	cfg := Config{
		Level:  "info",
		Format: "json",
		File:   filepath.Join(t.TempDir(), "defaults.log"),
	}
	if err := Init(cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
}

func TestGet_BeforeInit(t *testing.T) {
	reset()

	// Get must never return nil, even before Init
	if Get() == nil {
		t.Fatal("Get() returned nil before Init")
	}

	Init(Config{Level: "info", Format: "json"})
	if Get() == nil {
		t.Fatal("Get() returned nil after Init")
	}
}

func TestDerivedLoggers(t *testing.T) {
	reset()
	Init(Config{Level: "info", Format: "json"})

	if Sugar() == nil {
		t.Error("Sugar() returned nil")
	}
	if With(zap.String("component", "test")) == nil {
		t.Error("With() returned nil")
	}
	if Named("subsystem") == nil {
		t.Error("Named() returned nil")
	}
}

func TestLogFunctions(t *testing.T) {
	reset()
	Init(Config{Level: "debug", Format: "json"})

	Debug("debug message", zap.String("key", "value"))
	Info("info message", zap.String("key", "value"))
	Warn("warn message", zap.String("key", "value"))
	Error("error message", zap.String("key", "value"))
}

func TestSync(t *testing.T) {
	reset()

	if err := Sync(); err != nil {
		t.Errorf("Sync() before Init error = %v", err)
	}

	Init(Config{Level: "info", Format: "json"})
	// Sync on stdout can fail in test environments; only require no panic
	_ = Sync()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level     string
		wantError bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"invalid", true},
		{"", false}, // empty defaults to info
	}

	for _, tt := range tests {
		if _, err := parseLevel(tt.level); (err != nil) != tt.wantError {
			t.Errorf("parseLevel(%q) error = %v, wantError = %v", tt.level, err, tt.wantError)
		}
	}
}

func TestTaskCapture(t *testing.T) {
	reset()
	Init(Config{Level: "debug", Format: "json"})
	EnableTaskCapture()

	StartTaskCapture("task-1")
	WithTask("task-1").Info("step one")
	WithTask("task-1").Warn("step two")

	lines := FinishTaskCapture("task-1")
	if len(lines) != 2 {
		t.Fatalf("captured %d lines, want 2", len(lines))
	}

	// Finishing again returns nothing
	if lines := FinishTaskCapture("task-1"); len(lines) != 0 {
		t.Errorf("second FinishTaskCapture returned %d lines", len(lines))
	}
}
