package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "explicit debug level", config: &Config{Level: LevelDebug, Output: &bytes.Buffer{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.config)
			if logger == nil {
				t.Fatal("New() returned nil")
			}
		})
	}
}

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should be suppressed")
	logger.Info("should also be suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below configured level, got: %s", buf.String())
	}

	logger.Warn("now this should show")
	if !strings.Contains(buf.String(), "now this should show") {
		t.Errorf("expected warn message in output, got: %s", buf.String())
	}
}

func TestLevelNoneSuppressesEverything(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelNone, Output: &buf})

	logger.Fault("fault")
	logger.Error("error")
	logger.Trace("trace")
	if buf.Len() != 0 {
		t.Fatalf("LevelNone should suppress all output, got: %s", buf.String())
	}
}

func TestFormatArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelTrace, Output: &buf})

	logger.Info("handshake", "fsn", 3, "mfs", 40)
	output := buf.String()
	if !strings.Contains(output, "fsn=3") || !strings.Contains(output, "mfs=40") {
		t.Errorf("expected key=value pairs in output, got: %s", output)
	}
}

func TestSetLevelAndSetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelTrace)
	defer SetLevel(LevelInfo)

	Debug("global debug message")
	if !strings.Contains(buf.String(), "global debug message") {
		t.Errorf("expected global debug message, got: %s", buf.String())
	}
}

func TestLevelString(t *testing.T) {
	if LevelTrace.String() != "TRACE" {
		t.Errorf("expected TRACE, got %s", LevelTrace.String())
	}
	if Level(99).String() != "UNKNOWN" {
		t.Errorf("expected UNKNOWN for out-of-range level")
	}
}
