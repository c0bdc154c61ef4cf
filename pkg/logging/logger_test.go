package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}

	if cfg.Pretty != false {
		t.Error("Expected default pretty to be false")
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		testMsg  string
		contains string
	}{
		{
			name:     "info_level",
			level:    LevelInfo,
			testMsg:  "refresh complete",
			contains: "refresh complete",
		},
		{
			name:     "debug_level",
			level:    LevelDebug,
			testMsg:  "cache hit",
			contains: "cache hit",
		},
		{
			name:     "warn_level",
			level:    LevelWarn,
			testMsg:  "page retry",
			contains: "page retry",
		},
		{
			name:     "error_level",
			level:    LevelError,
			testMsg:  "collection aborted",
			contains: "collection aborted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{
				Level:  tt.level,
				Pretty: false,
				Output: buf,
			})

			// Test that logger writes to the configured output
			switch tt.level {
			case LevelDebug:
				logger.Debug().Msg(tt.testMsg)
			case LevelInfo:
				logger.Info().Msg(tt.testMsg)
			case LevelWarn:
				logger.Warn().Msg(tt.testMsg)
			case LevelError:
				logger.Error().Msg(tt.testMsg)
			}

			output := buf.String()
			if !strings.Contains(output, tt.contains) {
				t.Errorf("Expected output to contain %q, got %q", tt.contains, output)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel}, // accepted alias
		{LevelError, zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel}, // Should default to Info
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: buf,
	})

	logger := NewLogger("collector")
	logger.Info().Msg("collection run complete")

	output := buf.String()
	if !strings.Contains(output, "collector") {
		t.Errorf("Expected output to contain component 'collector', got %q", output)
	}
	if !strings.Contains(output, "collection run complete") {
		t.Errorf("Expected output to contain message, got %q", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{
		Level:  LevelWarn,
		Pretty: false,
		Output: buf,
	})

	logger := NewLogger("scheduler")

	// These should NOT appear (below warn level)
	logger.Debug().Msg("tick evaluated")
	logger.Info().Msg("job complete")

	// These SHOULD appear (warn level and above)
	logger.Warn().Msg("trigger dropped")
	logger.Error().Msg("job failed")

	output := buf.String()

	if strings.Contains(output, "tick evaluated") {
		t.Error("Debug message should be filtered out at Warn level")
	}
	if strings.Contains(output, "job complete") {
		t.Error("Info message should be filtered out at Warn level")
	}
	if !strings.Contains(output, "trigger dropped") {
		t.Error("Warn message should be included at Warn level")
	}
	if !strings.Contains(output, "job failed") {
		t.Error("Error message should be included at Warn level")
	}
}
