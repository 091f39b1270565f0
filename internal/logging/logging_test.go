package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "default", cfg: Config{Level: "INFO"}},
		{name: "debug", cfg: Config{Level: "DEBUG"}},
		{name: "structured json", cfg: Config{Level: "INFO", Structured: true, StructuredFormat: "json"}},
		{name: "structured text", cfg: Config{Level: "INFO", Structured: true, StructuredFormat: "keyvalue"}},
		{name: "extra fields", cfg: Config{Level: "INFO", ExtraFields: map[string]string{"service": "test"}}},
		{name: "with pid", cfg: Config{Level: "INFO", IncludePID: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := Configure(tt.cfg)
			require.NotNil(t, logger)
			assert.Equal(t, logger, slog.Default())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}
