package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitLogger_ValidLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if err := InitLogger(tt.level); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := GetLogger().GetLevel(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	if err := InitLogger("loud"); err == nil {
		t.Error("expected error for invalid log level, got nil")
	}
}

func TestGetLogger_BeforeInit(t *testing.T) {
	initialized = false
	if got := GetLogger().GetLevel(); got != zerolog.Disabled {
		t.Errorf("uninitialized logger level = %v, want disabled", got)
	}
}

func TestInitLoggerTo_Writes(t *testing.T) {
	var buf bytes.Buffer
	if err := InitLoggerTo(&buf, "info"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log := GetLogger()
	log.Debug().Msg("hidden")
	log.Info().Str("unit", "#main").Msg("compiled")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message written at info level: %q", out)
	}
	if !strings.Contains(out, "compiled") || !strings.Contains(out, "unit=#main") {
		t.Errorf("info message missing: %q", out)
	}
}
