package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/zzenonn/zraid/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"trace", log.TraceLevel},
		{"DEBUG", log.DebugLevel},
		{"info", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"", log.ErrorLevel},
		{"bogus", log.ErrorLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	logger := NewLogger(&config.Config{LogLevel: "debug"})
	if logger.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}

	t.Setenv("LOG_LEVEL", "warn")
	logger = NewLogger(&config.Config{LogLevel: "debug"})
	if logger.GetLevel() != log.WarnLevel {
		t.Errorf("LOG_LEVEL should win, level = %v", logger.GetLevel())
	}
}
