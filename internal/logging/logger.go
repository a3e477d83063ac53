package logging

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zzenonn/zraid/internal/config"
)

// InitLogger sets the level and format of the standard logger based on the
// provided configuration. LOG_LEVEL in the environment wins over the config.
func InitLogger(cfg *config.Config) {
	log.SetLevel(parseLevel(levelFor(cfg)))
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
}

// NewLogger returns a dedicated logger for a long-lived component, configured
// like the standard logger.
func NewLogger(cfg *config.Config) *log.Logger {
	logger := log.New()
	logger.SetLevel(parseLevel(levelFor(cfg)))
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}

func levelFor(cfg *config.Config) string {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		return env
	}
	if cfg == nil {
		return ""
	}
	return cfg.LogLevel
}

// parseLevel maps a level name to a logrus level. Unknown names fall back to
// error.
func parseLevel(logLevel string) log.Level {
	switch strings.ToLower(logLevel) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	default:
		return log.ErrorLevel
	}
}
