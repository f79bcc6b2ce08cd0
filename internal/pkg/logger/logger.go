package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"tradecompass-core/internal/config"
)

type Logger struct {
	entry *logrus.Entry
}

type Fields map[string]interface{}

func New(cfg config.LogConfig) (*Logger, error) {
	base := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	base.SetLevel(level)

	switch cfg.Format {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	base.SetOutput(resolveOutput(cfg))

	return &Logger{entry: logrus.NewEntry(base)}, nil
}

func resolveOutput(cfg config.LogConfig) io.Writer {
	switch cfg.Output {
	case "stderr":
		return os.Stderr
	case "file":
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	default:
		return os.Stdout
	}
}

func (log *Logger) WithFields(fields Fields) *Logger {
	return &Logger{entry: log.entry.WithFields(logrus.Fields(fields))}
}

func (log *Logger) WithError(err error) *Logger {
	return &Logger{entry: log.entry.WithError(err)}
}

func (log *Logger) Debug(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (log *Logger) Info(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(toFields(keysAndValues)).Info(msg)
}

func (log *Logger) Warn(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(toFields(keysAndValues)).Warn(msg)
}

func (log *Logger) Error(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(toFields(keysAndValues)).Error(msg)
}

// LogService records the outcome of one service operation with its duration.
func (log *Logger) LogService(service, operation string, duration time.Duration, fields map[string]interface{}, err error) {
	entry := log.entry.WithFields(logrus.Fields{
		"service":     service,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})

	if fields != nil {
		entry = entry.WithFields(logrus.Fields(fields))
	}

	if err != nil {
		entry.WithError(err).Warn("service operation failed")
		return
	}

	entry.Debug("service operation completed")
}

// LogWorkflow records a workflow lifecycle event for one session.
func (log *Logger) LogWorkflow(sessionID, ownerID, event string, duration time.Duration, err error) {
	entry := log.entry.WithFields(logrus.Fields{
		"session_id":  sessionID,
		"owner_id":    ownerID,
		"event":       event,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("workflow event failed")
		return
	}

	entry.Info("workflow event")
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
