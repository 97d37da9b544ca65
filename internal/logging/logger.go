// Package logging provides the run's structured logger and its console.
// Log lines and streamed answer text both go through one Console, which
// mirrors everything printed to the terminal into the run's console log.
package logging

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a subsystem; it becomes the zap logger name.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config
	CategoryFleet    Category = "fleet"    // Worker loops
	CategoryChat     Category = "chat"     // Question/answer exchanges
	CategoryResolver Category = "resolver" // Input discovery
	CategoryCapture  Category = "capture"  // Network/WebSocket capture
	CategoryBrowser  Category = "browser"  // Browser automation, DOM events
	CategoryArtifact Category = "artifact" // Output promotion
	CategoryShutdown Category = "shutdown" // Teardown
	CategoryLedger   Category = "ledger"   // Exchange ledger
	CategoryMetrics  Category = "metrics"  // Prometheus endpoint
)

// Named returns l scoped to a category.
func Named(l *zap.Logger, c Category) *zap.Logger {
	return l.Named(string(c))
}

// ParseLevel maps a config level name to a zap level. Unknown names are info.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// NewLogger builds a logger writing to sink. The console format is
// "[15:04:05] [INFO] fleet: message {fields}"; jsonFormat switches to one
// JSON object per line.
func NewLogger(sink zapcore.WriteSyncer, level string, jsonFormat bool) (*zap.Logger, error) {
	if sink == nil {
		return nil, fmt.Errorf("logging: nil sink")
	}

	var enc zapcore.Encoder
	if jsonFormat {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		enc = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:          "ts",
			LevelKey:         "level",
			NameKey:          "logger",
			MessageKey:       "msg",
			StacktraceKey:    "stacktrace",
			LineEnding:       zapcore.DefaultLineEnding,
			EncodeTime:       bracketTime,
			EncodeLevel:      bracketLevel,
			EncodeName:       colonName,
			EncodeDuration:   zapcore.StringDurationEncoder,
			ConsoleSeparator: " ",
		})
	}

	core := zapcore.NewCore(enc, sink, ParseLevel(level))
	return zap.New(core, zap.AddStacktrace(zapcore.DPanicLevel)), nil
}

func bracketTime(t time.Time, e zapcore.PrimitiveArrayEncoder) {
	e.AppendString("[" + t.Format("15:04:05") + "]")
}

func bracketLevel(l zapcore.Level, e zapcore.PrimitiveArrayEncoder) {
	e.AppendString("[" + l.CapitalString() + "]")
}

func colonName(name string, e zapcore.PrimitiveArrayEncoder) {
	e.AppendString(name + ":")
}
