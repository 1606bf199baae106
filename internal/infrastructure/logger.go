package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mdbundle/internal/config"
)

// process logger state; guarded by loggerMu
var (
	loggerMu      sync.Mutex
	processLogger *slog.Logger
	logFile       *os.File
)

type runKey struct{}

// runInfo is what every log record of a run is tagged with
type runInfo struct {
	traceID string
	bundle  string
}

// InitializeLogger builds the process logger from cfg, installs it as the slog
// default and returns it. A later call replaces the logger and closes the log
// file opened by the previous one.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	logger, file, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return nil, err
	}

	loggerMu.Lock()
	prev := logFile
	processLogger, logFile = logger, file
	loggerMu.Unlock()

	if prev != nil {
		prev.Close()
	}
	slog.SetDefault(logger)
	return logger, nil
}

// GetLogger returns the process logger, or the slog default before
// InitializeLogger has run.
func GetLogger() *slog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if processLogger == nil {
		return slog.Default()
	}
	return processLogger
}

// NewLogger builds a JSON logger writing to console, to cfg.FilePath, or to
// both. The log file, if any, is owned by the caller through the logger's
// lifetime and is not registered for CloseLogFile.
func NewLogger(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, error) {
	logger, _, err := newLogger(cfg, console)
	return logger, err
}

func newLogger(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, *os.File, error) {
	var (
		writers []io.Writer
		file    *os.File
	)

	output := strings.ToLower(cfg.Output)
	if output == "file" || output == "both" {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	if output != "file" {
		writers = append([]io.Writer{console}, writers...)
	}

	var w io.Writer = writers[0]
	if len(writers) > 1 {
		w = io.MultiWriter(writers...)
	}

	level := parseLogLevel(cfg.Level)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: level == slog.LevelDebug,
		Level:     level,
	})
	return slog.New(&runHandler{Handler: handler}), file, nil
}

// runHandler tags records with the trace_id and bundle of the run in ctx
type runHandler struct {
	slog.Handler
}

func (h *runHandler) Handle(ctx context.Context, r slog.Record) error {
	if info, ok := runFrom(ctx); ok {
		if info.traceID != "" {
			r.AddAttrs(slog.String("trace_id", info.traceID))
		}
		if info.bundle != "" {
			r.AddAttrs(slog.String("bundle", info.bundle))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *runHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &runHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *runHandler) WithGroup(name string) slog.Handler {
	return &runHandler{Handler: h.Handler.WithGroup(name)}
}

// parseLogLevel maps a configured level name onto slog; unknown names are info
func parseLogLevel(level string) slog.Level {
	name := strings.ToLower(level)
	if name == "warning" {
		name = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// WithRun tags ctx with a run's trace id and bundle name
func WithRun(ctx context.Context, traceID, bundle string) context.Context {
	return context.WithValue(ctx, runKey{}, runInfo{traceID: traceID, bundle: bundle})
}

// WithTraceID tags ctx with a trace id, keeping any bundle name already set
func WithTraceID(ctx context.Context, traceID string) context.Context {
	info, _ := runFrom(ctx)
	return WithRun(ctx, traceID, info.bundle)
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) string {
	info, _ := runFrom(ctx)
	return info.traceID
}

func runFrom(ctx context.Context) (runInfo, bool) {
	if ctx == nil {
		return runInfo{}, false
	}
	info, ok := ctx.Value(runKey{}).(runInfo)
	return info, ok
}

// CloseLogFile closes the log file opened by InitializeLogger, if any
func CloseLogFile() error {
	loggerMu.Lock()
	f := logFile
	logFile = nil
	loggerMu.Unlock()

	if f == nil {
		return nil
	}
	return f.Close()
}

// ResetLoggerForTesting drops the process logger and closes its file
func ResetLoggerForTesting() {
	CloseLogFile()
	loggerMu.Lock()
	processLogger = nil
	loggerMu.Unlock()
}

// openLogFile opens or creates a log file in append mode
func openLogFile(filePath string) (*os.File, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}
	return file, nil
}
