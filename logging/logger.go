package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/chordsync/pkg/paths"
	"github.com/grovetools/chordsync/util/pathutil"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	current  Config
	fileSink *fileHook
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	if fileSink == nil {
		fileSink = openFileSink(current)
	}

	logger := logrus.New()
	configure(logger, current, fileSink)

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// SetConfig applies cfg to every logger, including those already handed out.
// The CLI calls it once the logging section of chordsync.yml is decoded.
func SetConfig(cfg Config) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	current = cfg
	if fileSink != nil {
		fileSink.Close()
	}
	fileSink = openFileSink(cfg)

	for _, entry := range loggers {
		configure(entry.Logger, cfg, fileSink)
	}
}

// LogFilePath returns the file the file sink writes to, or "" when the
// sink is disabled.
func LogFilePath() string {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	return logFilePath(current)
}

// DefaultLogFilePath returns today's log file under the state directory.
func DefaultLogFilePath() string {
	dir := paths.LogDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("chordsync-%s.log", time.Now().Format("2006-01-02")))
}

func logFilePath(cfg Config) string {
	if cfg.File.Disabled {
		return ""
	}
	if cfg.File.Path != "" {
		return pathutil.Expand(cfg.File.Path)
	}
	return DefaultLogFilePath()
}

func configure(logger *logrus.Logger, cfg Config, sink *fileHook) {
	levelStr := "info"
	if env := os.Getenv("CHORDSYNC_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if cfg.Level != "" {
		levelStr = cfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetReportCaller(os.Getenv("CHORDSYNC_LOG_CALLER") == "true" || cfg.ReportCaller)
	logger.SetFormatter(formatterFor(cfg.Format.Preset, cfg.Format))

	logger.ReplaceHooks(make(logrus.LevelHooks))
	if sink != nil {
		logger.AddHook(sink)
	}

	if logToStderr(cfg, level) {
		logger.SetOutput(stderr)
	} else {
		logger.SetOutput(io.Discard)
	}
}

func formatterFor(preset string, format FormatConfig) logrus.Formatter {
	switch preset {
	case "json":
		return &logrus.JSONFormatter{}
	case "simple":
		return &TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}}
	default:
		return &TextFormatter{Config: format}
	}
}

// logToStderr reports whether structured logs go to stderr. In "auto" mode
// they only do when debugging or when stderr is not a terminal.
func logToStderr(cfg Config, level logrus.Level) bool {
	switch strings.ToLower(cfg.Format.StructuredToStderr) {
	case "always":
		return true
	case "never":
		return false
	default:
		isDebug := os.Getenv("CHORDSYNC_DEBUG") == "1" || level >= logrus.DebugLevel
		isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		return isDebug || !isInteractive
	}
}

// fileHook writes every entry to the log file with its own formatter, so
// the file can be JSON while stderr stays human readable.
type fileHook struct {
	mu        sync.Mutex
	file      *os.File
	formatter logrus.Formatter
}

func openFileSink(cfg Config) *fileHook {
	path := logFilePath(cfg)
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil
	}

	var formatter logrus.Formatter = &TextFormatter{}
	if cfg.File.Format == "json" {
		formatter = &logrus.JSONFormatter{}
	}
	return &fileHook{file: file, formatter: formatter}
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	_, err = h.file.Write(line)
	return err
}

func (h *fileHook) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file != nil {
		h.file.Close()
		h.file = nil
	}
}
