package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ColorCode returns the ANSI color code for the log level
func (l LogLevel) ColorCode() string {
	switch l {
	case LogLevelDebug:
		return "\033[36m"
	case LogLevelInfo:
		return "\033[32m"
	case LogLevelWarn:
		return "\033[33m"
	case LogLevelError:
		return "\033[31m"
	case LogLevelFatal:
		return "\033[35m"
	default:
		return "\033[0m"
	}
}

// ParseLevel maps a configuration string to a LogLevel. Unknown values
// yield LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	case "fatal":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// LogFormat represents the log output format
type LogFormat int

const (
	LogFormatText LogFormat = iota
	LogFormatJSON
	LogFormatCompact
)

// ParseFormat maps "text", "json" or "compact" to a LogFormat.
func ParseFormat(s string) LogFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return LogFormatJSON
	case "compact":
		return LogFormatCompact
	default:
		return LogFormatText
	}
}

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level       LogLevel
	Format      LogFormat
	Output      io.Writer
	FilePath    string
	EnableColor bool
}

// DefaultLoggerConfig returns a default logger configuration. Log lines go
// to stderr so command output on stdout stays clean.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:       LogLevelInfo,
		Format:      LogFormatText,
		Output:      os.Stderr,
		EnableColor: true,
	}
}

// StdLogger is the Logger implementation backed by the standard log package.
type StdLogger struct {
	config *LoggerConfig
	mu     *sync.Mutex
	logger *log.Logger
	fields map[string]interface{}
	file   *os.File
}

// NewLogger creates a new logger with the given configuration
func NewLogger(config *LoggerConfig) (*StdLogger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}

	logger := &StdLogger{
		config: config,
		mu:     &sync.Mutex{},
		fields: make(map[string]interface{}),
	}

	if err := logger.setupOutput(); err != nil {
		return nil, fmt.Errorf("failed to setup logger output: %w", err)
	}

	return logger, nil
}

func (l *StdLogger) setupOutput() error {
	output := l.config.Output

	if l.config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(l.config.FilePath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(l.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		l.file = file
		output = io.MultiWriter(l.config.Output, file)
	}

	l.logger = log.New(output, "", 0)
	return nil
}

func (l *StdLogger) Debug(msg string, args ...interface{}) {
	if l.config.Level <= LogLevelDebug {
		l.log(LogLevelDebug, msg, args...)
	}
}

func (l *StdLogger) Info(msg string, args ...interface{}) {
	if l.config.Level <= LogLevelInfo {
		l.log(LogLevelInfo, msg, args...)
	}
}

func (l *StdLogger) Warn(msg string, args ...interface{}) {
	if l.config.Level <= LogLevelWarn {
		l.log(LogLevelWarn, msg, args...)
	}
}

func (l *StdLogger) Error(msg string, args ...interface{}) {
	if l.config.Level <= LogLevelError {
		l.log(LogLevelError, msg, args...)
	}
}

// Fatal logs a fatal message and exits
func (l *StdLogger) Fatal(msg string, args ...interface{}) {
	l.log(LogLevelFatal, msg, args...)
	os.Exit(1)
}

func (l *StdLogger) log(level LogLevel, msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	entry := l.createLogEntry(level, msg, time.Now())

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Print(entry)
}

func (l *StdLogger) createLogEntry(level LogLevel, msg string, now time.Time) string {
	switch l.config.Format {
	case LogFormatJSON:
		return l.createJSONEntry(level, msg, now)
	case LogFormatCompact:
		return l.colorize(level, fmt.Sprintf("%c %s %s", level.String()[0], now.Format("15:04:05"), msg))
	default:
		return l.createTextEntry(level, msg, now)
	}
}

func (l *StdLogger) sortedFieldKeys() []string {
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l *StdLogger) createTextEntry(level LogLevel, msg string, now time.Time) string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("[%s] %s", now.Format("2006-01-02 15:04:05"), level.String()))

	if len(l.fields) > 0 {
		builder.WriteString(" {")
		for i, k := range l.sortedFieldKeys() {
			if i > 0 {
				builder.WriteString(", ")
			}
			builder.WriteString(fmt.Sprintf("%s=%v", k, l.fields[k]))
		}
		builder.WriteString("}")
	}

	builder.WriteString(" ")
	builder.WriteString(msg)

	return l.colorize(level, builder.String())
}

func (l *StdLogger) colorize(level LogLevel, s string) string {
	if !l.config.EnableColor {
		return s
	}
	return level.ColorCode() + s + "\033[0m"
}

func (l *StdLogger) createJSONEntry(level LogLevel, msg string, now time.Time) string {
	entry := make(map[string]interface{}, len(l.fields)+3)
	for k, v := range l.fields {
		entry[k] = v
	}
	entry["timestamp"] = now.Format(time.RFC3339)
	entry["level"] = level.String()
	entry["message"] = msg

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":%q,"message":%q}`, level.String(), msg)
	}
	return string(data)
}

func (l *StdLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger with additional fields
func (l *StdLogger) WithFields(fields map[string]interface{}) Logger {
	child := &StdLogger{
		config: l.config,
		mu:     l.mu,
		logger: l.logger,
		fields: make(map[string]interface{}, len(l.fields)+len(fields)),
		file:   l.file,
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

// Close closes the logger and any open files
func (l *StdLogger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

var globalLogger Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(config *LoggerConfig) error {
	logger, err := NewLogger(config)
	if err != nil {
		return err
	}
	if err := CloseGlobalLogger(); err != nil {
		logger.Warn("failed to close previous log file: %v", err)
	}
	globalLogger = logger
	return nil
}

// CloseGlobalLogger releases the log file of the global logger, if any.
func CloseGlobalLogger() error {
	if l, ok := globalLogger.(*StdLogger); ok {
		return l.Close()
	}
	return nil
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() Logger {
	if globalLogger == nil {
		logger, _ := NewLogger(DefaultLoggerConfig())
		globalLogger = logger
	}
	return globalLogger
}

func Debug(msg string, args ...interface{}) {
	GetGlobalLogger().Debug(msg, args...)
}

func Info(msg string, args ...interface{}) {
	GetGlobalLogger().Info(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	GetGlobalLogger().Warn(msg, args...)
}

func Error(msg string, args ...interface{}) {
	GetGlobalLogger().Error(msg, args...)
}

func Fatal(msg string, args ...interface{}) {
	GetGlobalLogger().Fatal(msg, args...)
}
