package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
)

// LogLevel defines the severity of the log
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// ParseLevel maps a level name to a LogLevel. Unknown names yield LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "off", "none":
		return LogLevelSilent
	case "error":
		return LogLevelError
	case "warn", "warning":
		return LogLevelWarn
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

// LogFormat defines the output format of the log
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Logger is the interface for logging SQL and internal messages
type Logger interface {
	SetLevel(level LogLevel)
	SetFormat(format LogFormat)
	SetOutput(w io.Writer)
	// SetLevelOutput sends messages of exactly one level to w instead of the
	// default output.
	SetLevelOutput(level LogLevel, w io.Writer)
	WithFields(fields map[string]any) Logger
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	SQL(sql string, duration time.Duration, args ...any)
}

type sink struct {
	mu     sync.Mutex
	level  LogLevel
	format LogFormat
	writer io.Writer
	byLvl  map[LogLevel]io.Writer
}

// stdLogger is the default implementation of Logger. Loggers derived with
// WithFields share their parent's sink.
type stdLogger struct {
	sink   *sink
	fields map[string]any
}

// NewStdLogger creates a new standard logger writing text to stdout
func NewStdLogger() Logger {
	return &stdLogger{
		sink: &sink{
			level:  LogLevelInfo,
			format: LogFormatText,
			writer: os.Stdout,
			byLvl:  make(map[LogLevel]io.Writer),
		},
		fields: make(map[string]any),
	}
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	l := NewStdLogger()
	l.SetLevel(LogLevelSilent)
	l.SetOutput(io.Discard)
	return l
}

func (l *stdLogger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	l.sink.level = level
	l.sink.mu.Unlock()
}

func (l *stdLogger) SetFormat(format LogFormat) {
	l.sink.mu.Lock()
	l.sink.format = format
	l.sink.mu.Unlock()
}

func (l *stdLogger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	l.sink.writer = w
	l.sink.mu.Unlock()
}

func (l *stdLogger) SetLevelOutput(level LogLevel, w io.Writer) {
	l.sink.mu.Lock()
	l.sink.byLvl[level] = w
	l.sink.mu.Unlock()
}

func (l *stdLogger) WithFields(fields map[string]any) Logger {
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &stdLogger{sink: l.sink, fields: merged}
}

func (l *stdLogger) Debug(format string, args ...any) {
	l.logf(LogLevelDebug, "DEBUG", format, args...)
}

func (l *stdLogger) Info(format string, args ...any) {
	l.logf(LogLevelInfo, "INFO", format, args...)
}

func (l *stdLogger) Warn(format string, args ...any) {
	l.logf(LogLevelWarn, "WARN", format, args...)
}

func (l *stdLogger) Error(format string, args ...any) {
	l.logf(LogLevelError, "ERROR", format, args...)
}

func (l *stdLogger) SQL(sql string, duration time.Duration, args ...any) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.level < LogLevelInfo {
		return
	}
	w := l.writerFor(LogLevelInfo)
	if w == nil {
		return
	}
	if l.sink.format == LogFormatJSON {
		l.writeJSON(w, "SQL", map[string]any{
			"sql":      sql,
			"duration": duration.String(),
			"args":     args,
		})
		return
	}
	msg := fmt.Sprintf("%s[%v] %s | args: %v%s", sqlColor(sql), duration, sql, args, ansiReset)
	l.writeText(w, "SQL", msg)
}

func (l *stdLogger) logf(level LogLevel, name string, format string, args ...any) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.level < level {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	w := l.writerFor(level)
	if w == nil {
		return
	}
	if l.sink.format == LogFormatJSON {
		l.writeJSON(w, name, map[string]any{"msg": msg})
		return
	}
	l.writeText(w, name, msg)
}

// writerFor must be called with the sink lock held. A nil writer drops the
// message.
func (l *stdLogger) writerFor(level LogLevel) io.Writer {
	if w, ok := l.sink.byLvl[level]; ok && w != nil {
		return w
	}
	return l.sink.writer
}

func (l *stdLogger) writeJSON(w io.Writer, level string, extra map[string]any) {
	data := make(map[string]any, len(l.fields)+len(extra)+2)
	for k, v := range l.fields {
		data[k] = v
	}
	for k, v := range extra {
		data[k] = v
	}
	data["time"] = time.Now().Format(time.RFC3339)
	data["level"] = level
	_ = json.NewEncoder(w).Encode(data)
}

func (l *stdLogger) writeText(w io.Writer, level string, msg string) {
	fieldStr := ""
	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteString(" fields:")
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, l.fields[k])
		}
		fieldStr = sb.String()
	}
	fmt.Fprintf(w, "[JMAP] %s %s: %s%s\n", time.Now().Format("2006-01-02 15:04:05"), level, msg, fieldStr)
}

func sqlColor(sqlStr string) string {
	s := strings.TrimSpace(strings.ToUpper(sqlStr))
	switch {
	case strings.HasPrefix(s, "SELECT"), strings.HasPrefix(s, "WITH"):
		return ansiYellow
	case strings.HasPrefix(s, "INSERT"), strings.HasPrefix(s, "UPDATE"), strings.HasPrefix(s, "COPY"), strings.HasPrefix(s, "LOAD"):
		return ansiGreen
	case strings.HasPrefix(s, "DELETE"):
		return ansiRed
	case strings.HasPrefix(s, "EXEC"), strings.HasPrefix(s, "CALL"):
		return ansiBlue
	default:
		return ansiCyan
	}
}
