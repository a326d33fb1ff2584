package middleware

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/shrek82/jmap/core"
	"github.com/shrek82/jmap/logger"
	"xorkevin.dev/kerrors"
)

// SlowLogMiddleware reports calls that run for at least Threshold as one WARN
// entry each, carrying the bound SQL and arguments, the procedure name for
// procedure calls, rows affected, whether a cache answered and the error.
//
// With LogPath set, or after SetOutput, entries are JSON lines on a dedicated
// writer. Otherwise they go to the call's logger and keep the fields earlier
// middleware attached, such as call_id from Tracing.
type SlowLogMiddleware struct {
	Threshold time.Duration
	LogPath   string

	out  logger.Logger
	file *os.File
}

// NewSlowLog reports calls slower than threshold to logPath, or to the DB
// logger when logPath is empty. A zero threshold reports every call.
func NewSlowLog(threshold time.Duration, logPath string) *SlowLogMiddleware {
	return &SlowLogMiddleware{
		Threshold: threshold,
		LogPath:   logPath,
	}
}

// SetOutput writes entries to w, taking precedence over LogPath.
func (m *SlowLogMiddleware) SetOutput(w io.Writer) {
	m.out = slowLogger(w)
}

func slowLogger(w io.Writer) logger.Logger {
	l := logger.NewStdLogger()
	l.SetLevel(logger.LogLevelWarn)
	l.SetFormat(logger.LogFormatJSON)
	l.SetOutput(w)
	return l
}

func (m *SlowLogMiddleware) Name() string {
	return "SlowLog"
}

func (m *SlowLogMiddleware) Init(db *core.DB) error {
	if m.out != nil || m.LogPath == "" {
		return nil
	}
	f, err := os.OpenFile(m.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return kerrors.WithMsg(err, "Failed to open slow log "+m.LogPath)
	}
	m.file = f
	m.out = slowLogger(f)
	return nil
}

func (m *SlowLogMiddleware) Shutdown() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

func (m *SlowLogMiddleware) Process(ctx context.Context, call *core.Call, next core.CallFunc) (*core.Result, error) {
	start := time.Now()
	res, err := next(ctx, call)
	elapsed := time.Since(start)
	if elapsed < m.Threshold {
		return res, err
	}

	fields := map[string]any{
		"op":         string(call.Op),
		"sql":        call.SQL,
		"args":       call.Args,
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if call.Kind == core.CommandProcedure {
		fields["procedure"] = call.Command
	}
	if res != nil {
		fields["rows"] = res.RowsAffected
		fields["cached"] = res.Cached
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	l := m.out
	if l == nil {
		l = call.Logger
	}
	l.WithFields(fields).Warn("slow %s call took %v", call.Op, elapsed)
	return res, err
}
