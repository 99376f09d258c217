// Package monitoring holds the harness's logging streams.
//
// There are three streams. Ops carries lifecycle events and actionable
// warnings, Diag carries per-interaction diagnostics, and Trace carries the
// per-object detail of the scribble robot. Each stream is a zap logger over
// its own writer; a nil writer disables the stream.
package monitoring

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	mu          sync.RWMutex
	opsLogger   *zap.SugaredLogger
	diagLogger  *zap.SugaredLogger
	traceLogger *zap.SugaredLogger
)

func init() {
	SetLogWriters(LogWriters{Ops: os.Stderr})
}

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger("ops", w.Ops)
	diagLogger = newLogger("diag", w.Diag)
	traceLogger = newLogger("trace", w.Trace)
}

// newLogger builds a console-encoded zap logger for w, or nil if w is nil.
func newLogger(name string, w io.Writer) *zap.SugaredLogger {
	if w == nil {
		return nil
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), zapcore.DebugLevel)
	return zap.New(core).Named(name).Sugar()
}

// Opsf logs to the ops stream (lifecycle events, warnings, errors).
func Opsf(format string, args ...interface{}) {
	mu.RLock()
	l := opsLogger
	mu.RUnlock()
	if l != nil {
		l.Infof(format, args...)
	}
}

// Diagf logs to the diag stream (per-interaction scores and decisions).
func Diagf(format string, args ...interface{}) {
	mu.RLock()
	l := diagLogger
	mu.RUnlock()
	if l != nil {
		l.Debugf(format, args...)
	}
}

// Tracef logs to the trace stream (robot pipeline detail per object).
func Tracef(format string, args ...interface{}) {
	mu.RLock()
	l := traceLogger
	mu.RUnlock()
	if l != nil {
		l.Debugf(format, args...)
	}
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range []*zap.SugaredLogger{opsLogger, diagLogger, traceLogger} {
		if l != nil {
			_ = l.Sync()
		}
	}
}
