// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// zap has no level below Debug, so Debug output sits one step under it
// and Verbose takes zap's own Debug slot.
const (
	zapVerbose = zapcore.DebugLevel
	zapDebug   = zapcore.DebugLevel - 1
)

// LoggerOptions configures [New].
type LoggerOptions struct {
	Verbosity  int       // 0 = quiet, 1 = normal, 2 = verbose, 3 = debug
	Format     string    // "console" (default) or "json"
	Output     io.Writer // default os.Stderr
	Timestamps bool      // forced on in debug mode
}

// Logger writes levelled, structured messages through zap.  Child
// loggers created with With share the parent's level and output.
type Logger struct {
	level  LogLevel
	shared *loggerCore
	fields []interface{}
	sugar  *zap.SugaredLogger
}

type loggerCore struct {
	mu   sync.Mutex
	opts LoggerOptions
	core zapcore.Core
}

// NewLogger returns a console Logger on stderr that prints messages at
// or below the given verbosity.
func NewLogger(verbosity int) *Logger {
	return New(LoggerOptions{Verbosity: verbosity})
}

// New builds a Logger from explicit options.
func New(opts LoggerOptions) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Verbosity >= int(LogDebug) {
		opts.Timestamps = true
	}
	lc := &loggerCore{opts: opts}
	lc.rebuild()
	l := &Logger{level: LogLevel(opts.Verbosity), shared: lc}
	l.sugar = zap.New(lc.core).Sugar()
	return l
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return New(LoggerOptions{Verbosity: int(LogDebug), Output: io.Discard})
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.shared.mu.Lock()
	l.shared.opts.Timestamps = on
	l.shared.rebuild()
	l.shared.mu.Unlock()
	l.refresh()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.shared.mu.Lock()
	l.shared.opts.Output = w
	l.shared.rebuild()
	l.shared.mu.Unlock()
	l.refresh()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that adds structured context to every
// message, e.g. With("device", "ne1", "op", id).
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)
	child := &Logger{level: l.level, shared: l.shared, fields: fields}
	child.refresh()
	return child
}

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(zapcore.InfoLevel, format, args)
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(zapcore.WarnLevel, format, args)
}

// Verbose prints when verbosity ≥ 2.
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.log(zapVerbose, format, args)
}

// Debug prints when verbosity ≥ 3.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(zapDebug, format, args)
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(zapcore.ErrorLevel, format, args)
}

// Sync flushes buffered output.
func (l *Logger) Sync() error { return l.sugar.Sync() }

func (l *Logger) log(lvl zapcore.Level, format string, args []interface{}) {
	l.shared.mu.Lock()
	sugar := l.sugar
	l.shared.mu.Unlock()

	logger := sugar.Desugar()
	if !logger.Core().Enabled(lvl) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if ce := logger.Check(lvl, msg); ce != nil {
		ce.Write()
	}
}

func (l *Logger) refresh() {
	l.shared.mu.Lock()
	defer l.shared.mu.Unlock()
	l.sugar = zap.New(l.shared.core).Sugar().With(l.fields...)
}

// rebuild recreates the zap core from opts.  Callers hold mu (or own
// the loggerCore exclusively).
func (lc *loggerCore) rebuild() {
	encCfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    encodeLevel,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if lc.opts.Timestamps {
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	var enc zapcore.Encoder
	if lc.opts.Format == "json" {
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	lc.core = zapcore.NewCore(enc, zapcore.AddSync(lc.opts.Output), minLevel(lc.opts.Verbosity))
}

func minLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= int(LogQuiet):
		return zapcore.ErrorLevel
	case verbosity == int(LogNormal):
		return zapcore.InfoLevel
	case verbosity == int(LogVerbose):
		return zapVerbose
	default:
		return zapDebug
	}
}

func encodeLevel(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch {
	case lvl <= zapDebug:
		enc.AppendString("[DBG]")
	case lvl == zapVerbose:
		enc.AppendString("[VRB]")
	case lvl == zapcore.InfoLevel:
		enc.AppendString("[INF]")
	case lvl == zapcore.WarnLevel:
		enc.AppendString("[WRN]")
	default:
		enc.AppendString("[ERR]")
	}
}
