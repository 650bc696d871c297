//nolint:gochecknoglobals
package logx

import (
	"context"
	"sync"
)

// ServiceContext is attached to every event of the process logger.
type ServiceContext struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

// Logger is the logging surface used by every package of the data access layer. Components take
// a Logger at construction; a nil Logger is replaced with OrNop.
type Logger interface {
	LogInfo(ctx context.Context, msg string)
	LogDebug(ctx context.Context, msg string)
	LogWarning(ctx context.Context, msg string, errs ...error)
	LogError(ctx context.Context, msg string, errs ...error)
	// LogPanic logs at Panic level then panics. The NopLogger does not panic.
	LogPanic(ctx context.Context, msg string, errs ...error)
	// LogFatal logs at Fatal level. It does not exit: the caller decides how to terminate.
	LogFatal(ctx context.Context, msg string, errs ...error)

	// GetLogger returns the underlying logger, e.g. a zerolog.Logger.
	GetLogger() interface{}
}

var (
	lock   sync.RWMutex
	logger Logger
)

var _ Logger = (*NopLogger)(nil)

// NopLogger - Logger implementation that does nothing.
type NopLogger struct{}

// GetLogger - returns the process logger.
// If called before SetupLogger a no-op logger will be returned.
func GetLogger() Logger {
	lock.RLock()
	defer lock.RUnlock()

	if logger == nil {
		return &NopLogger{}
	}

	return logger
}

// SetLogger - replace the process logger returned by GetLogger.
func SetLogger(l Logger) {
	lock.Lock()
	defer lock.Unlock()

	logger = l
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return &NopLogger{}
	}

	return l
}

// LogInfo noop.
func (nl *NopLogger) LogInfo(ctx context.Context, msg string) {}

// LogDebug noop.
func (nl *NopLogger) LogDebug(ctx context.Context, msg string) {}

// LogWarning noop.
func (nl *NopLogger) LogWarning(ctx context.Context, msg string, errs ...error) {}

// LogError noop.
func (nl *NopLogger) LogError(ctx context.Context, msg string, errs ...error) {}

// LogPanic noop.
func (nl *NopLogger) LogPanic(ctx context.Context, msg string, errs ...error) {}

// LogFatal noop.
func (nl *NopLogger) LogFatal(ctx context.Context, msg string, errs ...error) {}

// GetLogger noop.
func (nl *NopLogger) GetLogger() interface{} { return nil }
