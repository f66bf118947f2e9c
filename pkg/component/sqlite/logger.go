package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/logger"
	gormlogger "gorm.io/gorm/logger"
)

// storeLogger sends GORM output to the global logger. Missing records are
// an expected answer of the local store and are not logged as failures.
// Bound parameters may carry ciphertext, so only the SQL text is logged.
type storeLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

var _ gormlogger.Interface = (*storeLogger)(nil)

func newStoreLogger(level gormlogger.LogLevel, slow time.Duration) *storeLogger {
	return &storeLogger{level: level, slow: slow}
}

func (l *storeLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &storeLogger{level: level, slow: l.slow}
}

func (l *storeLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		logger.Global().WithCtx(ctx).Infof(msg, args...)
	}
}

func (l *storeLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		logger.Global().WithCtx(ctx).Warnf(msg, args...)
	}
}

func (l *storeLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		logger.Global().WithCtx(ctx).Errorf(msg, args...)
	}
}

func (l *storeLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow

	var log func(string, ...interface{})
	var msg string
	switch {
	case failed && l.level >= gormlogger.Error:
		log, msg = logger.Global().WithCtx(ctx).Errorw, "Store query failed"
	case slow && l.level >= gormlogger.Warn:
		log, msg = logger.Global().WithCtx(ctx).Warnw, "Slow store query"
	case l.level >= gormlogger.Info:
		log, msg = logger.Global().WithCtx(ctx).Debugw, "Store query"
	default:
		return
	}

	sql, rows := fc()
	fields := []interface{}{"sql", sql, "rows", rows, "elapsed", elapsed.String()}
	if failed {
		fields = append(fields, "error", err.Error())
	}
	log(msg, fields...)
}
