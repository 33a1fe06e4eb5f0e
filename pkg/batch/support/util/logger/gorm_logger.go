package logger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger bridges gorm's logger interface onto this package.
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger creates a gorm logger that writes SQL traces at DEBUG and slow queries at WARN.
func NewGormLogger(slowThreshold time.Duration) *GormLogger {
	lvl := gormlogger.Warn
	if GetLogLevel() == LevelDebug {
		lvl = gormlogger.Info
	}
	return &GormLogger{level: lvl, slowThreshold: slowThreshold}
}

// LogMode implements gormlogger.Interface.
func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

// Info implements gormlogger.Interface.
func (g *GormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Info {
		Infof("gorm: "+msg, args...)
	}
}

// Warn implements gormlogger.Interface.
func (g *GormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Warn {
		Warnf("gorm: "+msg, args...)
	}
}

// Error implements gormlogger.Interface.
func (g *GormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Error {
		Errorf("gorm: "+msg, args...)
	}
}

// Trace implements gormlogger.Interface.
func (g *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && g.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		Errorf("gorm: %v [%s] rows=%d %s", err, elapsed, rows, sql)
	case g.slowThreshold > 0 && elapsed > g.slowThreshold && g.level >= gormlogger.Warn:
		sql, rows := fc()
		Warnf("gorm: slow query [%s] rows=%d %s", elapsed, rows, sql)
	case g.level >= gormlogger.Info:
		sql, rows := fc()
		Debugf("gorm: [%s] rows=%d %s", elapsed, rows, sql)
	}
}

var _ gormlogger.Interface = (*GormLogger)(nil)
