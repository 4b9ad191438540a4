package utils

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// zapWriter adapts a zap logger to gorm's logger.Writer
type zapWriter struct {
	log *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.log.Infof(format, args...)
}

// NewGormLogger builds a gorm logger that writes through zap and skips
// queries containing any of the ignored patterns.
func NewGormLogger(log *zap.Logger, level logger.LogLevel, ignoredPatterns ...string) logger.Interface {
	base := logger.New(
		zapWriter{log: log.Named("gorm").Sugar()},
		logger.Config{
			SlowThreshold:             time.Second, // Log queries slower than 1 second
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return NewCustomGormLogger(base, ignoredPatterns...)
}

// CustomGormLogger is a custom logger for GORM that filters out specific queries
type CustomGormLogger struct {
	logger.Interface
	ignoredQueryPatterns []string
}

// NewCustomGormLogger creates a new custom logger with the given ignored query patterns
func NewCustomGormLogger(l logger.Interface, ignoredPatterns ...string) *CustomGormLogger {
	return &CustomGormLogger{
		Interface:            l,
		ignoredQueryPatterns: ignoredPatterns,
	}
}

// LogMode implements logger.Interface
func (l *CustomGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &CustomGormLogger{
		Interface:            l.Interface.LogMode(level),
		ignoredQueryPatterns: l.ignoredQueryPatterns,
	}
}

// Trace implements logger.Interface
func (l *CustomGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	sql, rows := fc()

	// Errors are always logged, filtered or not
	if err == nil && l.ignored(sql) {
		return
	}

	callerInfo := findCaller()
	wrappedFC := func() (string, int64) {
		if callerInfo != "" {
			return fmt.Sprintf("[Caller: %s] %s", callerInfo, sql), rows
		}
		return sql, rows
	}

	l.Interface.Trace(ctx, begin, wrappedFC, err)
}

func (l *CustomGormLogger) ignored(sql string) bool {
	for _, pattern := range l.ignoredQueryPatterns {
		if strings.Contains(sql, pattern) {
			return true
		}
	}
	return false
}

// findCaller looks through the call stack to find the first non-GORM, non-database caller
func findCaller() string {
	for i := 2; i < 15; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		if strings.Contains(file, "gorm.io") ||
			strings.Contains(file, "internal/database") ||
			strings.Contains(file, "internal/utils/db_logger.go") {
			continue
		}

		funcName := ""
		if fn := runtime.FuncForPC(pc); fn != nil {
			funcName = fn.Name()
			if idx := strings.LastIndexByte(funcName, '.'); idx != -1 {
				funcName = funcName[idx+1:]
			}
		}

		if funcName != "" {
			return fmt.Sprintf("%s() at %s:%d", funcName, file, line)
		}
		return fmt.Sprintf("%s:%d", file, line)
	}

	return ""
}
