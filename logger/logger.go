// Package logger provides the structured logging facade used across the
// load balancer: a single package-global *zap.SugaredLogger, initialized
// once at startup, with a small set of named fields used consistently by
// every listener and background task.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.SugaredLogger

func init() {
	// Safe no-op logger so early package-init code never panics on a nil
	// *zap.SugaredLogger before Initialize runs.
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger. jsonOutput selects structured JSON
// (for log aggregation) versus a human-readable console encoder (for
// running the binary interactively).
func Initialize(jsonOutput bool) error {
	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = cfg.Build()
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		zapLogger = zap.New(
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(encCfg),
				zapcore.AddSync(os.Stdout),
				zap.InfoLevel,
			),
		)
	}
	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// Cleanup flushes any buffered log entries. Errors from Sync are often
// safely ignorable on stdout/stderr (EINVAL on some platforms).
func Cleanup() error {
	if Logger != nil {
		return Logger.Sync()
	}
	return nil
}

// Named returns a logger scoped to a component, the preferred way to get a
// logger for constructor injection.
func Named(component string) *zap.SugaredLogger {
	return Logger.Named(component)
}

func Info(args ...interface{})                 { Logger.Info(args...) }
func Infof(format string, args ...interface{}) { Logger.Infof(format, args...) }
func Infow(msg string, kv ...interface{})      { Logger.Infow(msg, kv...) }
func Warn(args ...interface{})                 { Logger.Warn(args...) }
func Warnf(format string, args ...interface{}) { Logger.Warnf(format, args...) }
func Warnw(msg string, kv ...interface{})      { Logger.Warnw(msg, kv...) }
func Error(args ...interface{})                { Logger.Error(args...) }
func Errorf(format string, args ...interface{}) { Logger.Errorf(format, args...) }
func Errorw(msg string, kv ...interface{})     { Logger.Errorw(msg, kv...) }
func Debug(args ...interface{})                { Logger.Debug(args...) }
func Debugw(msg string, kv ...interface{})     { Logger.Debugw(msg, kv...) }
