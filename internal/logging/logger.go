// Package logging provides the structured, leveled logger used across every
// notifyhub component. It intentionally stays a thin wrapper over the
// standard logger rather than pulling in a third heavyweight logging
// framework: the pack's own teacher repo ships exactly this shape of logger
// for its non-HTTP internals, and every component here logs through it.
package logging

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
)

// Level represents the logging level.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

// Logger provides structured, leveled logging with call-site tagging.
type Logger struct {
	level  Level
	logger *log.Logger
}

var defaultLogger *Logger

func init() {
	defaultLogger = New()
}

// New creates a new logger instance, reading its level from LOG_LEVEL.
func New() *Logger {
	level := INFO
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		switch strings.ToLower(env) {
		case "debug":
			level = DEBUG
		case "info":
			level = INFO
		case "warn", "warning":
			level = WARN
		case "error":
			level = ERROR
		case "fatal":
			level = FATAL
		}
	}

	return &Logger{
		level:  level,
		logger: log.New(os.Stdout, "", log.LstdFlags|log.Lshortfile),
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level <= DEBUG {
		l.logWithLevel("DEBUG", format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.level <= INFO {
		l.logWithLevel("INFO", format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level <= WARN {
		l.logWithLevel("WARN", format, args...)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.level <= ERROR {
		l.logWithLevel("ERROR", format, args...)
	}
}

func (l *Logger) Fatal(format string, args ...interface{}) {
	l.logWithLevel("FATAL", format, args...)
	os.Exit(1)
}

func (l *Logger) logWithLevel(level, format string, args ...interface{}) {
	_, file, line, _ := runtime.Caller(2)
	fileShort := file[strings.LastIndex(file, "/")+1:]

	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] %s:%d %s", level, fileShort, line, message)
}

// WithCorrelation returns a formatting prefix carrying a correlationId, so
// call sites can do logging.Info(logging.WithCorrelation(cid)+"dispatched").
// Kept as a plain string helper rather than a sub-logger: every ingestor and
// the dispatcher already thread correlationId as a parameter, this just
// keeps the log line consistent.
func WithCorrelation(correlationID string) string {
	if correlationID == "" {
		return ""
	}
	return fmt.Sprintf("[cid=%s] ", correlationID)
}

func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }
func Fatal(format string, args ...interface{}) { defaultLogger.Fatal(format, args...) }

// ErrorWithStack logs an error together with a debug-mode stack trace.
func ErrorWithStack(err error, format string, args ...interface{}) {
	if err == nil {
		return
	}

	message := fmt.Sprintf(format, args...)
	defaultLogger.Error("%s: %v", message, err)

	if defaultLogger.level <= DEBUG {
		buf := make([]byte, 1024)
		n := runtime.Stack(buf, false)
		defaultLogger.Debug("Stack trace:\n%s", buf[:n])
	}
}
