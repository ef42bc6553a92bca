// Package logger provides leveled logging with per-subsystem tags.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

type sink struct {
	level  Level
	logger *log.Logger
}

var defaultSink *sink

// Init initializes the shared log sink with the specified level and format.
func Init(level string, format string) {
	var l Level
	switch strings.ToLower(level) {
	case "debug":
		l = DebugLevel
	case "info":
		l = InfoLevel
	case "warn":
		l = WarnLevel
	case "error":
		l = ErrorLevel
	default:
		l = InfoLevel
	}

	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}

	defaultSink = &sink{
		level:  l,
		logger: log.New(os.Stderr, "", flags),
	}
}

// Logger emits messages tagged with a subsystem name, e.g.
// "[INFO] [scan] processed 12 rank adjustments".
type Logger struct {
	tag string
}

// For returns a logger tagged with the given subsystem name.
func For(subsystem string) *Logger {
	return &Logger{tag: subsystem}
}

func (l *Logger) output(min Level, label, format string, args ...interface{}) {
	if defaultSink == nil || defaultSink.level > min {
		return
	}
	msg := fmt.Sprintf(label+" ["+l.tag+"] "+format, args...)
	_ = defaultSink.logger.Output(3, msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.output(DebugLevel, "[DEBUG]", format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.output(InfoLevel, "[INFO]", format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.output(WarnLevel, "[WARN]", format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.output(ErrorLevel, "[ERROR]", format, args...)
}

// Fatalf logs the message regardless of level and exits with status 1.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf("[FATAL] ["+l.tag+"] "+format, args...)
	if defaultSink != nil {
		_ = defaultSink.logger.Output(3, msg)
	} else {
		log.Print(msg)
	}
	os.Exit(1)
}
