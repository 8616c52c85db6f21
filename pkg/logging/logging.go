package logging

import "fmt"

const (
	DebugLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger is the logging collaborator used across the module.
// Its own failures never affect the caller.
type Logger interface {
	LogLevelf(level int, format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// LogFuncs adapts any sprintf-style backend to Logger
type LogFuncs struct {
	Debugf func(format string, args ...interface{})
	Infof  func(format string, args ...interface{})
	Warnf  func(format string, args ...interface{})
	Errorf func(format string, args ...interface{})
}

type logger struct {
	prefix string
	funcs  LogFuncs
}

// NewLogger builds a Logger that prepends prefix to every message.
// Nil entries in funcs drop messages of that level.
func NewLogger(prefix string, funcs LogFuncs) Logger {
	return &logger{
		prefix: prefix,
		funcs:  funcs,
	}
}

func (l *logger) LogLevelf(level int, format string, args ...interface{}) {
	switch level {
	case DebugLevel:
		l.Debugf(format, args...)
	case InfoLevel:
		l.Infof(format, args...)
	case WarnLevel:
		l.Warnf(format, args...)
	case ErrorLevel:
		l.Errorf(format, args...)
	default:
		l.Infof(fmt.Sprintf("[level %d] ", level)+format, args...)
	}
}

func (l *logger) Debugf(format string, args ...interface{}) {
	if l.funcs.Debugf != nil {
		l.funcs.Debugf(l.prefix+format, args...)
	}
}

func (l *logger) Infof(format string, args ...interface{}) {
	if l.funcs.Infof != nil {
		l.funcs.Infof(l.prefix+format, args...)
	}
}

func (l *logger) Warnf(format string, args ...interface{}) {
	if l.funcs.Warnf != nil {
		l.funcs.Warnf(l.prefix+format, args...)
	}
}

func (l *logger) Errorf(format string, args ...interface{}) {
	if l.funcs.Errorf != nil {
		l.funcs.Errorf(l.prefix+format, args...)
	}
}

type nullLogger struct{}

// NewNullLogger returns a Logger that discards everything
func NewNullLogger() Logger {
	return nullLogger{}
}

func (nullLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (nullLogger) Debugf(format string, args ...interface{})               {}
func (nullLogger) Infof(format string, args ...interface{})                {}
func (nullLogger) Warnf(format string, args ...interface{})                {}
func (nullLogger) Errorf(format string, args ...interface{})               {}
