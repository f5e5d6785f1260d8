package common

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stuKim0221/smart-lotto/logger"
)

// Logger 日志接口
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// LogrusLogger adapts a logrus entry to Logger.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogger 创建日志器
func NewLogger(component string) Logger {
	return &LogrusLogger{entry: logger.WithComponent(component)}
}

// NewLoggerFrom wraps an existing entry.
func NewLoggerFrom(entry *logrus.Entry) Logger {
	return &LogrusLogger{entry: entry}
}

func (l *LogrusLogger) Debug(msg string, args ...interface{}) {
	l.entry.Debug(format(msg, args))
}

func (l *LogrusLogger) Info(msg string, args ...interface{}) {
	l.entry.Info(format(msg, args))
}

func (l *LogrusLogger) Warn(msg string, args ...interface{}) {
	l.entry.Warn(format(msg, args))
}

func (l *LogrusLogger) Error(msg string, args ...interface{}) {
	l.entry.Error(format(msg, args))
}

func format(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
