package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. stdout carries info, stderr carries errors.
var (
	Log = logrus.New()

	errLog = logrus.New()
)

func init() {
	Log.SetOutput(os.Stdout)
	errLog.SetOutput(os.Stderr)
	Configure("info", "text")
}

// Configure sets the level ("debug", "info", ...) and the output format ("text" or "json").
func Configure(level, format string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}

	var formatter logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if strings.EqualFold(format, "json") {
		formatter = &logrus.JSONFormatter{}
	}

	for _, l := range []*logrus.Logger{Log, errLog} {
		l.SetLevel(lvl)
		l.SetFormatter(formatter)
	}
}

// WithComponent returns an entry tagged with the component name.
func WithComponent(name string) *logrus.Entry {
	return Log.WithField("component", name)
}

// Println 输出正常日志到 stdout
func Println(v ...interface{}) {
	Log.Infoln(v...)
}

// Printf 格式化输出正常日志到 stdout
func Printf(format string, v ...interface{}) {
	Log.Infof(format, v...)
}

// Errorln 输出错误日志到 stderr
func Errorln(v ...interface{}) {
	errLog.Errorln(v...)
}

// Errorf 格式化输出错误日志到 stderr
func Errorf(format string, v ...interface{}) {
	errLog.Errorf(format, v...)
}

// Fatalf 输出致命错误并退出程序
func Fatalf(format string, v ...interface{}) {
	errLog.Fatalf(format, v...)
}
