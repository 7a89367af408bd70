// Package logging provides leveled structured logging shared by the
// server, the store adapter and the binary.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fields carries structured context for a log entry.
type Fields = map[string]any

var std = newLogger(os.Stdout, "info", "text")

func newLogger(out io.Writer, level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(parseLevel(level))
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "msg",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			DisableColors: true,
		})
	}
	return l
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Setup replaces the process logger. It is called once from main before
// any component is constructed.
func Setup(out io.Writer, level, format string) {
	std = newLogger(out, level, format)
}

func entry(fields Fields) *logrus.Entry {
	return std.WithFields(logrus.Fields(fields))
}

// Debug logs a debug message.
func Debug(msg string, fields Fields) {
	entry(fields).Debug(msg)
}

// Info logs an info message.
func Info(msg string, fields Fields) {
	entry(fields).Info(msg)
}

// Warn logs a warning.
func Warn(msg string, fields Fields) {
	entry(fields).Warn(msg)
}

// Error logs an error together with its cause.
func Error(msg string, fields Fields, err error) {
	e := entry(fields)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}
