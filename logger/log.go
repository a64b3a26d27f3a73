// Package logger builds the per-routine log entries used throughout dtracker.
package logger

import (
	"io"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

// JSON switches every subsequently created logger to JSON output. It's set once from the command line before any
// routine is started.
var JSON bool

// New returns a log entry tagged with the routine name, writing colored text (or JSON) to stdout.
func New(routine string, level logrus.Level) *logrus.Entry {
	return NewWithWriter(colorable.NewColorableStdout(), routine, level)
}

// NewWithWriter is New with an explicit destination, mostly useful in tests.
func NewWithWriter(out io.Writer, routine string, level logrus.Level) *logrus.Entry {
	var formatter logrus.Formatter = &logrus.TextFormatter{ForceColors: true}
	if JSON {
		formatter = &logrus.JSONFormatter{}
	}
	var log = &logrus.Logger{
		Out:       out,
		Formatter: formatter,
		Hooks:     make(logrus.LevelHooks),
		Level:     level,
	}
	return log.WithField("routine", routine)
}
