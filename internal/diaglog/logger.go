// Package diaglog wraps logrus into the shape every pipeline stage takes
// as an explicit collaborator, instead of reaching for a package-global
// logger from inside hot paths.
package diaglog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is threaded through the driver into every pipeline stage.
type Logger struct {
	*logrus.Logger
}

// New builds a Logger at the given level, optionally emitting JSON lines
// instead of human-readable text (the CLI's --log-json flag).
func New(level logrus.Level, json bool) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &Logger{Logger: l}
}

// NoOp returns a logger that discards everything, used by tests and by
// release-mode callers that want identical codegen output with no
// tracing overhead.
func NoOp() *Logger {
	l := logrus.New()
	l.SetOutput(nilWriter{})
	return &Logger{Logger: l}
}

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) { return len(p), nil }

// Stage returns a child entry tagged with the pipeline stage name, used
// by every component (lexer, parser, scope, funcmgr, codegen, loader) to
// keep their log lines attributable.
func (l *Logger) Stage(name string) *logrus.Entry {
	return l.WithField("stage", name)
}
