// Package diag collects diagnostics raised while building a fabric.
package diag

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Reporter records warnings and errors and forwards them to a logrus logger.
type Reporter struct {
	log *logrus.Logger

	mu       sync.Mutex
	warnings int
	errors   int
}

// NewReporter creates a reporter writing to w. format is "text" or "json".
func NewReporter(w io.Writer, format string) *Reporter {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{DisableTimestamp: true})
	default:
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableQuote: true})
	}
	return &Reporter{log: l}
}

// SetVerbose enables debug output.
func (r *Reporter) SetVerbose(on bool) {
	if on {
		r.log.SetLevel(logrus.DebugLevel)
	} else {
		r.log.SetLevel(logrus.InfoLevel)
	}
}

// Logger exposes the underlying logger.
func (r *Reporter) Logger() *logrus.Logger { return r.log }

// Warning records a non-fatal observation about subject.
func (r *Reporter) Warning(subject, msg string) {
	r.mu.Lock()
	r.warnings++
	r.mu.Unlock()
	r.entry(subject).Warn(msg)
}

func (r *Reporter) Warningf(subject, format string, args ...any) {
	r.Warning(subject, fmt.Sprintf(format, args...))
}

// Error records an error about subject.
func (r *Reporter) Error(subject, msg string) {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
	r.entry(subject).Error(msg)
}

func (r *Reporter) Errorf(format string, args ...any) {
	r.Error("", fmt.Sprintf(format, args...))
}

// Debugf logs progress at debug level.
func (r *Reporter) Debugf(format string, args ...any) {
	r.log.Debugf(format, args...)
}

// Infof logs progress at info level.
func (r *Reporter) Infof(format string, args ...any) {
	r.log.Infof(format, args...)
}

func (r *Reporter) entry(subject string) *logrus.Entry {
	if subject == "" {
		return logrus.NewEntry(r.log)
	}
	return r.log.WithField("at", subject)
}

// HasErrors reports whether any error was recorded.
func (r *Reporter) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors > 0
}

// Counts returns the number of warnings and errors recorded so far.
func (r *Reporter) Counts() (warnings, errors int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warnings, r.errors
}
