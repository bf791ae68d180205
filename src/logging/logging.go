package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/coreos/go-systemd/v22/journal"
)

// Logger writes tagged messages to the systemd journal, falling back to
// stderr on hosts (and in tests) where no journal socket is available.
type Logger struct {
	tag string
}

var (
	journalEnabled = journal.Enabled
	journalSend    = journal.Send

	fallbackMu sync.Mutex
	fallback   io.Writer = os.Stderr
)

// New returns a logger whose messages carry the given syslog identifier.
func New(tag string) *Logger {
	return &Logger{tag: tag}
}

func (l *Logger) Info(msg string) {
	l.send(journal.PriInfo, msg)
}

func (l *Logger) Infof(format string, args ...any) {
	l.send(journal.PriInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(msg string) {
	l.send(journal.PriErr, msg)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.send(journal.PriErr, fmt.Sprintf(format, args...))
}

func (l *Logger) send(pri journal.Priority, msg string) {
	if journalEnabled() {
		if err := journalSend(msg, pri, map[string]string{"SYSLOG_IDENTIFIER": l.tag}); err == nil {
			return
		}
	}
	level := "info"
	if pri == journal.PriErr {
		level = "error"
	}
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	fmt.Fprintf(fallback, "%s: %s: %s\n", l.tag, level, msg)
}

// SetJournalForTest replaces the journal probes so tests can capture sends.
func SetJournalForTest(enabled func() bool, send func(string, journal.Priority, map[string]string) error) func() {
	prevEnabled, prevSend := journalEnabled, journalSend
	journalEnabled, journalSend = enabled, send
	return func() { journalEnabled, journalSend = prevEnabled, prevSend }
}

// SetFallbackForTest redirects the stderr fallback writer.
func SetFallbackForTest(w io.Writer) func() {
	fallbackMu.Lock()
	prev := fallback
	fallback = w
	fallbackMu.Unlock()
	return func() {
		fallbackMu.Lock()
		fallback = prev
		fallbackMu.Unlock()
	}
}
