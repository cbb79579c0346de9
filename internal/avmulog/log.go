// Package avmulog provides a per-Task logger in the teacher's plain
// log.Logger style: prefixed lines, no structured logging library.
package avmulog

import (
	"log"
	"os"
)

// Logger wraps a standard log.Logger with a fixed prefix identifying the
// peer a Task talks to, the same way the teacher tags session log lines
// with a session ID.
type Logger struct {
	l *log.Logger
}

// New returns a Logger that prefixes every line with "avmu[prefix]: ".
func New(prefix string) *Logger {
	return &Logger{l: log.New(os.Stderr, "avmu["+prefix+"]: ", log.LstdFlags)}
}

func (lg *Logger) Printf(format string, args ...interface{}) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Printf(format, args...)
}

func (lg *Logger) Println(args ...interface{}) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Println(args...)
}

// SetPrefix updates the logger's prefix, used when setIPAddress/setIPPort
// re-target a Task at a different peer.
func (lg *Logger) SetPrefix(prefix string) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.SetPrefix("avmu[" + prefix + "]: ")
}
