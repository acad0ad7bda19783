// Package logrelay buffers formatted log lines produced on any goroutine so
// that a UI loop can collect them on its own schedule.
//
// A Relay is an append/drain FIFO. Producers call Append (directly, or via the
// logrus hook returned by Hook); the consumer calls DrainAll, usually from
// Poll, and renders the returned lines in order.
package logrelay

import (
	"fmt"
	"sync"
	"time"
)

// Level is the severity printed at the start of a Line.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Line is a single captured log message. Lines are values and are never
// modified after they are appended.
type Line struct {
	Level   Level
	Message string
	Time    time.Time
}

// String renders the line as "<LEVEL> - <message>".
func (l Line) String() string {
	return fmt.Sprintf("%s - %s", l.Level, l.Message)
}

// Relay is a concurrency-safe FIFO of Lines. The zero value is ready to use.
type Relay struct {
	mu    sync.Mutex
	lines []Line
}

// New creates an empty relay.
func New() *Relay {
	return &Relay{}
}

// Append adds a line to the end of the buffer. It only ever blocks on the
// internal mutex.
func (r *Relay) Append(line Line) {
	if line.Time.IsZero() {
		line.Time = time.Now()
	}

	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

// Appendf formats and appends a line at the given level.
func (r *Relay) Appendf(level Level, format string, args ...interface{}) {
	r.Append(Line{Level: level, Message: fmt.Sprintf(format, args...)})
}

// DrainAll removes and returns every pending line in append order. It never
// waits for new lines; an empty, non-nil slice means nothing was pending.
func (r *Relay) DrainAll() []Line {
	r.mu.Lock()
	out := r.lines
	r.lines = nil
	r.mu.Unlock()

	if out == nil {
		return []Line{}
	}
	return out
}

// Len reports how many lines are waiting to be drained.
func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}
