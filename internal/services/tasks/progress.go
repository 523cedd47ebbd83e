package tasks

import (
	"fmt"
	"sync"
	"time"
)

// ProgressEntry is one line of a task's progress log
type ProgressEntry struct {
	Time   time.Time `json:"time"`
	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
}

// String renders the entry the way it is shown to users
func (e ProgressEntry) String() string {
	line := e.Time.UTC().Format(time.RFC1123)
	if e.Status != "" {
		line += " " + e.Status
	}
	if e.Detail != "" {
		line += " " + e.Detail
	}
	return line
}

// ProgressLog is an append-only, chronologically ordered log shared between a
// poller and its readers.
type ProgressLog struct {
	mu      sync.RWMutex
	entries []ProgressEntry
	now     func() time.Time
}

func NewProgressLog() *ProgressLog {
	return &ProgressLog{now: time.Now}
}

// Append adds an entry stamped with the current time
func (l *ProgressLog) Append(status, detail string) ProgressEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UTC()
	// keep the log monotonic even if the wall clock steps back
	if n := len(l.entries); n > 0 && ts.Before(l.entries[n-1].Time) {
		ts = l.entries[n-1].Time
	}
	entry := ProgressEntry{Time: ts, Status: status, Detail: detail}
	l.entries = append(l.entries, entry)
	return entry
}

// Appendf is Append with a formatted detail
func (l *ProgressLog) Appendf(status, format string, args ...interface{}) ProgressEntry {
	return l.Append(status, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the log
func (l *ProgressLog) Entries() []ProgressEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ProgressEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Lines returns the rendered log lines
func (l *ProgressLog) Lines() []string {
	entries := l.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return lines
}

func (l *ProgressLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
