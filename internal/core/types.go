package core

import (
	"sync"
	"time"
)

const MaxLogEntries = 1000
const MaxLogMessageSize = 4096

// LogEntry is a single console.log/warn/error captured from a context.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// LogBuffer keeps the most recent console entries of a context. Once full,
// the oldest entry is dropped.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
}

// Add appends an entry, truncating oversized messages.
func (b *LogBuffer) Add(level, message string) {
	if len(message) > MaxLogMessageSize {
		message = message[:MaxLogMessageSize] + "...(truncated)"
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= MaxLogEntries {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append(b.entries, LogEntry{
		Level:   level,
		Message: message,
		Time:    time.Now(),
	})
}

// Entries returns a copy of the buffered entries, oldest first.
func (b *LogBuffer) Entries() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Reset drops all entries.
func (b *LogBuffer) Reset() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
}
