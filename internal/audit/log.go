// Package audit keeps the bounded, in-memory record of completed tool calls.
package audit

import (
	"sync"

	"github.com/webmcp/relay/internal/persist"
	"github.com/webmcp/relay/internal/protocol"
	"github.com/webmcp/relay/internal/storage"
	"go.uber.org/zap"
)

const (
	// DefaultCapacity is the ring size when none is configured.
	DefaultCapacity = 500
	// DefaultListLimit is used by callers that do not pass a limit.
	DefaultListLimit = 100
	// FileName is the mirror document name inside the data directory.
	FileName = "audit-log.json"
)

type fileDoc struct {
	Entries []protocol.AuditEntry `json:"entries"`
}

// Option configures a Log.
type Option func(*Log)

// WithFile mirrors the buffer to a JSON document at path after every
// mutation.
func WithFile(path string) Option {
	return func(l *Log) { l.path = path }
}

// WithSink forwards every appended entry to an export writer.
func WithSink(w storage.EventWriter) Option {
	return func(l *Log) { l.sink = w }
}

// Log is a ring of audit entries, oldest first.
type Log struct {
	mu       sync.Mutex
	entries  []protocol.AuditEntry
	capacity int
	path     string
	sink     storage.EventWriter
	logger   *zap.Logger
}

// New returns an empty log. A capacity below 1 uses DefaultCapacity.
func New(capacity int, logger *zap.Logger, opts ...Option) *Log {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	l := &Log{
		entries:  make([]protocol.AuditEntry, 0, capacity),
		capacity: capacity,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Hydrate loads the mirror file. A missing or unreadable file leaves the log
// empty. Files longer than the capacity keep only their newest entries.
func (l *Log) Hydrate() {
	if l.path == "" {
		return
	}
	var doc fileDoc
	found, err := persist.ReadJSON(l.path, &doc)
	if err != nil {
		l.logger.Warn("audit hydrate failed, starting empty", zap.String("path", l.path), zap.Error(err))
		return
	}
	if !found {
		return
	}

	loaded := doc.Entries
	if len(loaded) > l.capacity {
		loaded = loaded[len(loaded)-l.capacity:]
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(make([]protocol.AuditEntry, 0, l.capacity), loaded...)
	l.logger.Info("audit log hydrated", zap.Int("entries", len(l.entries)))
}

// Append records an entry, dropping the oldest once capacity is reached.
// It never fails; mirror write errors are logged.
func (l *Log) Append(entry protocol.AuditEntry) {
	l.mu.Lock()
	if len(l.entries) >= l.capacity {
		// Shift in place so the backing array does not grow.
		n := copy(l.entries, l.entries[len(l.entries)-l.capacity+1:])
		l.entries = l.entries[:n]
	}
	l.entries = append(l.entries, entry)
	l.mirror()
	l.mu.Unlock()

	if l.sink != nil {
		e := entry
		l.sink.Write(&e)
	}
}

// List returns up to limit entries, newest first. limit is clamped to
// [1, capacity].
func (l *Log) List(limit int) []protocol.AuditEntry {
	if limit < 1 {
		limit = 1
	}
	if limit > l.capacity {
		limit = l.capacity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]protocol.AuditEntry, 0, limit)
	for i := len(l.entries) - 1; i >= len(l.entries)-limit; i-- {
		out = append(out, cloneEntry(l.entries[i]))
	}
	return out
}

// Reset drops every entry.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
	l.mirror()
}

// Len returns the number of buffered entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Capacity returns the ring size.
func (l *Log) Capacity() int {
	return l.capacity
}

// mirror must be called with mu held.
func (l *Log) mirror() {
	if l.path == "" {
		return
	}
	if err := persist.WriteJSON(l.path, fileDoc{Entries: l.entries}); err != nil {
		l.logger.Warn("audit write-back failed", zap.String("path", l.path), zap.Error(err))
	}
}

func cloneEntry(e protocol.AuditEntry) protocol.AuditEntry {
	if e.ArgumentSummary != nil {
		args := make(map[string]string, len(e.ArgumentSummary))
		for k, v := range e.ArgumentSummary {
			args[k] = v
		}
		e.ArgumentSummary = args
	}
	return e
}
