// Package storage exports audit entries to analytics sinks.
package storage

import "github.com/webmcp/relay/internal/protocol"

// EventWriter receives every completed tool call's audit entry.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(entry *protocol.AuditEntry)
	Close()
}
