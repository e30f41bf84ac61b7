// Package session owns the per-session note lists used by the session-scoped
// tools. State lives in memory behind a single mutex and is optionally mirrored
// to a Backend after every mutation.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Snapshot is handed to Backend.Save after a mutation.
type Snapshot struct {
	// Sessions is the full state after the mutation. Backends must not retain it.
	Sessions map[string][]string
	// Changed names the session that was touched. Empty after a Reset.
	Changed string
}

// Backend persists session notes.
type Backend interface {
	Load(ctx context.Context) (map[string][]string, error)
	Save(ctx context.Context, snap Snapshot) error
}

// SessionBackend is a Backend that writes one session at a time. The store
// hands it only the changed session's notes instead of a full Snapshot.
// Reset still goes through Save with an empty Snapshot.
type SessionBackend interface {
	Backend
	SaveSession(ctx context.Context, sessionID string, notes []string) error
}

// Store maps session id to an ordered note list. Mutations hold the lock
// across the backend write, so writes reach the backend in mutation order and
// a slow backend stalls every session.
type Store struct {
	mu      sync.Mutex
	notes   map[string][]string
	backend Backend // nil = memory only
	logger  *zap.Logger
}

// NewStore creates an empty store. backend may be nil.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	return &Store{
		notes:   make(map[string][]string),
		backend: backend,
		logger:  logger,
	}
}

// Hydrate replaces the in-memory state with whatever the backend holds. A
// load failure is logged and leaves the store empty.
func (s *Store) Hydrate(ctx context.Context) {
	if s.backend == nil {
		return
	}
	loaded, err := s.backend.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = make(map[string][]string, len(loaded))
	if err != nil {
		s.logger.Warn("session hydrate failed, starting empty", zap.Error(err))
		return
	}
	for id, list := range loaded {
		if id == "" {
			continue
		}
		s.notes[id] = append([]string(nil), list...)
	}
	s.logger.Info("sessions hydrated", zap.Int("sessions", len(s.notes)))
}

// Append adds text to the end of the session's list and returns the new count.
func (s *Store) Append(ctx context.Context, sessionID, text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes[sessionID] = append(s.notes[sessionID], text)
	s.persist(ctx, sessionID)
	return len(s.notes[sessionID])
}

// List returns a copy of the session's notes. Unknown sessions yield an empty,
// non-nil slice.
func (s *Store) List(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.notes[sessionID]))
	copy(out, s.notes[sessionID])
	return out
}

// Clear empties the session's list and returns how many notes were removed.
// The session entry itself is kept.
func (s *Store) Clear(ctx context.Context, sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.notes[sessionID])
	s.notes[sessionID] = []string{}
	s.persist(ctx, sessionID)
	return n
}

// Reset drops every session.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes = make(map[string][]string)
	s.persist(ctx, "")
}

// Sessions returns the number of known sessions.
func (s *Store) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

// persist must be called with mu held. Write-back failures never fail the
// caller's mutation.
func (s *Store) persist(ctx context.Context, changed string) {
	if s.backend == nil {
		return
	}

	var err error
	if sb, ok := s.backend.(SessionBackend); ok && changed != "" {
		err = sb.SaveSession(ctx, changed, append([]string{}, s.notes[changed]...))
	} else {
		snap := Snapshot{Sessions: make(map[string][]string, len(s.notes)), Changed: changed}
		for id, list := range s.notes {
			snap.Sessions[id] = append([]string{}, list...)
		}
		err = s.backend.Save(ctx, snap)
	}
	if err != nil {
		s.logger.Warn("session write-back failed",
			zap.String("session_id", changed),
			zap.Error(err),
		)
	}
}
