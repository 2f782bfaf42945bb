package stream

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionExists is returned when a publish arrives for a key that
// already has a live session. The first session keeps running.
var ErrSessionExists = errors.New("session already exists for stream key")

// Registry tracks the set of currently live ingest sessions. The lifecycle
// controller is the only writer; the query API only reads. State is
// in-memory only: a restart loses all sessions, which is acceptable because
// live streams are re-announced by re-publishing.
type Registry interface {
	// Register creates a session for key with Viewers=0 and StartTime=now.
	// It returns ErrSessionExists if the key already has a live session.
	Register(key StreamKey, connectionID, ingestPath string) error

	// Unregister removes the session for key. Removing an absent key is a no-op.
	Unregister(key StreamKey)

	// AddViewer increments the viewer count; no-op if the key is absent.
	AddViewer(key StreamKey)

	// RemoveViewer decrements the viewer count, flooring at zero;
	// no-op if the key is absent.
	RemoveViewer(key StreamKey)

	// Get returns a copy of the session for key.
	Get(key StreamKey) (Session, bool)

	// List returns a snapshot of all live sessions in no particular order.
	List() []Session

	// ActiveCount returns the number of live sessions. Used for metrics.
	ActiveCount() int
}

// InMemoryRegistry is a mutex-guarded in-memory implementation of Registry.
type InMemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[StreamKey]*Session
}

// NewInMemoryRegistry returns a new empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		sessions: make(map[StreamKey]*Session),
	}
}

// Register implements Registry.Register.
func (r *InMemoryRegistry) Register(key StreamKey, connectionID, ingestPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[key]; exists {
		return ErrSessionExists
	}

	r.sessions[key] = &Session{
		Key:          key,
		ConnectionID: connectionID,
		IngestPath:   ingestPath,
		StartTime:    time.Now().UTC(),
	}
	return nil
}

// Unregister implements Registry.Unregister.
func (r *InMemoryRegistry) Unregister(key StreamKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
}

// AddViewer implements Registry.AddViewer.
func (r *InMemoryRegistry) AddViewer(key StreamKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		s.Viewers++
	}
}

// RemoveViewer implements Registry.RemoveViewer.
func (r *InMemoryRegistry) RemoveViewer(key StreamKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok && s.Viewers > 0 {
		s.Viewers--
	}
}

// Get implements Registry.Get.
func (r *InMemoryRegistry) Get(key StreamKey) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// List implements Registry.List.
func (r *InMemoryRegistry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// ActiveCount implements Registry.ActiveCount.
func (r *InMemoryRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// TotalViewers returns the sum of viewer counts across all sessions.
// Used to refresh the viewers gauge before a metrics scrape.
func (r *InMemoryRegistry) TotalViewers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		n += s.Viewers
	}
	return n
}
