package orchestrator

import "sync"

// Registry keys live sessions by meeting id. It is the only piece of state
// shared across webhook handler goroutines; every other session mutation is
// owned by the session's read loop.
//
// One registry belongs to one Orchestrator. There is no package-level
// instance, so tests get full isolation.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Get(meetingID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[meetingID]
	return s, ok
}

// GetOrCreate returns the session registered for meetingID, creating and
// registering one with create when absent. Creation is serialized per key:
// two concurrent callers can never both observe "absent", so at most one
// session per meeting ever exists. The second return reports whether this
// call created the entry and therefore owns its establishment.
func (r *Registry) GetOrCreate(meetingID string, create func() *Session) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[meetingID]; ok {
		return s, false
	}
	s := create()
	r.sessions[meetingID] = s
	return s, true
}

// RemoveIf deletes the entry for meetingID only while it still holds s.
// A teardown racing a successor session for the same meeting id can then
// never evict the successor.
func (r *Registry) RemoveIf(meetingID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[meetingID]; ok && current == s {
		delete(r.sessions, meetingID)
		return true
	}
	return false
}

// Remove deletes and returns whatever session is registered for meetingID.
func (r *Registry) Remove(meetingID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[meetingID]
	if ok {
		delete(r.sessions, meetingID)
	}
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
