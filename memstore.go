package orchestrator

import (
	"context"
	"sync"
	"time"
)

// MemoryMeetingStore is a mutex-guarded in-memory MeetingStore. It backs the
// example server and tests; production deployments plug in a database-backed
// implementation.
type MemoryMeetingStore struct {
	mu       sync.RWMutex
	meetings map[string]*Meeting
}

var _ MeetingStore = (*MemoryMeetingStore)(nil)

func NewMemoryMeetingStore(meetings ...*Meeting) *MemoryMeetingStore {
	s := &MemoryMeetingStore{meetings: make(map[string]*Meeting)}
	for _, m := range meetings {
		s.meetings[m.ID] = m
	}
	return s
}

func (s *MemoryMeetingStore) Put(m *Meeting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings[m.ID] = m
}

func (s *MemoryMeetingStore) FindByID(_ context.Context, id string) (*Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, nil
	}
	clone := *m
	return &clone, nil
}

func (s *MemoryMeetingStore) UpdateStatus(_ context.Context, id string, status MeetingStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil
	}
	m.Status = status
	switch status {
	case MeetingStatusActive:
		m.StartedAt = &at
	case MeetingStatusCompleted:
		m.EndedAt = &at
	}
	return nil
}

// MemoryAgentStore is a mutex-guarded in-memory AgentStore.
type MemoryAgentStore struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

var _ AgentStore = (*MemoryAgentStore)(nil)

func NewMemoryAgentStore(agents ...*Agent) *MemoryAgentStore {
	s := &MemoryAgentStore{agents: make(map[string]*Agent)}
	for _, a := range agents {
		s.agents[a.ID] = a
	}
	return s
}

func (s *MemoryAgentStore) Put(a *Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
}

func (s *MemoryAgentStore) FindByID(_ context.Context, id string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, nil
	}
	clone := *a
	return &clone, nil
}
