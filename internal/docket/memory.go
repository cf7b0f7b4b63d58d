package docket

import (
	"context"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu       sync.RWMutex
	cases    map[string]*Case
	timeline map[string][]TimelineEntry
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		cases:    make(map[string]*Case),
		timeline: make(map[string][]TimelineEntry),
	}
}

func (s *InMemory) Create(ctx context.Context, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.cases[c.ID] = &cp
	return nil
}

func (s *InMemory) Find(ctx context.Context, id string) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) ListByParticipant(ctx context.Context, address string) ([]*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Case
	for _, c := range s.cases {
		if c.Participants.Contains(address) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) AdvanceStage(ctx context.Context, id string, from, to Stage, version uint64, entry TimelineEntry) (*Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Version != version || c.Stage != from {
		return nil, ErrConcurrentModification
	}
	c.Stage = to
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	s.timeline[id] = append(s.timeline[id], entry)
	cp := *c
	return &cp, nil
}

func (s *InMemory) Archive(ctx context.Context, id string, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return ErrNotFound
	}
	if c.Version != version {
		return ErrConcurrentModification
	}
	c.Archived = true
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) Timeline(ctx context.Context, caseID string) ([]TimelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.timeline[caseID]
	out := make([]TimelineEntry, len(entries))
	copy(out, entries)
	return out, nil
}
