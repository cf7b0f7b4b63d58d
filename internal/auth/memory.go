package auth

import (
	"context"
	"sync"
	"time"

	"casechain.org/internal/anchor"
)

// MemoryAssignments implements AssignmentStore in process.
type MemoryAssignments struct {
	mu     sync.RWMutex
	byID   map[string]*Assignment
	active map[string]string // address -> assignment id
	order  []string
}

// NewMemoryAssignments returns an empty store.
func NewMemoryAssignments() *MemoryAssignments {
	return &MemoryAssignments{
		byID:   make(map[string]*Assignment),
		active: make(map[string]string),
	}
}

func (s *MemoryAssignments) Create(ctx context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[a.Address]; ok {
		return ErrActiveAssignment
	}
	cp := *a
	s.byID[a.ID] = &cp
	s.active[a.Address] = a.ID
	s.order = append(s.order, a.ID)
	return nil
}

func (s *MemoryAssignments) Find(ctx context.Context, id string) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryAssignments) Active(ctx context.Context, address string) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[address]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryAssignments) Revoke(ctx context.Context, id string, ref anchor.TxRef, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != AssignmentActive {
		return ErrAlreadyRevoked
	}
	a.Status = AssignmentRevoked
	a.RevokeTxRef = ref
	t := at
	a.RevokedAt = &t
	delete(s.active, a.Address)
	return nil
}

func (s *MemoryAssignments) List(ctx context.Context) ([]*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Assignment, 0, len(s.order))
	for _, id := range s.order {
		cp := *s.byID[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryAssignments) SetGrantTxRef(ctx context.Context, id string, ref anchor.TxRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.GrantTxRef = ref
	return nil
}
