package stream

import (
	"context"
	"sync"
	"time"
)

// EventKind labels what happened on a case.
type EventKind string

const (
	CaseFiled          EventKind = "case.filed"
	StageAdvanced      EventKind = "case.stage_advanced"
	EvidenceSubmitted  EventKind = "evidence.submitted"
	MaterialSubmitted  EventKind = "material.submitted"
	CorrectionResolved EventKind = "correction.resolved"
	ObjectionResolved  EventKind = "objection.resolved"
	IntegrityMismatch  EventKind = "evidence.integrity_mismatch"
)

// Event describes one case-related occurrence for live subscribers
// (SSE clients). All fields are plain strings to keep the payload flat.
type Event struct {
	Kind     EventKind `json:"kind"`
	CaseID   string    `json:"case_id,omitempty"`
	RecordID string    `json:"record_id,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	Role     string    `json:"role,omitempty"`
	Stage    string    `json:"stage,omitempty"`
	At       time.Time `json:"at"`
}

// Stream fan-outs case events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber whose channel closes when ctx ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish delivers the event to every subscriber. Slow subscribers drop
// events rather than block the publisher.
func (s *Stream) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports active subscribers (used by /readyz details).
func (s *Stream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
