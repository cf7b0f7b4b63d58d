package docket

import (
	"context"
	"fmt"
	"strings"
	"time"

	"casechain.org/internal/auth"
	"casechain.org/internal/ids"
	"casechain.org/internal/obs"
	"casechain.org/internal/stream"
)

// Service runs the stage machine and case lifecycle over a Store.
// Policy checks happen before the call (see internal/policy); the
// service re-validates participation because the stage machine owns
// that invariant regardless of who calls it.
type Service struct {
	store  Store
	events *stream.Stream
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithEvents publishes timeline events to the given stream.
func WithEvents(s *stream.Stream) ServiceOption {
	return func(svc *Service) { svc.events = s }
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(svc *Service) {
		if fn != nil {
			svc.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// NewCaseInput carries everything needed to file a case.
type NewCaseInput struct {
	Type        CaseType
	Title       string
	Prosecutors []string
	Judges      []string
	Plaintiff   []string
	Defendant   []string
}

// Create files a new case in INVESTIGATION with the actor as filing
// police identity.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in NewCaseInput) (*Case, error) {
	switch in.Type {
	case CasePublicProsecution, CaseCivilLitigation:
	default:
		return nil, fmt.Errorf("%w: unsupported case type %q", ErrInvalidInput, in.Type)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	c := &Case{
		ID:     ids.New(),
		Number: ids.CaseNumber(now),
		Type:   in.Type,
		Title:  title,
		Stage:  StageInvestigation,
		Participants: Participants{
			FilingPolice:     actor.Address,
			Prosecutors:      dedupe(in.Prosecutors),
			Judges:           dedupe(in.Judges),
			PlaintiffLawyers: dedupe(in.Plaintiff),
			DefendantLawyers: dedupe(in.Defendant),
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	s.publish(stream.Event{Kind: stream.CaseFiled, CaseID: c.ID, Actor: actor.Address, Role: string(actor.Role), Stage: string(c.Stage), At: now})
	return c, nil
}

// Get returns the case by id.
func (s *Service) Get(ctx context.Context, id string) (*Case, error) {
	return s.store.Find(ctx, id)
}

// ListFor returns cases the address is attached to.
func (s *Service) ListFor(ctx context.Context, address string) ([]*Case, error) {
	return s.store.ListByParticipant(ctx, address)
}

// Timeline returns the case's applied transitions in order.
func (s *Service) Timeline(ctx context.Context, caseID string) ([]TimelineEntry, error) {
	if _, err := s.store.Find(ctx, caseID); err != nil {
		return nil, err
	}
	return s.store.Timeline(ctx, caseID)
}

// Advance applies the single legal transition for the actor's role.
// Exactly one of two concurrent callers wins; the loser sees
// ErrConcurrentModification (or ErrAlreadyTerminal on re-read).
func (s *Service) Advance(ctx context.Context, caseID string, actor auth.Actor, comment string) (*Case, error) {
	c, err := s.store.Find(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Archived {
		return nil, ErrArchived
	}
	if c.Stage.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	next, ok := AllowedNext(c.Stage, actor.Role)
	if !ok {
		return nil, ErrIllegalTransition
	}
	if !c.Participants.Has(actor.Role, actor.Address) {
		return nil, ErrNotParticipant
	}

	now := s.now().UTC()
	entry := TimelineEntry{
		ID:      ids.New(),
		CaseID:  c.ID,
		From:    c.Stage,
		To:      next,
		Actor:   actor.Address,
		Role:    actor.Role,
		Comment: strings.TrimSpace(comment),
		At:      now,
	}
	updated, err := s.store.AdvanceStage(ctx, c.ID, c.Stage, next, c.Version, entry)
	if err != nil {
		return nil, err
	}

	obs.StageTransitions.WithLabelValues(string(entry.From), string(entry.To), string(actor.Role)).Inc()
	s.publish(stream.Event{Kind: stream.StageAdvanced, CaseID: c.ID, Actor: actor.Address, Role: string(actor.Role), Stage: string(next), At: now})
	return updated, nil
}

// Archive soft-deletes the case; evidence keeps referencing it.
func (s *Service) Archive(ctx context.Context, caseID string) error {
	c, err := s.store.Find(ctx, caseID)
	if err != nil {
		return err
	}
	return s.store.Archive(ctx, c.ID, c.Version)
}

func (s *Service) publish(ev stream.Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
