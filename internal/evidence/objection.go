package evidence

import (
	"context"
	"fmt"
	"strings"

	"casechain.org/internal/auth"
	"casechain.org/internal/ids"
	"casechain.org/internal/policy"
	"casechain.org/internal/stream"
)

// SubmitObjection lets an attached lawyer challenge one evidence item.
func (s *Service) SubmitObjection(ctx context.Context, evidenceID string, actor auth.Actor, reason string) (*Objection, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}
	e, err := s.store.FindEvidence(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.Find(ctx, e.CaseID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionCreate, Resource: policy.ResourceObjection, Case: c,
	}).Err(); err != nil {
		return nil, err
	}

	o := &Objection{
		ID:         ids.New(),
		CaseID:     e.CaseID,
		EvidenceID: e.ID,
		Submitter:  actor.Address,
		Reason:     reason,
		Status:     ObjectionPending,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateObjection(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// HandleObjection applies a judge's decision exactly once. Acceptance
// strikes the challenged evidence to rejected, rejection upholds it as
// verified. A second resolution attempt fails with ErrAlreadyHandled
// rather than being silently ignored.
func (s *Service) HandleObjection(ctx context.Context, objectionID string, actor auth.Actor, accept bool, rationale string) (*Objection, error) {
	rationale = strings.TrimSpace(rationale)
	if rationale == "" {
		return nil, fmt.Errorf("%w: rationale is required", ErrInvalidInput)
	}
	o, err := s.store.FindObjection(ctx, objectionID)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.Find(ctx, o.CaseID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionHandle, Resource: policy.ResourceObjection, Case: c,
	}).Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	resolved, err := s.store.ResolveObjection(ctx, objectionID, accept, actor.Address, rationale, now)
	if err != nil {
		return nil, err
	}
	s.publish(stream.Event{Kind: stream.ObjectionResolved, CaseID: o.CaseID, RecordID: o.ID, Actor: actor.Address, Role: string(actor.Role), At: now})
	return resolved, nil
}

// ListObjections returns a case's objections after a read check.
func (s *Service) ListObjections(ctx context.Context, caseID string, actor auth.Actor) ([]*Objection, error) {
	c, err := s.cases.Find(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionRead, Resource: policy.ResourceObjection, Case: c,
	}).Err(); err != nil {
		return nil, err
	}
	return s.store.ListObjectionsByCase(ctx, caseID)
}
