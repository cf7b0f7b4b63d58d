package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"casechain.org/internal/anchor"
	"casechain.org/internal/auth"
	"casechain.org/internal/docket"
	"casechain.org/internal/fingerprint"
	"casechain.org/internal/ids"
	"casechain.org/internal/obs"
	"casechain.org/internal/policy"
	"casechain.org/internal/stream"
)

// CaseFinder is the slice of the docket store the custody chain needs.
type CaseFinder interface {
	Find(ctx context.Context, id string) (*docket.Case, error)
}

// Service maintains the evidence/correction chain of custody. Every
// mutating operation authorizes against the policy table first, writes
// locally, and only then talks to the anchor ledger. A ledger timeout
// degrades to an unanchored record, never a lost one.
type Service struct {
	store  Store
	cases  CaseFinder
	ledger anchor.Client
	events *stream.Stream
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithEvents publishes custody events to the given stream.
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

// NewService constructs a Service. The anchor client may be nil in dev
// mode; every submission then stays unanchored.
func NewService(store Store, cases CaseFinder, ledger anchor.Client, opts ...ServiceOption) (*Service, error) {
	if store == nil || cases == nil {
		return nil, fmt.Errorf("%w: store and case finder are required", ErrInvalidInput)
	}
	svc := &Service{store: store, cases: cases, ledger: ledger, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Submit files new evidence on a case. The fingerprint is computed from
// the actual content bytes, persisted pending, then anchored.
func (s *Service) Submit(ctx context.Context, caseID string, actor auth.Actor, name string, content []byte) (*Evidence, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	c, err := s.cases.Find(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionCreate, Resource: policy.ResourceEvidence, Case: c,
	}).Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e := &Evidence{
		ID:          ids.New(),
		CaseID:      c.ID,
		Uploader:    actor.Address,
		Role:        actor.Role,
		Name:        strings.TrimSpace(name),
		Fingerprint: fingerprint.Sum(content),
		Status:      EvidencePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateEvidence(ctx, e); err != nil {
		return nil, err
	}

	if ref, ok := s.anchorRecord(ctx, e.ID, e.Fingerprint); ok {
		if err := s.store.SetEvidenceAnchor(ctx, e.ID, ref); err != nil {
			return nil, err
		}
		e.AnchorTxRef = ref
	}
	s.publish(stream.Event{Kind: stream.EvidenceSubmitted, CaseID: c.ID, RecordID: e.ID, Actor: actor.Address, Role: string(actor.Role), Stage: string(c.Stage), At: now})
	return e, nil
}

// GetEvidence returns one evidence record after a read-policy check.
func (s *Service) GetEvidence(ctx context.Context, id string, actor auth.Actor) (*Evidence, error) {
	e, err := s.store.FindEvidence(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.Find(ctx, e.CaseID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionRead, Resource: policy.ResourceEvidence, Case: c,
	}).Err(); err != nil {
		return nil, err
	}
	return e, nil
}

// ListEvidence returns a case's evidence after a read-policy check.
func (s *Service) ListEvidence(ctx context.Context, caseID string, actor auth.Actor) ([]*Evidence, error) {
	c, err := s.cases.Find(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionRead, Resource: policy.ResourceEvidence, Case: c,
	}).Err(); err != nil {
		return nil, err
	}
	return s.store.ListEvidenceByCase(ctx, caseID)
}

// DeleteEvidence removes an uploader's own record while the case stage
// still allows mutation.
func (s *Service) DeleteEvidence(ctx context.Context, id string, actor auth.Actor) error {
	e, err := s.store.FindEvidence(ctx, id)
	if err != nil {
		return err
	}
	c, err := s.cases.Find(ctx, e.CaseID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionDelete, Resource: policy.ResourceEvidence, Case: c, Owner: e.Uploader,
	}).Err(); err != nil {
		return err
	}
	return s.store.DeleteEvidence(ctx, id)
}

// SubmitCorrection opens a correction against an original evidence
// record. At most one correction may be pending per original.
func (s *Service) SubmitCorrection(ctx context.Context, evidenceID string, actor auth.Actor, reason string, content []byte) (*Correction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || len(content) == 0 {
		return nil, fmt.Errorf("%w: reason and content are required", ErrInvalidInput)
	}
	orig, err := s.store.FindEvidence(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.Find(ctx, orig.CaseID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionCreate, Resource: policy.ResourceCorrection, Case: c, Owner: orig.Uploader,
	}).Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	corr := &Correction{
		ID:          ids.New(),
		EvidenceID:  orig.ID,
		CaseID:      orig.CaseID,
		Uploader:    actor.Address,
		Role:        actor.Role,
		Reason:      reason,
		Fingerprint: fingerprint.Sum(content),
		Status:      CorrectionPending,
		CreatedAt:   now,
	}
	if err := s.store.CreateCorrection(ctx, corr); err != nil {
		return nil, err
	}

	if ref, ok := s.anchorRecord(ctx, corr.ID, corr.Fingerprint); ok {
		if err := s.store.SetCorrectionAnchor(ctx, corr.ID, ref); err != nil {
			return nil, err
		}
		corr.AnchorTxRef = ref
	}
	return corr, nil
}

// ListCorrections returns an evidence record's corrections after a
// read-policy check against the owning case.
func (s *Service) ListCorrections(ctx context.Context, evidenceID string, actor auth.Actor) ([]*Correction, error) {
	orig, err := s.store.FindEvidence(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.Find(ctx, orig.CaseID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionRead, Resource: policy.ResourceCorrection, Case: c,
	}).Err(); err != nil {
		return nil, err
	}
	return s.store.ListCorrectionsByEvidence(ctx, evidenceID)
}

// ResolveCorrection applies a judge's decision. Approval and the
// original's flip to corrected land as one atomic store write.
func (s *Service) ResolveCorrection(ctx context.Context, correctionID string, actor auth.Actor, approve bool, rationale string) (*Correction, error) {
	rationale = strings.TrimSpace(rationale)
	if rationale == "" {
		return nil, fmt.Errorf("%w: rationale is required", ErrInvalidInput)
	}
	corr, err := s.store.FindCorrection(ctx, correctionID)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.Find(ctx, corr.CaseID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionHandle, Resource: policy.ResourceCorrection, Case: c,
	}).Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	resolved, err := s.store.ResolveCorrection(ctx, correctionID, approve, actor.Address, rationale, now)
	if err != nil {
		return nil, err
	}
	s.publish(stream.Event{Kind: stream.CorrectionResolved, CaseID: corr.CaseID, RecordID: corr.ID, Actor: actor.Address, Role: string(actor.Role), At: now})
	return resolved, nil
}

// SubmitMaterial files a defense material on a case.
func (s *Service) SubmitMaterial(ctx context.Context, caseID string, actor auth.Actor, class, name string, content []byte) (*Material, error) {
	class = strings.TrimSpace(class)
	if class == "" || len(content) == 0 {
		return nil, fmt.Errorf("%w: class and content are required", ErrInvalidInput)
	}
	c, err := s.cases.Find(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionCreate, Resource: policy.ResourceMaterial, Case: c,
	}).Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	m := &Material{
		ID:          ids.New(),
		CaseID:      c.ID,
		Uploader:    actor.Address,
		Class:       class,
		Name:        strings.TrimSpace(name),
		Fingerprint: fingerprint.Sum(content),
		CreatedAt:   now,
	}
	if err := s.store.CreateMaterial(ctx, m); err != nil {
		return nil, err
	}
	if ref, ok := s.anchorRecord(ctx, m.ID, m.Fingerprint); ok {
		if err := s.store.SetMaterialAnchor(ctx, m.ID, ref); err != nil {
			return nil, err
		}
		m.AnchorTxRef = ref
	}
	s.publish(stream.Event{Kind: stream.MaterialSubmitted, CaseID: c.ID, RecordID: m.ID, Actor: actor.Address, Role: string(actor.Role), Stage: string(c.Stage), At: now})
	return m, nil
}

// ListMaterials returns a case's defense materials after a read check.
func (s *Service) ListMaterials(ctx context.Context, caseID string, actor auth.Actor) ([]*Material, error) {
	c, err := s.cases.Find(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionRead, Resource: policy.ResourceMaterial, Case: c,
	}).Err(); err != nil {
		return nil, err
	}
	return s.store.ListMaterialsByCase(ctx, caseID)
}

// Verify re-reads the anchored fingerprint from the ledger and compares
// it byte for byte against the stored one. Nothing is recomputed: the
// local fingerprint is immutable.
func (s *Service) Verify(ctx context.Context, evidenceID string, actor auth.Actor) (Verification, error) {
	e, err := s.store.FindEvidence(ctx, evidenceID)
	if err != nil {
		return Verification{}, err
	}
	c, err := s.cases.Find(ctx, e.CaseID)
	if err != nil {
		return Verification{}, err
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionVerify, Resource: policy.ResourceEvidence, Case: c,
	}).Err(); err != nil {
		return Verification{}, err
	}
	return s.verify(ctx, e), nil
}

// verify holds the comparison logic shared with the integrity sweep.
func (s *Service) verify(ctx context.Context, e *Evidence) Verification {
	v := Verification{EvidenceID: e.ID, Local: e.Fingerprint, TxRef: e.AnchorTxRef}
	if !e.Anchored() || s.ledger == nil {
		v.Result = VerifyUnanchored
		obs.VerifyVerdicts.WithLabelValues(string(VerifyUnanchored)).Inc()
		return v
	}

	callCtx, cancel := anchor.WithTimeout(ctx, 0)
	defer cancel()
	ledgerFP, err := s.ledger.Read(callCtx, e.AnchorTxRef)
	if err != nil {
		if errors.Is(err, anchor.ErrNotFound) {
			// Anchored locally but gone on the ledger: that is a
			// tamper signal, not an availability problem.
			v.Result = VerifyMismatch
		} else {
			v.Result = VerifyUnavailable
			obs.Warn("anchor ledger unreachable during verify", map[string]any{"evidence_id": e.ID, "error": err.Error()})
		}
		obs.VerifyVerdicts.WithLabelValues(string(v.Result)).Inc()
		return v
	}

	v.Ledger = ledgerFP
	if e.Fingerprint.Equal(ledgerFP) {
		v.Result = VerifyMatch
	} else {
		v.Result = VerifyMismatch
	}
	obs.VerifyVerdicts.WithLabelValues(string(v.Result)).Inc()
	if v.Result == VerifyMismatch {
		s.publish(stream.Event{Kind: stream.IntegrityMismatch, CaseID: e.CaseID, RecordID: e.ID, At: s.now().UTC()})
	}
	return v
}

// VerifyAnchored runs the comparison for every anchored record without
// a policy gate; only the integrity sweep calls it.
func (s *Service) VerifyAnchored(ctx context.Context) ([]Verification, error) {
	records, err := s.store.ListAnchored(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Verification, 0, len(records))
	for _, e := range records {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, s.verify(ctx, e))
	}
	return out, nil
}

func (s *Service) anchorRecord(ctx context.Context, recordID string, fp fingerprint.Digest) (anchor.TxRef, bool) {
	if s.ledger == nil {
		return "", false
	}
	callCtx, cancel := anchor.WithTimeout(ctx, 0)
	defer cancel()
	ref, err := s.ledger.Anchor(callCtx, recordID, fp)
	if err != nil {
		obs.AnchorFailures.Inc()
		obs.Warn("record not anchored", map[string]any{"record_id": recordID, "error": err.Error()})
		return "", false
	}
	return ref, true
}

func (s *Service) publish(ev stream.Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}
