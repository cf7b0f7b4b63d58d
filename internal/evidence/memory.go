package evidence

import (
	"context"
	"sync"
	"time"

	"casechain.org/internal/anchor"
)

// InMemory implements Store with a single mutex, which makes the
// correction-approval and objection-resolution writes trivially atomic.
type InMemory struct {
	mu          sync.RWMutex
	evidence    map[string]*Evidence
	corrections map[string]*Correction
	materials   map[string]*Material
	objections  map[string]*Objection
	order       []string // evidence ids in insertion order
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		evidence:    make(map[string]*Evidence),
		corrections: make(map[string]*Correction),
		materials:   make(map[string]*Material),
		objections:  make(map[string]*Objection),
	}
}

func (s *InMemory) CreateEvidence(ctx context.Context, e *Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evidence[e.ID]; ok {
		return ErrFingerprintSet
	}
	cp := *e
	s.evidence[e.ID] = &cp
	s.order = append(s.order, e.ID)
	return nil
}

func (s *InMemory) FindEvidence(ctx context.Context, id string) (*Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.evidence[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *InMemory) ListEvidenceByCase(ctx context.Context, caseID string) ([]*Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Evidence
	for _, id := range s.order {
		if e := s.evidence[id]; e != nil && e.CaseID == caseID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) ListAnchored(ctx context.Context) ([]*Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Evidence
	for _, id := range s.order {
		if e := s.evidence[id]; e != nil && e.Anchored() {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) SetEvidenceAnchor(ctx context.Context, id string, ref anchor.TxRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.evidence[id]
	if !ok {
		return ErrNotFound
	}
	if !e.AnchorTxRef.IsZero() {
		return ErrAnchorSet
	}
	e.AnchorTxRef = ref
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) DeleteEvidence(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evidence[id]; !ok {
		return ErrNotFound
	}
	delete(s.evidence, id)
	return nil
}

func (s *InMemory) CreateCorrection(ctx context.Context, c *Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evidence[c.EvidenceID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.corrections {
		if existing.EvidenceID == c.EvidenceID && existing.Status == CorrectionPending {
			return ErrCorrectionPending
		}
	}
	cp := *c
	s.corrections[c.ID] = &cp
	return nil
}

func (s *InMemory) FindCorrection(ctx context.Context, id string) (*Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.corrections[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) ListCorrectionsByEvidence(ctx context.Context, evidenceID string) ([]*Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Correction
	for _, c := range s.corrections {
		if c.EvidenceID == evidenceID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) SetCorrectionAnchor(ctx context.Context, id string, ref anchor.TxRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corrections[id]
	if !ok {
		return ErrNotFound
	}
	if !c.AnchorTxRef.IsZero() {
		return ErrAnchorSet
	}
	c.AnchorTxRef = ref
	return nil
}

func (s *InMemory) ResolveCorrection(ctx context.Context, id string, approve bool, resolvedBy, rationale string, at time.Time) (*Correction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corrections[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status != CorrectionPending {
		return nil, ErrCorrectionClosed
	}
	// Both writes happen under the same lock: nobody observes an
	// approved correction next to an uncorrected original.
	if approve {
		e, ok := s.evidence[c.EvidenceID]
		if !ok {
			return nil, ErrNotFound
		}
		c.Status = CorrectionApproved
		e.Status = EvidenceCorrected
		e.UpdatedAt = at
	} else {
		c.Status = CorrectionRejected
	}
	c.ResolvedBy = resolvedBy
	c.Rationale = rationale
	t := at
	c.ResolvedAt = &t
	cp := *c
	return &cp, nil
}

func (s *InMemory) CreateMaterial(ctx context.Context, m *Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.materials[m.ID]; ok {
		return ErrFingerprintSet
	}
	cp := *m
	s.materials[m.ID] = &cp
	return nil
}

func (s *InMemory) FindMaterial(ctx context.Context, id string) (*Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.materials[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *InMemory) ListMaterialsByCase(ctx context.Context, caseID string) ([]*Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Material
	for _, m := range s.materials {
		if m.CaseID == caseID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) SetMaterialAnchor(ctx context.Context, id string, ref anchor.TxRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[id]
	if !ok {
		return ErrNotFound
	}
	if !m.AnchorTxRef.IsZero() {
		return ErrAnchorSet
	}
	m.AnchorTxRef = ref
	return nil
}

func (s *InMemory) DeleteMaterial(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.materials[id]; !ok {
		return ErrNotFound
	}
	delete(s.materials, id)
	return nil
}

func (s *InMemory) CreateObjection(ctx context.Context, o *Objection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.objections[o.ID] = &cp
	return nil
}

func (s *InMemory) FindObjection(ctx context.Context, id string) (*Objection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objections[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *InMemory) ListObjectionsByCase(ctx context.Context, caseID string) ([]*Objection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Objection
	for _, o := range s.objections {
		if o.CaseID == caseID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) ResolveObjection(ctx context.Context, id string, accept bool, resolvedBy, rationale string, at time.Time) (*Objection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objections[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Status != ObjectionPending {
		return nil, ErrAlreadyHandled
	}
	if accept {
		o.Status = ObjectionAccepted
	} else {
		o.Status = ObjectionRejected
	}
	// The ruling lands on the target evidence under the same lock, but
	// never overwrites a status set elsewhere.
	if e, ok := s.evidence[o.EvidenceID]; ok && e.Status == EvidencePending {
		if accept {
			e.Status = EvidenceRejected
		} else {
			e.Status = EvidenceVerified
		}
		e.UpdatedAt = at
	}
	o.ResolvedBy = resolvedBy
	o.Rationale = rationale
	t := at
	o.ResolvedAt = &t
	cp := *o
	return &cp, nil
}
