package evidence

import (
	"context"
	"time"

	"casechain.org/internal/anchor"
)

// Store persists the custody chain. Implementations must make
// ResolveCorrection and ResolveObjection atomic: no observer may see a
// correction approved while its original evidence still reads pending.
type Store interface {
	// CreateEvidence persists a new record. A record id may only ever
	// carry one fingerprint; re-creating an id fails with
	// ErrFingerprintSet.
	CreateEvidence(ctx context.Context, e *Evidence) error
	FindEvidence(ctx context.Context, id string) (*Evidence, error)
	ListEvidenceByCase(ctx context.Context, caseID string) ([]*Evidence, error)
	// ListAnchored returns every anchored evidence record (sweep input).
	ListAnchored(ctx context.Context) ([]*Evidence, error)
	// SetEvidenceAnchor records the ledger reference, write-once.
	SetEvidenceAnchor(ctx context.Context, id string, ref anchor.TxRef) error
	DeleteEvidence(ctx context.Context, id string) error

	// CreateCorrection fails with ErrCorrectionPending when the original
	// already has an open correction.
	CreateCorrection(ctx context.Context, c *Correction) error
	FindCorrection(ctx context.Context, id string) (*Correction, error)
	ListCorrectionsByEvidence(ctx context.Context, evidenceID string) ([]*Correction, error)
	SetCorrectionAnchor(ctx context.Context, id string, ref anchor.TxRef) error
	// ResolveCorrection sets the correction outcome and, on approval,
	// flips the original evidence to corrected in the same write.
	ResolveCorrection(ctx context.Context, id string, approve bool, resolvedBy, rationale string, at time.Time) (*Correction, error)

	CreateMaterial(ctx context.Context, m *Material) error
	FindMaterial(ctx context.Context, id string) (*Material, error)
	ListMaterialsByCase(ctx context.Context, caseID string) ([]*Material, error)
	SetMaterialAnchor(ctx context.Context, id string, ref anchor.TxRef) error
	DeleteMaterial(ctx context.Context, id string) error

	CreateObjection(ctx context.Context, o *Objection) error
	FindObjection(ctx context.Context, id string) (*Objection, error)
	ListObjectionsByCase(ctx context.Context, caseID string) ([]*Objection, error)
	// ResolveObjection is single-shot: resolving a non-pending objection
	// fails with ErrAlreadyHandled. The ruling carries over to the target
	// evidence in the same write: acceptance strikes it to rejected,
	// rejection upholds it as verified. A non-pending evidence status
	// (corrected, or an earlier ruling) is never overwritten.
	ResolveObjection(ctx context.Context, id string, accept bool, resolvedBy, rationale string, at time.Time) (*Objection, error)
}
