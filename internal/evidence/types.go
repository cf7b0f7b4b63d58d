package evidence

import (
	"errors"
	"time"

	"casechain.org/internal/anchor"
	"casechain.org/internal/auth"
	"casechain.org/internal/fingerprint"
)

// Evidence statuses. `corrected` is only ever set by approving a linked
// Correction; `verified` and `rejected` only by a judge's objection
// ruling. Nothing edits a status directly.
const (
	EvidencePending   = "pending"
	EvidenceVerified  = "verified"
	EvidenceRejected  = "rejected"
	EvidenceCorrected = "corrected"
)

// Correction approval statuses.
const (
	CorrectionPending  = "pending"
	CorrectionApproved = "approved"
	CorrectionRejected = "rejected"
)

// Objection statuses.
const (
	ObjectionPending  = "pending"
	ObjectionAccepted = "accepted"
	ObjectionRejected = "rejected"
)

// Evidence is one custody-chain entry. The fingerprint is written once
// at creation and never changes; corrections append new records instead.
type Evidence struct {
	ID          string             `json:"id"`
	CaseID      string             `json:"case_id"`
	Uploader    string             `json:"uploader"`
	Role        auth.Role          `json:"role"`
	Name        string             `json:"name"`
	Fingerprint fingerprint.Digest `json:"fingerprint"`
	Status      string             `json:"status"`
	AnchorTxRef anchor.TxRef       `json:"anchor_tx_ref,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Anchored reports whether the fingerprint made it onto the external ledger.
func (e Evidence) Anchored() bool { return !e.AnchorTxRef.IsZero() }

// Correction targets exactly one original Evidence; a correction never
// targets another correction, so chain depth is capped at one by
// construction.
type Correction struct {
	ID          string             `json:"id"`
	EvidenceID  string             `json:"evidence_id"`
	CaseID      string             `json:"case_id"`
	Uploader    string             `json:"uploader"`
	Role        auth.Role          `json:"role"`
	Reason      string             `json:"reason"`
	Fingerprint fingerprint.Digest `json:"fingerprint"`
	Status      string             `json:"status"`
	AnchorTxRef anchor.TxRef       `json:"anchor_tx_ref,omitempty"`
	ResolvedBy  string             `json:"resolved_by,omitempty"`
	Rationale   string             `json:"rationale,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	ResolvedAt  *time.Time         `json:"resolved_at,omitempty"`
}

// Material is a defense submission by a lawyer. It shares the evidence
// immutability rule once the case closes.
type Material struct {
	ID          string             `json:"id"`
	CaseID      string             `json:"case_id"`
	Uploader    string             `json:"uploader"`
	Class       string             `json:"class"`
	Name        string             `json:"name"`
	Fingerprint fingerprint.Digest `json:"fingerprint"`
	AnchorTxRef anchor.TxRef       `json:"anchor_tx_ref,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Anchored reports whether the fingerprint made it onto the external ledger.
func (m Material) Anchored() bool { return !m.AnchorTxRef.IsZero() }

// Objection is a lawyer's challenge against one evidence item; a judge
// resolves it exactly once.
type Objection struct {
	ID         string     `json:"id"`
	CaseID     string     `json:"case_id"`
	EvidenceID string     `json:"evidence_id"`
	Submitter  string     `json:"submitter"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	Rationale  string     `json:"rationale,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Verify verdicts. Mismatch and Unanchored are first-class results the
// caller must branch on, not errors.
type VerifyResult string

const (
	VerifyMatch       VerifyResult = "match"
	VerifyMismatch    VerifyResult = "mismatch"
	VerifyUnanchored  VerifyResult = "unanchored"
	VerifyUnavailable VerifyResult = "unavailable"
)

// Verification is the full outcome of a verify call.
type Verification struct {
	EvidenceID string             `json:"evidence_id"`
	Result     VerifyResult       `json:"result"`
	TxRef      anchor.TxRef       `json:"tx_ref,omitempty"`
	Local      fingerprint.Digest `json:"local_fingerprint"`
	Ledger     fingerprint.Digest `json:"ledger_fingerprint,omitempty"`
}

var (
	ErrNotFound          = errors.New("evidence: record not found")
	ErrAlreadyHandled    = errors.New("evidence: objection already resolved")
	ErrCorrectionClosed  = errors.New("evidence: correction already resolved")
	ErrCorrectionPending = errors.New("evidence: evidence already has a pending correction")
	ErrFingerprintSet    = errors.New("evidence: fingerprint already set")
	ErrAnchorSet         = errors.New("evidence: anchor reference already set")
	ErrInvalidInput      = errors.New("evidence: invalid input")
)
