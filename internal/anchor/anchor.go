// Package anchor talks to the external immutable ledger that records
// evidence fingerprints. The ledger itself (consensus, wallets, the
// contract) is somebody else's problem; this package only knows how to
// write a fingerprint and read it back.
package anchor

import (
	"context"
	"errors"

	"casechain.org/internal/fingerprint"
)

// TxRef identifies a previously anchored record on the external ledger.
type TxRef string

// IsZero reports whether the reference is absent (record never anchored).
func (r TxRef) IsZero() bool { return r == "" }

var (
	// ErrUnavailable means the ledger could not be reached or timed out.
	// Callers treat it as a warning: local state is already durable.
	ErrUnavailable = errors.New("anchor: ledger unavailable")

	// ErrNotFound means the ledger has no record under the given reference.
	ErrNotFound = errors.New("anchor: record not found")
)

// Client is the narrow write/read contract consumed by the engine.
type Client interface {
	// Anchor records a fingerprint under the given record identifier and
	// returns the ledger transaction reference.
	Anchor(ctx context.Context, recordID string, fp fingerprint.Digest) (TxRef, error)

	// Read returns the fingerprint previously anchored under ref.
	Read(ctx context.Context, ref TxRef) (fingerprint.Digest, error)
}
