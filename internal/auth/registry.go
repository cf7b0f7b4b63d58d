package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"casechain.org/internal/anchor"
	"casechain.org/internal/fingerprint"
	"casechain.org/internal/ids"
	"casechain.org/internal/obs"
)

// Assignment statuses. Revocation is terminal: re-granting an address
// produces a fresh assignment record.
const (
	AssignmentActive  = "active"
	AssignmentRevoked = "revoked"
)

var (
	ErrNotFound         = errors.New("auth: not found")
	ErrActiveAssignment = errors.New("auth: address already has an active assignment")
	ErrAlreadyRevoked   = errors.New("auth: assignment already revoked")
)

// Assignment maps a wallet-style address to a role. Each grant and
// revoke carries its own ledger transaction reference so role history
// is externally checkable.
type Assignment struct {
	ID          string       `json:"id"`
	Address     string       `json:"address"`
	Role        Role         `json:"role"`
	Status      string       `json:"status"`
	GrantTxRef  anchor.TxRef `json:"grant_tx_ref,omitempty"`
	RevokeTxRef anchor.TxRef `json:"revoke_tx_ref,omitempty"`
	GrantedAt   time.Time    `json:"granted_at"`
	RevokedAt   *time.Time   `json:"revoked_at,omitempty"`
}

// AssignmentStore persists role assignments.
type AssignmentStore interface {
	// Create persists a new active assignment. Fails with
	// ErrActiveAssignment if the address already has one.
	Create(ctx context.Context, a *Assignment) error
	Find(ctx context.Context, id string) (*Assignment, error)
	// Active returns the address's active assignment, ErrNotFound if none.
	Active(ctx context.Context, address string) (*Assignment, error)
	// Revoke marks an assignment revoked. Fails with ErrAlreadyRevoked
	// if the assignment is no longer active.
	Revoke(ctx context.Context, id string, ref anchor.TxRef, at time.Time) error
	List(ctx context.Context) ([]*Assignment, error)
	// SetGrantTxRef backfills the ledger reference after a late anchor.
	SetGrantTxRef(ctx context.Context, id string, ref anchor.TxRef) error
}

// Registry manages the address → role mapping.
type Registry struct {
	store  AssignmentStore
	ledger anchor.Client
	now    func() time.Time
}

// NewRegistry constructs a Registry. The anchor client may be nil when
// running without an external ledger (dev mode); grants then stay
// unanchored.
func NewRegistry(store AssignmentStore, ledger anchor.Client) (*Registry, error) {
	if store == nil {
		return nil, errors.New("auth: assignment store is required")
	}
	return &Registry{store: store, ledger: ledger, now: time.Now}, nil
}

// Grant creates an active assignment for the address. The local record
// is committed first; anchoring failure degrades to an unanchored grant.
func (r *Registry) Grant(ctx context.Context, address string, role Role) (*Assignment, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("auth: address is required")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	a := &Assignment{
		ID:        ids.New(),
		Address:   address,
		Role:      role,
		Status:    AssignmentActive,
		GrantedAt: r.now().UTC(),
	}
	if err := r.store.Create(ctx, a); err != nil {
		return nil, err
	}

	if ref, ok := r.anchorRecord(ctx, a.ID, grantDigest(a)); ok {
		if err := r.store.SetGrantTxRef(ctx, a.ID, ref); err != nil {
			return nil, err
		}
		a.GrantTxRef = ref
	}
	return a, nil
}

// Revoke terminates the address's active assignment.
func (r *Registry) Revoke(ctx context.Context, address string) (*Assignment, error) {
	a, err := r.store.Active(ctx, strings.TrimSpace(address))
	if err != nil {
		return nil, err
	}

	at := r.now().UTC()
	ref, _ := r.anchorRecord(ctx, a.ID+":revoke", revokeDigest(a, at))
	if err := r.store.Revoke(ctx, a.ID, ref, at); err != nil {
		return nil, err
	}
	a.Status = AssignmentRevoked
	a.RevokeTxRef = ref
	a.RevokedAt = &at
	return a, nil
}

// Resolve maps an address to an Actor using its active assignment.
func (r *Registry) Resolve(ctx context.Context, address string) (Actor, error) {
	a, err := r.store.Active(ctx, strings.TrimSpace(address))
	if err != nil {
		return Actor{}, err
	}
	return Actor{Address: a.Address, Role: a.Role}, nil
}

// List returns every assignment, active and revoked.
func (r *Registry) List(ctx context.Context) ([]*Assignment, error) {
	return r.store.List(ctx)
}

func (r *Registry) anchorRecord(ctx context.Context, recordID string, fp fingerprint.Digest) (anchor.TxRef, bool) {
	if r.ledger == nil {
		return "", false
	}
	callCtx, cancel := anchor.WithTimeout(ctx, 0)
	defer cancel()
	ref, err := r.ledger.Anchor(callCtx, recordID, fp)
	if err != nil {
		obs.AnchorFailures.Inc()
		obs.Warn("role assignment not anchored", map[string]any{"record_id": recordID, "error": err.Error()})
		return "", false
	}
	return ref, true
}

func grantDigest(a *Assignment) fingerprint.Digest {
	return fingerprint.Sum([]byte(fmt.Sprintf("grant|%s|%s|%s|%d", a.ID, a.Address, a.Role, a.GrantedAt.UnixNano())))
}

func revokeDigest(a *Assignment, at time.Time) fingerprint.Digest {
	return fingerprint.Sum([]byte(fmt.Sprintf("revoke|%s|%s|%s|%d", a.ID, a.Address, a.Role, at.UnixNano())))
}
