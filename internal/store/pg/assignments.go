package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"casechain.org/internal/anchor"
	"casechain.org/internal/auth"
)

// Assignments is the role-assignment store. It lives on its own type
// because its method set overlaps with the case store's.
type Assignments struct {
	db *sql.DB
}

var _ auth.AssignmentStore = (*Assignments)(nil)

// Assignments returns the role-assignment view of the same pool.
func (s *Store) Assignments() *Assignments { return &Assignments{db: s.db} }

func (s *Assignments) Create(ctx context.Context, a *auth.Assignment) error {
	var revokedAt any
	if a.RevokedAt != nil {
		revokedAt = *a.RevokedAt
	}
	_, err := s.db.ExecContext(ctx, `
		insert into role_assignments(id, address, role, status, grant_tx_ref, revoke_tx_ref, granted_at, revoked_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.Address, string(a.Role), a.Status, string(a.GrantTxRef), string(a.RevokeTxRef), a.GrantedAt, revokedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		// Partial unique index on (address) where active.
		return auth.ErrActiveAssignment
	}
	return err
}

func (s *Assignments) Find(ctx context.Context, id string) (*auth.Assignment, error) {
	return scanAssignment(s.db.QueryRowContext(ctx, `
		select id, address, role, status, grant_tx_ref, revoke_tx_ref, granted_at, revoked_at
		from role_assignments where id = $1
	`, id))
}

func (s *Assignments) Active(ctx context.Context, address string) (*auth.Assignment, error) {
	return scanAssignment(s.db.QueryRowContext(ctx, `
		select id, address, role, status, grant_tx_ref, revoke_tx_ref, granted_at, revoked_at
		from role_assignments where address = $1 and status = $2
	`, address, auth.AssignmentActive))
}

func (s *Assignments) Revoke(ctx context.Context, id string, ref anchor.TxRef, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update role_assignments
		set status = $2, revoke_tx_ref = $3, revoked_at = $4
		where id = $1 and status = $5
	`, id, auth.AssignmentRevoked, string(ref), at, auth.AssignmentActive)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		lookupErr := s.db.QueryRowContext(ctx, `select 1 from role_assignments where id = $1`, id).Scan(&exists)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		if lookupErr != nil {
			return lookupErr
		}
		return auth.ErrAlreadyRevoked
	}
	return nil
}

func (s *Assignments) List(ctx context.Context) ([]*auth.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, address, role, status, grant_tx_ref, revoke_tx_ref, granted_at, revoked_at
		from role_assignments
		order by granted_at asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Assignments) SetGrantTxRef(ctx context.Context, id string, ref anchor.TxRef) error {
	res, err := s.db.ExecContext(ctx, `
		update role_assignments set grant_tx_ref = $2 where id = $1 and grant_tx_ref = ''
	`, id, string(ref))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanAssignment(row rowScanner) (*auth.Assignment, error) {
	var (
		a          auth.Assignment
		role       string
		grant, rev string
		revokedAt  sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Address, &role, &a.Status, &grant, &rev, &a.GrantedAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Role = auth.Role(role)
	a.GrantTxRef = anchor.TxRef(grant)
	a.RevokeTxRef = anchor.TxRef(rev)
	if revokedAt.Valid {
		t := revokedAt.Time
		a.RevokedAt = &t
	}
	return &a, nil
}
