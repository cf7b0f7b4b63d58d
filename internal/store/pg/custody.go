package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"casechain.org/internal/anchor"
	"casechain.org/internal/auth"
	"casechain.org/internal/evidence"
	"casechain.org/internal/fingerprint"
)

var _ evidence.Store = (*Store)(nil)

func (s *Store) CreateEvidence(ctx context.Context, e *evidence.Evidence) error {
	_, err := s.db.ExecContext(ctx, `
		insert into evidence(id, case_id, uploader, role, name, fingerprint, status, anchor_tx_ref, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, e.ID, e.CaseID, e.Uploader, string(e.Role), e.Name, string(e.Fingerprint), e.Status, string(e.AnchorTxRef), e.CreatedAt, e.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return evidence.ErrFingerprintSet
	}
	return err
}

func (s *Store) FindEvidence(ctx context.Context, id string) (*evidence.Evidence, error) {
	return scanEvidence(s.db.QueryRowContext(ctx, `
		select id, case_id, uploader, role, name, fingerprint, status, anchor_tx_ref, created_at, updated_at
		from evidence where id = $1
	`, id))
}

func (s *Store) ListEvidenceByCase(ctx context.Context, caseID string) ([]*evidence.Evidence, error) {
	return s.listEvidence(ctx, `
		select id, case_id, uploader, role, name, fingerprint, status, anchor_tx_ref, created_at, updated_at
		from evidence where case_id = $1
		order by created_at asc
	`, caseID)
}

func (s *Store) ListAnchored(ctx context.Context) ([]*evidence.Evidence, error) {
	return s.listEvidence(ctx, `
		select id, case_id, uploader, role, name, fingerprint, status, anchor_tx_ref, created_at, updated_at
		from evidence where anchor_tx_ref <> ''
		order by created_at asc
	`)
}

func (s *Store) listEvidence(ctx context.Context, query string, args ...any) ([]*evidence.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*evidence.Evidence
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SetEvidenceAnchor(ctx context.Context, id string, ref anchor.TxRef) error {
	return s.setAnchor(ctx, "evidence", id, ref, true)
}

func (s *Store) DeleteEvidence(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from evidence where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return evidence.ErrNotFound
	}
	return nil
}

func (s *Store) CreateCorrection(ctx context.Context, c *evidence.Correction) error {
	var resolvedAt any
	if c.ResolvedAt != nil {
		resolvedAt = *c.ResolvedAt
	}
	_, err := s.db.ExecContext(ctx, `
		insert into corrections(id, evidence_id, case_id, uploader, role, reason, fingerprint, status, anchor_tx_ref, resolved_by, rationale, created_at, resolved_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, c.ID, c.EvidenceID, c.CaseID, c.Uploader, string(c.Role), c.Reason, string(c.Fingerprint), c.Status, string(c.AnchorTxRef), c.ResolvedBy, c.Rationale, c.CreatedAt, resolvedAt)
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			// The partial unique index on (evidence_id) where pending
			// enforces the one-open-correction rule.
			return evidence.ErrCorrectionPending
		case pgErrForeignKeyViolation:
			return evidence.ErrNotFound
		}
	}
	return err
}

func (s *Store) FindCorrection(ctx context.Context, id string) (*evidence.Correction, error) {
	return scanCorrection(s.db.QueryRowContext(ctx, `
		select id, evidence_id, case_id, uploader, role, reason, fingerprint, status, anchor_tx_ref, resolved_by, rationale, created_at, resolved_at
		from corrections where id = $1
	`, id))
}

func (s *Store) ListCorrectionsByEvidence(ctx context.Context, evidenceID string) ([]*evidence.Correction, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, evidence_id, case_id, uploader, role, reason, fingerprint, status, anchor_tx_ref, resolved_by, rationale, created_at, resolved_at
		from corrections where evidence_id = $1
		order by created_at asc
	`, evidenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*evidence.Correction
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SetCorrectionAnchor(ctx context.Context, id string, ref anchor.TxRef) error {
	return s.setAnchor(ctx, "corrections", id, ref, false)
}

func (s *Store) ResolveCorrection(ctx context.Context, id string, approve bool, resolvedBy, rationale string, at time.Time) (*evidence.Correction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status := evidence.CorrectionRejected
	if approve {
		status = evidence.CorrectionApproved
	}
	var evidenceID string
	err = tx.QueryRowContext(ctx, `
		update corrections
		set status = $2, resolved_by = $3, rationale = $4, resolved_at = $5
		where id = $1 and status = $6
		returning evidence_id
	`, id, status, resolvedBy, rationale, at, evidence.CorrectionPending).Scan(&evidenceID)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the correction does not exist or it is already closed.
		var exists int
		lookupErr := tx.QueryRowContext(ctx, `select 1 from corrections where id = $1`, id).Scan(&exists)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			return nil, evidence.ErrNotFound
		}
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, evidence.ErrCorrectionClosed
	}
	if err != nil {
		return nil, err
	}

	if approve {
		if _, err := tx.ExecContext(ctx, `
			update evidence set status = $2, updated_at = $3 where id = $1
		`, evidenceID, evidence.EvidenceCorrected, at); err != nil {
			return nil, err
		}
	}

	c, err := scanCorrection(tx.QueryRowContext(ctx, `
		select id, evidence_id, case_id, uploader, role, reason, fingerprint, status, anchor_tx_ref, resolved_by, rationale, created_at, resolved_at
		from corrections where id = $1
	`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) CreateMaterial(ctx context.Context, m *evidence.Material) error {
	_, err := s.db.ExecContext(ctx, `
		insert into materials(id, case_id, uploader, class, name, fingerprint, anchor_tx_ref, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, m.ID, m.CaseID, m.Uploader, m.Class, m.Name, string(m.Fingerprint), string(m.AnchorTxRef), m.CreatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return evidence.ErrFingerprintSet
	}
	return err
}

func (s *Store) FindMaterial(ctx context.Context, id string) (*evidence.Material, error) {
	return scanMaterial(s.db.QueryRowContext(ctx, `
		select id, case_id, uploader, class, name, fingerprint, anchor_tx_ref, created_at
		from materials where id = $1
	`, id))
}

func (s *Store) ListMaterialsByCase(ctx context.Context, caseID string) ([]*evidence.Material, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, case_id, uploader, class, name, fingerprint, anchor_tx_ref, created_at
		from materials where case_id = $1
		order by created_at asc
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*evidence.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SetMaterialAnchor(ctx context.Context, id string, ref anchor.TxRef) error {
	return s.setAnchor(ctx, "materials", id, ref, false)
}

func (s *Store) DeleteMaterial(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from materials where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return evidence.ErrNotFound
	}
	return nil
}

func (s *Store) CreateObjection(ctx context.Context, o *evidence.Objection) error {
	var resolvedAt any
	if o.ResolvedAt != nil {
		resolvedAt = *o.ResolvedAt
	}
	_, err := s.db.ExecContext(ctx, `
		insert into objections(id, case_id, evidence_id, submitter, reason, status, resolved_by, rationale, created_at, resolved_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, o.ID, o.CaseID, o.EvidenceID, o.Submitter, o.Reason, o.Status, o.ResolvedBy, o.Rationale, o.CreatedAt, resolvedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return evidence.ErrNotFound
	}
	return err
}

func (s *Store) FindObjection(ctx context.Context, id string) (*evidence.Objection, error) {
	return scanObjection(s.db.QueryRowContext(ctx, `
		select id, case_id, evidence_id, submitter, reason, status, resolved_by, rationale, created_at, resolved_at
		from objections where id = $1
	`, id))
}

func (s *Store) ListObjectionsByCase(ctx context.Context, caseID string) ([]*evidence.Objection, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, case_id, evidence_id, submitter, reason, status, resolved_by, rationale, created_at, resolved_at
		from objections where case_id = $1
		order by created_at asc
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*evidence.Objection
	for rows.Next() {
		o, err := scanObjection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ResolveObjection(ctx context.Context, id string, accept bool, resolvedBy, rationale string, at time.Time) (*evidence.Objection, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status := evidence.ObjectionRejected
	if accept {
		status = evidence.ObjectionAccepted
	}
	var evidenceID string
	err = tx.QueryRowContext(ctx, `
		update objections
		set status = $2, resolved_by = $3, rationale = $4, resolved_at = $5
		where id = $1 and status = $6
		returning evidence_id
	`, id, status, resolvedBy, rationale, at, evidence.ObjectionPending).Scan(&evidenceID)
	if errors.Is(err, sql.ErrNoRows) {
		var exists int
		lookupErr := tx.QueryRowContext(ctx, `select 1 from objections where id = $1`, id).Scan(&exists)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			return nil, evidence.ErrNotFound
		}
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, evidence.ErrAlreadyHandled
	}
	if err != nil {
		return nil, err
	}

	// The ruling carries over to the evidence in the same transaction.
	// The status guard keeps a corrected original untouched.
	verdict := evidence.EvidenceVerified
	if accept {
		verdict = evidence.EvidenceRejected
	}
	if _, err := tx.ExecContext(ctx, `
		update evidence set status = $2, updated_at = $3 where id = $1 and status = $4
	`, evidenceID, verdict, at, evidence.EvidencePending); err != nil {
		return nil, err
	}

	o, err := scanObjection(tx.QueryRowContext(ctx, `
		select id, case_id, evidence_id, submitter, reason, status, resolved_by, rationale, created_at, resolved_at
		from objections where id = $1
	`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

// setAnchor records a ledger reference exactly once per record.
func (s *Store) setAnchor(ctx context.Context, table, id string, ref anchor.TxRef, touchUpdatedAt bool) error {
	query := `update ` + table + ` set anchor_tx_ref = $2 where id = $1 and anchor_tx_ref = ''`
	if touchUpdatedAt {
		query = `update ` + table + ` set anchor_tx_ref = $2, updated_at = now() where id = $1 and anchor_tx_ref = ''`
	}
	res, err := s.db.ExecContext(ctx, query, id, string(ref))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		lookupErr := s.db.QueryRowContext(ctx, `select 1 from `+table+` where id = $1`, id).Scan(&exists)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			return evidence.ErrNotFound
		}
		if lookupErr != nil {
			return lookupErr
		}
		return evidence.ErrAnchorSet
	}
	return nil
}

func scanEvidence(row rowScanner) (*evidence.Evidence, error) {
	var (
		e       evidence.Evidence
		role    string
		fp, ref string
	)
	err := row.Scan(&e.ID, &e.CaseID, &e.Uploader, &role, &e.Name, &fp, &e.Status, &ref, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, evidence.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Role = auth.Role(role)
	e.Fingerprint = fingerprint.Digest(fp)
	e.AnchorTxRef = anchor.TxRef(ref)
	return &e, nil
}

func scanCorrection(row rowScanner) (*evidence.Correction, error) {
	var (
		c          evidence.Correction
		role       string
		fp, ref    string
		resolvedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.EvidenceID, &c.CaseID, &c.Uploader, &role, &c.Reason, &fp, &c.Status, &ref, &c.ResolvedBy, &c.Rationale, &c.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, evidence.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Role = auth.Role(role)
	c.Fingerprint = fingerprint.Digest(fp)
	c.AnchorTxRef = anchor.TxRef(ref)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return &c, nil
}

func scanMaterial(row rowScanner) (*evidence.Material, error) {
	var (
		m       evidence.Material
		fp, ref string
	)
	err := row.Scan(&m.ID, &m.CaseID, &m.Uploader, &m.Class, &m.Name, &fp, &ref, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, evidence.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Fingerprint = fingerprint.Digest(fp)
	m.AnchorTxRef = anchor.TxRef(ref)
	return &m, nil
}

func scanObjection(row rowScanner) (*evidence.Objection, error) {
	var (
		o          evidence.Objection
		resolvedAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.CaseID, &o.EvidenceID, &o.Submitter, &o.Reason, &o.Status, &o.ResolvedBy, &o.Rationale, &o.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, evidence.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		o.ResolvedAt = &t
	}
	return &o, nil
}
