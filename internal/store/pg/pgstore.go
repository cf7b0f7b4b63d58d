package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"casechain.org/internal/auth"
	"casechain.org/internal/docket"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var _ docket.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection (tests use sqlmock here).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Create(ctx context.Context, c *docket.Case) error {
	parts, err := json.Marshal(c.Participants)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into cases(id, number, type, title, stage, participants, archived, version, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, c.ID, c.Number, string(c.Type), c.Title, string(c.Stage), parts, c.Archived, c.Version, c.CreatedAt, c.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return docket.ErrConcurrentModification
	}
	return err
}

func (s *Store) Find(ctx context.Context, id string) (*docket.Case, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, number, type, title, stage, participants, archived, version, created_at, updated_at
		from cases where id = $1
	`, id)
	return scanCase(row)
}

func (s *Store) ListByParticipant(ctx context.Context, address string) ([]*docket.Case, error) {
	// Participants live in one jsonb document, so membership is checked
	// in Go rather than with per-role SQL containment clauses.
	rows, err := s.db.QueryContext(ctx, `
		select id, number, type, title, stage, participants, archived, version, created_at, updated_at
		from cases
		order by created_at asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*docket.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		if c.Participants.Contains(address) {
			out = append(out, c)
		}
	}
	return out, rows.Err()
}

func (s *Store) AdvanceStage(ctx context.Context, id string, from, to docket.Stage, version uint64, entry docket.TimelineEntry) (*docket.Case, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update cases
		set stage = $3, version = version + 1, updated_at = $4
		where id = $1 and stage = $2 and version = $5
	`, id, string(from), string(to), entry.At, version)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Distinguish a missing case from a lost optimistic race.
		var exists int
		err := tx.QueryRowContext(ctx, `select 1 from cases where id = $1`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docket.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, docket.ErrConcurrentModification
	}

	if _, err := tx.ExecContext(ctx, `
		insert into case_timeline(id, case_id, from_stage, to_stage, actor, role, comment, at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.CaseID, string(entry.From), string(entry.To), entry.Actor, string(entry.Role), entry.Comment, entry.At); err != nil {
		return nil, err
	}

	c, err := scanCase(tx.QueryRowContext(ctx, `
		select id, number, type, title, stage, participants, archived, version, created_at, updated_at
		from cases where id = $1
	`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) Archive(ctx context.Context, id string, version uint64) error {
	res, err := s.db.ExecContext(ctx, `
		update cases set archived = true, version = version + 1, updated_at = now()
		where id = $1 and version = $2
	`, id, version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `select 1 from cases where id = $1`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return docket.ErrNotFound
		}
		if err != nil {
			return err
		}
		return docket.ErrConcurrentModification
	}
	return nil
}

func (s *Store) Timeline(ctx context.Context, caseID string) ([]docket.TimelineEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, case_id, from_stage, to_stage, actor, role, comment, at
		from case_timeline
		where case_id = $1
		order by at asc
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []docket.TimelineEntry
	for rows.Next() {
		var (
			e        docket.TimelineEntry
			from, to string
			role     string
		)
		if err := rows.Scan(&e.ID, &e.CaseID, &from, &to, &e.Actor, &role, &e.Comment, &e.At); err != nil {
			return nil, err
		}
		e.From, e.To = docket.Stage(from), docket.Stage(to)
		e.Role = auth.Role(role)
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*docket.Case, error) {
	var (
		c          docket.Case
		typ, stage string
		rawParts   []byte
	)
	err := row.Scan(&c.ID, &c.Number, &typ, &c.Title, &stage, &rawParts, &c.Archived, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docket.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Type = docket.CaseType(typ)
	c.Stage = docket.Stage(stage)
	if len(rawParts) > 0 {
		if err := json.Unmarshal(rawParts, &c.Participants); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
