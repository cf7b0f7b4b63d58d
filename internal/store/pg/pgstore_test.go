package pg

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"casechain.org/internal/auth"
	"casechain.org/internal/docket"
	"casechain.org/internal/evidence"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func caseRow(c *docket.Case) *sqlmock.Rows {
	parts, _ := json.Marshal(c.Participants)
	return sqlmock.NewRows([]string{"id", "number", "type", "title", "stage", "participants", "archived", "version", "created_at", "updated_at"}).
		AddRow(c.ID, c.Number, string(c.Type), c.Title, string(c.Stage), parts, c.Archived, c.Version, c.CreatedAt, c.UpdatedAt)
}

func TestFindCase(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	want := &docket.Case{
		ID:     "c-1",
		Number: "CASE-2026-ABC",
		Type:   docket.CasePublicProsecution,
		Title:  "State v. Example",
		Stage:  docket.StageProcuratorate,
		Participants: docket.Participants{
			FilingPolice: "officer-1",
			Prosecutors:  []string{"pros-1"},
		},
		Version:   2,
		CreatedAt: now,
		UpdatedAt: now,
	}
	mock.ExpectQuery("select .* from cases where id").WithArgs("c-1").WillReturnRows(caseRow(want))

	got, err := store.Find(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Stage != docket.StageProcuratorate || got.Participants.FilingPolice != "officer-1" {
		t.Fatalf("unexpected case: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindCaseNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select .* from cases where id").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Find(context.Background(), "missing")
	if !errors.Is(err, docket.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdvanceStageVersionConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("update cases").
		WithArgs("c-1", string(docket.StageInvestigation), string(docket.StageProcuratorate), sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select 1 from cases where id").WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	entry := docket.TimelineEntry{ID: "t-1", CaseID: "c-1", From: docket.StageInvestigation, To: docket.StageProcuratorate, At: time.Now().UTC()}
	_, err := store.AdvanceStage(context.Background(), "c-1", docket.StageInvestigation, docket.StageProcuratorate, 1, entry)
	if !errors.Is(err, docket.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAdvanceStageCommitsTimeline(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	after := &docket.Case{
		ID: "c-1", Number: "CASE-2026-ABC", Type: docket.CasePublicProsecution,
		Title: "State v. Example", Stage: docket.StageProcuratorate,
		Participants: docket.Participants{FilingPolice: "officer-1"},
		Version:      2, CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectBegin()
	mock.ExpectExec("update cases").
		WithArgs("c-1", string(docket.StageInvestigation), string(docket.StageProcuratorate), sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into case_timeline").
		WithArgs("t-1", "c-1", string(docket.StageInvestigation), string(docket.StageProcuratorate), "officer-1", "police", "handed over", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("select .* from cases where id").WithArgs("c-1").WillReturnRows(caseRow(after))
	mock.ExpectCommit()

	entry := docket.TimelineEntry{
		ID: "t-1", CaseID: "c-1",
		From: docket.StageInvestigation, To: docket.StageProcuratorate,
		Actor: "officer-1", Role: auth.RolePolice, Comment: "handed over", At: now,
	}
	got, err := store.AdvanceStage(context.Background(), "c-1", docket.StageInvestigation, docket.StageProcuratorate, 1, entry)
	if err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if got.Stage != docket.StageProcuratorate || got.Version != 2 {
		t.Fatalf("unexpected case after advance: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetEvidenceAnchorWriteOnce(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update evidence set anchor_tx_ref").
		WithArgs("e-1", "tx-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select 1 from evidence where id").WithArgs("e-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := store.SetEvidenceAnchor(context.Background(), "e-1", "tx-1")
	if !errors.Is(err, evidence.ErrAnchorSet) {
		t.Fatalf("expected ErrAnchorSet, got %v", err)
	}
}

func TestResolveCorrectionApprovesAtomically(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("update corrections").
		WithArgs("corr-1", evidence.CorrectionApproved, "judge-1", "accepted as filed", sqlmock.AnyArg(), evidence.CorrectionPending).
		WillReturnRows(sqlmock.NewRows([]string{"evidence_id"}).AddRow("e-1"))
	mock.ExpectExec("update evidence set status").
		WithArgs("e-1", evidence.EvidenceCorrected, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select .* from corrections where id").WithArgs("corr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "evidence_id", "case_id", "uploader", "role", "reason", "fingerprint", "status", "anchor_tx_ref", "resolved_by", "rationale", "created_at", "resolved_at"}).
			AddRow("corr-1", "e-1", "c-1", "pros-1", "prosecutor", "typo in report", "ff00", evidence.CorrectionApproved, "", "judge-1", "accepted as filed", now, now))
	mock.ExpectCommit()

	got, err := store.ResolveCorrection(context.Background(), "corr-1", true, "judge-1", "accepted as filed", now)
	if err != nil {
		t.Fatalf("ResolveCorrection: %v", err)
	}
	if got.Status != evidence.CorrectionApproved || got.ResolvedBy != "judge-1" {
		t.Fatalf("unexpected correction: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolveObjectionAlreadyHandled(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("update objections").
		WithArgs("o-1", evidence.ObjectionAccepted, "judge-1", "sustained", sqlmock.AnyArg(), evidence.ObjectionPending).
		WillReturnRows(sqlmock.NewRows([]string{"evidence_id"}))
	mock.ExpectQuery("select 1 from objections where id").WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := store.ResolveObjection(context.Background(), "o-1", true, "judge-1", "sustained", time.Now().UTC())
	if !errors.Is(err, evidence.ErrAlreadyHandled) {
		t.Fatalf("expected ErrAlreadyHandled, got %v", err)
	}
}

func TestResolveObjectionStrikesEvidenceAtomically(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("update objections").
		WithArgs("o-1", evidence.ObjectionAccepted, "judge-1", "sustained", sqlmock.AnyArg(), evidence.ObjectionPending).
		WillReturnRows(sqlmock.NewRows([]string{"evidence_id"}).AddRow("e-1"))
	mock.ExpectExec("update evidence set status").
		WithArgs("e-1", evidence.EvidenceRejected, sqlmock.AnyArg(), evidence.EvidencePending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select .* from objections where id").WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "case_id", "evidence_id", "submitter", "reason", "status", "resolved_by", "rationale", "created_at", "resolved_at"}).
			AddRow("o-1", "c-1", "e-1", "lawyer-1", "chain of custody broken", evidence.ObjectionAccepted, "judge-1", "sustained", now, now))
	mock.ExpectCommit()

	got, err := store.ResolveObjection(context.Background(), "o-1", true, "judge-1", "sustained", now)
	if err != nil {
		t.Fatalf("ResolveObjection: %v", err)
	}
	if got.Status != evidence.ObjectionAccepted || got.ResolvedBy != "judge-1" {
		t.Fatalf("unexpected objection: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignmentsActiveNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select .* from role_assignments where address").
		WithArgs("nobody", auth.AssignmentActive).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Assignments().Active(context.Background(), "nobody")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignmentsRevokeTwice(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update role_assignments").
		WithArgs("a-1", auth.AssignmentRevoked, "tx-9", sqlmock.AnyArg(), auth.AssignmentActive).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select 1 from role_assignments where id").WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := store.Assignments().Revoke(context.Background(), "a-1", "tx-9", time.Now().UTC())
	if !errors.Is(err, auth.ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
}
