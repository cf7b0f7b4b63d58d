package sweep

import (
	"context"
	"testing"
	"time"

	"casechain.org/internal/evidence"
)

type stubVerifier struct {
	results []evidence.Verification
	calls   int
}

func (s *stubVerifier) VerifyAnchored(ctx context.Context) ([]evidence.Verification, error) {
	s.calls++
	return s.results, nil
}

func TestPassCountsVerdicts(t *testing.T) {
	v := &stubVerifier{results: []evidence.Verification{
		{EvidenceID: "e1", Result: evidence.VerifyMatch},
		{EvidenceID: "e2", Result: evidence.VerifyMismatch},
		{EvidenceID: "e3", Result: evidence.VerifyMatch},
		{EvidenceID: "e4", Result: evidence.VerifyUnavailable},
	}}
	sum := New(v, time.Minute).Pass(context.Background())
	if sum.Checked != 4 {
		t.Fatalf("checked = %d, want 4", sum.Checked)
	}
	if sum.Matched != 2 || sum.Mismatched != 1 || sum.Unavailable != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestStartStops(t *testing.T) {
	v := &stubVerifier{}
	stop := New(v, time.Second).Start()
	stop()
	// The first tick is a full interval out; stopping immediately must
	// not have run a pass.
	if v.calls != 0 {
		t.Fatalf("calls = %d, want 0", v.calls)
	}
}
