package docket

import (
	"testing"

	"casechain.org/internal/auth"
)

// TestAllowedNextSweep checks every (stage, role) pair against the
// transition table: exactly three edges exist and CLOSED has none.
func TestAllowedNextSweep(t *testing.T) {
	allowed := map[Stage]map[auth.Role]Stage{
		StageInvestigation: {auth.RolePolice: StageProcuratorate},
		StageProcuratorate: {auth.RoleProsecutor: StageCourtTrial},
		StageCourtTrial:    {auth.RoleJudge: StageClosed},
	}

	var edges int
	for _, stage := range Stages() {
		for _, role := range auth.Roles() {
			next, ok := AllowedNext(stage, role)
			want, wantOK := allowed[stage][role]
			if ok != wantOK {
				t.Fatalf("AllowedNext(%s, %s) ok = %v, want %v", stage, role, ok, wantOK)
			}
			if ok {
				edges++
				if next != want {
					t.Fatalf("AllowedNext(%s, %s) = %s, want %s", stage, role, next, want)
				}
			}
		}
	}
	if edges != 3 {
		t.Fatalf("edges = %d, want 3", edges)
	}
}

func TestStagePredicates(t *testing.T) {
	for _, stage := range Stages() {
		if !stage.Valid() {
			t.Fatalf("%s should be valid", stage)
		}
	}
	if Stage("APPEAL").Valid() {
		t.Fatal("unknown stage should be invalid")
	}
	if StageInvestigation.Terminal() || StageCourtTrial.Terminal() {
		t.Fatal("non-terminal stage reported terminal")
	}
	if !StageClosed.Terminal() {
		t.Fatal("CLOSED must be terminal")
	}
	if !StageInvestigation.Before(StageClosed) {
		t.Fatal("INVESTIGATION must precede CLOSED")
	}
	if !StageCourtTrial.AtOrAfter(StageProcuratorate) {
		t.Fatal("COURT_TRIAL must be at or after PROCURATORATE")
	}
	if StageInvestigation.AtOrAfter(StageProcuratorate) {
		t.Fatal("INVESTIGATION is not at or after PROCURATORATE")
	}
}

func TestParticipantsMembership(t *testing.T) {
	p := Participants{
		FilingPolice:     "officer-1",
		Prosecutors:      []string{"p-1"},
		Judges:           []string{"j-1"},
		PlaintiffLawyers: []string{"pl-1"},
		DefendantLawyers: []string{"dl-1"},
	}

	cases := []struct {
		role    auth.Role
		address string
		want    bool
	}{
		{auth.RolePolice, "officer-1", true},
		{auth.RolePolice, "officer-2", false},
		{auth.RoleProsecutor, "p-1", true},
		{auth.RoleJudge, "j-1", true},
		{auth.RoleLawyer, "pl-1", true},
		{auth.RoleLawyer, "dl-1", true},
		{auth.RoleLawyer, "p-1", false},
		{auth.RoleAdmin, "officer-1", false},
	}
	for _, tc := range cases {
		if got := p.Has(tc.role, tc.address); got != tc.want {
			t.Fatalf("Has(%s, %s) = %v, want %v", tc.role, tc.address, got, tc.want)
		}
	}

	if !p.Contains("dl-1") || p.Contains("stranger") {
		t.Fatal("Contains membership wrong")
	}
}
