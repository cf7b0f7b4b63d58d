package policy

import (
	"errors"
	"testing"

	"casechain.org/internal/auth"
	"casechain.org/internal/docket"
)

func caseAt(stage docket.Stage) *docket.Case {
	return &docket.Case{
		ID:    "case-1",
		Stage: stage,
		Participants: docket.Participants{
			FilingPolice:     "officer-1",
			Prosecutors:      []string{"prosecutor-1"},
			Judges:           []string{"judge-1"},
			DefendantLawyers: []string{"lawyer-1"},
		},
	}
}

func actorFor(role auth.Role) auth.Actor {
	addresses := map[auth.Role]string{
		auth.RolePolice:     "officer-1",
		auth.RoleProsecutor: "prosecutor-1",
		auth.RoleJudge:      "judge-1",
		auth.RoleLawyer:     "lawyer-1",
		auth.RoleAdmin:      "admin-1",
	}
	return auth.Actor{Address: addresses[role], Role: role}
}

// TestTableTotality sweeps every (role, action, resource) tuple at every
// stage and checks the decision is always defined, never a panic, and
// that unknown tuples deny.
func TestTableTotality(t *testing.T) {
	for _, stage := range docket.Stages() {
		c := caseAt(stage)
		for _, role := range auth.Roles() {
			for _, action := range Actions() {
				for _, resource := range Resources() {
					d := Authorize(Input{Actor: actorFor(role), Action: action, Resource: resource, Case: c, Owner: actorFor(role).Address})
					if !d.Allowed && d.Reason == "" {
						t.Fatalf("deny without reason: %s %s %s at %s", role, action, resource, stage)
					}
				}
			}
		}
	}
}

func TestUnresolvedActorDenied(t *testing.T) {
	d := Authorize(Input{Actor: auth.Actor{}, Action: ActionRead, Resource: ResourceCase, Case: caseAt(docket.StageCourtTrial)})
	if d.Allowed {
		t.Fatal("empty actor must be denied")
	}
	d = Authorize(Input{Actor: auth.Actor{Address: "x", Role: "clerk"}, Action: ActionRead, Resource: ResourceCase, Case: caseAt(docket.StageCourtTrial)})
	if d.Allowed {
		t.Fatal("unknown role must be denied")
	}
}

func TestCaseVisibilityWindows(t *testing.T) {
	cases := []struct {
		role  auth.Role
		stage docket.Stage
		want  bool
	}{
		{auth.RolePolice, docket.StageInvestigation, true},
		{auth.RolePolice, docket.StageClosed, true},
		{auth.RoleProsecutor, docket.StageInvestigation, false},
		{auth.RoleProsecutor, docket.StageProcuratorate, true},
		{auth.RoleJudge, docket.StageInvestigation, false},
		{auth.RoleJudge, docket.StageCourtTrial, true},
		{auth.RoleLawyer, docket.StageInvestigation, false},
		{auth.RoleLawyer, docket.StageClosed, true},
	}
	for _, tc := range cases {
		d := Authorize(Input{Actor: actorFor(tc.role), Action: ActionRead, Resource: ResourceCase, Case: caseAt(tc.stage)})
		if d.Allowed != tc.want {
			t.Fatalf("%s read case at %s = %v, want %v (%s)", tc.role, tc.stage, d.Allowed, tc.want, d.Reason)
		}
	}
}

func TestEvidenceSubmissionWindows(t *testing.T) {
	cases := []struct {
		role  auth.Role
		stage docket.Stage
		want  bool
	}{
		{auth.RolePolice, docket.StageInvestigation, true},
		{auth.RolePolice, docket.StageProcuratorate, true},
		{auth.RolePolice, docket.StageCourtTrial, false},
		{auth.RoleProsecutor, docket.StageInvestigation, false},
		{auth.RoleProsecutor, docket.StageProcuratorate, true},
		{auth.RoleProsecutor, docket.StageCourtTrial, true},
		{auth.RoleJudge, docket.StageCourtTrial, false},
		{auth.RoleLawyer, docket.StageCourtTrial, false},
	}
	for _, tc := range cases {
		d := Authorize(Input{Actor: actorFor(tc.role), Action: ActionCreate, Resource: ResourceEvidence, Case: caseAt(tc.stage)})
		if d.Allowed != tc.want {
			t.Fatalf("%s submit evidence at %s = %v, want %v (%s)", tc.role, tc.stage, d.Allowed, tc.want, d.Reason)
		}
	}
}

func TestTerminalStageFreezesMutations(t *testing.T) {
	closed := caseAt(docket.StageClosed)
	frozen := []struct {
		role     auth.Role
		action   Action
		resource Resource
	}{
		{auth.RolePolice, ActionCreate, ResourceEvidence},
		{auth.RolePolice, ActionDelete, ResourceEvidence},
		{auth.RoleProsecutor, ActionCreate, ResourceCorrection},
		{auth.RoleJudge, ActionHandle, ResourceCorrection},
		{auth.RoleLawyer, ActionCreate, ResourceMaterial},
	}
	for _, tc := range frozen {
		d := Authorize(Input{Actor: actorFor(tc.role), Action: tc.action, Resource: tc.resource, Case: closed, Owner: actorFor(tc.role).Address})
		if d.Allowed {
			t.Fatalf("%s %s %s allowed on closed case", tc.role, tc.action, tc.resource)
		}
	}

	// Reads survive closure, and the objection workflow stays live.
	if d := Authorize(Input{Actor: actorFor(auth.RoleJudge), Action: ActionRead, Resource: ResourceEvidence, Case: closed}); !d.Allowed {
		t.Fatalf("judge read on closed case denied: %s", d.Reason)
	}
	if d := Authorize(Input{Actor: actorFor(auth.RoleLawyer), Action: ActionCreate, Resource: ResourceObjection, Case: closed}); !d.Allowed {
		t.Fatalf("lawyer objection on closed case denied: %s", d.Reason)
	}
	if d := Authorize(Input{Actor: actorFor(auth.RoleJudge), Action: ActionHandle, Resource: ResourceObjection, Case: closed}); !d.Allowed {
		t.Fatalf("judge objection handling on closed case denied: %s", d.Reason)
	}
}

func TestOwnershipRequired(t *testing.T) {
	c := caseAt(docket.StageProcuratorate)

	// Police deleting their own evidence is fine.
	d := Authorize(Input{Actor: actorFor(auth.RolePolice), Action: ActionDelete, Resource: ResourceEvidence, Case: c, Owner: "officer-1"})
	if !d.Allowed {
		t.Fatalf("owner delete denied: %s", d.Reason)
	}
	// Deleting somebody else's record is not, even for a participant.
	d = Authorize(Input{Actor: actorFor(auth.RolePolice), Action: ActionDelete, Resource: ResourceEvidence, Case: c, Owner: "officer-9"})
	if d.Allowed {
		t.Fatal("non-owner delete allowed")
	}
	d = Authorize(Input{Actor: actorFor(auth.RolePolice), Action: ActionDelete, Resource: ResourceEvidence, Case: c})
	if d.Allowed {
		t.Fatal("ownerless delete allowed")
	}
}

func TestParticipationRequired(t *testing.T) {
	c := caseAt(docket.StageCourtTrial)
	outsider := auth.Actor{Address: "judge-9", Role: auth.RoleJudge}
	d := Authorize(Input{Actor: outsider, Action: ActionRead, Resource: ResourceCase, Case: c})
	if d.Allowed {
		t.Fatal("outside judge may not read the case")
	}
}

func TestArchivedCaseRejectsWrites(t *testing.T) {
	c := caseAt(docket.StageProcuratorate)
	c.Archived = true
	d := Authorize(Input{Actor: actorFor(auth.RolePolice), Action: ActionCreate, Resource: ResourceEvidence, Case: c})
	if d.Allowed {
		t.Fatal("write to archived case allowed")
	}
	if d := Authorize(Input{Actor: actorFor(auth.RolePolice), Action: ActionRead, Resource: ResourceCase, Case: c}); !d.Allowed {
		t.Fatalf("read of archived case denied: %s", d.Reason)
	}
}

func TestAdminManagesRolesOnly(t *testing.T) {
	admin := actorFor(auth.RoleAdmin)
	if d := Authorize(Input{Actor: admin, Action: ActionCreate, Resource: ResourceRoleAssignment}); !d.Allowed {
		t.Fatalf("admin grant denied: %s", d.Reason)
	}
	if d := Authorize(Input{Actor: actorFor(auth.RoleJudge), Action: ActionCreate, Resource: ResourceRoleAssignment}); d.Allowed {
		t.Fatal("judge may not grant roles")
	}
	if d := Authorize(Input{Actor: admin, Action: ActionRead, Resource: ResourceCase, Case: caseAt(docket.StageCourtTrial)}); d.Allowed {
		t.Fatal("admin may not read case records")
	}
}

func TestDecisionErr(t *testing.T) {
	if err := Allow().Err(); err != nil {
		t.Fatalf("allow produced error: %v", err)
	}
	err := Deny("nope").Err()
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Reason != "nope" {
		t.Fatalf("deny error = %v", err)
	}
}
