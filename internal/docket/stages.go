package docket

import "casechain.org/internal/auth"

// transition is one legal edge of the stage machine.
type transition struct {
	next Stage
	role auth.Role
}

// transitions is the complete table. Every (stage, role) pair not listed
// here is not allowed; CLOSED has no outgoing edge under any role.
var transitions = map[Stage]transition{
	StageInvestigation: {next: StageProcuratorate, role: auth.RolePolice},
	StageProcuratorate: {next: StageCourtTrial, role: auth.RoleProsecutor},
	StageCourtTrial:    {next: StageClosed, role: auth.RoleJudge},
}

// AllowedNext returns the single legal next stage for the role at the
// current stage, or false when the table has no matching edge.
func AllowedNext(current Stage, role auth.Role) (Stage, bool) {
	t, ok := transitions[current]
	if !ok || t.role != role {
		return "", false
	}
	return t.next, true
}
