// Package policy decides, for any (actor, action, resource, case-stage)
// tuple, whether an operation is permitted. The whole policy is one
// exhaustive table; anything the table does not name is an explicit
// deny. Decisions are derivable purely from the input: no ambient
// session state, no store reads.
package policy

import (
	"fmt"

	"casechain.org/internal/auth"
	"casechain.org/internal/docket"
	"casechain.org/internal/obs"
)

// Action is the verb being attempted.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionAdvance Action = "advance"
	ActionVerify  Action = "verify"
	ActionHandle  Action = "handle"
)

// Actions lists every verb (test totality sweeps).
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionAdvance, ActionVerify, ActionHandle}
}

// Resource is the kind of record being acted on.
type Resource string

const (
	ResourceCase           Resource = "case"
	ResourceEvidence       Resource = "evidence"
	ResourceCorrection     Resource = "correction"
	ResourceMaterial       Resource = "material"
	ResourceObjection      Resource = "objection"
	ResourceRoleAssignment Resource = "role_assignment"
)

// Resources lists every resource kind.
func Resources() []Resource {
	return []Resource{ResourceCase, ResourceEvidence, ResourceCorrection, ResourceMaterial, ResourceObjection, ResourceRoleAssignment}
}

// relation is the relationship an actor must hold to the target.
type relation int

const (
	relNone        relation = iota // no case relationship required
	relParticipant                 // attached to the case under the actor's role
	relOwner                       // uploader/owner of the target record
)

// Decision is the tagged outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow returns a positive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a refusal carrying a caller-facing reason.
func Deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// DeniedError wraps a refusal so callers can surface it as a typed error.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return "policy: denied: " + e.Reason }

// Err converts a refusal into an error, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// Input carries the four policy axes plus the relational facts the
// caller already holds. Case is nil only for case creation and role
// assignment administration.
type Input struct {
	Actor    auth.Actor
	Action   Action
	Resource Resource
	Case     *docket.Case
	// Owner is the uploader/submitter address of the target record,
	// empty when the action has no per-record owner.
	Owner string
}

type ruleKey struct {
	role     auth.Role
	action   Action
	resource Resource
}

type rule struct {
	// stages the case must currently be in; empty means any stage.
	stages []docket.Stage
	rel    relation
	// caseless marks operations with no owning case.
	caseless bool
}

// mutations of evidence-bearing records are frozen once the case enters
// a terminal stage, regardless of role.
var immutableStages = map[docket.Stage]bool{
	docket.StageClosed: true,
}

// visibleStages is the per-role read window onto a case. Police see the
// whole lifecycle of their own filings; everyone else joins at the
// procuratorate hand-off.
var visibleStages = map[auth.Role][]docket.Stage{
	auth.RolePolice:     {docket.StageInvestigation, docket.StageProcuratorate, docket.StageCourtTrial, docket.StageClosed},
	auth.RoleProsecutor: {docket.StageProcuratorate, docket.StageCourtTrial, docket.StageClosed},
	auth.RoleJudge:      {docket.StageProcuratorate, docket.StageCourtTrial, docket.StageClosed},
	auth.RoleLawyer:     {docket.StageProcuratorate, docket.StageCourtTrial, docket.StageClosed},
}

// evidenceStages is where each uploading role may create or amend its
// own submissions.
var evidenceStages = map[auth.Role][]docket.Stage{
	auth.RolePolice:     {docket.StageInvestigation, docket.StageProcuratorate},
	auth.RoleProsecutor: {docket.StageProcuratorate, docket.StageCourtTrial},
}

var materialStages = []docket.Stage{docket.StageProcuratorate, docket.StageCourtTrial}

var correctionHandleStages = []docket.Stage{docket.StageProcuratorate, docket.StageCourtTrial}

// rules is the complete policy table. Keep it sorted by resource, then
// role; the tests sweep every (role, action, resource) tuple against it.
var rules = map[ruleKey]rule{
	// Case.
	{auth.RolePolice, ActionCreate, ResourceCase}:      {caseless: true},
	{auth.RolePolice, ActionRead, ResourceCase}:        {rel: relParticipant, stages: visibleStages[auth.RolePolice]},
	{auth.RoleProsecutor, ActionRead, ResourceCase}:    {rel: relParticipant, stages: visibleStages[auth.RoleProsecutor]},
	{auth.RoleJudge, ActionRead, ResourceCase}:         {rel: relParticipant, stages: visibleStages[auth.RoleJudge]},
	{auth.RoleLawyer, ActionRead, ResourceCase}:        {rel: relParticipant, stages: visibleStages[auth.RoleLawyer]},
	{auth.RoleJudge, ActionUpdate, ResourceCase}:       {rel: relParticipant, stages: []docket.Stage{docket.StageProcuratorate, docket.StageCourtTrial}},
	{auth.RoleJudge, ActionDelete, ResourceCase}:       {rel: relParticipant},
	{auth.RolePolice, ActionAdvance, ResourceCase}:     {rel: relParticipant},
	{auth.RoleProsecutor, ActionAdvance, ResourceCase}: {rel: relParticipant},
	{auth.RoleJudge, ActionAdvance, ResourceCase}:      {rel: relParticipant},

	// Evidence.
	{auth.RolePolice, ActionCreate, ResourceEvidence}:     {rel: relParticipant, stages: evidenceStages[auth.RolePolice]},
	{auth.RoleProsecutor, ActionCreate, ResourceEvidence}: {rel: relParticipant, stages: evidenceStages[auth.RoleProsecutor]},
	{auth.RolePolice, ActionUpdate, ResourceEvidence}:     {rel: relOwner, stages: evidenceStages[auth.RolePolice]},
	{auth.RoleProsecutor, ActionUpdate, ResourceEvidence}: {rel: relOwner, stages: evidenceStages[auth.RoleProsecutor]},
	{auth.RolePolice, ActionDelete, ResourceEvidence}:     {rel: relOwner, stages: evidenceStages[auth.RolePolice]},
	{auth.RoleProsecutor, ActionDelete, ResourceEvidence}: {rel: relOwner, stages: evidenceStages[auth.RoleProsecutor]},
	{auth.RolePolice, ActionRead, ResourceEvidence}:       {rel: relParticipant, stages: visibleStages[auth.RolePolice]},
	{auth.RoleProsecutor, ActionRead, ResourceEvidence}:   {rel: relParticipant, stages: visibleStages[auth.RoleProsecutor]},
	{auth.RoleJudge, ActionRead, ResourceEvidence}:        {rel: relParticipant, stages: visibleStages[auth.RoleJudge]},
	{auth.RoleLawyer, ActionRead, ResourceEvidence}:       {rel: relParticipant, stages: visibleStages[auth.RoleLawyer]},
	{auth.RolePolice, ActionVerify, ResourceEvidence}:     {rel: relParticipant, stages: visibleStages[auth.RolePolice]},
	{auth.RoleProsecutor, ActionVerify, ResourceEvidence}: {rel: relParticipant, stages: visibleStages[auth.RoleProsecutor]},
	{auth.RoleJudge, ActionVerify, ResourceEvidence}:      {rel: relParticipant, stages: visibleStages[auth.RoleJudge]},
	{auth.RoleLawyer, ActionVerify, ResourceEvidence}:     {rel: relParticipant, stages: visibleStages[auth.RoleLawyer]},

	// Correction.
	{auth.RolePolice, ActionCreate, ResourceCorrection}:     {rel: relOwner, stages: evidenceStages[auth.RolePolice]},
	{auth.RoleProsecutor, ActionCreate, ResourceCorrection}: {rel: relOwner, stages: evidenceStages[auth.RoleProsecutor]},
	{auth.RoleJudge, ActionHandle, ResourceCorrection}:      {rel: relParticipant, stages: correctionHandleStages},
	{auth.RolePolice, ActionRead, ResourceCorrection}:       {rel: relParticipant, stages: visibleStages[auth.RolePolice]},
	{auth.RoleProsecutor, ActionRead, ResourceCorrection}:   {rel: relParticipant, stages: visibleStages[auth.RoleProsecutor]},
	{auth.RoleJudge, ActionRead, ResourceCorrection}:        {rel: relParticipant, stages: visibleStages[auth.RoleJudge]},
	{auth.RoleLawyer, ActionRead, ResourceCorrection}:       {rel: relParticipant, stages: visibleStages[auth.RoleLawyer]},

	// Defense material.
	{auth.RoleLawyer, ActionCreate, ResourceMaterial}:   {rel: relParticipant, stages: materialStages},
	{auth.RoleLawyer, ActionUpdate, ResourceMaterial}:   {rel: relOwner, stages: materialStages},
	{auth.RoleLawyer, ActionDelete, ResourceMaterial}:   {rel: relOwner, stages: materialStages},
	{auth.RolePolice, ActionRead, ResourceMaterial}:     {rel: relParticipant, stages: visibleStages[auth.RolePolice]},
	{auth.RoleProsecutor, ActionRead, ResourceMaterial}: {rel: relParticipant, stages: visibleStages[auth.RoleProsecutor]},
	{auth.RoleJudge, ActionRead, ResourceMaterial}:      {rel: relParticipant, stages: visibleStages[auth.RoleJudge]},
	{auth.RoleLawyer, ActionRead, ResourceMaterial}:     {rel: relParticipant, stages: visibleStages[auth.RoleLawyer]},

	// Objection. Creation and resolution are independent of the stage
	// machine; only role, participation and pending-status gate them
	// (the status check lives in the workflow, not here).
	{auth.RoleLawyer, ActionCreate, ResourceObjection}:   {rel: relParticipant},
	{auth.RoleJudge, ActionHandle, ResourceObjection}:    {rel: relParticipant},
	{auth.RolePolice, ActionRead, ResourceObjection}:     {rel: relParticipant, stages: visibleStages[auth.RolePolice]},
	{auth.RoleProsecutor, ActionRead, ResourceObjection}: {rel: relParticipant, stages: visibleStages[auth.RoleProsecutor]},
	{auth.RoleJudge, ActionRead, ResourceObjection}:      {rel: relParticipant, stages: visibleStages[auth.RoleJudge]},
	{auth.RoleLawyer, ActionRead, ResourceObjection}:     {rel: relParticipant, stages: visibleStages[auth.RoleLawyer]},

	// Role assignments.
	{auth.RoleAdmin, ActionCreate, ResourceRoleAssignment}: {caseless: true},
	{auth.RoleAdmin, ActionRead, ResourceRoleAssignment}:   {caseless: true},
	{auth.RoleAdmin, ActionUpdate, ResourceRoleAssignment}: {caseless: true},
	{auth.RoleAdmin, ActionDelete, ResourceRoleAssignment}: {caseless: true},
}

// mutating reports whether the action changes evidence-bearing state.
func (a Action) mutating() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionHandle:
		return true
	}
	return false
}

// Authorize evaluates the policy table for the given input.
func Authorize(in Input) Decision {
	d := authorize(in)
	outcome := "deny"
	if d.Allowed {
		outcome = "allow"
	}
	obs.AuthzDecisions.WithLabelValues(string(in.Actor.Role), string(in.Action), string(in.Resource), outcome).Inc()
	return d
}

func authorize(in Input) Decision {
	if _, err := auth.ParseRole(string(in.Actor.Role)); err != nil || in.Actor.Address == "" {
		return Deny("unresolved actor")
	}

	r, ok := rules[ruleKey{in.Actor.Role, in.Action, in.Resource}]
	if !ok {
		return Deny(fmt.Sprintf("%s may not %s %s", in.Actor.Role, in.Action, in.Resource))
	}

	if r.caseless {
		return Allow()
	}
	if in.Case == nil {
		return Deny("operation requires a case")
	}

	// Terminal stages freeze every evidence-bearing record regardless
	// of role. Objections stay exempt: their workflow runs independently
	// of the stage machine.
	if in.Action.mutating() && in.Resource != ResourceObjection && in.Resource != ResourceCase {
		if immutableStages[in.Case.Stage] {
			return Deny("case records are immutable after closure")
		}
	}
	if in.Case.Archived && in.Action != ActionRead {
		return Deny("case is archived")
	}

	if len(r.stages) > 0 && !stageIn(in.Case.Stage, r.stages) {
		return Deny(fmt.Sprintf("%s may not %s %s while case is in %s", in.Actor.Role, in.Action, in.Resource, in.Case.Stage))
	}

	switch r.rel {
	case relParticipant:
		if !in.Case.Participants.Has(in.Actor.Role, in.Actor.Address) {
			return Deny("actor is not attached to the case")
		}
	case relOwner:
		if !in.Case.Participants.Has(in.Actor.Role, in.Actor.Address) {
			return Deny("actor is not attached to the case")
		}
		if in.Owner == "" || in.Owner != in.Actor.Address {
			return Deny("actor does not own the record")
		}
	}
	return Allow()
}

func stageIn(s docket.Stage, list []docket.Stage) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
