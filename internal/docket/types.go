package docket

import (
	"errors"
	"time"

	"casechain.org/internal/auth"
)

// CaseType distinguishes the two prosecution tracks.
type CaseType string

const (
	CasePublicProsecution CaseType = "public-prosecution"
	CaseCivilLitigation   CaseType = "civil-litigation"
)

// Stage is a case's position in the fixed procedural lifecycle.
type Stage string

const (
	StageInvestigation Stage = "INVESTIGATION"
	StageProcuratorate Stage = "PROCURATORATE"
	StageCourtTrial    Stage = "COURT_TRIAL"
	StageClosed        Stage = "CLOSED"
)

// stageOrder fixes the total order used by the advance-only invariant.
var stageOrder = map[Stage]int{
	StageInvestigation: 0,
	StageProcuratorate: 1,
	StageCourtTrial:    2,
	StageClosed:        3,
}

// Stages lists the lifecycle in order.
func Stages() []Stage {
	return []Stage{StageInvestigation, StageProcuratorate, StageCourtTrial, StageClosed}
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Terminal reports whether the stage accepts no further transitions.
func (s Stage) Terminal() bool { return s == StageClosed }

// Before reports whether s precedes other in the lifecycle order.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// AtOrAfter reports whether s is other or later.
func (s Stage) AtOrAfter(other Stage) bool {
	return stageOrder[s] >= stageOrder[other]
}

// Participants holds the identities formally attached to a case.
type Participants struct {
	FilingPolice     string   `json:"filing_police"`
	Prosecutors      []string `json:"prosecutors,omitempty"`
	Judges           []string `json:"judges,omitempty"`
	PlaintiffLawyers []string `json:"plaintiff_lawyers,omitempty"`
	DefendantLawyers []string `json:"defendant_lawyers,omitempty"`
}

// Has reports whether address is attached under the given role.
func (p Participants) Has(role auth.Role, address string) bool {
	switch role {
	case auth.RolePolice:
		return p.FilingPolice == address
	case auth.RoleProsecutor:
		return contains(p.Prosecutors, address)
	case auth.RoleJudge:
		return contains(p.Judges, address)
	case auth.RoleLawyer:
		return contains(p.PlaintiffLawyers, address) || contains(p.DefendantLawyers, address)
	}
	return false
}

// Contains reports whether address appears under any role.
func (p Participants) Contains(address string) bool {
	for _, role := range auth.Roles() {
		if p.Has(role, address) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Case is a criminal-case record. Stage only advances forward; Version
// backs the optimistic check that serializes concurrent advances.
type Case struct {
	ID           string       `json:"id"`
	Number       string       `json:"number"`
	Type         CaseType     `json:"type"`
	Title        string       `json:"title"`
	Stage        Stage        `json:"stage"`
	Participants Participants `json:"participants"`
	Archived     bool         `json:"archived,omitempty"`
	Version      uint64       `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TimelineEntry records one applied stage transition.
type TimelineEntry struct {
	ID      string    `json:"id"`
	CaseID  string    `json:"case_id"`
	From    Stage     `json:"from"`
	To      Stage     `json:"to"`
	Actor   string    `json:"actor"`
	Role    auth.Role `json:"role"`
	Comment string    `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

var (
	ErrNotFound               = errors.New("docket: case not found")
	ErrIllegalTransition      = errors.New("docket: illegal stage transition")
	ErrAlreadyTerminal        = errors.New("docket: case is closed")
	ErrNotParticipant         = errors.New("docket: actor is not attached to the case")
	ErrConcurrentModification = errors.New("docket: case was modified concurrently")
	ErrArchived               = errors.New("docket: case is archived")
	ErrInvalidInput           = errors.New("docket: invalid input")
)
