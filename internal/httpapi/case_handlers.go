package httpapi

import (
	"net/http"
	"strings"

	"casechain.org/internal/audit"
	"casechain.org/internal/docket"
	"casechain.org/internal/policy"
)

type createCaseRequest struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Prosecutors []string `json:"prosecutors"`
	Judges      []string `json:"judges"`
	Plaintiff   []string `json:"plaintiff_lawyers"`
	Defendant   []string `json:"defendant_lawyers"`
}

type advanceCaseRequest struct {
	Comment string `json:"comment"`
}

type submitEvidenceRequest struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

type submitMaterialRequest struct {
	Class   string `json:"class"`
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

func (a *API) handleCasesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createCase(w, r)
	case http.MethodGet:
		a.listCases(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCaseResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/cases/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			a.getCase(w, r, id)
		case http.MethodDelete:
			a.archiveCase(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch parts[1] {
	case "advance":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.advanceCase(w, r, id)
	case "timeline":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.caseTimeline(w, r, id)
	case "evidence":
		switch r.Method {
		case http.MethodPost:
			a.submitEvidence(w, r, id)
		case http.MethodGet:
			a.listEvidence(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case "materials":
		switch r.Method {
		case http.MethodPost:
			a.submitMaterial(w, r, id)
		case http.MethodGet:
			a.listMaterials(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case "objections":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listObjections(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionCreate, Resource: policy.ResourceCase,
	}).Err(); err != nil {
		handleDomainError(w, r, err)
		return
	}

	var req createCaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.cases.Create(r.Context(), actor, docket.NewCaseInput{
		Type:        docket.CaseType(strings.TrimSpace(req.Type)),
		Title:       req.Title,
		Prosecutors: req.Prosecutors,
		Judges:      req.Judges,
		Plaintiff:   req.Plaintiff,
		Defendant:   req.Defendant,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "case.filed", map[string]any{
		"case_id": c.ID,
		"number":  c.Number,
		"type":    string(c.Type),
	})
	w.Header().Set("Location", "/v1/cases/"+c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) listCases(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	items, err := a.cases.ListFor(r.Context(), actor.Address)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	// The per-case read window still applies when listing.
	visible := make([]*docket.Case, 0, len(items))
	for _, c := range items {
		d := policy.Authorize(policy.Input{
			Actor: actor, Action: policy.ActionRead, Resource: policy.ResourceCase, Case: c,
		})
		if d.Allowed {
			visible = append(visible, c)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": visible})
}

func (a *API) getCase(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	c, err := a.cases.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionRead, Resource: policy.ResourceCase, Case: c,
	}).Err(); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) advanceCase(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	c, err := a.cases.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionAdvance, Resource: policy.ResourceCase, Case: c,
	}).Err(); err != nil {
		handleDomainError(w, r, err)
		return
	}

	var req advanceCaseRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	updated, err := a.cases.Advance(r.Context(), id, actor, req.Comment)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "case.stage_advanced", map[string]any{
		"case_id": updated.ID,
		"from":    string(c.Stage),
		"to":      string(updated.Stage),
	})
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) archiveCase(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	c, err := a.cases.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionDelete, Resource: policy.ResourceCase, Case: c,
	}).Err(); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.cases.Archive(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "case.archived", map[string]any{"case_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) caseTimeline(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	c, err := a.cases.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionRead, Resource: policy.ResourceCase, Case: c,
	}).Err(); err != nil {
		handleDomainError(w, r, err)
		return
	}
	entries, err := a.cases.Timeline(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (a *API) submitEvidence(w http.ResponseWriter, r *http.Request, caseID string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req submitEvidenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	e, err := a.custody.Submit(r.Context(), caseID, actor, req.Name, req.Content)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "evidence.submitted", map[string]any{
		"case_id":     caseID,
		"evidence_id": e.ID,
		"fingerprint": string(e.Fingerprint),
		"anchored":    e.Anchored(),
	})
	w.Header().Set("Location", "/v1/evidence/"+e.ID)
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) listEvidence(w http.ResponseWriter, r *http.Request, caseID string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	items, err := a.custody.ListEvidence(r.Context(), caseID, actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) submitMaterial(w http.ResponseWriter, r *http.Request, caseID string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req submitMaterialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	m, err := a.custody.SubmitMaterial(r.Context(), caseID, actor, req.Class, req.Name, req.Content)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "material.submitted", map[string]any{
		"case_id":     caseID,
		"material_id": m.ID,
		"class":       m.Class,
	})
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) listMaterials(w http.ResponseWriter, r *http.Request, caseID string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	items, err := a.custody.ListMaterials(r.Context(), caseID, actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) listObjections(w http.ResponseWriter, r *http.Request, caseID string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	items, err := a.custody.ListObjections(r.Context(), caseID, actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
