package httpapi

import (
	"net/http"
	"strings"

	"casechain.org/internal/audit"
	"casechain.org/internal/evidence"
)

type submitCorrectionRequest struct {
	Reason  string `json:"reason"`
	Content []byte `json:"content"`
}

type submitObjectionRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Approve   bool   `json:"approve"`
	Rationale string `json:"rationale"`
}

func (a *API) handleEvidenceResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/evidence/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			a.getEvidence(w, r, id)
		case http.MethodDelete:
			a.deleteEvidence(w, r, id)
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
	case "verify":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.verifyEvidence(w, r, id)
	case "corrections":
		switch r.Method {
		case http.MethodPost:
			a.submitCorrection(w, r, id)
		case http.MethodGet:
			a.listCorrections(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case "objections":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.submitObjection(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleCorrectionResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/corrections/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "resolve" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.resolveCorrection(w, r, parts[0])
}

func (a *API) handleObjectionResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/objections/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "resolve" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.resolveObjection(w, r, parts[0])
}

func (a *API) getEvidence(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	e, err := a.custody.GetEvidence(r.Context(), id, actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) deleteEvidence(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := a.custody.DeleteEvidence(r.Context(), id, actor); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "evidence.deleted", map[string]any{"evidence_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) verifyEvidence(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	v, err := a.custody.Verify(r.Context(), id, actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if v.Result == evidence.VerifyMismatch {
		_ = audit.LogEvent(r.Context(), "evidence.integrity_mismatch", map[string]any{
			"evidence_id": id,
			"local":       string(v.Local),
			"ledger":      string(v.Ledger),
		})
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) submitCorrection(w http.ResponseWriter, r *http.Request, evidenceID string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req submitCorrectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.custody.SubmitCorrection(r.Context(), evidenceID, actor, req.Reason, req.Content)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "correction.submitted", map[string]any{
		"evidence_id":   evidenceID,
		"correction_id": c.ID,
	})
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) listCorrections(w http.ResponseWriter, r *http.Request, evidenceID string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	items, err := a.custody.ListCorrections(r.Context(), evidenceID, actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) resolveCorrection(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.custody.ResolveCorrection(r.Context(), id, actor, req.Approve, req.Rationale)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "correction.resolved", map[string]any{
		"correction_id": id,
		"status":        c.Status,
	})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) submitObjection(w http.ResponseWriter, r *http.Request, evidenceID string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req submitObjectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	o, err := a.custody.SubmitObjection(r.Context(), evidenceID, actor, req.Reason)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "objection.submitted", map[string]any{
		"evidence_id":  evidenceID,
		"objection_id": o.ID,
	})
	writeJSON(w, http.StatusCreated, o)
}

func (a *API) resolveObjection(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	o, err := a.custody.HandleObjection(r.Context(), id, actor, req.Approve, req.Rationale)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "objection.resolved", map[string]any{
		"objection_id": id,
		"status":       o.Status,
	})
	writeJSON(w, http.StatusOK, o)
}
