package httpapi

import (
	"net/http"
	"strings"

	"casechain.org/internal/audit"
	"casechain.org/internal/auth"
	"casechain.org/internal/policy"
)

type grantRoleRequest struct {
	Address string `json:"address"`
	Role    string `json:"role"`
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	if a.registry == nil {
		writeError(w, r, http.StatusServiceUnavailable, "role registry unavailable")
		return
	}
	switch r.Method {
	case http.MethodPost:
		a.grantRole(w, r)
	case http.MethodGet:
		a.listRoles(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if a.registry == nil {
		writeError(w, r, http.StatusServiceUnavailable, "role registry unavailable")
		return
	}
	address := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if address == "" || strings.Contains(address, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	a.revokeRole(w, r, address)
}

func (a *API) grantRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionCreate, Resource: policy.ResourceRoleAssignment,
	}).Err(); err != nil {
		handleDomainError(w, r, err)
		return
	}

	var req grantRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	assignment, err := a.registry.Grant(r.Context(), req.Address, role)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "role.granted", map[string]any{
		"assignment_id": assignment.ID,
		"address":       assignment.Address,
		"role":          string(assignment.Role),
		"anchored":      !assignment.GrantTxRef.IsZero(),
	})
	writeJSON(w, http.StatusCreated, assignment)
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionRead, Resource: policy.ResourceRoleAssignment,
	}).Err(); err != nil {
		handleDomainError(w, r, err)
		return
	}
	items, err := a.registry.List(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) revokeRole(w http.ResponseWriter, r *http.Request, address string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := policy.Authorize(policy.Input{
		Actor: actor, Action: policy.ActionDelete, Resource: policy.ResourceRoleAssignment,
	}).Err(); err != nil {
		handleDomainError(w, r, err)
		return
	}
	assignment, err := a.registry.Revoke(r.Context(), address)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.revoked", map[string]any{
		"assignment_id": assignment.ID,
		"address":       assignment.Address,
		"role":          string(assignment.Role),
	})
	writeJSON(w, http.StatusOK, assignment)
}
