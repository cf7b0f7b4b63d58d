package httpapi

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"casechain.org/internal/audit"
	"casechain.org/internal/auth"
)

type tokenRequest struct {
	Address string `json:"address"`
	Role    string `json:"role"`
	// Password is only consulted for admin tokens, and only when the
	// deployment pins an admin password hash.
	Password string `json:"password,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Role      auth.Role `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

// handleAuthToken issues a short-lived token. With a registry wired the
// role comes from the address's active assignment; the request may name
// a role only to assert it. Without a registry (dev mode) the requested
// role is taken as is.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		writeError(w, r, http.StatusBadRequest, "address is required")
		return
	}

	var role auth.Role
	if a.registry != nil {
		actor, err := a.registry.Resolve(r.Context(), address)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, "no active role assignment")
			} else {
				writeError(w, r, http.StatusInternalServerError, "token issuance failed")
			}
			return
		}
		role = actor.Role
		if req.Role != "" {
			requested, err := auth.ParseRole(req.Role)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			if requested != role {
				writeError(w, r, http.StatusForbidden, "address is not assigned the requested role")
				return
			}
		}
	} else {
		parsed, err := auth.ParseRole(req.Role)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role = parsed
	}

	if role == auth.RoleAdmin {
		if hash := os.Getenv("CASECHAIN_ADMIN_PASSWORD_HASH"); hash != "" {
			if err := auth.VerifyPassword(hash, req.Password); err != nil {
				writeError(w, r, http.StatusUnauthorized, "admin credentials rejected")
				return
			}
		}
	}

	token, err := auth.GenerateToken(address, role, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"address":    address,
		"role":       string(role),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		Role:      role,
		ExpiresAt: expiresAt,
	})
}
