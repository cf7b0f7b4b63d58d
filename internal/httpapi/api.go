package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"casechain.org/internal/anchor"
	"casechain.org/internal/auth"
	"casechain.org/internal/docket"
	"casechain.org/internal/evidence"
	"casechain.org/internal/obs"
	"casechain.org/internal/policy"
	"casechain.org/internal/stream"
)

// ReadyProbe reports service readiness (DB ping when one is configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. It authenticates, authorizes case-level
// operations, and delegates everything else to the domain services.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	registry *auth.Registry
	cases    *docket.Service
	custody  *evidence.Service
	events   *stream.Stream

	rateBurst  int
	ratePerSec int
	maxBody    int64
}

func New(rp ReadyProbe, version string, registry *auth.Registry, cases *docket.Service, custody *evidence.Service, events *stream.Stream) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		registry:   registry,
		cases:      cases,
		custody:    custody,
		events:     events,
		rateBurst:  50,
		ratePerSec: 25,
		maxBody:    1 << 20,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/cases", a.handleCasesCollection)
	a.mux.HandleFunc("/v1/cases/", a.handleCaseResource)
	a.mux.HandleFunc("/v1/evidence/", a.handleEvidenceResource)
	a.mux.HandleFunc("/v1/corrections/", a.handleCorrectionResource)
	a.mux.HandleFunc("/v1/objections/", a.handleObjectionResource)
	a.mux.HandleFunc("/v1/roles", a.handleRolesCollection)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)

	a.mux.HandleFunc("/v1/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux. Order matters:
// metrics wrap everything, auth runs after the cheap protections so
// unauthenticated floods never reach token parsing.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "casechain-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "casechain-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
		"stages":  docket.Stages(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps the error taxonomy onto HTTP statuses. Every
// conflict in the optimistic and single-shot paths is a 409 so clients
// re-read and retry instead of blindly repeating.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *policy.DeniedError
	switch {
	case errors.As(err, &denied):
		writeError(w, r, http.StatusForbidden, denied.Reason)
	case errors.Is(err, docket.ErrNotParticipant):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, docket.ErrNotFound),
		errors.Is(err, evidence.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, docket.ErrIllegalTransition),
		errors.Is(err, docket.ErrAlreadyTerminal),
		errors.Is(err, docket.ErrConcurrentModification),
		errors.Is(err, docket.ErrArchived),
		errors.Is(err, evidence.ErrAlreadyHandled),
		errors.Is(err, evidence.ErrCorrectionPending),
		errors.Is(err, evidence.ErrCorrectionClosed),
		errors.Is(err, evidence.ErrFingerprintSet),
		errors.Is(err, evidence.ErrAnchorSet),
		errors.Is(err, auth.ErrActiveAssignment),
		errors.Is(err, auth.ErrAlreadyRevoked):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, docket.ErrInvalidInput),
		errors.Is(err, evidence.ErrInvalidInput),
		errors.Is(err, auth.ErrInvalidRole):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, anchor.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "anchor ledger unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
