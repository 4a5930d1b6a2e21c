// Package httpapi exposes the HTTP surface: the two function endpoints, the REST
// API over the data space, health and metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"procuredata.io/internal/admin"
	"procuredata.io/internal/audit"
	"procuredata.io/internal/auth"
	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/health"
	"procuredata.io/internal/notify"
	"procuredata.io/internal/obs"
	"procuredata.io/internal/stream"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is required")

// Deps are the services the API is built from. Probe and Hub may be nil.
type Deps struct {
	Store      dataspace.Store
	Workflow   *dataspace.Service
	Dispatcher *notify.Dispatcher
	Admin      *admin.Service
	Hub        *stream.Hub
	Verifier   *auth.Verifier
	Probe      health.Checker
	Version    string

	CORSOrigins   []string
	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	deps     Deps
	recorder *audit.Recorder
	router   chi.Router
}

func New(deps Deps) *API {
	if deps.RateBurst <= 0 {
		deps.RateBurst = 40
	}
	if deps.RatePerSecond <= 0 {
		deps.RatePerSecond = 20
	}
	a := &API{
		deps:     deps,
		recorder: audit.NewRecorder(deps.Store.AuditLogs()),
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(Recoverer, RequestID, LoggingJSON, obs.Instrument, SecurityHeaders, CORS(a.deps.CORSOrigins))
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.deps.RateBurst, a.deps.RatePerSecond) })
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, maxBodyBytes) })

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.Group(func(r chi.Router) {
		r.Use(a.withAuth(writeFunctionError))
		r.Post("/functions/v1/notification-handler", a.NotificationHandler)
		r.Get("/functions/v1/admin-users", a.AdminUsers)
		r.Post("/functions/v1/admin-users", a.AdminDeleteUser)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.withAuth(writeError))

		r.Get("/v1/products", a.listProducts)
		r.Get("/v1/assets", a.listAssets)
		r.Get("/v1/organizations/{orgID}", a.getOrganization)
		r.Get("/v1/organizations/{orgID}/audit-logs", a.listAuditLogs)
		r.Get("/v1/organizations/{orgID}/audit-logs/export", a.exportAuditLogs)
		r.Get("/v1/organizations/{orgID}/governance-logs", a.listGovernanceLogs)

		r.Post("/v1/transactions", a.createTransaction)
		r.Get("/v1/transactions/{txID}", a.getTransaction)
		r.Get("/v1/transactions/{txID}/history", a.getHistory)
		r.Post("/v1/transactions/{txID}/{action}", a.transitionTransaction)

		r.Get("/v1/notifications", a.listNotifications)
		r.Get("/v1/notifications/stream", a.Stream)
		r.Post("/v1/notifications/read-all", a.markAllRead)
		r.Post("/v1/notifications/{notificationID}/read", a.markRead(true))
		r.Post("/v1/notifications/{notificationID}/unread", a.markRead(false))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Handler returns the root handler for the HTTP server.
func (a *API) Handler() http.Handler {
	return a.router
}

// --- health ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": health.ServiceName,
		"version": a.deps.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.deps.Probe != nil {
		if err := a.deps.Probe.Check(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    health.ServiceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.deps.Version,
	})
}

// --- helpers ---

type errorWriter func(w http.ResponseWriter, r *http.Request, code int, msg string)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{"error": msg}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeFunctionError keeps the function endpoints' bare {"error": msg} body.
func writeFunctionError(w http.ResponseWriter, _ *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// statusFor maps domain errors to an HTTP status and client message.
// upstream is the status used for upstream failures.
func statusFor(err error, upstream int) (int, string) {
	switch {
	case errors.Is(err, dataspace.ErrInvalidRequest),
		errors.Is(err, dataspace.ErrPrecondition),
		errors.Is(err, dataspace.ErrIllegalTransition):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, dataspace.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, dataspace.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, dataspace.ErrUpstream):
		return upstream, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err, http.StatusBadGateway)
	logFailure(r, code, err)
	writeError(w, r, code, msg)
}

func logFailure(r *http.Request, code int, err error) {
	if code < http.StatusInternalServerError {
		return
	}
	obs.Logger().Error("request failed",
		zap.String("request_id", audit.RequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", code),
		zap.Error(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

// decodeLenientJSON ignores fields dst does not declare. The function
// endpoints take payloads built by other services that carry extra keys.
func decodeLenientJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
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

// decodeOptionalJSON accepts an empty body and leaves dst untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := decodeJSON(w, r, dst)
	if errors.Is(err, errEmptyBody) {
		return nil
	}
	return err
}

func parseLimit(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return val, nil
}
