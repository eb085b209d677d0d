// Package server exposes a Core over HTTP and gRPC for the serve command.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shamank/snet-custody-go/pkg/credential"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/shamank/snet-custody-go/pkg/metrics"
	"github.com/shamank/snet-custody-go/pkg/model"
	"github.com/shamank/snet-custody-go/pkg/payment"
	"github.com/shamank/snet-custody-go/pkg/sdk"
	"github.com/shamank/snet-custody-go/pkg/tenant"
	"go.uber.org/zap"
)

// TenantHeader names the tenant when the server runs without JWT_SECRET in
// dev mode.
const TenantHeader = "X-Tenant-ID"

const maxBodyBytes = 1 << 20

// Options controls what the router mounts.
type Options struct {
	// JWTSecret verifies tenant bearer tokens. Empty trusts TenantHeader.
	JWTSecret string
	// MountMetrics serves /metrics on this router.
	MountMetrics bool
}

type handler struct {
	core *sdk.Core
}

// NewRouter builds the HTTP API:
//
//	GET    /healthz
//	GET    /metrics                      (when MountMetrics)
//	GET    /api/v1/tools
//	POST   /api/v1/tools/invoke          (payment gated when a requirement is set)
//	GET    /api/v1/payments/requirements
//	GET    /api/v1/credentials
//	PUT    /api/v1/credentials
//	DELETE /api/v1/credentials
func NewRouter(core *sdk.Core, opts Options) http.Handler {
	h := &handler{core: core}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	if opts.MountMetrics {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Init(), promhttp.HandlerOpts{EnableOpenMetrics: true}))
	}

	r.Route("/api/v1", func(api chi.Router) {
		if opts.JWTSecret != "" {
			api.Use(tenant.Middleware(tenant.AuthConfig{Secret: opts.JWTSecret}))
		} else {
			api.Use(headerIdentity)
		}
		api.Use(core.Gate().Middleware)

		api.Get("/tools", h.listTools)
		api.Post("/tools/invoke", h.invoke)
		api.Get("/payments/requirements", h.requirements)

		api.Get("/credentials", h.getCredential)
		api.Put("/credentials", h.putCredential)
		api.Delete("/credentials", h.deleteCredential)
	})
	return r
}

func headerIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(TenantHeader))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(tenant.WithIdentity(r.Context(), tenant.Identity{TenantID: id, Actor: id})))
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	report := h.core.Heartbeat(r.Context())
	status := http.StatusOK
	if report.Status == sdk.StatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (h *handler) listTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": model.Kinds()})
}

type invokeRequest struct {
	Kind      string          `json:"kind"`
	Arguments json.RawMessage `json:"arguments"`
}

type invokeResponse struct {
	Kind       string              `json:"kind"`
	Result     any                 `json:"result"`
	Settlement *payment.Settlement `json:"settlement,omitempty"`
}

func (h *handler) invoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	out, err := h.core.Invoke(r.Context(), req.Kind, req.Arguments, tenant.IDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := invokeResponse{Kind: req.Kind, Result: out}
	if s, ok := payment.SettlementFromContext(r.Context()); ok {
		resp.Settlement = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) requirements(w http.ResponseWriter, r *http.Request) {
	req, ok := h.core.Requirement(r.URL.Query().Get("resource"))
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"accepts": []payment.Requirement{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepts": []payment.Requirement{req}})
}

func (h *handler) getCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := requireTenant(w, r)
	if !ok {
		return
	}
	rec, err := h.core.CredentialRecord(r.Context(), id.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) putCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var secret credential.Secret
	if err := readJSON(r, &secret); err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.core.UpsertCredential(r.Context(), id.TenantID, secret, id.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) deleteCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := requireTenant(w, r)
	if !ok {
		return
	}
	if err := h.core.DeactivateCredential(r.Context(), id.TenantID, id.Actor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireTenant(w http.ResponseWriter, r *http.Request) (tenant.Identity, bool) {
	id, ok := tenant.FromContext(r.Context())
	if !ok || id.TenantID == "" {
		writeError(w, faults.Newf(faults.KindInvalidInput, "server.tenant", "send a bearer token or "+TenantHeader, "request has no tenant"))
		return tenant.Identity{}, false
	}
	return id, true
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return faults.New(faults.KindInvalidInput, "server.decode", "send a JSON body", err)
	}
	return nil
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// StatusOf maps an error kind onto an HTTP status.
func StatusOf(err error) int {
	switch faults.KindOf(err) {
	case faults.KindInvalidInput, faults.KindInvalidFormat:
		return http.StatusBadRequest
	case faults.KindNotFound:
		return http.StatusNotFound
	case faults.KindNoCredentials, faults.KindConfig:
		return http.StatusFailedDependency
	case faults.KindAuthFailed:
		return http.StatusUnprocessableEntity
	case faults.KindPaymentRejected:
		return http.StatusPaymentRequired
	case faults.KindLedgerRejected:
		return http.StatusConflict
	case faults.KindNetwork, faults.KindOffloadFailed:
		return http.StatusServiceUnavailable
	case faults.KindOutcomeUnknown:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	body := errorBody{Kind: string(faults.KindOf(err)), Message: err.Error(), Hint: faults.HintOf(err)}
	var fe *faults.Error
	if !errors.As(err, &fe) {
		body.Kind = "INTERNAL"
		body.Message = "internal error"
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}
