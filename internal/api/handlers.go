package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/tenant-domains/internal/pkg/httputil"
	"github.com/ignite/tenant-domains/internal/provisioning"
	"github.com/ignite/tenant-domains/internal/service/tenant"
)

// TenantService is the tenant lifecycle surface the handlers drive.
type TenantService interface {
	ProvisionEmailDomain(ctx context.Context, raw string) (*provisioning.ProvisioningResult, error)
	DeprovisionEmailDomain(ctx context.Context, raw string) (*provisioning.DeprovisioningResult, error)
	History(ctx context.Context, raw string, limit int) ([]tenant.Run, error)
}

// ProvisioningStatus describes how the service is wired.
type ProvisioningStatus struct {
	BaseDomain              string `json:"base_domain"`
	Region                  string `json:"region"`
	RegistrarProvider       string `json:"registrar_provider"`
	RegistrarConfigured     bool   `json:"registrar_configured"`
	EmailProviderConfigured bool   `json:"email_provider_configured"`
	JournalEnabled          bool   `json:"journal_enabled"`
	LockBackend             string `json:"lock_backend"`
}

// Handlers contains the tenant email-domain HTTP handlers
type Handlers struct {
	svc    TenantService
	status ProvisioningStatus
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc TenantService, status ProvisioningStatus) *Handlers {
	return &Handlers{svc: svc, status: status}
}

// RegisterRoutes mounts the provisioning routes on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/provisioning/status", h.HandleStatus)
	r.Route("/tenants", func(r chi.Router) {
		r.Post("/provision", h.HandleProvision)
		r.Delete("/{handle}/email-domain", h.HandleDeprovision)
		r.Get("/{handle}/runs", h.HandleRuns)
	})
}

// HandleStatus reports provider configuration.
//
//	GET /api/provisioning/status
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.status)
}

type provisionRequest struct {
	Handle string `json:"handle"`
}

// HandleProvision runs provisioning for a tenant handle. A run that does
// not fully succeed is still a 200; the body says what happened.
//
//	POST /api/tenants/provision {"handle": "acme"}
func (h *Handlers) HandleProvision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	res, err := h.svc.ProvisionEmailDomain(r.Context(), req.Handle)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// HandleDeprovision tears down a tenant's sending domain.
//
//	DELETE /api/tenants/{handle}/email-domain
func (h *Handlers) HandleDeprovision(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeprovisionEmailDomain(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// HandleRuns lists journaled runs for a handle.
//
//	GET /api/tenants/{handle}/runs?limit=20
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.svc.History(r.Context(), chi.URLParam(r, "handle"), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"runs": runs, "count": len(runs)})
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenant.ErrInvalidHandle):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, tenant.ErrOperationInProgress):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, tenant.ErrJournalUnavailable):
		httputil.ServiceUnavailable(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
