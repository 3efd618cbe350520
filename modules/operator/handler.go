package operator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/modules/alerts"
	"github.com/dmitrymomot/crewplane/modules/identity"
	"github.com/dmitrymomot/crewplane/modules/tenants"
	"github.com/dmitrymomot/crewplane/pkg/httpx"
	"github.com/dmitrymomot/crewplane/pkg/validator"
)

// Handler is the admin HTTP surface.
type Handler struct {
	svc    *Service
	imp    *Impersonator
	audits AuditStorage
	logger *slog.Logger
}

func NewHandler(svc *Service, imp *Impersonator, audits AuditStorage, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, imp: imp, audits: audits, logger: logger}
}

// Routes mounts the admin routes. The caller mounts them under
// /api/v1/admin behind the auth middleware; every route here is
// SuperAdmin-only and audited. The audit wraps the gate so denied
// attempts land in the trail too.
func (h *Handler) Routes(r chi.Router) {
	r.Use(AuditMiddleware(h.audits, h.logger))
	r.Use(RequireSuperAdmin)

	r.Get("/dashboard", h.dashboard)
	r.Get("/tenants", h.listTenants)
	r.Get("/tenants/{id}", h.tenantDetail)
	r.Post("/tenants/{id}/suspend", h.suspend)
	r.Post("/tenants/{id}/resume", h.resume)
	r.Post("/tenants/{id}/cancel", h.cancel)
	r.Post("/tenants/{id}/retry-provisioning", h.retryProvisioning)
	r.Post("/tenants/{id}/rescan", h.rescan)
	r.Post("/tenants/{id}/export", h.createExport)
	r.Get("/tenants/{id}/export", h.fetchExport)
	r.Post("/tenants/{id}/impersonate", h.impersonate)
	r.Delete("/impersonations/{id}", h.revokeImpersonation)
	r.Get("/alerts", h.listAlerts)
	r.Post("/alerts/{id}/acknowledge", h.acknowledgeAlert)
	r.Post("/alerts/{id}/resolve", h.resolveAlert)
	r.Get("/audits", h.listAudits)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.OK(w, d)
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := tenants.Filter{
		Search: q.Get("search"),
		Status: tenants.Status(q.Get("status")),
		Limit:  queryInt(q.Get("limit"), 50),
		Offset: queryInt(q.Get("offset"), 0),
	}
	rows, err := h.svc.ListTenants(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.OK(w, rows)
}

func (h *Handler) tenantDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.TenantDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.OK(w, detail)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (req reasonRequest) Validate() error {
	return validator.Apply(
		validator.Required("reason", req.Reason),
		validator.MaxLen("reason", req.Reason, 500),
	)
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.svc.SuspendTenant(r.Context(), chi.URLParam(r, "id"), req.Reason, actorID(r)); err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResumeTenant(r.Context(), chi.URLParam(r, "id"), actorID(r)); err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.svc.CancelTenant(r.Context(), chi.URLParam(r, "id"), req.Reason, actorID(r)); err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) retryProvisioning(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.RetryProvisioning(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.OK(w, t)
}

func (h *Handler) rescan(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Rescan(r.Context()); err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) createExport(w http.ResponseWriter, r *http.Request) {
	key, err := h.svc.CreateExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.Created(w, map[string]string{"archive_key": key})
}

func (h *Handler) fetchExport(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.svc.FetchExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bundle)
}

func (h *Handler) impersonate(w http.ResponseWriter, r *http.Request) {
	claims, _ := identity.ClaimsFromContext(r.Context())
	ticket, err := h.imp.Grant(r.Context(), claims.Subject, claims.Email, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.Created(w, ticket)
}

func (h *Handler) revokeImpersonation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, httpx.ErrBadRequest.WithMessage("invalid grant id"))
		return
	}
	if err := h.imp.Revoke(r.Context(), id); err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := alerts.Filter{
		TenantID: q.Get("tenant_id"),
		Status:   alerts.Status(q.Get("status")),
		Type:     alerts.Type(q.Get("type")),
		Limit:    queryInt(q.Get("limit"), 50),
		Offset:   queryInt(q.Get("offset"), 0),
	}
	rows, err := h.svc.ListAlerts(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.OK(w, rows)
}

func (h *Handler) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.alertAction(w, r, h.svc.AcknowledgeAlert)
}

func (h *Handler) resolveAlert(w http.ResponseWriter, r *http.Request) {
	h.alertAction(w, r, h.svc.ResolveAlert)
}

func (h *Handler) alertAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, httpx.ErrBadRequest.WithMessage("invalid alert id"))
		return
	}
	if err := action(r.Context(), id); err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listAudits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := AuditFilter{
		ActorID:  q.Get("actor_id"),
		TenantID: q.Get("tenant_id"),
		Limit:    queryInt(q.Get("limit"), 50),
		Offset:   queryInt(q.Get("offset"), 0),
	}
	rows, err := h.svc.ListAudits(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, mapOperatorError(err))
		return
	}
	httpx.OK(w, rows)
}

func actorID(r *http.Request) string {
	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func mapOperatorError(err error) error {
	switch {
	case errors.Is(err, tenants.ErrTenantNotFound):
		return errors.Join(httpx.ErrTenantNotFound, err)
	case errors.Is(err, tenants.ErrInvalidTransition):
		return errors.Join(httpx.ErrInvalidTransition, err)
	case errors.Is(err, tenants.ErrVersionConflict):
		return errors.Join(httpx.ErrConflict.WithMessage("concurrent update, retry"), err)
	case errors.Is(err, alerts.ErrNotFound), errors.Is(err, ErrGrantNotFound):
		return errors.Join(httpx.ErrEntityNotFound, err)
	case errors.Is(err, alerts.ErrAlreadyResolved):
		return errors.Join(httpx.ErrConflict, err)
	case errors.Is(err, ErrGrantRevoked), errors.Is(err, ErrGrantExpired), errors.Is(err, ErrInvalidImpToken):
		return errors.Join(httpx.ErrUnauthenticated, err)
	case errors.Is(err, ErrRescanUnavailable):
		return errors.Join(httpx.ErrUnavailable, err)
	default:
		return err
	}
}
