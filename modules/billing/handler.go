package billing

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/crewplane/pkg/httpx"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
	"github.com/dmitrymomot/crewplane/pkg/validator"
)

// Handler exposes the catalog and subscription endpoints.
type Handler struct {
	catalog *Catalog
	subs    *Subscriptions
}

// NewHandler creates the billing HTTP handler.
func NewHandler(catalog *Catalog, subs *Subscriptions) *Handler {
	return &Handler{catalog: catalog, subs: subs}
}

// Routes mounts the tenant-facing billing routes. The catalog listing is
// public; subscription routes expect an established tenant scope.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/plans", h.listPlans)
	r.Group(func(r chi.Router) {
		r.Use(tenant.RequireTenant(nil))
		r.Get("/billing/subscription", h.getSubscription)
		r.Post("/billing/plan", h.changePlan)
	})
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.catalog.PublicPlans(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"plans": plans})
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	tc := tenant.MustFromContext(r.Context())
	sub, err := h.subs.Current(r.Context(), tc.ID)
	if err != nil {
		httpx.WriteError(w, mapBillingError(err))
		return
	}
	httpx.OK(w, sub)
}

type changePlanRequest struct {
	PlanID string `json:"plan_id"`
}

func (r changePlanRequest) Validate() error {
	return validator.Apply(
		validator.Required("plan_id", r.PlanID),
	)
}

func (h *Handler) changePlan(w http.ResponseWriter, r *http.Request) {
	var req changePlanRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}

	tc := tenant.MustFromContext(r.Context())
	sub, err := h.subs.ChangePlan(r.Context(), tc.ID, req.PlanID, "tenant-admin")
	if err != nil {
		httpx.WriteError(w, mapBillingError(err))
		return
	}
	httpx.OK(w, sub)
}

func mapBillingError(err error) error {
	switch {
	case errors.Is(err, ErrPlanNotFound):
		return errors.Join(httpx.ErrPlanNotFound, err)
	case errors.Is(err, ErrSubscriptionNotFound):
		return errors.Join(httpx.ErrEntityNotFound.WithMessage("no open subscription"), err)
	case errors.Is(err, ErrDuplicateSubscription):
		return errors.Join(httpx.ErrDuplicateSubscription, err)
	default:
		return err
	}
}
