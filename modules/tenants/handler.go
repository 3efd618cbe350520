package tenants

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/crewplane/pkg/httpx"
	"github.com/dmitrymomot/crewplane/pkg/validator"
)

// Handler exposes the public signup endpoint and the tenant's own module
// catalog. The operator surface over tenants lives in the operator
// module.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the public routes. Signup runs outside any tenant scope.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/signup", h.signup)
}

func (p SignupParams) Validate() error {
	return validator.Apply(
		validator.Required("name", p.Name),
		validator.MaxLen("name", p.Name, 120),
		validator.Required("admin_email", p.AdminEmail),
		validator.Email("admin_email", p.AdminEmail),
		validator.Required("admin_name", p.AdminName),
		validator.MaxLen("domain", p.Domain, 63),
	)
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req SignupParams
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}

	t, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, mapTenantsError(err))
		return
	}
	httpx.Created(w, t)
}

func mapTenantsError(err error) error {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		return errors.Join(httpx.ErrTenantNotFound, err)
	case errors.Is(err, ErrDuplicateTenant):
		return errors.Join(httpx.ErrDuplicateTenant, err)
	case errors.Is(err, ErrInvalidTransition):
		return errors.Join(httpx.ErrInvalidTransition, err)
	case errors.Is(err, ErrVersionConflict):
		return errors.Join(httpx.ErrConflict.WithMessage("concurrent update, retry"), err)
	case errors.Is(err, ErrGraceExpired):
		return errors.Join(httpx.ErrPermissionDenied.WithMessage("grace period elapsed"), err)
	default:
		return err
	}
}
