package usage

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/crewplane/pkg/httpx"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
)

// Handler exposes the tenant-facing usage endpoint.
type Handler struct {
	svc *Service
}

// NewHandler creates the usage HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the usage routes.
func (h *Handler) Routes(r chi.Router) {
	r.With(tenant.RequireTenant(nil)).Get("/usage", h.currentUsage)
}

func (h *Handler) currentUsage(w http.ResponseWriter, r *http.Request) {
	tc := tenant.MustFromContext(r.Context())
	m, err := h.svc.Current(r.Context(), tc.ID)
	if err != nil {
		if errors.Is(err, ErrMetricNotFound) {
			httpx.WriteError(w, errors.Join(httpx.ErrEntityNotFound, err))
			return
		}
		httpx.WriteError(w, err)
		return
	}
	httpx.OK(w, m)
}
