package directory

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/modules/identity"
	"github.com/dmitrymomot/crewplane/pkg/httpx"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
	"github.com/dmitrymomot/crewplane/pkg/tenantdb"
	"github.com/dmitrymomot/crewplane/pkg/validator"
)

// Handler exposes the directory CRUD endpoints.
type Handler struct {
	svc   *Service
	perms *identity.Permissions
}

// NewHandler creates the directory HTTP handler. perms may be nil, which
// disables page-level permission gating (tests, internal wiring).
func NewHandler(svc *Service, perms *identity.Permissions) *Handler {
	return &Handler{svc: svc, perms: perms}
}

// Routes mounts the directory routes under an established tenant scope.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(tenant.RequireTenant(nil))

		r.Route("/employees", func(r chi.Router) {
			r.With(h.require("/employees", identity.ActionView)).Get("/", h.listEmployees)
			r.With(h.require("/employees", identity.ActionCreate)).Post("/", h.createEmployee)
			r.With(h.require("/employees", identity.ActionView)).Get("/{id}", h.getEmployee)
			r.With(h.require("/employees", identity.ActionEdit)).Put("/{id}", h.updateEmployee)
		})
		r.Route("/departments", func(r chi.Router) {
			r.With(h.require("/departments", identity.ActionView)).Get("/", h.listDepartments)
			r.With(h.require("/departments", identity.ActionCreate)).Post("/", h.createDepartment)
			r.With(h.require("/departments", identity.ActionView)).Get("/{id}", h.getDepartment)
			r.With(h.require("/departments", identity.ActionEdit)).Put("/{id}", h.updateDepartment)
		})
		r.Route("/positions", func(r chi.Router) {
			r.With(h.require("/positions", identity.ActionView)).Get("/", h.listPositions)
			r.With(h.require("/positions", identity.ActionCreate)).Post("/", h.createPosition)
			r.With(h.require("/positions", identity.ActionView)).Get("/{id}", h.getPosition)
		})
	})
}

func (h *Handler) require(page string, action identity.Action) func(http.Handler) http.Handler {
	if h.perms == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return identity.RequirePermission(h.perms, page, action)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errors.Join(httpx.ErrBadRequest.WithMessage("invalid id"), err)
	}
	return id, nil
}

type employeeRequest struct {
	EmployeeID   string     `json:"employee_id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	DepartmentID *uuid.UUID `json:"department_id"`
	PositionID   *uuid.UUID `json:"position_id"`
}

func (r employeeRequest) Validate() error {
	return validator.Apply(
		validator.Required("employee_id", r.EmployeeID),
		validator.Required("first_name", r.FirstName),
		validator.Required("last_name", r.LastName),
		validator.Email("email", r.Email),
	)
}

func (h *Handler) createEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}

	e, err := h.svc.CreateEmployee(r.Context(), CreateEmployeeParams{
		EmployeeID:   req.EmployeeID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		DepartmentID: req.DepartmentID,
		PositionID:   req.PositionID,
	})
	if err != nil {
		httpx.WriteError(w, mapDirectoryError(err))
		return
	}
	httpx.Created(w, e)
}

func (h *Handler) listEmployees(w http.ResponseWriter, r *http.Request) {
	f := EmployeeFilter{Status: EmployeeStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	list, err := h.svc.ListEmployees(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, mapDirectoryError(err))
		return
	}
	httpx.OK(w, map[string]any{"employees": list})
}

func (h *Handler) getEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	e, err := h.svc.GetEmployee(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, mapDirectoryError(err))
		return
	}
	httpx.OK(w, e)
}

type updateEmployeeRequest struct {
	EmployeeID   *string        `json:"employee_id"`
	FirstName    *string        `json:"first_name"`
	LastName     *string        `json:"last_name"`
	Email        *string        `json:"email"`
	DepartmentID *uuid.UUID     `json:"department_id"`
	PositionID   *uuid.UUID     `json:"position_id"`
	Status       EmployeeStatus `json:"status"`
}

func (r updateEmployeeRequest) Validate() error {
	if r.Status == "" {
		return nil
	}
	return validator.Apply(
		validator.InList("status", r.Status, []EmployeeStatus{EmployeeActive, EmployeeInactive}),
	)
}

func (h *Handler) updateEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var req updateEmployeeRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}

	e, err := h.svc.UpdateEmployee(r.Context(), id, UpdateEmployeeParams{
		EmployeeID:   req.EmployeeID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		DepartmentID: req.DepartmentID,
		PositionID:   req.PositionID,
		Status:       req.Status,
	})
	if err != nil {
		httpx.WriteError(w, mapDirectoryError(err))
		return
	}
	httpx.OK(w, e)
}

type departmentRequest struct {
	Name string `json:"name"`
}

func (r departmentRequest) Validate() error {
	return validator.Apply(validator.Required("name", r.Name))
}

func (h *Handler) createDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}

	d, err := h.svc.CreateDepartment(r.Context(), req.Name)
	if err != nil {
		httpx.WriteError(w, mapDirectoryError(err))
		return
	}
	httpx.Created(w, d)
}

func (h *Handler) listDepartments(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListDepartments(r.Context())
	if err != nil {
		httpx.WriteError(w, mapDirectoryError(err))
		return
	}
	httpx.OK(w, map[string]any{"departments": list})
}

func (h *Handler) getDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	d, err := h.svc.GetDepartment(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, mapDirectoryError(err))
		return
	}
	httpx.OK(w, d)
}

func (h *Handler) updateDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var req departmentRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}

	d, err := h.svc.UpdateDepartment(r.Context(), id, req.Name)
	if err != nil {
		httpx.WriteError(w, mapDirectoryError(err))
		return
	}
	httpx.OK(w, d)
}

type positionRequest struct {
	Title        string     `json:"title"`
	DepartmentID *uuid.UUID `json:"department_id"`
}

func (r positionRequest) Validate() error {
	return validator.Apply(validator.Required("title", r.Title))
}

func (h *Handler) createPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}

	p, err := h.svc.CreatePosition(r.Context(), req.Title, req.DepartmentID)
	if err != nil {
		httpx.WriteError(w, mapDirectoryError(err))
		return
	}
	httpx.Created(w, p)
}

func (h *Handler) listPositions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListPositions(r.Context())
	if err != nil {
		httpx.WriteError(w, mapDirectoryError(err))
		return
	}
	httpx.OK(w, map[string]any{"positions": list})
}

func (h *Handler) getPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	p, err := h.svc.GetPosition(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, mapDirectoryError(err))
		return
	}
	httpx.OK(w, p)
}

func mapDirectoryError(err error) error {
	switch {
	case errors.Is(err, ErrEmployeeNotFound),
		errors.Is(err, ErrDepartmentNotFound),
		errors.Is(err, ErrPositionNotFound),
		errors.Is(err, tenant.ErrNotFound):
		return errors.Join(httpx.ErrEntityNotFound, err)
	case errors.Is(err, ErrDuplicateEmployeeID):
		return errors.Join(httpx.ErrConflict.WithMessage("employee id already taken"), err)
	case errors.Is(err, ErrEmployeeLimitReached):
		return errors.Join(httpx.ErrLimitExceeded, err)
	case errors.Is(err, ErrWritesSuspended):
		return errors.Join(httpx.ErrSubscriptionInactive, err)
	case errors.Is(err, tenantdb.ErrCrossTenantAccess):
		return errors.Join(httpx.ErrCrossTenantAccess, err)
	default:
		return err
	}
}
