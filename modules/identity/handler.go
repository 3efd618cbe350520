package identity

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/crewplane/pkg/httpx"
	"github.com/dmitrymomot/crewplane/pkg/validator"
)

// Handler exposes the authentication endpoints.
type Handler struct {
	auth *Auth
}

// NewHandler creates the identity HTTP handler.
func NewHandler(auth *Auth) *Handler {
	return &Handler{auth: auth}
}

// Routes mounts the auth routes. All are anonymous by nature.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/login", h.login)
	r.Post("/auth/password/reset-request", h.resetRequest)
	r.Post("/auth/password/reset", h.reset)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validator.Apply(
		validator.Required("email", r.Email),
		validator.Email("email", r.Email),
		validator.Required("password", r.Password),
	)
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}

	access, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, mapIdentityError(err))
		return
	}
	httpx.OK(w, loginResponse{AccessToken: access, User: user})
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

func (h *Handler) resetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequestRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := validator.Apply(
		validator.Required("email", req.Email),
		validator.Email("email", req.Email),
	); err != nil {
		httpx.WriteError(w, err)
		return
	}

	// Always 204: the response must not reveal whether the account exists.
	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.NoContent(w)
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := validator.Apply(
		validator.Required("token", req.Token),
		validator.Required("password", req.Password),
	); err != nil {
		httpx.WriteError(w, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		httpx.WriteError(w, mapIdentityError(err))
		return
	}
	httpx.NoContent(w)
}

func mapIdentityError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserDisabled):
		return errors.Join(httpx.ErrUnauthenticated.WithMessage("invalid credentials"), err)
	case errors.Is(err, ErrInvalidResetToken):
		return errors.Join(httpx.ErrBadRequest.WithMessage("invalid or expired token"), err)
	case errors.Is(err, ErrUserNotFound):
		return errors.Join(httpx.ErrEntityNotFound, err)
	default:
		return err
	}
}
