package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/crewplane/pkg/validator"
)

/// errorBody is the client-facing error envelope: {code, message} plus
// optional per-field validation details.
type errorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// OK writes v with status 200.
func OK(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, v)
}

// Created writes v with status 201.
func Created(w http.ResponseWriter, v any) {
	JSON(w, http.StatusCreated, v)
}

// NoContent writes status 204 with an empty body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError renders err as the standard error envelope. Validation errors
// become 400 with field details; httpx.Error values (wrapped or not) keep
// their status and code; anything else is a bare 500.
func WriteError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string][]string, len(verrs.Fields()))
		for _, field := range verrs.Fields() {
			details[field] = verrs.Get(field)
		}
		JSON(w, ErrValidation.Status, errorBody{
			Code:    ErrValidation.Code,
			Message: "validation failed",
			Details: details,
		})
		return
	}

	var httpErr Error
	if !errors.As(err, &httpErr) {
		httpErr = ErrInternal
	}
	msg := httpErr.Message
	if msg == "" {
		msg = http.StatusText(httpErr.Status)
	}
	JSON(w, httpErr.Status, errorBody{Code: httpErr.Code, Message: msg})
}

// Decode parses the request body as JSON into v. A malformed body maps to
// ErrBadRequest so handlers can pass the result straight to WriteError.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(ErrBadRequest.WithMessage("invalid JSON body"), err)
	}
	return nil
}
