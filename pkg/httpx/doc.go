// Package httpx carries the HTTP error taxonomy and the JSON response
// writers shared by every API module.
//
// Errors are values with a status code and a stable machine-readable code:
//
//	return httpx.ErrTenantNotFound
//
// Handlers finish with one of the writers:
//
//	httpx.JSON(w, http.StatusOK, payload)
//	httpx.WriteError(w, err)
//
// WriteError unwraps httpx.Error values (including wrapped ones), renders
// validation errors with field details, and maps everything else to a bare
// 500 so internals never leak to clients.
package httpx
