// Package validator provides rule-based request validation.
//
// Rules are composed per request and applied in one call; the returned
// error aggregates every failed field:
//
//	err := validator.Apply(
//		validator.Required("name", req.Name),
//		validator.Email("admin_email", req.AdminEmail),
//		validator.MaxLen("name", req.Name, 100),
//	)
//
// The error, when non-nil, is a ValidationErrors value that response
// writers can unpack into per-field messages.
package validator
