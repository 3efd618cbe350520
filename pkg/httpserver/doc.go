// Package httpserver wraps http.Server with graceful shutdown tied to
// context cancellation. Run blocks until the context is cancelled or the
// listener fails, then drains in-flight requests within the configured
// shutdown timeout.
package httpserver
