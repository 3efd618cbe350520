package operator

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/modules/identity"
	"github.com/dmitrymomot/crewplane/pkg/clientip"
)

// auditBodyLimit caps the stored request body.
const auditBodyLimit = 4000

// statusRecorder captures the response status for the audit row.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// AuditMiddleware writes exactly one admin_audits row per invocation of
// the wrapped routes. The write happens after the handler so the row
// carries the real outcome; a failed write is logged at error level and
// never masks the business result.
func AuditMiddleware(storage AuditStorage, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			body := captureBody(r)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			a := &AdminAudit{
				ID:          uuid.New(),
				Method:      r.Method,
				Endpoint:    r.URL.Path,
				Status:      rec.status,
				Success:     rec.status < http.StatusBadRequest,
				TenantID:    chi.URLParam(r, "id"),
				RequestBody: body,
				IP:          clientip.GetIP(r),
				UserAgent:   r.UserAgent(),
				DurationMs:  time.Since(start).Milliseconds(),
				CreatedAt:   start.UTC(),
			}
			if claims, ok := identity.ClaimsFromContext(r.Context()); ok {
				a.ActorID = claims.Subject
				a.ActorEmail = claims.Email
				a.Impersonated = claims.Impersonated
				if claims.Impersonated {
					a.ActorID = claims.OperatorID
				}
			}

			if err := storage.Insert(r.Context(), a); err != nil {
				logger.ErrorContext(r.Context(), "admin audit write failed",
					slog.String("endpoint", a.Endpoint), slog.Any("error", err))
			}
		})
	}
}

// captureBody reads the request body for the audit row and restores it
// for the handler. The stored copy is truncated, the handler sees the
// full body.
func captureBody(r *http.Request) string {
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if len(raw) > auditBodyLimit {
		raw = raw[:auditBodyLimit]
	}
	return string(raw)
}
