package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/modules/alerts"
	"github.com/dmitrymomot/crewplane/pkg/httpx"
	"github.com/dmitrymomot/crewplane/pkg/worker"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Ingestor receives provider webhooks. Persistence comes first: the raw
// delivery is stored before any effect runs, and the provider gets its
// response based on persistence alone. Effects that fail stay queued for
// the retry worker.
type Ingestor struct {
	providers  map[string]Provider
	events     EventStorage
	dispatcher *Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewIngestor creates the webhook ingestor over the given providers.
func NewIngestor(events EventStorage, dispatcher *Dispatcher, providers ...Provider) *Ingestor {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Ingestor{
		providers:  byName,
		events:     events,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// HandleWebhook is the POST /webhooks/{provider} handler.
func (i *Ingestor) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := i.providers[name]
	if !ok {
		httpx.WriteError(w, httpx.ErrEntityNotFound.WithMessage("unknown billing provider"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(w, httpx.ErrBadRequest.WithMessage("unreadable request body"))
		return
	}

	valid, err := provider.Verify(r, body)
	if err != nil {
		i.logger.WarnContext(r.Context(), "webhook verification error",
			slog.String("provider", name), slog.Any("error", err))
		valid = false
	}

	rec := &WebhookRecord{
		ID:             uuid.New(),
		Provider:       name,
		Payload:        body,
		SignatureValid: valid,
		ReceivedAt:     i.now().UTC(),
	}
	if ev, perr := provider.Parse(body); perr == nil {
		rec.ExternalEventID = ev.ExternalID
		rec.EventType = ev.ProviderEvent
		rec.TenantID = ev.TenantID
	} else {
		// Still persisted: an undecodable delivery is evidence, not noise.
		rec.ExternalEventID = "unparsed:" + rec.ID.String()
		rec.EventType = "unknown"
	}

	stored, created, err := i.events.Insert(r.Context(), rec)
	if err != nil {
		i.logger.ErrorContext(r.Context(), "webhook persist failed",
			slog.String("provider", name), slog.Any("error", err))
		httpx.WriteError(w, httpx.ErrInternal)
		return
	}

	if !created && stored.Processed {
		httpx.OK(w, map[string]string{"status": "already_processed"})
		return
	}
	if !valid {
		httpx.WriteError(w, httpx.ErrBadRequest.WithMessage("invalid webhook signature"))
		return
	}

	// Best-effort immediate dispatch; failures stay queued for the retry
	// worker and never change the response.
	if _, err := i.events.Process(r.Context(), stored.ID, i.dispatcher.Dispatch); err != nil {
		i.logger.WarnContext(r.Context(), "webhook dispatch deferred",
			slog.String("provider", name),
			slog.String("event_id", stored.ID.String()),
			slog.Any("error", err))
	}

	httpx.OK(w, map[string]string{"status": "accepted"})
}

// Dispatcher applies the effects of a normalized billing event.
type Dispatcher struct {
	providers        map[string]Provider
	subs             *Subscriptions
	lifecycle        Lifecycle
	alerts           *alerts.Hub
	failureThreshold int
	logger           *slog.Logger
}

// NewDispatcher creates the effect dispatcher. failureThreshold is the
// payment failure count at which the tenant is suspended.
func NewDispatcher(subs *Subscriptions, lifecycle Lifecycle, hub *alerts.Hub, failureThreshold int, providers ...Provider) *Dispatcher {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &Dispatcher{
		providers:        byName,
		subs:             subs,
		lifecycle:        lifecycle,
		alerts:           hub,
		failureThreshold: failureThreshold,
		logger:           slog.Default(),
	}
}

// Dispatch re-parses the stored payload and applies the event's effects.
// An error leaves the record unprocessed for the retry worker.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *WebhookRecord) error {
	provider, ok := d.providers[rec.Provider]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, rec.Provider)
	}
	ev, err := provider.Parse(rec.Payload)
	if err != nil {
		return err
	}

	triggeredBy := "billing:" + rec.Provider

	switch ev.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		sub, err := d.subs.UpsertFromEvent(ctx, rec.Provider, ev)
		if err != nil {
			return err
		}
		if sub.Status.Usable() {
			return d.lifecycle.Activate(ctx, sub.TenantID, triggeredBy)
		}
		return nil

	case EventPaymentFailed:
		sub, err := d.subs.RecordPaymentFailure(ctx, rec.Provider, ev)
		if err != nil {
			return err
		}
		reason := fmt.Sprintf("payment failed (%d of %d)", sub.PaymentFailureCount, d.failureThreshold)
		if _, _, err := d.alerts.Raise(ctx, alerts.RaiseParams{
			TenantID:       sub.TenantID,
			SubscriptionID: &sub.ID,
			Type:           alerts.TypePaymentFailure,
			Resource:       sub.ID.String(),
			Severity:       alerts.SeverityHigh,
			Message:        reason,
			Metadata:       map[string]any{"provider": rec.Provider, "failure_count": sub.PaymentFailureCount},
		}); err != nil {
			return err
		}
		if err := d.lifecycle.RecordPaymentFailure(ctx, sub.TenantID, reason); err != nil {
			return err
		}
		if sub.PaymentFailureCount >= d.failureThreshold {
			return d.lifecycle.Suspend(ctx, sub.TenantID, "payment failure threshold reached", triggeredBy)
		}
		return nil

	case EventPaymentSucceeded:
		sub, err := d.subs.RecordPaymentSuccess(ctx, rec.Provider, ev)
		if err != nil {
			return err
		}
		if err := d.lifecycle.Resume(ctx, sub.TenantID, triggeredBy); err != nil {
			return err
		}
		return d.alerts.ResolveMatching(ctx, sub.TenantID, alerts.TypePaymentFailure, sub.ID.String())

	case EventSubscriptionCancelled:
		sub, err := d.subs.CancelFromEvent(ctx, rec.Provider, ev)
		if err != nil {
			return err
		}
		if _, _, err := d.alerts.Raise(ctx, alerts.RaiseParams{
			TenantID:       sub.TenantID,
			SubscriptionID: &sub.ID,
			Type:           alerts.TypeCancellation,
			Resource:       sub.ID.String(),
			Severity:       alerts.SeverityHigh,
			Message:        "subscription cancelled by provider",
			Metadata:       map[string]any{"provider": rec.Provider},
		}); err != nil {
			return err
		}
		return d.lifecycle.Cancel(ctx, sub.TenantID, "subscription cancelled by provider", triggeredBy)

	default:
		d.logger.DebugContext(ctx, "webhook event ignored",
			slog.String("provider", rec.Provider),
			slog.String("event_type", string(ev.Type)))
		return nil
	}
}

// RetryConfig tunes the webhook retry worker.
type RetryConfig struct {
	MaxAttempts int
	BatchSize   int
	Backoff     worker.BackoffStrategy
}

// NewRetryTask builds the worker task that re-dispatches unprocessed
// deliveries. An event is due once its age exceeds the backoff for its
// attempt count; events that exhaust MaxAttempts raise a High error alert
// and are left for operator triage.
func NewRetryTask(events EventStorage, dispatcher *Dispatcher, hub *alerts.Hub, cfg RetryConfig, logger *slog.Logger) worker.Task {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff == nil {
		cfg.Backoff = worker.ExponentialBackoff{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context) error {
		recs, err := events.ListRetryable(ctx, cfg.MaxAttempts+1, cfg.BatchSize)
		if err != nil {
			return err
		}

		var errs []error
		now := time.Now().UTC()
		for _, rec := range recs {
			if rec.Attempts >= cfg.MaxAttempts {
				if _, _, err := hub.Raise(ctx, alerts.RaiseParams{
					TenantID: alertTenant(rec),
					Type:     alerts.TypeError,
					Resource: "webhook:" + rec.Provider + ":" + rec.ExternalEventID,
					Severity: alerts.SeverityHigh,
					Message:  "webhook delivery exhausted retries: " + rec.LastError,
				}); err != nil {
					errs = append(errs, err)
				}
				continue
			}
			if now.Sub(rec.ReceivedAt) < cfg.Backoff.NextInterval(rec.Attempts) {
				continue
			}

			claimed, err := events.Process(ctx, rec.ID, dispatcher.Dispatch)
			if err != nil {
				logger.WarnContext(ctx, "webhook retry failed",
					slog.String("event_id", rec.ID.String()),
					slog.Int("attempts", rec.Attempts+1),
					slog.Any("error", err))
				continue
			}
			if claimed {
				logger.InfoContext(ctx, "webhook event processed on retry",
					slog.String("event_id", rec.ID.String()),
					slog.Int("attempts", rec.Attempts+1))
			}
		}
		return errors.Join(errs...)
	}
}

func alertTenant(rec WebhookRecord) string {
	if rec.TenantID != "" {
		return rec.TenantID
	}
	return "default"
}
