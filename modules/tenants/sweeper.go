package tenants

import (
	"context"
	"log/slog"
)

// Sweeper advances cancelled tenants through deletion: once the retention
// window closes a Cancelled tenant moves to PendingDeletion, and pending
// tenants are exported to the archive, purged and marked Deleted on the
// next pass. The lifecycle event trail survives the purge.
type Sweeper struct {
	svc    *Service
	logger *slog.Logger
}

func NewSweeper(svc *Service, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{svc: svc, logger: logger}
}

// Run is the poller task. Pending deletions are processed before new
// tenants are marked, so every tenant sits in PendingDeletion for at
// least one full interval before its data goes. Per-tenant failures are
// logged and skipped so one stuck tenant never blocks the sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.deletePending(ctx); err != nil {
		return err
	}
	return s.markExpired(ctx)
}

func (s *Sweeper) markExpired(ctx context.Context) error {
	rows, err := s.svc.storage.ListByStatus(ctx, StatusCancelled, 0)
	if err != nil {
		return err
	}
	now := s.svc.now().UTC()
	for _, t := range rows {
		if t.ScheduledDeletionAt == nil || now.Before(*t.ScheduledDeletionAt) {
			continue
		}
		_, err := s.svc.applyTransition(ctx, t.ID, fireMarkForDeletion, func(t *Tenant) *LifecycleEvent {
			return &LifecycleEvent{Type: EventMarkedForDeletion, TriggeredBy: "sweeper"}
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "marking tenant for deletion failed",
				slog.String("tenant_id", t.ID), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Sweeper) deletePending(ctx context.Context) error {
	rows, err := s.svc.storage.ListByStatus(ctx, StatusPendingDeletion, s.svc.cfg.DeletionBatch)
	if err != nil {
		return err
	}
	for _, t := range rows {
		if err := s.deleteOne(ctx, t.ID); err != nil {
			s.logger.ErrorContext(ctx, "tenant deletion failed",
				slog.String("tenant_id", t.ID), slog.Any("error", err))
		}
	}
	return nil
}

// deleteOne archives before it purges: a tenant whose export fails stays
// in PendingDeletion for the next pass rather than losing data.
func (s *Sweeper) deleteOne(ctx context.Context, tenantID string) error {
	if s.svc.archive != nil {
		key, err := s.svc.Export(ctx, tenantID)
		if err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "tenant data archived",
			slog.String("tenant_id", tenantID), slog.String("archive_key", key))
	}

	if err := s.svc.storage.PurgeTenantData(ctx, tenantID); err != nil {
		return err
	}

	_, err := s.svc.applyTransition(ctx, tenantID, fireDelete, func(t *Tenant) *LifecycleEvent {
		return &LifecycleEvent{Type: EventDeleted, TriggeredBy: "sweeper"}
	})
	return err
}
