package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docbook/docbook/internal/cache"
	"github.com/docbook/docbook/internal/config"
	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/pkg/clock"
	"github.com/docbook/docbook/pkg/metrics"
)

// ExpiryReaper periodically cancels reservation holds whose TTL elapsed,
// returning their slots to circulation. The state machine already rejects
// confirming an expired hold, so the reaper is cleanup rather than
// enforcement; a missed sweep never extends a reservation.
type ExpiryReaper struct {
	repo      appointment.Repository
	recorder  appointment.Recorder
	slotCache cache.SlotCache
	clock     clock.Clock
	cfg       config.ReservationConfig
	metrics   *metrics.Collector
	log       *zap.Logger
}

func NewExpiryReaper(
	repo appointment.Repository,
	recorder appointment.Recorder,
	slotCache cache.SlotCache,
	clk clock.Clock,
	cfg config.ReservationConfig,
	m *metrics.Collector,
	log *zap.Logger,
) *ExpiryReaper {
	return &ExpiryReaper{
		repo:      repo,
		recorder:  recorder,
		slotCache: slotCache,
		clock:     clk,
		cfg:       cfg,
		metrics:   m,
		log:       log,
	}
}

// Start runs sweeps at the configured interval until ctx is cancelled.
func (r *ExpiryReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReaperInterval)
	defer ticker.Stop()

	r.log.Info("expiry reaper started", zap.Duration("interval", r.cfg.ReaperInterval))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("expiry reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep cancels expired holds in batches and reports how many it released.
// It is idempotent: holds already cancelled by a concurrent path are skipped
// by the status transition guard.
func (r *ExpiryReaper) Sweep(ctx context.Context) (int, error) {
	released := 0
	for {
		now := r.clock.Now()
		expired, err := r.repo.FindExpiredHolds(ctx, now, r.cfg.ReaperBatch)
		if err != nil {
			return released, fmt.Errorf("finding expired holds: %w", err)
		}
		if len(expired) == 0 {
			return released, nil
		}

		progressed := false
		for _, a := range expired {
			prev := a.Status
			if err := a.Cancel("reservation expired", now); err != nil {
				continue
			}
			if err := r.repo.UpdateStatus(ctx, a, prev); err != nil {
				// A compare-and-swap miss means another path already moved
				// this hold; nothing to release.
				if !errors.Is(err, appointment.ErrInvalidStatusTransition) {
					r.log.Error("failed to release expired hold",
						zap.String("appointment_id", a.ID.String()),
						zap.Error(err),
					)
				}
				continue
			}

			released++
			progressed = true
			r.metrics.ReservationsExpired.Inc()
			r.slotCache.InvalidateDay(ctx, a.DoctorID, a.StartsAt)
			r.recorder.Record(ctx, appointment.Event{
				AppointmentID: a.ID,
				DoctorID:      a.DoctorID,
				PatientID:     a.PatientID,
				Action:        "hold_expired",
				Detail:        "released by expiry reaper",
			})
		}

		// A full batch with zero progress would loop on the same rows.
		if len(expired) < r.cfg.ReaperBatch || !progressed {
			if released > 0 {
				r.log.Info("expiry sweep released holds", zap.Int("count", released))
			}
			return released, nil
		}
	}
}
