package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docbook/docbook/internal/cache"
	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/internal/domain/availability"
	"github.com/docbook/docbook/internal/domain/interval"
	"github.com/docbook/docbook/pkg/clock"
	"github.com/docbook/docbook/pkg/metrics"
)

// SlotService turns availability rules and live appointments into the
// bookable grid for a doctor-day.
//
// The effective open time for a date is the union of available windows from
// every rule covering it (weekly template plus date overrides), minus
// blackout windows, which win over any availability they overlap. The open
// time is cut into fixed slots per each rule's slot duration. Slots whose
// interval overlaps a live appointment are reported booked rather than
// hidden, so calendars can render the difference.
type SlotService struct {
	rules     availability.Repository
	appts     appointment.Repository
	slotCache cache.SlotCache
	clock     clock.Clock
	metrics   *metrics.Collector
	log       *zap.Logger
}

func NewSlotService(
	rules availability.Repository,
	appts appointment.Repository,
	slotCache cache.SlotCache,
	clk clock.Clock,
	m *metrics.Collector,
	log *zap.Logger,
) *SlotService {
	return &SlotService{
		rules:     rules,
		appts:     appts,
		slotCache: slotCache,
		clock:     clk,
		metrics:   m,
		log:       log,
	}
}

// GetSlots returns the bookable grid for one calendar date, oldest first.
// Slots that already started are omitted.
func (s *SlotService) GetSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]availability.TimeSlot, error) {
	now := s.clock.Now()

	if slots, ok := s.slotCache.GetDay(ctx, doctorID, date); ok {
		s.metrics.SlotCacheLookups.WithLabelValues("hit").Inc()
		return dropStarted(slots, now), nil
	}
	s.metrics.SlotCacheLookups.WithLabelValues("miss").Inc()

	slots, maxAge, err := s.generateDay(ctx, doctorID, date, now)
	if err != nil {
		return nil, err
	}

	// Booking changes invalidate the day entry, so the cached grid only goes
	// stale on the past boundary and when a reservation hold lapses; maxAge
	// bounds the latter. Past filtering happens per read.
	s.slotCache.StoreDay(ctx, doctorID, date, slots, maxAge)

	return dropStarted(slots, now), nil
}

// GetSlotsRange returns the grids for every date in [from, to], capped at 31
// days to bound the work a single request can demand.
func (s *SlotService) GetSlotsRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]availability.TimeSlot, error) {
	const maxRangeDays = 31

	if to.Before(from) {
		return nil, &ValidationError{Fields: []string{"to must not be before from"}}
	}

	var all []availability.TimeSlot
	days := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days++
		if days > maxRangeDays {
			return nil, &ValidationError{Fields: []string{fmt.Sprintf("date range exceeds %d days", maxRangeDays)}}
		}
		slots, err := s.GetSlots(ctx, doctorID, d)
		if err != nil {
			return nil, err
		}
		all = append(all, slots...)
	}
	return all, nil
}

// generateDay builds the grid for one date. The returned duration, when
// positive, is how long the grid stays accurate: the time until the earliest
// reservation hold among the busy appointments lapses and frees its slot.
func (s *SlotService) generateDay(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]availability.TimeSlot, time.Duration, error) {
	start := time.Now()
	defer func() {
		s.metrics.SlotGenerationDuration.Observe(time.Since(start).Seconds())
	}()

	rules, err := s.rules.ListForDate(ctx, doctorID, date)
	if err != nil {
		return nil, 0, fmt.Errorf("loading rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, 0, nil
	}

	// Partition rules into open windows (grouped by slot duration, since a
	// doctor can mix 30-minute consults with 60-minute procedures) and
	// blackouts, which subtract from every group.
	openByDuration := make(map[int][]interval.Interval)
	var blocked []interval.Interval
	for _, rule := range rules {
		if !rule.Recurrence.AppliesTo(date) {
			continue
		}
		if rule.IsAvailable {
			openByDuration[rule.SlotDurationMins] = append(openByDuration[rule.SlotDurationMins], rule.Window(date))
		} else {
			blocked = append(blocked, rule.Window(date))
		}
	}
	if len(openByDuration) == 0 {
		return nil, 0, nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	busy, err := s.appts.FindLive(ctx, doctorID, interval.New(dayStart, dayEnd), now, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("loading live appointments: %w", err)
	}

	var maxAge time.Duration
	for _, a := range busy {
		if a.Status != appointment.StatusReserved || a.ReservationExpiresAt == nil {
			continue
		}
		if left := a.ReservationExpiresAt.Sub(now); left > 0 && (maxAge == 0 || left < maxAge) {
			maxAge = left
		}
	}

	var slots []availability.TimeSlot
	for durationMins, windows := range openByDuration {
		for _, open := range interval.Subtract(windows, blocked) {
			for _, iv := range open.Partition(durationMins) {
				booked := false
				for _, a := range busy {
					if a.Interval().Overlaps(iv) {
						booked = true
						break
					}
				}
				slots = append(slots, availability.TimeSlot{
					StartsAt:     iv.Start,
					DurationMins: durationMins,
					IsAvailable:  !booked,
					IsBooked:     booked,
				})
			}
		}
	}

	// Deterministic ordering regardless of map iteration.
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].StartsAt.Equal(slots[j].StartsAt) {
			return slots[i].DurationMins < slots[j].DurationMins
		}
		return slots[i].StartsAt.Before(slots[j].StartsAt)
	})

	s.log.Debug("generated slot grid",
		zap.String("doctor_id", doctorID.String()),
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("slots", len(slots)),
	)
	return slots, maxAge, nil
}

func dropStarted(slots []availability.TimeSlot, now time.Time) []availability.TimeSlot {
	out := make([]availability.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		if !slot.StartsAt.Before(now) {
			out = append(out, slot)
		}
	}
	return out
}
