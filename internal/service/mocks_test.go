package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/internal/domain/availability"
	"github.com/docbook/docbook/internal/domain/interval"
	"github.com/docbook/docbook/pkg/metrics"
)

// Prometheus collectors register globally, so the package shares one.
var testMetrics = metrics.NewCollector("docbook_test")

var testLogger = zap.NewNop()

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// memRuleRepo is an in-memory availability.Repository.
type memRuleRepo struct {
	mu    sync.Mutex
	rules map[uuid.UUID]*availability.Rule
}

func newMemRuleRepo() *memRuleRepo {
	return &memRuleRepo{rules: make(map[uuid.UUID]*availability.Rule)}
}

func (r *memRuleRepo) Create(_ context.Context, rule *availability.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

func (r *memRuleRepo) GetByID(_ context.Context, id uuid.UUID) (*availability.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, availability.ErrRuleNotFound
	}
	cp := *rule
	return &cp, nil
}

func (r *memRuleRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return availability.ErrRuleNotFound
	}
	delete(r.rules, id)
	return nil
}

func (r *memRuleRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*availability.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*availability.Rule
	for _, rule := range r.rules {
		if rule.DoctorID == doctorID {
			cp := *rule
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (r *memRuleRepo) ListForDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]*availability.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*availability.Rule
	for _, rule := range r.rules {
		if rule.DoctorID == doctorID && rule.Recurrence.AppliesTo(date) {
			cp := *rule
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (r *memRuleRepo) ReplaceForDoctor(_ context.Context, doctorID uuid.UUID, rules []*availability.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rule := range r.rules {
		if rule.DoctorID == doctorID {
			delete(r.rules, id)
		}
	}
	for _, rule := range rules {
		if rule.ID == uuid.Nil {
			rule.ID = uuid.New()
		}
		cp := *rule
		r.rules[rule.ID] = &cp
	}
	return nil
}

// memApptRepo is an in-memory appointment.Repository. Reads and writes copy
// so callers cannot mutate stored state without going through Update.
type memApptRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*appointment.Appointment
}

func newMemApptRepo() *memApptRepo {
	return &memApptRepo{appts: make(map[uuid.UUID]*appointment.Appointment)}
}

func (r *memApptRepo) Create(_ context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	r.appts[a.ID] = &cp
	return nil
}

func (r *memApptRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memApptRepo) UpdateStatus(_ context.Context, a *appointment.Appointment, from appointment.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.appts[a.ID]
	if !ok || stored.Status != from {
		return appointment.ErrInvalidStatusTransition
	}
	stored.Status = a.Status
	stored.ReservationExpiresAt = a.ReservationExpiresAt
	stored.CancelledAt = a.CancelledAt
	stored.CancellationReason = a.CancellationReason
	stored.CompletedAt = a.CompletedAt
	return nil
}

func (r *memApptRepo) FindLive(_ context.Context, doctorID uuid.UUID, span interval.Interval, now time.Time, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range r.appts {
		if a.DoctorID != doctorID {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if !a.IsLive(now) || !a.Interval().Overlaps(span) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (r *memApptRepo) FindExpiredHolds(_ context.Context, asOf time.Time, limit int) ([]*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range r.appts {
		if a.HoldExpired(asOf) {
			cp := *a
			out = append(out, &cp)
		}
	}
	// A nil expiry counts as already expired; sort those first.
	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].ReservationExpiresAt, out[j].ReservationExpiresAt
		if ei == nil || ej == nil {
			return ej != nil
		}
		return ei.Before(*ej)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memApptRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.After(out[j].StartsAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memApptRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, span interval.Interval) ([]*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID && span.Contains(a.StartsAt) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (r *memApptRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// recordingRecorder captures lifecycle events synchronously.
type recordingRecorder struct {
	mu     sync.Mutex
	events []appointment.Event
}

func (r *recordingRecorder) Record(_ context.Context, ev appointment.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Action
	}
	return out
}

// recordingCache counts invalidations and remembers the last store; lookups
// always miss.
type recordingCache struct {
	mu              sync.Mutex
	dayInvalidation int
	docInvalidation int
	storedMaxAge    time.Duration
	stores          int
}

func (c *recordingCache) GetDay(context.Context, uuid.UUID, time.Time) ([]availability.TimeSlot, bool) {
	return nil, false
}

func (c *recordingCache) StoreDay(_ context.Context, _ uuid.UUID, _ time.Time, _ []availability.TimeSlot, maxAge time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores++
	c.storedMaxAge = maxAge
}

func (c *recordingCache) lastMaxAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storedMaxAge
}

func (c *recordingCache) InvalidateDay(context.Context, uuid.UUID, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dayInvalidation++
}

func (c *recordingCache) InvalidateDoctor(context.Context, uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docInvalidation++
}
