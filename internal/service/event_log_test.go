package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/appointment"
)

type memEventRepo struct {
	mu     sync.Mutex
	events []*appointment.Event
}

func (r *memEventRepo) Create(_ context.Context, ev *appointment.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memEventRepo) ListByAppointment(_ context.Context, appointmentID uuid.UUID) ([]*appointment.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appointment.Event
	for _, ev := range r.events {
		if ev.AppointmentID == appointmentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *memEventRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestEventLogPersistsAsync(t *testing.T) {
	repo := &memEventRepo{}
	el := NewEventLog(repo, testMetrics, testLogger)

	for range 50 {
		el.Record(context.Background(), appointment.Event{
			AppointmentID: uuid.New(),
			DoctorID:      uuid.New(),
			PatientID:     uuid.New(),
			Action:        "hold_created",
		})
	}

	// Shutdown drains the buffer before returning.
	el.Shutdown()

	if got := repo.count(); got != 50 {
		t.Errorf("persisted %d events, want 50", got)
	}
}
