package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/pkg/metrics"
)

type EventRepository interface {
	Create(ctx context.Context, ev *appointment.Event) error
}

// EventLog persists appointment lifecycle events off the request path.
// Writes are best-effort: a full buffer drops the event rather than block
// a booking.
type EventLog struct {
	repo    EventRepository
	log     *zap.Logger
	metrics *metrics.Collector
	entries chan *appointment.Event
	done    chan struct{}
}

const eventBufferSize = 10_000

func NewEventLog(repo EventRepository, m *metrics.Collector, log *zap.Logger) *EventLog {
	el := &EventLog{
		repo:    repo,
		log:     log,
		metrics: m,
		entries: make(chan *appointment.Event, eventBufferSize),
		done:    make(chan struct{}),
	}
	go el.worker()
	return el
}

func (el *EventLog) Record(ctx context.Context, ev appointment.Event) {
	select {
	case el.entries <- &ev:
	default:
		el.metrics.EventBufferDropped.Inc()
		el.log.Warn("event buffer full, dropping entry",
			zap.String("action", ev.Action),
			zap.String("appointment_id", ev.AppointmentID.String()),
		)
	}
}

func (el *EventLog) Shutdown() {
	close(el.entries)
	select {
	case <-el.done:
	case <-time.After(10 * time.Second):
		el.log.Warn("event log shutdown timed out; some entries may be lost")
	}
}

func (el *EventLog) worker() {
	defer close(el.done)
	for ev := range el.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := el.repo.Create(ctx, ev); err != nil {
			el.log.Error("failed to persist appointment event", zap.Error(err))
		} else {
			el.metrics.EventEntriesTotal.Inc()
		}
		cancel()
	}
}
