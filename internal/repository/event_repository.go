package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docbook/docbook/internal/domain/appointment"
)

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) appointment.EventStore {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, ev *appointment.Event) error {
	if err := dbFrom(ctx, r.db).Create(ev).Error; err != nil {
		return fmt.Errorf("creating appointment event: %w", err)
	}
	return nil
}

func (r *eventRepository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*appointment.Event, error) {
	var events []*appointment.Event
	err := dbFrom(ctx, r.db).
		Where("appointment_id = ?", appointmentID).
		Order("occurred_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing appointment events: %w", err)
	}
	return events, nil
}
