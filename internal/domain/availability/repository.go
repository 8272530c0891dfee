package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// ListByDoctor returns every rule the doctor has, weekly templates first,
	// then date overrides, each ordered by start time.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Rule, error)

	// ListForDate returns the rules covering one calendar date: weekly rules
	// matching its weekday plus any overrides pinned to it.
	ListForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Rule, error)

	// ReplaceForDoctor swaps the doctor's full rule set atomically.
	ReplaceForDoctor(ctx context.Context, doctorID uuid.UUID, rules []*Rule) error
}
