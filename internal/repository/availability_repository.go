package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docbook/docbook/internal/domain/availability"
)

type availabilityRepository struct {
	db *gorm.DB
}

func NewAvailabilityRepository(db *gorm.DB) availability.Repository {
	return &availabilityRepository{db: db}
}

func (r *availabilityRepository) Create(ctx context.Context, rule *availability.Rule) error {
	if err := dbFrom(ctx, r.db).Create(rule).Error; err != nil {
		return fmt.Errorf("creating availability rule: %w", err)
	}
	return nil
}

func (r *availabilityRepository) GetByID(ctx context.Context, id uuid.UUID) (*availability.Rule, error) {
	var rule availability.Rule
	err := dbFrom(ctx, r.db).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, availability.ErrRuleNotFound
		}
		return nil, fmt.Errorf("fetching availability rule: %w", err)
	}
	return &rule, nil
}

func (r *availabilityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := dbFrom(ctx, r.db).
		Model(&availability.Rule{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", time.Now().UTC())
	if res.Error != nil {
		return fmt.Errorf("deleting availability rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return availability.ErrRuleNotFound
	}
	return nil
}

func (r *availabilityRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*availability.Rule, error) {
	var rules []*availability.Rule
	err := dbFrom(ctx, r.db).
		Where("doctor_id = ? AND deleted_at IS NULL", doctorID).
		Order("recurrence_kind ASC, day_of_week ASC NULLS LAST, override_date ASC NULLS LAST, start_time ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("listing availability rules: %w", err)
	}
	return rules, nil
}

func (r *availabilityRepository) ListForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*availability.Rule, error) {
	day := date.Format("2006-01-02")
	weekday := int(date.Weekday())

	var rules []*availability.Rule
	err := dbFrom(ctx, r.db).
		Where("doctor_id = ? AND deleted_at IS NULL", doctorID).
		Where(
			"(recurrence_kind = ? AND day_of_week = ?) OR (recurrence_kind = ? AND override_date = ?)",
			availability.KindWeekly, weekday,
			availability.KindDateOverride, day,
		).
		Order("start_time ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("listing availability rules for date: %w", err)
	}
	return rules, nil
}

func (r *availabilityRepository) ReplaceForDoctor(ctx context.Context, doctorID uuid.UUID, rules []*availability.Rule) error {
	return dbFrom(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&availability.Rule{}).
			Where("doctor_id = ? AND deleted_at IS NULL", doctorID).
			Update("deleted_at", time.Now().UTC()).Error
		if err != nil {
			return fmt.Errorf("retiring existing rules: %w", err)
		}

		if len(rules) == 0 {
			return nil
		}
		if err := tx.Create(rules).Error; err != nil {
			return fmt.Errorf("inserting replacement rules: %w", err)
		}
		return nil
	})
}
