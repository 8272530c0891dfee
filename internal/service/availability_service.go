package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docbook/docbook/internal/cache"
	"github.com/docbook/docbook/internal/domain/availability"
	"github.com/docbook/docbook/pkg/metrics"
)

type AvailabilityService struct {
	repo      availability.Repository
	slotCache cache.SlotCache
	metrics   *metrics.Collector
	log       *zap.Logger
}

func NewAvailabilityService(
	repo availability.Repository,
	slotCache cache.SlotCache,
	m *metrics.Collector,
	log *zap.Logger,
) *AvailabilityService {
	return &AvailabilityService{repo: repo, slotCache: slotCache, metrics: m, log: log}
}

// DefineRule validates and stores a new availability rule. Two rules of the
// same kind covering the same day may not overlap in time; overlap across
// kinds is allowed because date overrides replace the weekly template.
func (s *AvailabilityService) DefineRule(ctx context.Context, rule *availability.Rule) (*availability.Rule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListByDoctor(ctx, rule.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("loading existing rules: %w", err)
	}
	if conflictsWithExisting(rule, existing) {
		return nil, availability.ErrRuleConflict
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		s.log.Error("failed to create availability rule", zap.Error(err))
		return nil, err
	}

	s.invalidateFor(ctx, rule)
	s.metrics.AvailabilityRulesActive.Inc()

	s.log.Info("availability rule defined",
		zap.String("rule_id", rule.ID.String()),
		zap.String("doctor_id", rule.DoctorID.String()),
		zap.String("kind", string(rule.Recurrence.Kind)),
	)
	return rule, nil
}

func (s *AvailabilityService) GetRule(ctx context.Context, id uuid.UUID) (*availability.Rule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *AvailabilityService) RemoveRule(ctx context.Context, id uuid.UUID) error {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidateFor(ctx, rule)
	s.metrics.AvailabilityRulesActive.Dec()
	return nil
}

func (s *AvailabilityService) ListRules(ctx context.Context, doctorID uuid.UUID) ([]*availability.Rule, error) {
	return s.repo.ListByDoctor(ctx, doctorID)
}

// ReplaceRules atomically swaps a doctor's entire rule set. The replacement
// set must be internally consistent.
func (s *AvailabilityService) ReplaceRules(ctx context.Context, doctorID uuid.UUID, rules []*availability.Rule) error {
	for _, rule := range rules {
		rule.DoctorID = doctorID
		if err := rule.Validate(); err != nil {
			return err
		}
	}
	for i, rule := range rules {
		if conflictsWithExisting(rule, rules[:i]) {
			return availability.ErrRuleConflict
		}
	}

	if err := s.repo.ReplaceForDoctor(ctx, doctorID, rules); err != nil {
		return fmt.Errorf("replacing rules: %w", err)
	}

	s.slotCache.InvalidateDoctor(ctx, doctorID)
	s.log.Info("availability rules replaced",
		zap.String("doctor_id", doctorID.String()),
		zap.Int("count", len(rules)),
	)
	return nil
}

func (s *AvailabilityService) invalidateFor(ctx context.Context, rule *availability.Rule) {
	if rule.Recurrence.Kind == availability.KindDateOverride && rule.Recurrence.Date != nil {
		s.slotCache.InvalidateDay(ctx, rule.DoctorID, *rule.Recurrence.Date)
		return
	}
	s.slotCache.InvalidateDoctor(ctx, rule.DoctorID)
}

// conflictsWithExisting reports whether candidate overlaps any rule of the
// same kind and availability covering the same day.
func conflictsWithExisting(candidate *availability.Rule, existing []*availability.Rule) bool {
	for _, other := range existing {
		if other.Recurrence.Kind != candidate.Recurrence.Kind {
			continue
		}
		if other.IsAvailable != candidate.IsAvailable {
			continue
		}
		if !sameScope(candidate.Recurrence, other.Recurrence) {
			continue
		}
		if candidate.StartTime < other.EndTime && other.StartTime < candidate.EndTime {
			return true
		}
	}
	return false
}

func sameScope(a, b availability.Recurrence) bool {
	switch a.Kind {
	case availability.KindWeekly:
		return a.DayOfWeek != nil && b.DayOfWeek != nil && *a.DayOfWeek == *b.DayOfWeek
	case availability.KindDateOverride:
		return a.Date != nil && b.Date != nil && a.AppliesTo(*b.Date)
	}
	return false
}
