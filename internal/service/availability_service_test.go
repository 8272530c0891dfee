package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/availability"
)

func newAvailabilityFixture(t *testing.T) (*AvailabilityService, *memRuleRepo, *recordingCache) {
	t.Helper()
	repo := newMemRuleRepo()
	c := &recordingCache{}
	svc := NewAvailabilityService(repo, c, testMetrics, testLogger)
	return svc, repo, c
}

func TestDefineRuleValidates(t *testing.T) {
	svc, _, _ := newAvailabilityFixture(t)

	bad := &availability.Rule{
		DoctorID:         uuid.New(),
		Recurrence:       availability.Weekly(time.Monday),
		StartTime:        availability.NewTimeOfDay(11, 0),
		EndTime:          availability.NewTimeOfDay(9, 0),
		SlotDurationMins: 30,
		IsAvailable:      true,
	}
	if _, err := svc.DefineRule(context.Background(), bad); !errors.Is(err, availability.ErrInvalidWindow) {
		t.Errorf("inverted window: got %v", err)
	}

	noRecurrence := &availability.Rule{
		DoctorID:         uuid.New(),
		StartTime:        availability.NewTimeOfDay(9, 0),
		EndTime:          availability.NewTimeOfDay(11, 0),
		SlotDurationMins: 30,
	}
	if _, err := svc.DefineRule(context.Background(), noRecurrence); !errors.Is(err, availability.ErrInvalidRecurrence) {
		t.Errorf("missing recurrence: got %v", err)
	}
}

func TestDefineRuleRejectsOverlapSameDay(t *testing.T) {
	svc, _, _ := newAvailabilityFixture(t)
	doctorID := uuid.New()

	first := weeklyRule(doctorID, time.Monday, availability.NewTimeOfDay(9, 0), availability.NewTimeOfDay(12, 0), 30)
	if _, err := svc.DefineRule(context.Background(), first); err != nil {
		t.Fatal(err)
	}

	overlapping := weeklyRule(doctorID, time.Monday, availability.NewTimeOfDay(11, 0), availability.NewTimeOfDay(14, 0), 30)
	if _, err := svc.DefineRule(context.Background(), overlapping); !errors.Is(err, availability.ErrRuleConflict) {
		t.Errorf("overlapping same weekday: got %v", err)
	}

	// Touching windows are fine: [9,12) and [12,14) share no minute.
	adjacent := weeklyRule(doctorID, time.Monday, availability.NewTimeOfDay(12, 0), availability.NewTimeOfDay(14, 0), 30)
	if _, err := svc.DefineRule(context.Background(), adjacent); err != nil {
		t.Errorf("adjacent window: %v", err)
	}

	otherDay := weeklyRule(doctorID, time.Tuesday, availability.NewTimeOfDay(9, 0), availability.NewTimeOfDay(12, 0), 30)
	if _, err := svc.DefineRule(context.Background(), otherDay); err != nil {
		t.Errorf("different weekday: %v", err)
	}
}

func TestDefineRuleOverrideMayShadowWeekly(t *testing.T) {
	svc, _, _ := newAvailabilityFixture(t)
	doctorID := uuid.New()

	weekly := weeklyRule(doctorID, testDay.Weekday(), availability.NewTimeOfDay(9, 0), availability.NewTimeOfDay(12, 0), 30)
	if _, err := svc.DefineRule(context.Background(), weekly); err != nil {
		t.Fatal(err)
	}

	// A blackout on one date may shadow the weekly window it overlaps.
	blackout := &availability.Rule{
		DoctorID:         doctorID,
		Recurrence:       availability.OnDate(testDay),
		StartTime:        availability.NewTimeOfDay(9, 0),
		EndTime:          availability.NewTimeOfDay(12, 0),
		SlotDurationMins: 30,
		IsAvailable:      false,
	}
	if _, err := svc.DefineRule(context.Background(), blackout); err != nil {
		t.Errorf("blackout over weekly window: %v", err)
	}
}

func TestRemoveRuleInvalidatesCache(t *testing.T) {
	svc, _, c := newAvailabilityFixture(t)
	doctorID := uuid.New()

	rule := weeklyRule(doctorID, time.Monday, availability.NewTimeOfDay(9, 0), availability.NewTimeOfDay(12, 0), 30)
	if _, err := svc.DefineRule(context.Background(), rule); err != nil {
		t.Fatal(err)
	}
	before := c.docInvalidation

	if err := svc.RemoveRule(context.Background(), rule.ID); err != nil {
		t.Fatalf("RemoveRule: %v", err)
	}
	if c.docInvalidation != before+1 {
		t.Error("removing a weekly rule must invalidate the doctor's cached days")
	}

	if err := svc.RemoveRule(context.Background(), rule.ID); !errors.Is(err, availability.ErrRuleNotFound) {
		t.Errorf("double remove: got %v", err)
	}
}

func TestReplaceRulesChecksInternalConsistency(t *testing.T) {
	svc, repo, _ := newAvailabilityFixture(t)
	doctorID := uuid.New()

	conflicting := []*availability.Rule{
		weeklyRule(doctorID, time.Monday, availability.NewTimeOfDay(9, 0), availability.NewTimeOfDay(12, 0), 30),
		weeklyRule(doctorID, time.Monday, availability.NewTimeOfDay(10, 0), availability.NewTimeOfDay(13, 0), 30),
	}
	if err := svc.ReplaceRules(context.Background(), doctorID, conflicting); !errors.Is(err, availability.ErrRuleConflict) {
		t.Fatalf("internally conflicting set: got %v", err)
	}

	replacement := []*availability.Rule{
		weeklyRule(doctorID, time.Monday, availability.NewTimeOfDay(9, 0), availability.NewTimeOfDay(12, 0), 30),
		weeklyRule(doctorID, time.Wednesday, availability.NewTimeOfDay(13, 0), availability.NewTimeOfDay(17, 0), 60),
	}
	if err := svc.ReplaceRules(context.Background(), doctorID, replacement); err != nil {
		t.Fatalf("ReplaceRules: %v", err)
	}

	stored, err := repo.ListByDoctor(context.Background(), doctorID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("stored %d rules, want 2", len(stored))
	}
}
