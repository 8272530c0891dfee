package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/appointment"
)

func newReaperFixture(t *testing.T) (*ExpiryReaper, *memApptRepo, *recordingRecorder, *fakeClock) {
	t.Helper()
	repo := newMemApptRepo()
	rec := &recordingRecorder{}
	clk := newFakeClock(testDay.Add(8 * time.Hour))
	reaper := NewExpiryReaper(repo, rec, &recordingCache{}, clk, testReservationConfig(), testMetrics, testLogger)
	return reaper, repo, rec, clk
}

func storedHold(t *testing.T, repo *memApptRepo, startsAt time.Time, expiresAt time.Time) *appointment.Appointment {
	t.Helper()
	a := &appointment.Appointment{
		DoctorID:             uuid.New(),
		PatientID:            uuid.New(),
		StartsAt:             startsAt,
		DurationMins:         30,
		Status:               appointment.StatusReserved,
		ReservationExpiresAt: &expiresAt,
	}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestSweepReleasesExpiredHolds(t *testing.T) {
	reaper, repo, rec, clk := newReaperFixture(t)
	now := clk.Now()

	expired := storedHold(t, repo, now.Add(time.Hour), now.Add(-time.Minute))
	live := storedHold(t, repo, now.Add(2*time.Hour), now.Add(5*time.Minute))

	released, err := reaper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}

	got, _ := repo.GetByID(context.Background(), expired.ID)
	if got.Status != appointment.StatusCancelled {
		t.Errorf("expired hold status = %s, want cancelled", got.Status)
	}
	if got.CancellationReason != "reservation expired" {
		t.Errorf("reason = %q", got.CancellationReason)
	}

	got, _ = repo.GetByID(context.Background(), live.ID)
	if got.Status != appointment.StatusReserved {
		t.Errorf("live hold must survive the sweep, got %s", got.Status)
	}

	actions := rec.actions()
	if len(actions) != 1 || actions[0] != "hold_expired" {
		t.Errorf("recorded actions = %v", actions)
	}
}

func TestSweepExpiryIsInclusive(t *testing.T) {
	reaper, repo, _, clk := newReaperFixture(t)
	now := clk.Now()

	// A hold expiring exactly now is expired: the invariant is that a hold
	// is live strictly before its TTL instant.
	boundary := storedHold(t, repo, now.Add(time.Hour), now)

	released, err := reaper.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
	got, _ := repo.GetByID(context.Background(), boundary.ID)
	if got.Status != appointment.StatusCancelled {
		t.Errorf("boundary hold status = %s", got.Status)
	}
}

func TestSweepIdempotent(t *testing.T) {
	reaper, repo, _, clk := newReaperFixture(t)
	now := clk.Now()

	storedHold(t, repo, now.Add(time.Hour), now.Add(-time.Minute))

	if released, err := reaper.Sweep(context.Background()); err != nil || released != 1 {
		t.Fatalf("first sweep: %d, %v", released, err)
	}
	if released, err := reaper.Sweep(context.Background()); err != nil || released != 0 {
		t.Fatalf("second sweep should find nothing: %d, %v", released, err)
	}
}

func TestSweepDrainsBeyondBatchSize(t *testing.T) {
	repo := newMemApptRepo()
	clk := newFakeClock(testDay.Add(8 * time.Hour))
	cfg := testReservationConfig()
	cfg.ReaperBatch = 2
	reaper := NewExpiryReaper(repo, &recordingRecorder{}, &recordingCache{}, clk, cfg, testMetrics, testLogger)

	now := clk.Now()
	for i := range 5 {
		storedHold(t, repo, now.Add(time.Duration(i+1)*time.Hour), now.Add(-time.Minute))
	}

	released, err := reaper.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if released != 5 {
		t.Errorf("released = %d, want 5", released)
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	reaper, _, _, _ := newReaperFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop on context cancellation")
	}
}

func TestSweepReleasesHoldWithoutExpiry(t *testing.T) {
	reaper, repo, _, clk := newReaperFixture(t)

	// A reserved row that never got an expiry stamped counts as already
	// lapsed; the sweep must release it like any other expired hold.
	a := &appointment.Appointment{
		DoctorID:     uuid.New(),
		PatientID:    uuid.New(),
		StartsAt:     clk.Now().Add(time.Hour),
		DurationMins: 30,
		Status:       appointment.StatusReserved,
	}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	released, err := reaper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
	got, _ := repo.GetByID(context.Background(), a.ID)
	if got.Status != appointment.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
}
