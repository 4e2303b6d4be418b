package coordinator

import (
	"testing"
	"time"
)

func TestGraceSchedulerFires(t *testing.T) {
	t.Parallel()

	fired := make(chan string, 1)
	scheduler := NewGraceScheduler(func(sessionID string) { fired <- sessionID })
	defer scheduler.Stop()

	if err := scheduler.Schedule("s1", 5*time.Millisecond); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	select {
	case got := <-fired:
		if got != "s1" {
			t.Fatalf("expected s1, got %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	if scheduler.Pending() != 0 {
		t.Fatalf("expected no pending triggers, got %d", scheduler.Pending())
	}
}

func TestGraceSchedulerReplacesPendingTrigger(t *testing.T) {
	t.Parallel()

	fired := make(chan string, 2)
	scheduler := NewGraceScheduler(func(sessionID string) { fired <- sessionID })
	defer scheduler.Stop()

	if err := scheduler.Schedule("s1", time.Hour); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := scheduler.Schedule("s1", 5*time.Millisecond); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("replacement timer never fired")
	}

	// The replaced hour-long timer must not produce a second fire.
	select {
	case got := <-fired:
		t.Fatalf("unexpected second fire for %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGraceSchedulerCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	fired := make(chan string, 1)
	scheduler := NewGraceScheduler(func(sessionID string) { fired <- sessionID })
	defer scheduler.Stop()

	// Cancelling an unknown trigger is a no-op.
	scheduler.Cancel("missing")

	if err := scheduler.Schedule("s1", 20*time.Millisecond); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	scheduler.Cancel("s1")
	scheduler.Cancel("s1")

	select {
	case got := <-fired:
		t.Fatalf("cancelled timer fired for %s", got)
	case <-time.After(100 * time.Millisecond):
	}
	if scheduler.Pending() != 0 {
		t.Fatalf("expected no pending triggers, got %d", scheduler.Pending())
	}
}

func TestGraceSchedulerStopRejectsScheduling(t *testing.T) {
	t.Parallel()

	scheduler := NewGraceScheduler(func(string) {})
	if err := scheduler.Schedule("s1", time.Hour); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	scheduler.Stop()
	scheduler.Stop()

	if scheduler.Pending() != 0 {
		t.Fatalf("expected stop to disarm triggers, got %d pending", scheduler.Pending())
	}
	if err := scheduler.Schedule("s2", time.Minute); err == nil {
		t.Fatal("expected scheduling after stop to fail")
	}
}

func TestGraceSchedulerRequiresSessionID(t *testing.T) {
	t.Parallel()

	scheduler := NewGraceScheduler(func(string) {})
	defer scheduler.Stop()

	if err := scheduler.Schedule("", time.Minute); err == nil {
		t.Fatal("expected empty session id error")
	}
}
