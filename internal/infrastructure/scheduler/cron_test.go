package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestNewCronSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := NewCronScheduler("every day", nil); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestStartSchedulesEntry(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	s, err := NewCronScheduler("0 3 * * *", loc)
	if err != nil {
		t.Fatalf("NewCronScheduler: %v", err)
	}
	if !s.Next().IsZero() {
		t.Fatal("expected zero next run before Start")
	}

	ctx := context.Background()
	if err := s.Start(ctx, func(time.Time) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(ctx)

	next := s.Next().In(loc)
	if next.Hour() != 3 || next.Minute() != 0 {
		t.Fatalf("unexpected next run %v", next)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !s.Next().IsZero() {
		t.Fatal("expected zero next run after Stop")
	}
}

func TestStartNilJob(t *testing.T) {
	s, err := NewCronScheduler("@daily", nil)
	if err != nil {
		t.Fatalf("NewCronScheduler: %v", err)
	}
	if err := s.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Next().IsZero() {
		t.Fatal("nil job must not be scheduled")
	}
}
