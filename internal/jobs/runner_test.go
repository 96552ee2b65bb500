package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunner_TicksAndStopsOnCancel(t *testing.T) {
	var runs atomic.Int32
	r := NewRunner(Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()

	got := runs.Load()
	if got < 2 {
		t.Fatalf("ran %d times in 60ms at a 10ms interval", got)
	}
	time.Sleep(30 * time.Millisecond)
	if after := runs.Load(); after > got+1 {
		t.Fatalf("kept running after cancel: %d -> %d", got, after)
	}
}

func TestRunner_SkipsTicksWhileRunning(t *testing.T) {
	var started atomic.Int32
	release := make(chan struct{})
	r := NewRunner(Job{
		Name:     "slow",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			started.Add(1)
			<-release
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	close(release)

	if got := started.Load(); got != 1 {
		t.Fatalf("overlapping runs: %d starts for one in-flight job", got)
	}
}

func TestRunner_ErrorDoesNotStopTheLoop(t *testing.T) {
	var runs atomic.Int32
	r := NewRunner(Job{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("boom")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	time.Sleep(55 * time.Millisecond)

	if got := runs.Load(); got < 2 {
		t.Fatalf("loop stopped after an error: %d runs", got)
	}
}
