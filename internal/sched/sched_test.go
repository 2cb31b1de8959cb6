package sched_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wmac/upper-mac/internal/sched"
)

func TestScheduleOnceFiresOnce(t *testing.T) {
	s := sched.New(sched.NewRealClock())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var calls int32
	fired := make(chan struct{}, 1)
	s.ScheduleOnce(sched.Fine, 2000, func(ctx context.Context, arg any) {
		atomic.AddInt32(&calls, 1)
		fired <- struct{}{}
	}, nil)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("event never fired")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestScheduleRepeatedFixedCount(t *testing.T) {
	s := sched.New(sched.NewRealClock())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var calls int32
	done := make(chan struct{})
	s.ScheduleRepeated(sched.Coarse, 1000, 3, func(ctx context.Context, arg any) {
		n := atomic.AddInt32(&calls, 1)
		if n == 3 {
			close(done)
		}
	}, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("did not fire 3 times")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRemoveCancelsBeforeFiring(t *testing.T) {
	s := sched.New(sched.NewRealClock())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var calls int32
	id := s.ScheduleOnce(sched.Fine, 50_000, func(ctx context.Context, arg any) {
		atomic.AddInt32(&calls, 1)
	}, nil)
	assert.NoError(t, s.Remove(sched.Fine, id))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
