package ltg_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/ltg"
	"github.com/wmac/upper-mac/internal/sched"
)

func addr(b byte) dot11.Addr { return dot11.Addr{0x02, 0, 0, 0, 0, b} }

func startScheduler(t *testing.T) *sched.Scheduler {
	t.Helper()
	s := sched.New(sched.NewRealClock())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.Start(ctx)
	return s
}

func TestFixedCountFiresExactly(t *testing.T) {
	s := startScheduler(t)
	var mu sync.Mutex
	var fires int
	done := make(chan struct{})

	m := ltg.NewManager(s, sched.NewRealClock(), sched.Fine, func(id uint32, dest dot11.Addr, payload []byte, arg any) {
		mu.Lock()
		fires++
		n := fires
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	}, nil)

	_, err := m.Add(ltg.Schedule{
		Kind:       ltg.Periodic,
		IntervalUs: 1000,
		MaxCalls:   3,
		Descriptor: ltg.Descriptor{Target: ltg.TargetOneAddress, Addr: addr(1), Payload: ltg.PayloadFixedLength, MinLen: 32, MaxLen: 32},
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("did not fire 3 times")
	}
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 3, fires)
	mu.Unlock()
}

func TestRemoveStopsFurtherFirings(t *testing.T) {
	s := startScheduler(t)
	var mu sync.Mutex
	var fires int

	m := ltg.NewManager(s, sched.NewRealClock(), sched.Fine, func(id uint32, dest dot11.Addr, payload []byte, arg any) {
		mu.Lock()
		fires++
		mu.Unlock()
	}, nil)

	id, err := m.Add(ltg.Schedule{
		Kind:       ltg.Periodic,
		IntervalUs: 200_000,
		Descriptor: ltg.Descriptor{Target: ltg.TargetOneAddress, Addr: addr(1), Payload: ltg.PayloadFixedLength, MinLen: 16, MaxLen: 16},
	})
	require.NoError(t, err)
	require.NoError(t, m.Remove(id))
	assert.False(t, m.Active(id))

	time.Sleep(250 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, fires)
	mu.Unlock()
}

func TestAllAssociatedTargetsEveryStation(t *testing.T) {
	s := startScheduler(t)
	var mu sync.Mutex
	var dests []dot11.Addr
	done := make(chan struct{})

	m := ltg.NewManager(s, sched.NewRealClock(), sched.Fine, func(id uint32, dest dot11.Addr, payload []byte, arg any) {
		mu.Lock()
		dests = append(dests, dest)
		if len(dests) == 2 {
			close(done)
		}
		mu.Unlock()
	}, func() []dot11.Addr { return []dot11.Addr{addr(1), addr(2)} })

	_, err := m.Add(ltg.Schedule{
		Kind:       ltg.Periodic,
		IntervalUs: 1000,
		MaxCalls:   1,
		Descriptor: ltg.Descriptor{Target: ltg.TargetAllAssociated, Payload: ltg.PayloadFixedLength, MinLen: 16, MaxLen: 16},
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("did not reach all associated stations")
	}
	mu.Lock()
	assert.ElementsMatch(t, []dot11.Addr{addr(1), addr(2)}, dests)
	mu.Unlock()
}

func TestInvalidScheduleRejected(t *testing.T) {
	s := startScheduler(t)
	m := ltg.NewManager(s, sched.NewRealClock(), sched.Fine, func(uint32, dot11.Addr, []byte, any) {}, nil)
	_, err := m.Add(ltg.Schedule{Kind: ltg.Periodic, IntervalUs: 0})
	assert.Error(t, err)
}
