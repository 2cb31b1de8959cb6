package scan_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/scan"
	"github.com/wmac/upper-mac/internal/sched"
	"github.com/wmac/upper-mac/internal/txqueue"
)

type fakeRadio struct {
	mu      sync.Mutex
	channel int
}

func (r *fakeRadio) SetChannel(ctx context.Context, ch int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channel = ch
	return nil
}
func (r *fakeRadio) Channel() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel
}
func (r *fakeRadio) SetTxPower(ctx context.Context, dBm int) error { return nil }

func startScheduler(t *testing.T) *sched.Scheduler {
	t.Helper()
	s := sched.New(sched.NewRealClock())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.Start(ctx)
	return s
}

func TestEnableTunesAndEmitsProbe(t *testing.T) {
	s := startScheduler(t)
	radio := &fakeRadio{channel: 1}
	txq := txqueue.NewManager(4, nil)

	f := scan.New(s, radio, txq, func(ssid string) []byte { return []byte("probe:" + ssid) })
	err := f.Enable(context.Background(), 1, scan.Params{
		Channels:          []int{6, 11},
		DwellUs:           500_000,
		ProbeTxIntervalUs: 50_000,
		SSID:              "",
	})
	require.NoError(t, err)
	assert.Equal(t, scan.Running, f.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 6, radio.Channel())
	assert.Equal(t, 1, txq.NumQueued(txqueue.ManagementQID))
}

func TestAdvancesChannelsAfterDwell(t *testing.T) {
	s := startScheduler(t)
	radio := &fakeRadio{channel: 1}
	txq := txqueue.NewManager(4, nil)

	f := scan.New(s, radio, txq, func(ssid string) []byte { return []byte("p") })
	require.NoError(t, f.Enable(context.Background(), 1, scan.Params{
		Channels: []int{6, 11},
		DwellUs:  10_000,
	}))

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, 11, radio.Channel())
}

func TestPauseHoldsChannelAndResumeContinues(t *testing.T) {
	s := startScheduler(t)
	radio := &fakeRadio{channel: 1}
	txq := txqueue.NewManager(4, nil)

	f := scan.New(s, radio, txq, func(ssid string) []byte { return []byte("p") })
	require.NoError(t, f.Enable(context.Background(), 1, scan.Params{
		Channels: []int{6, 11},
		DwellUs:  10_000,
	}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, f.Pause())
	assert.Equal(t, scan.Paused, f.State())
	held := radio.Channel()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, held, radio.Channel(), "paused scan must not advance channel")

	require.NoError(t, f.Resume(context.Background()))
	assert.Equal(t, scan.Running, f.State())
}

func TestDisableRestoresOperatingChannel(t *testing.T) {
	s := startScheduler(t)
	radio := &fakeRadio{channel: 1}
	txq := txqueue.NewManager(4, nil)

	f := scan.New(s, radio, txq, func(ssid string) []byte { return []byte("p") })
	require.NoError(t, f.Enable(context.Background(), 1, scan.Params{
		Channels: []int{6, 11},
		DwellUs:  500_000,
	}))
	require.NoError(t, f.Disable(context.Background()))
	assert.Equal(t, scan.Idle, f.State())
	assert.Equal(t, 1, radio.Channel())
}

func TestEnableWhileRunningRejected(t *testing.T) {
	s := startScheduler(t)
	radio := &fakeRadio{channel: 1}
	txq := txqueue.NewManager(4, nil)

	f := scan.New(s, radio, txq, func(ssid string) []byte { return []byte("p") })
	require.NoError(t, f.Enable(context.Background(), 1, scan.Params{Channels: []int{6}, DwellUs: 500_000}))
	err := f.Enable(context.Background(), 1, scan.Params{Channels: []int{6}, DwellUs: 500_000})
	assert.Error(t, err)
}
