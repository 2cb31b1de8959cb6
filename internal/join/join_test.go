package join_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/bssstore"
	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/join"
	"github.com/wmac/upper-mac/internal/scan"
	"github.com/wmac/upper-mac/internal/sched"
	"github.com/wmac/upper-mac/internal/txqueue"
)

type fakeRadio struct{ channel int }

func (r *fakeRadio) SetChannel(ctx context.Context, ch int) error { r.channel = ch; return nil }
func (r *fakeRadio) Channel() int                                 { return r.channel }
func (r *fakeRadio) SetTxPower(ctx context.Context, dBm int) error { return nil }

type stubAuth struct{ reject join.RejectCode }

func (a *stubAuth) Authenticate(ctx context.Context, bss bssstore.Info) join.RejectCode {
	return a.reject
}

type stubAdopter struct{ adopted bssstore.Info }

func (a *stubAdopter) Adopt(ctx context.Context, bss bssstore.Info) error {
	a.adopted = bss
	return nil
}

func setup(t *testing.T) (*scan.FSM, *bssstore.Store) {
	t.Helper()
	s := sched.New(sched.NewRealClock())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.Start(ctx)
	txq := txqueue.NewManager(4, nil)
	fsm := scan.New(s, &fakeRadio{channel: 1}, txq, func(ssid string) []byte { return []byte("p") })
	store := bssstore.New(4)
	return fsm, store
}

func TestJoinSTASucceedsOnMatch(t *testing.T) {
	fsm, store := setup(t)
	bssid := dot11.Addr{1, 2, 3, 4, 5, 6}
	require.NoError(t, store.Update(bssid, func(i *bssstore.Info) { i.SSID = "MangoNet"; i.Channel = 6 }))

	auth := &stubAuth{reject: join.RejectNone}
	res := join.Run(context.Background(), join.ModeSTA, fsm, store,
		scan.Params{Channels: []int{6}, DwellUs: 500_000, SSID: "MangoNet"},
		1, 2*time.Second, auth, nil)

	assert.True(t, res.Success)
	assert.Equal(t, "MangoNet", res.BSS.SSID)
}

func TestJoinSTARejected(t *testing.T) {
	fsm, store := setup(t)
	bssid := dot11.Addr{1, 2, 3, 4, 5, 6}
	require.NoError(t, store.Update(bssid, func(i *bssstore.Info) { i.SSID = "MangoNet" }))

	auth := &stubAuth{reject: join.RejectTooManyAssociations}
	res := join.Run(context.Background(), join.ModeSTA, fsm, store,
		scan.Params{Channels: []int{6}, DwellUs: 500_000, SSID: "MangoNet"},
		1, 2*time.Second, auth, nil)

	assert.False(t, res.Success)
	assert.Equal(t, join.RejectTooManyAssociations, res.Reject)
}

func TestJoinTimesOutWithoutMatch(t *testing.T) {
	fsm, store := setup(t)
	res := join.Run(context.Background(), join.ModeSTA, fsm, store,
		scan.Params{Channels: []int{6}, DwellUs: 500_000, SSID: "NoSuchNet"},
		1, 150*time.Millisecond, &stubAuth{}, nil)

	assert.False(t, res.Success)
	assert.Equal(t, join.RejectTimeout, res.Reject)
}

func TestJoinIBSSAdopts(t *testing.T) {
	fsm, store := setup(t)
	bssid := dot11.Addr{9, 9, 9, 9, 9, 9}
	require.NoError(t, store.Update(bssid, func(i *bssstore.Info) { i.SSID = "ibss-net" }))

	adopter := &stubAdopter{}
	res := join.Run(context.Background(), join.ModeIBSS, fsm, store,
		scan.Params{Channels: []int{1}, DwellUs: 500_000, SSID: "ibss-net"},
		1, 2*time.Second, nil, adopter)

	assert.True(t, res.Success)
	assert.Equal(t, "ibss-net", adopter.adopted.SSID)
}
