package bssstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/bssstore"
	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/wmacerr"
)

func addr(b byte) dot11.Addr { return dot11.Addr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, b} }

func TestUpdateCreatesAndRefreshes(t *testing.T) {
	s := bssstore.New(4)
	err := s.Update(addr(1), func(i *bssstore.Info) { i.SSID = "net1" })
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	info, ok := s.Lookup(addr(1))
	require.True(t, ok)
	assert.Equal(t, "net1", info.SSID)

	err = s.Update(addr(1), func(i *bssstore.Info) { i.Channel = 6 })
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	info, _ = s.Lookup(addr(1))
	assert.Equal(t, 6, info.Channel)
}

func TestCapacityEvictsOldestUnpinned(t *testing.T) {
	s := bssstore.New(2)
	require.NoError(t, s.Update(addr(1), func(i *bssstore.Info) {}))
	require.NoError(t, s.Update(addr(2), func(i *bssstore.Info) {}))
	require.NoError(t, s.Update(addr(3), func(i *bssstore.Info) {}))

	_, ok := s.Lookup(addr(1))
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = s.Lookup(addr(3))
	assert.True(t, ok)
}

func TestCapacityFullWithAllPinnedFails(t *testing.T) {
	s := bssstore.New(1)
	require.NoError(t, s.Update(addr(1), func(i *bssstore.Info) {}))
	require.True(t, s.Pin(addr(1), true))

	err := s.Update(addr(2), func(i *bssstore.Info) {})
	assert.ErrorIs(t, err, wmacerr.ErrCapacity)
}

func TestFindBySSID(t *testing.T) {
	s := bssstore.New(4)
	require.NoError(t, s.Update(addr(1), func(i *bssstore.Info) { i.SSID = "same" }))
	require.NoError(t, s.Update(addr(2), func(i *bssstore.Info) { i.SSID = "same" }))
	require.NoError(t, s.Update(addr(3), func(i *bssstore.Info) { i.SSID = "other" }))

	matches := s.FindBySSID("same")
	assert.Len(t, matches, 2)
}

func TestTimestampCheckEvictsStaleUnpinned(t *testing.T) {
	s := bssstore.New(4)
	require.NoError(t, s.Update(addr(1), func(i *bssstore.Info) {}))
	require.NoError(t, s.Update(addr(2), func(i *bssstore.Info) {}))
	require.True(t, s.Pin(addr(2), true))

	evicted := s.TimestampCheck()
	assert.Equal(t, 0, evicted, "nothing stale yet")
	assert.Equal(t, 2, s.Len())
}
