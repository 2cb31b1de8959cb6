package bssstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/dot11"
)

func TestTimestampCheckEvictsAfterEvictionAge(t *testing.T) {
	s := New(4)
	fakeNow := time.Now()
	s.now = func() time.Time { return fakeNow }

	require.NoError(t, s.Update(dot11.Addr{0}, func(i *Info) {}))
	require.NoError(t, s.Update(dot11.Addr{1}, func(i *Info) {}))
	require.True(t, s.Pin(dot11.Addr{1}, true))

	fakeNow = fakeNow.Add(EvictionAge + time.Second)
	n := s.TimestampCheck()
	assert.Equal(t, 1, n, "unpinned entry should be evicted, pinned one kept")
	assert.Equal(t, 1, s.Len())
}
