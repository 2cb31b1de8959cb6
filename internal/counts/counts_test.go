package counts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/wmac/upper-mac/internal/counts"
	"github.com/wmac/upper-mac/internal/dot11"
)

func addr(b byte) dot11.Addr { return dot11.Addr{0x02, 0, 0, 0, 0, b} }

func TestRecordTxAccumulates(t *testing.T) {
	s := counts.New(4)
	s.RecordTx(addr(1), counts.ClassData, 100, 1, true)
	s.RecordTx(addr(1), counts.ClassData, 100, 3, false)

	rec, ok := s.Lookup(addr(1))
	require.True(t, ok)
	assert.Equal(t, uint32(2), rec.Data.TxPacketsTotal)
	assert.Equal(t, uint32(1), rec.Data.TxPacketsSuccess)
	assert.Equal(t, uint64(4), rec.Data.TxAttempts)
	assert.Equal(t, uint64(100), rec.Data.TxBytesSuccess)
}

func TestRecordRxDuplicateFilter(t *testing.T) {
	s := counts.New(4)
	dup := s.RecordRx(addr(1), counts.ClassData, 200, false, 5)
	assert.False(t, dup)
	dup = s.RecordRx(addr(1), counts.ClassData, 200, true, 5)
	assert.True(t, dup, "retry set + same seq is a duplicate")
	dup = s.RecordRx(addr(1), counts.ClassData, 200, true, 6)
	assert.False(t, dup, "different seq is not a duplicate even with retry set")

	rec, ok := s.Lookup(addr(1))
	require.True(t, ok)
	assert.Equal(t, uint32(3), rec.Data.RxPacketsTotal)
	assert.Equal(t, uint32(2), rec.Data.RxPackets, "one of the three receptions was deduplicated")
}

func TestRecordRxWithoutRetryNeverDuplicate(t *testing.T) {
	s := counts.New(4)
	s.RecordRx(addr(1), counts.ClassData, 50, false, 1)
	dup := s.RecordRx(addr(1), counts.ClassData, 50, false, 1)
	assert.False(t, dup, "same seq without retry bit is not flagged a duplicate")
}

func TestDataAndMgmtCountersAreIndependent(t *testing.T) {
	s := counts.New(4)
	s.RecordRx(addr(1), counts.ClassData, 10, false, 1)
	s.RecordRx(addr(1), counts.ClassMgmt, 20, false, 1)

	rec, ok := s.Lookup(addr(1))
	require.True(t, ok)
	assert.Equal(t, uint32(1), rec.Data.RxPackets)
	assert.Equal(t, uint32(1), rec.Mgmt.RxPackets)
}

func TestOldestRecycledWhenFullAndPinnedSurvives(t *testing.T) {
	s := counts.New(2)
	s.RecordRx(addr(1), counts.ClassData, 1, false, 0)
	require.True(t, s.Pin(addr(1), true))
	s.RecordRx(addr(2), counts.ClassData, 1, false, 0)

	// Store is full; a third new address must recycle addr(2) (the
	// unpinned oldest), never addr(1).
	s.RecordRx(addr(3), counts.ClassData, 1, false, 0)

	_, ok := s.Lookup(addr(1))
	assert.True(t, ok, "pinned record must survive recycling")
	_, ok = s.Lookup(addr(2))
	assert.False(t, ok, "unpinned oldest record should have been recycled")
}

func TestResetZeroesUnpinnedOnly(t *testing.T) {
	s := counts.New(4)
	s.RecordRx(addr(1), counts.ClassData, 10, false, 1)
	s.RecordRx(addr(2), counts.ClassData, 10, false, 1)
	require.True(t, s.Pin(addr(2), true))

	s.Reset()

	rec1, _ := s.Lookup(addr(1))
	assert.Equal(t, uint32(0), rec1.Data.RxPackets)
	rec2, _ := s.Lookup(addr(2))
	assert.Equal(t, uint32(1), rec2.Data.RxPackets, "pinned record survives reset")
}

// Every _total counter is non-decreasing across any sequence of Rx
// recordings for a single, never-recycled address, and _success <= _total.
func TestRapidRecordRxCountersAreMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := counts.New(1) // capacity 1: this address is never recycled
		a := addr(1)

		var lastTotal, lastBytesTotal uint64
		steps := rapid.IntRange(0, 64).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			length := rapid.IntRange(0, 1500).Draw(t, "length")
			retry := rapid.Bool().Draw(t, "retry")
			seq := rapid.Uint16().Draw(t, "seq")

			s.RecordRx(a, counts.ClassData, length, retry, seq)

			rec, ok := s.Lookup(a)
			require.True(t, ok)
			assert.GreaterOrEqual(t, uint64(rec.Data.RxPacketsTotal), lastTotal, "_total must be non-decreasing")
			assert.GreaterOrEqual(t, rec.Data.RxBytesTotal, lastBytesTotal, "rx_bytes_total must be non-decreasing")
			assert.LessOrEqual(t, uint64(rec.Data.RxPackets), uint64(rec.Data.RxPacketsTotal), "rx_pkts <= rx_pkts_total")
			assert.LessOrEqual(t, rec.Data.RxBytes, rec.Data.RxBytesTotal, "rx_bytes <= rx_bytes_total")

			lastTotal = uint64(rec.Data.RxPacketsTotal)
			lastBytesTotal = rec.Data.RxBytesTotal
		}
	})
}

// An Rx frame followed by a retry=1 frame from the same address with an
// identical sequence number: the second is a duplicate, leaves rx_pkts
// unchanged, and still advances rx_pkts_total by one (spec invariant 8).
func TestRapidDuplicateFilterLeavesDedupedCountUnchanged(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := counts.New(1)
		a := addr(1)
		seq := rapid.Uint16().Draw(t, "seq")
		length := rapid.IntRange(0, 1500).Draw(t, "length")

		s.RecordRx(a, counts.ClassData, length, false, seq)
		before, _ := s.Lookup(a)

		dup := s.RecordRx(a, counts.ClassData, length, true, seq)
		after, _ := s.Lookup(a)

		assert.True(t, dup)
		assert.Equal(t, before.Data.RxPackets, after.Data.RxPackets, "rx_pkts unchanged across a duplicate")
		assert.Equal(t, before.Data.RxPacketsTotal+1, after.Data.RxPacketsTotal, "rx_pkts_total still advances")
	})
}
