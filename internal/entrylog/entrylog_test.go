package entrylog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/entrylog"
)

func TestAppendAndByKind(t *testing.T) {
	l := entrylog.New(8)
	l.Append(entrylog.NodeInfo{NodeID: 1})
	l.Append(entrylog.TimeInfo{TimeID: 1, Reason: entrylog.TimeInfoSystem})
	l.Append(entrylog.TimeInfo{TimeID: 2, Reason: entrylog.TimeInfoSetTime})

	require.Equal(t, 3, l.Len())
	times := l.ByKind(entrylog.KindTimeInfo)
	require.Len(t, times, 2)
	assert.Equal(t, entrylog.TimeInfoSystem, times[0].(entrylog.TimeInfo).Reason)
	assert.Equal(t, entrylog.TimeInfoSetTime, times[1].(entrylog.TimeInfo).Reason)
}

func TestRingWraparoundDropsOldest(t *testing.T) {
	l := entrylog.New(3)
	for i := 0; i < 5; i++ {
		l.Append(entrylog.StationInfo{AID: uint16(i)})
	}
	all := l.All()
	require.Len(t, all, 3)
	assert.Equal(t, uint16(2), all[0].(entrylog.StationInfo).AID)
	assert.Equal(t, uint16(3), all[1].(entrylog.StationInfo).AID)
	assert.Equal(t, uint16(4), all[2].(entrylog.StationInfo).AID)
}

func TestResetEmptiesLog(t *testing.T) {
	l := entrylog.New(4)
	l.Append(entrylog.NodeInfo{})
	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.All())
}

func TestEntryKindAndTimestamp(t *testing.T) {
	now := time.Now()
	e := entrylog.TxHigh{Result: entrylog.TxResultSuccess}
	e.Timestamp = now
	assert.Equal(t, entrylog.KindTxHigh, e.EntryKind())
	assert.Equal(t, now, e.EntryTimestamp())

	ltg := entrylog.TxHighLTG{TxHigh: e}
	assert.Equal(t, entrylog.KindTxHighLTG, ltg.EntryKind())
}

func TestRxEntryKinds(t *testing.T) {
	ofdm := entrylog.RxOFDM{RxCommon: entrylog.RxCommon{FCS: entrylog.FCSGood}}
	assert.Equal(t, entrylog.KindRxOFDM, ofdm.EntryKind())

	ltg := entrylog.RxOFDMLTG{RxCommon: entrylog.RxCommon{FCS: entrylog.FCSBad}}
	assert.Equal(t, entrylog.KindRxOFDMLTG, ltg.EntryKind())

	dsss := entrylog.RxDSSS{}
	assert.Equal(t, entrylog.KindRxDSSS, dsss.EntryKind())
}

func TestLenBeforeAndAfterFull(t *testing.T) {
	l := entrylog.New(2)
	assert.Equal(t, 0, l.Len())
	l.Append(entrylog.NodeInfo{})
	assert.Equal(t, 1, l.Len())
	l.Append(entrylog.NodeInfo{})
	assert.Equal(t, 2, l.Len())
	l.Append(entrylog.NodeInfo{})
	assert.Equal(t, 2, l.Len())
}
