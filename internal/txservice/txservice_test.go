package txservice_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/counts"
	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/entrylog"
	"github.com/wmac/upper-mac/internal/mailbox"
	"github.com/wmac/upper-mac/internal/pktbuf"
	"github.com/wmac/upper-mac/internal/txqueue"
	"github.com/wmac/upper-mac/internal/txservice"
)

func enqueue(t *testing.T, txq *txqueue.Manager, qid txqueue.QueueID, payload string) {
	t.Helper()
	r, err := txq.Checkout()
	require.NoError(t, err)
	elt, err := txq.Get(r)
	require.NoError(t, err)
	n := copy(elt.Payload[:], payload)
	elt.Length = n
	require.NoError(t, txq.EnqueueTail(qid, r))
}

func TestServiceOnceStagesHeadOfNextQueueAndAdvancesCursor(t *testing.T) {
	txq := txqueue.NewManager(8, nil)
	pool := pktbuf.NewPool()
	link := mailbox.NewLink(4)
	high := link.HighSide()
	cs := counts.New(8)
	log := entrylog.New(16)

	enqueue(t, txq, txqueue.BeaconQID, "beacon")
	enqueue(t, txq, txqueue.ManagementQID, "mgmt")

	order := []txqueue.QueueID{txqueue.BeaconQID, txqueue.ManagementQID}
	loop := txservice.New(txq, pool, high, cs, log, nil, order, nil, nil)

	submitted, err := loop.ServiceOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, submitted)

	msg, ok := link.LowSide().TryRecv()
	require.True(t, ok)
	assert.Equal(t, mailbox.KindTxReady, msg.Kind)

	submitted, err = loop.ServiceOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, submitted)
	msg2, ok := link.LowSide().TryRecv()
	require.True(t, ok)
	assert.NotEqual(t, msg.BufIndex, msg2.BufIndex)
}

func TestServiceOnceEmptyQueuesReportNotSubmitted(t *testing.T) {
	txq := txqueue.NewManager(4, nil)
	pool := pktbuf.NewPool()
	link := mailbox.NewLink(4)
	loop := txservice.New(txq, pool, link.HighSide(), nil, nil, nil, []txqueue.QueueID{txqueue.BeaconQID}, nil, nil)

	submitted, err := loop.ServiceOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, submitted)
}

func TestPurgingStationFrameDroppedWithoutStaging(t *testing.T) {
	txq := txqueue.NewManager(4, nil)
	pool := pktbuf.NewPool()
	link := mailbox.NewLink(4)
	qid := txqueue.StationQueueID(1)
	enqueue(t, txq, qid, "data")

	lookup := func(q txqueue.QueueID) (dot11.Addr, bool, bool) {
		if q == qid {
			return dot11.Addr{1}, true, true
		}
		return dot11.Addr{}, false, false
	}
	loop := txservice.New(txq, pool, link.HighSide(), nil, nil, lookup, []txqueue.QueueID{qid}, nil, nil)

	submitted, err := loop.ServiceOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, submitted)
	assert.Equal(t, 0, txq.NumQueued(qid))
	_, ok := link.LowSide().TryRecv()
	assert.False(t, ok)
}

func TestGateFuncSkipsClosedQueue(t *testing.T) {
	txq := txqueue.NewManager(4, nil)
	pool := pktbuf.NewPool()
	link := mailbox.NewLink(4)
	enqueue(t, txq, txqueue.MCastQID, "held")
	enqueue(t, txq, txqueue.ManagementQID, "mgmt")

	gate := func(qid txqueue.QueueID) bool { return qid != txqueue.MCastQID }
	loop := txservice.New(txq, pool, link.HighSide(), nil, nil, nil, []txqueue.QueueID{txqueue.MCastQID, txqueue.ManagementQID}, nil, gate)

	submitted, err := loop.ServiceOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, submitted)
	assert.Equal(t, 1, txq.NumQueued(txqueue.MCastQID), "gated queue must stay untouched")
	assert.Equal(t, 0, txq.NumQueued(txqueue.ManagementQID))
}

func TestStationQueuesFuncExtendsOrder(t *testing.T) {
	txq := txqueue.NewManager(4, nil)
	pool := pktbuf.NewPool()
	link := mailbox.NewLink(4)
	qid := txqueue.StationQueueID(1)
	enqueue(t, txq, qid, "uplink")

	stationQueues := func() []txqueue.QueueID { return []txqueue.QueueID{qid} }
	loop := txservice.New(txq, pool, link.HighSide(), nil, nil, nil, []txqueue.QueueID{txqueue.BeaconQID}, stationQueues, nil)

	submitted, err := loop.ServiceOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, submitted, "a queue reported only by StationQueuesFunc must still be serviced")
	assert.Equal(t, 0, txq.NumQueued(qid))
}

func TestHandleTxDoneUpdatesCountsAndLog(t *testing.T) {
	txq := txqueue.NewManager(4, nil)
	pool := pktbuf.NewPool()
	link := mailbox.NewLink(4)
	high := link.HighSide()
	cs := counts.New(4)
	log := entrylog.New(16)

	enqueue(t, txq, txqueue.ManagementQID, "hello")
	loop := txservice.New(txq, pool, high, cs, log, nil, []txqueue.QueueID{txqueue.ManagementQID}, nil, nil)

	submitted, err := loop.ServiceOnce(context.Background())
	require.NoError(t, err)
	require.True(t, submitted)
	msg, ok := link.LowSide().TryRecv()
	require.True(t, ok)

	err = loop.HandleTxDone(msg, []pktbuf.TxLowDetail{{Retry: false}}, true)
	require.NoError(t, err)

	assert.Len(t, log.ByKind(entrylog.KindTxHigh), 1)
	assert.Len(t, log.ByKind(entrylog.KindTxLow), 1)
}
