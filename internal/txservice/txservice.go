// Package txservice is the round-robin Tx service loop (spec §4.13,
// C15): pick the next non-empty queue in round-robin order, stage its
// head element into a free Tx packet buffer, hand it to CPU-Low over the
// mailbox, and later process that buffer's TX_DONE completion (per-attempt
// log entries, counts update, queue-element release). It is grounded
// directly on the teacher's xmit.go (a round-robin channel/priority
// service loop driving a single active transmission at a time, completion
// handled by a distinct callback).
package txservice

import (
	"context"
	"time"

	"github.com/wmac/upper-mac/internal/counts"
	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/entrylog"
	"github.com/wmac/upper-mac/internal/mailbox"
	"github.com/wmac/upper-mac/internal/pktbuf"
	"github.com/wmac/upper-mac/internal/txqueue"
	"github.com/wmac/upper-mac/internal/wmacerr"
)

// StationLookup resolves a queue's owning station address and whether it
// is currently flagged for purge (spec: "a frame whose owner station is
// flagged for purge is silently released without staging"). The
// beacon/management/multicast queues have no owning station (ok=false).
type StationLookup func(qid txqueue.QueueID) (addr dot11.Addr, purging bool, ok bool)

// StationQueuesFunc returns the per-station data queues to append to the
// fixed order on every round (spec §4.13: "round-robin over {Beacon,
// Management, Multicast, per-station data queues}"), reflecting whatever
// stations are currently associated. May be nil if the role never creates
// per-station queues.
type StationQueuesFunc func() []txqueue.QueueID

// GateFunc reports whether qid may be serviced this round. nil means
// always open. Used to hold the multicast queue for sleeping stations
// between DTIM beacons (spec §4.3).
type GateFunc func(qid txqueue.QueueID) bool

// Loop drives one node's Tx service: a round-robin order over a fixed
// prefix of queues plus whatever per-station queues StationQueuesFunc
// reports at the start of each round.
type Loop struct {
	txq     *txqueue.Manager
	pool    *pktbuf.Pool
	link    *mailbox.Endpoint
	counts  *counts.Store
	log     *entrylog.Log
	station StationLookup
	clock   func() time.Time

	fixedOrder    []txqueue.QueueID
	stationQueues StationQueuesFunc
	gate          GateFunc
	cursor        int

	staged map[int]stagedFrame // tx slot index -> staged metadata
}

type stagedFrame struct {
	qid    txqueue.QueueID
	class  counts.FrameClass
	addr   dot11.Addr
	length int
}

// New builds a Loop that services fixedOrder's queues in round-robin,
// appending stationQueues' current report to the end of every round
// (spec: "round-robin over {Beacon, Management, Multicast, per-station
// data queues}"). gate may be nil to leave every queue always serviceable.
func New(txq *txqueue.Manager, pool *pktbuf.Pool, link *mailbox.Endpoint, cs *counts.Store, log *entrylog.Log, lookup StationLookup, fixedOrder []txqueue.QueueID, stationQueues StationQueuesFunc, gate GateFunc) *Loop {
	return &Loop{
		txq:           txq,
		pool:          pool,
		link:          link,
		counts:        cs,
		log:           log,
		station:       lookup,
		clock:         time.Now,
		fixedOrder:    fixedOrder,
		stationQueues: stationQueues,
		gate:          gate,
		staged:        make(map[int]stagedFrame),
	}
}

// currentOrder builds this round's full service order: the fixed prefix
// plus whatever per-station queues are currently registered.
func (l *Loop) currentOrder() []txqueue.QueueID {
	if l.stationQueues == nil {
		return l.fixedOrder
	}
	order := make([]txqueue.QueueID, 0, len(l.fixedOrder)+4)
	order = append(order, l.fixedOrder...)
	order = append(order, l.stationQueues()...)
	return order
}

// ServiceOnce runs one round-robin attempt: find the next non-empty queue
// starting from the cursor, stage its head frame into a free Tx buffer,
// and signal TX_READY. Returns submitted=false if every queue was empty.
// Cursor only advances on successful submission or a purge-drop, so a
// momentarily-full buffer pool does not silently skip a queue's turn.
func (l *Loop) ServiceOnce(ctx context.Context) (submitted bool, err error) {
	order := l.currentOrder()
	if len(order) == 0 {
		return false, nil
	}
	for i := 0; i < len(order); i++ {
		idx := (l.cursor + i) % len(order)
		qid := order[idx]

		if l.gate != nil && !l.gate(qid) {
			continue
		}

		if _, purging, ok := l.stationOwnerOf(qid); ok && purging {
			if n, err := l.txq.DequeueTransmitCheckin(qid); err == nil && n {
				l.cursor = (idx + 1) % len(order)
				return false, nil
			}
			continue
		}

		r, ok := l.txq.DequeueHead(qid)
		if !ok {
			continue
		}
		elt, err := l.txq.Get(r)
		if err != nil {
			_ = l.txq.Checkin(r)
			continue
		}
		length := elt.Length
		var payload [pktbuf.MaxPktSize]byte
		copy(payload[:], elt.Payload[:length])
		_ = l.txq.Checkin(r)

		slot, ok, err := l.acquireFreeSlot()
		if err != nil {
			return false, err
		}
		if !ok {
			// Spec §7 Capacity: drop the frame rather than block the
			// service loop on a full Tx-buffer pool.
			return false, wmacerr.ErrCapacity
		}

		now := l.clock()
		info := slot.Info()
		*info = pktbuf.TxFrameInfo{
			State:      pktbuf.TxReady,
			CreatedUs:  uint64(now.UnixMicro()),
			AcceptedUs: uint64(now.UnixMicro()),
			QueueID:    uint16(qid),
			Length:     uint16(length),
		}
		copy(info.Payload[:], payload[:length])

		addr, _, _ := l.stationOwnerOf(qid)
		l.staged[slot.Index()] = stagedFrame{qid: qid, class: classOf(qid), addr: addr, length: length}
		bufIndex := slot.Index()
		_ = slot.Unlock()

		if err := l.link.Send(mailbox.Message{Kind: mailbox.KindTxReady, BufIndex: bufIndex}); err != nil {
			return false, err
		}
		l.cursor = (idx + 1) % len(order)
		return true, nil
	}
	return false, nil
}

func classOf(qid txqueue.QueueID) counts.FrameClass {
	if qid == txqueue.BeaconQID || qid == txqueue.ManagementQID {
		return counts.ClassMgmt
	}
	return counts.ClassData
}

func (l *Loop) acquireFreeSlot() (*pktbuf.TxHandle, bool, error) {
	for i := 0; i < pktbuf.NumTxBufs; i++ {
		h, err := l.pool.TryLockTx(i)
		if err != nil {
			continue
		}
		if h.Info().State == pktbuf.TxUninitialised || h.Info().State == pktbuf.TxDone {
			return h, true, nil
		}
		_ = h.Unlock()
	}
	return nil, false, nil
}

func (l *Loop) stationOwnerOf(qid txqueue.QueueID) (addr dot11.Addr, purging bool, ok bool) {
	if l.station == nil {
		return addr, false, false
	}
	return l.station(qid)
}

// HandleTxDone processes a TX_DONE mailbox message for the staged frame in
// msg.BufIndex: per-attempt log entries, the high-level Tx log entry,
// counts update, and Tx-buffer release (spec §4.13 completion steps 1-4).
func (l *Loop) HandleTxDone(msg mailbox.Message, details []pktbuf.TxLowDetail, success bool) error {
	h, err := l.pool.TryLockTx(msg.BufIndex)
	if err != nil {
		return err
	}
	defer func() { _ = h.Unlock() }()

	info := h.Info()
	staged, ok := l.staged[msg.BufIndex]
	if !ok {
		info.State = pktbuf.TxDone
		return nil
	}
	delete(l.staged, msg.BufIndex)

	now := l.clock()
	info.DoneUs = uint64(now.UnixMicro())
	info.Attempts = len(details)
	info.State = pktbuf.TxDone
	if success {
		info.Result = pktbuf.TxResultSuccess
	} else {
		info.Result = pktbuf.TxResultFailure
	}

	if l.log != nil {
		for _, d := range details {
			low := entrylog.TxLow{
				TransmissionCount: uint8(info.Attempts),
				Length:            info.Length,
				TimestampSendFrac: uint8(d.TimestampOffsetUs),
			}
			low.Timestamp = now
			l.log.Append(low)
		}
		result := entrylog.TxResultSuccess
		if !success {
			result = entrylog.TxResultFailure
		}
		high := entrylog.TxHigh{
			DelayAcceptUs: uint32(info.AcceptedUs - info.CreatedUs),
			DelayDoneUs:   uint32(info.DoneUs - info.AcceptedUs),
			NumTx:         uint8(info.Attempts),
			Length:        info.Length,
			Result:        result,
			QueueID:       uint16(staged.qid),
		}
		high.Timestamp = now
		l.log.Append(high)
	}

	if l.counts != nil {
		l.counts.RecordTx(staged.addr, staged.class, int(info.Length), info.Attempts, success)
	}
	return nil
}
