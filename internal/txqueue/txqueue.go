// Package txqueue is the Tx-queue manager (spec §4.3, C5): N logical FIFOs
// backed by one free-pool of fixed-size elements. It is grounded directly
// on the teacher's tq.go (queue_head per channel/priority, a single
// tq_mutex critical section, a wake-up condition variable signaling an
// idle transmit thread), generalized from "2 audio channels x 2
// priorities" to "beacon/management/multicast/per-station queues backed by
// one arena", and from a condition-variable wakeup to an onChange callback
// that receives a StateChange on each empty/non-empty transition, so
// nothing blocks inside this package.
package txqueue

import (
	"fmt"

	"github.com/wmac/upper-mac/internal/critsec"
	"github.com/wmac/upper-mac/internal/dlist"
	"github.com/wmac/upper-mac/internal/wmacerr"
)

// QueueID identifies a logical Tx queue. Reference-design values below;
// per-station data queues are QueueID(id)+StationQueueOffset.
type QueueID uint16

const (
	MCastQID      QueueID = 0
	BeaconQID     QueueID = 1
	ManagementQID QueueID = 2

	// StationQueueOffset: qid = station_id + StationQueueOffset, so
	// station id=1 (the first AP-assigned AID, or the lone STA/IBSS peer
	// id) lands on qid=3, matching the literal association scenario in
	// spec §8.
	StationQueueOffset QueueID = 2
)

// StationQueueID maps a station id to its per-station unicast queue.
func StationQueueID(stationID int) QueueID {
	return QueueID(stationID) + StationQueueOffset
}

// MetaKind tags what Meta points at, mirroring the teacher's tagged
// metadata pointer convention used for station_info/tx_params references
// carried alongside a queued frame.
type MetaKind int

const (
	MetaIgnore MetaKind = iota
	MetaStationInfo
	MetaTxParams
)

// MaxPayload is the reserved MPDU + PHY-header-pad region per element
// (spec §3: "4 KB payload region large enough for any MPDU plus
// headroom").
const MaxPayload = 4096

// Element is one Tx queue element (spec §3).
type Element struct {
	MetaKind MetaKind
	Meta     any
	Length   int
	Payload  [MaxPayload]byte
}

// StateChange describes a queue occupancy transition, passed to the
// Manager's onChange callback when EnqueueTail makes a queue non-empty or
// DequeueHead empties it; Purge reports nothing. No backpressure is driven
// from it: the node's callback only logs the transition.
type StateChange struct {
	Queue     QueueID
	WasEmpty  bool
	NowEmpty  bool
	NumQueued int
}

// Manager owns the shared free-pool arena and the set of logical queues.
type Manager struct {
	guard     critsec.Guard
	arena     *dlist.Arena[Element]
	freePool  *dlist.List[Element]
	queues    map[QueueID]*dlist.List[Element]
	onChange  func(StateChange)
}

// NewManager builds a Manager with capacity elements in the shared pool,
// all initially free. onChange may be nil.
func NewManager(capacity int, onChange func(StateChange)) *Manager {
	arena := dlist.NewArena[Element](capacity)
	free := dlist.NewList(arena)
	// Seed the free pool with `capacity` allocated-but-unused elements so
	// Checkout can simply move from free to caller rather than alloc.
	for i := 0; i < capacity; i++ {
		r, err := arena.Alloc(Element{})
		if err != nil {
			break // capacity reached; unreachable given the loop bound
		}
		_ = free.InsertEnd(r)
	}
	if onChange == nil {
		onChange = func(StateChange) {}
	}
	return &Manager{
		arena:    arena,
		freePool: free,
		queues:   make(map[QueueID]*dlist.List[Element]),
		onChange: onChange,
	}
}

func (m *Manager) queueFor(qid QueueID) *dlist.List[Element] {
	q, ok := m.queues[qid]
	if !ok {
		q = dlist.NewList(m.arena)
		m.queues[qid] = q
	}
	return q
}

// Checkout reserves one element from the free pool.
func (m *Manager) Checkout() (dlist.Ref, error) {
	defer m.guard.Enter()()
	if m.freePool.Len() == 0 {
		return dlist.Nil, wmacerr.ErrCapacity
	}
	r := m.freePool.First()
	if err := m.freePool.Remove(r); err != nil {
		return dlist.Nil, err
	}
	return r, nil
}

// CheckoutList reserves up to n elements in one critical section.
func (m *Manager) CheckoutList(n int) ([]dlist.Ref, error) {
	defer m.guard.Enter()()
	if n > m.freePool.Len() {
		return nil, wmacerr.ErrCapacity
	}
	refs := make([]dlist.Ref, 0, n)
	for i := 0; i < n; i++ {
		r := m.freePool.First()
		if err := m.freePool.Remove(r); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, nil
}

// Checkin returns r to the free pool. r must not currently be on any queue
// (the caller should Remove/Dequeue it first).
func (m *Manager) Checkin(r dlist.Ref) error {
	defer m.guard.Enter()()
	if v, ok := m.arena.Get(r); ok {
		*v = Element{}
	}
	return m.freePool.InsertEnd(r)
}

// CheckinList returns a batch to the free pool.
func (m *Manager) CheckinList(refs []dlist.Ref) error {
	defer m.guard.Enter()()
	for _, r := range refs {
		if v, ok := m.arena.Get(r); ok {
			*v = Element{}
		}
		if err := m.freePool.InsertEnd(r); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueTail appends an already-checked-out element (with its payload
// filled in) to the tail of qid.
func (m *Manager) EnqueueTail(qid QueueID, r dlist.Ref) error {
	release := m.guard.Enter()
	q := m.queueFor(qid)
	wasEmpty := q.Len() == 0
	err := q.InsertEnd(r)
	n := q.Len()
	release()
	if err != nil {
		return err
	}
	if wasEmpty {
		m.onChange(StateChange{Queue: qid, WasEmpty: true, NowEmpty: false, NumQueued: n})
	}
	return nil
}

// DequeueHead removes and returns the head element of qid, or ok=false if
// empty.
func (m *Manager) DequeueHead(qid QueueID) (dlist.Ref, bool) {
	release := m.guard.Enter()
	q := m.queueFor(qid)
	if q.Len() == 0 {
		release()
		return dlist.Nil, false
	}
	wasEmpty := false
	r := q.First()
	_ = q.Remove(r)
	nowEmpty := q.Len() == 0
	release()
	if nowEmpty {
		m.onChange(StateChange{Queue: qid, WasEmpty: wasEmpty, NowEmpty: true, NumQueued: 0})
	}
	return r, true
}

// DequeueTransmitCheckin dequeues the head of qid and returns it to the
// free pool directly (used when a frame is discarded rather than handed to
// CPU-Low — e.g. a purge-flagged station's stale frame per spec §4.13).
// Returns submitted=true if an element was present.
func (m *Manager) DequeueTransmitCheckin(qid QueueID) (submitted bool, err error) {
	r, ok := m.DequeueHead(qid)
	if !ok {
		return false, nil
	}
	if err := m.Checkin(r); err != nil {
		return false, err
	}
	return true, nil
}

// Purge releases every element currently on qid back to the free pool and
// returns the count released (spec invariant 9: free-pool gains exactly
// num_queued(qid)).
func (m *Manager) Purge(qid QueueID) int {
	defer m.guard.Enter()()
	q := m.queueFor(qid)
	n := q.Len()
	_ = q.MoveN(m.freePool, n)
	return n
}

// NumFree returns the free-pool size.
func (m *Manager) NumFree() int {
	defer m.guard.Enter()()
	return m.freePool.Len()
}

// NumQueued returns the occupancy of qid.
func (m *Manager) NumQueued(qid QueueID) int {
	defer m.guard.Enter()()
	return m.queueFor(qid).Len()
}

// TotalSize returns the arena's fixed capacity.
func (m *Manager) TotalSize() int {
	return m.arena.Cap()
}

// Get returns the element payload for r. Valid while r is checked out or
// enqueued; do not retain the pointer past a Checkin of r.
func (m *Manager) Get(r dlist.Ref) (*Element, error) {
	v, ok := m.arena.Get(r)
	if !ok {
		return nil, fmt.Errorf("txqueue: %w", dlist.ErrStale)
	}
	return v, nil
}
