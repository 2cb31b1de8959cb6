// Package ltg is the Local Traffic Generator (spec §4.9, C11): a
// scheduler-driven synthetic packet source used for experiments. Each
// registered generator fires a data frame carrying LLC type 0x9090 to one
// address or to every associated station, on a periodic or uniform-random
// interval, for a finite call count, until an absolute stop time, or
// forever. It is grounded on the sched package (itself grounded on the
// teacher's dlq.go deferred-work queue) for the firing mechanism, and on
// spec §4.9's header layout for the synthetic payload.
package ltg

import (
	"context"
	"encoding/binary"
	"math/rand"
	"sync"

	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/sched"
	"github.com/wmac/upper-mac/internal/wmacerr"
)

// HeaderLen is the LTG payload header: {llc already written by the
// caller's encap step} + unique_seq (u64) + ltg_id (u32).
const HeaderLen = 12

// EtherType is the non-standard LLC type used only between cooperating
// nodes running this MAC (spec: 0x9090).
const EtherType uint16 = 0x9090

// Kind selects the inter-fire interval distribution.
type Kind int

const (
	Periodic Kind = iota
	UniformRandom
)

// TargetKind selects which addresses a firing targets.
type TargetKind int

const (
	TargetOneAddress TargetKind = iota
	TargetAllAssociated
)

// PayloadKind selects the payload length distribution.
type PayloadKind int

const (
	PayloadFixedLength PayloadKind = iota
	PayloadUniformRandomLength
)

// Descriptor is the payload descriptor (spec §3 LTG schedule).
type Descriptor struct {
	Target  TargetKind
	Addr    dot11.Addr // used when Target == TargetOneAddress
	Payload PayloadKind
	MinLen  int
	MaxLen  int // == MinLen for PayloadFixedLength
}

// Schedule is one LTG registration (spec §3).
type Schedule struct {
	Kind          Kind
	IntervalUs    uint64 // Periodic
	MinIntervalUs uint64 // UniformRandom
	MaxIntervalUs uint64 // UniformRandom
	MaxCalls      int    // 0 = unbounded by count
	StopAtUs      uint64 // 0 = no absolute stop
	Descriptor    Descriptor
	Arg           any // opaque callback argument, passed through to EmitFunc
}

// EmitFunc hands one generated frame to the caller (typically: wrap in
// LLC/SNAP via ethbridge and enqueue onto the target's Tx queue).
type EmitFunc func(ltgID uint32, dest dot11.Addr, payload []byte, arg any)

// AssociatedFunc returns the current set of associated station addresses,
// for TargetAllAssociated firings.
type AssociatedFunc func() []dot11.Addr

// clockSource mirrors sched's minimal clock seam so ltg can read "now" for
// absolute stop-time checks without importing a concrete clock type.
type clockSource interface {
	NowUs() uint64
}

type entry struct {
	id        uint32
	schedule  Schedule
	firesLeft int // -1 = unbounded
	schedID   sched.ID
}

// Manager owns the set of registered generators.
type Manager struct {
	mu          sync.Mutex
	sched       *sched.Scheduler
	clock       clockSource
	class       sched.Class
	emit        EmitFunc
	associated  AssociatedFunc
	rng         *rand.Rand
	nextID      uint32
	nextSeq     uint64
	entries     map[uint32]*entry
}

// NewManager builds a Manager that schedules firings on class.
func NewManager(s *sched.Scheduler, clock clockSource, class sched.Class, emit EmitFunc, associated AssociatedFunc) *Manager {
	return &Manager{
		sched:      s,
		clock:      clock,
		class:      class,
		emit:       emit,
		associated: associated,
		rng:        rand.New(rand.NewSource(1)),
		entries:    make(map[uint32]*entry),
	}
}

// Add registers sc and schedules its first firing. Returns the new LTG id.
func (m *Manager) Add(sc Schedule) (uint32, error) {
	if sc.Kind == Periodic && sc.IntervalUs == 0 {
		return 0, wmacerr.ErrProtocolViolation
	}
	if sc.Kind == UniformRandom && (sc.MaxIntervalUs == 0 || sc.MinIntervalUs > sc.MaxIntervalUs) {
		return 0, wmacerr.ErrProtocolViolation
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	firesLeft := -1
	if sc.MaxCalls > 0 {
		firesLeft = sc.MaxCalls
	}
	e := &entry{id: id, schedule: sc, firesLeft: firesLeft}
	m.entries[id] = e
	m.mu.Unlock()

	m.scheduleNext(e)
	return id, nil
}

// Remove cancels id's scheduled event and frees its entry (spec §4.9
// cleanup: "removing an LTG cancels its scheduled event and frees its
// parameter block").
func (m *Manager) Remove(id uint32) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	if !ok {
		return wmacerr.ErrInvariantBreak
	}
	return m.sched.Remove(m.class, e.schedID)
}

// Active reports whether id is still registered.
func (m *Manager) Active(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	return ok
}

func (m *Manager) scheduleNext(e *entry) {
	delay := e.schedule.IntervalUs
	if e.schedule.Kind == UniformRandom {
		span := e.schedule.MaxIntervalUs - e.schedule.MinIntervalUs
		delay = e.schedule.MinIntervalUs
		if span > 0 {
			delay += uint64(m.randInt63n(int64(span) + 1))
		}
	}
	id := m.sched.ScheduleOnce(m.class, delay, func(ctx context.Context, arg any) {
		m.fire(e)
	}, nil)
	m.mu.Lock()
	e.schedID = id
	m.mu.Unlock()
}

func (m *Manager) fire(e *entry) {
	m.mu.Lock()
	if _, ok := m.entries[e.id]; !ok {
		m.mu.Unlock()
		return // removed between scheduling and firing
	}
	if e.schedule.StopAtUs != 0 && m.clock != nil && m.clock.NowUs() >= e.schedule.StopAtUs {
		delete(m.entries, e.id)
		m.mu.Unlock()
		return
	}
	if e.firesLeft == 0 {
		delete(m.entries, e.id)
		m.mu.Unlock()
		return
	}
	if e.firesLeft > 0 {
		e.firesLeft--
	}
	seq := m.nextSeq
	m.nextSeq++
	last := e.firesLeft == 0
	m.mu.Unlock()

	m.emitTo(e, seq)

	if last {
		m.mu.Lock()
		delete(m.entries, e.id)
		m.mu.Unlock()
		return
	}
	m.scheduleNext(e)
}

func (m *Manager) randInt63n(n int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Int63n(n)
}

func (m *Manager) randIntn(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Intn(n)
}

func (m *Manager) emitTo(e *entry, seq uint64) {
	payload := m.buildPayload(e.schedule.Descriptor, seq, e.id)

	switch e.schedule.Descriptor.Target {
	case TargetOneAddress:
		m.emit(e.id, e.schedule.Descriptor.Addr, payload, e.schedule.Arg)
	case TargetAllAssociated:
		if m.associated == nil {
			return
		}
		for _, addr := range m.associated() {
			m.emit(e.id, addr, payload, e.schedule.Arg)
		}
	}
}

func (m *Manager) buildPayload(d Descriptor, seq uint64, ltgID uint32) []byte {
	length := d.MinLen
	if d.Payload == PayloadUniformRandomLength && d.MaxLen > d.MinLen {
		length = d.MinLen + m.randIntn(d.MaxLen-d.MinLen+1)
	}
	if length < HeaderLen {
		length = HeaderLen
	}
	buf := make([]byte, length)
	binary.BigEndian.PutUint64(buf[0:8], seq)
	binary.BigEndian.PutUint32(buf[8:12], ltgID)
	return buf
}
