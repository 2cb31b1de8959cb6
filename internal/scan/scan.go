// Package scan is the channel-hopping scan FSM (spec §4.10, C12): tune a
// list of channels in turn, dwell on each long enough to catch a beacon,
// emit periodic probe requests, optionally idle between full sweeps, and
// support pausing without losing the current channel (used while a host
// command is pending). It is grounded on the sched package for all
// timing (dwell/idle/probe-interval are each just a scheduled event) and
// on the teacher's digipeater.go state-machine shape (explicit named
// states, one function per transition) for the FSM structure itself.
package scan

import (
	"context"
	"sync"

	"github.com/wmac/upper-mac/internal/platform"
	"github.com/wmac/upper-mac/internal/sched"
	"github.com/wmac/upper-mac/internal/txqueue"
	"github.com/wmac/upper-mac/internal/wmacerr"
)

// State is the scan FSM's state (spec: Idle, Running, Paused).
type State int

const (
	Idle State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Params configures one scan run (spec §4.10).
type Params struct {
	Channels         []int
	DwellUs          uint64
	IdleUs           uint64
	ProbeTxIntervalUs uint64
	SSID             string // empty = broadcast probe (wildcard SSID)
}

// ProbeBuilder builds one probe-request MPDU for ssid, to be enqueued on
// the management queue.
type ProbeBuilder func(ssid string) []byte

// FSM drives a scan run.
type FSM struct {
	mu     sync.Mutex
	sched  *sched.Scheduler
	radio  platform.RadioPlane
	txq    *txqueue.Manager
	build  ProbeBuilder

	state       State
	params      Params
	channelIdx  int
	operChannel int // the role's operating channel, restored on Disable

	dwellID sched.ID
	idleID  sched.ID
	probeID sched.ID
}

// New builds an FSM bound to a scheduler, radio plane, and Tx queue
// manager; build constructs probe-request bodies on demand.
func New(s *sched.Scheduler, radio platform.RadioPlane, txq *txqueue.Manager, build ProbeBuilder) *FSM {
	return &FSM{sched: s, radio: radio, txq: txq, build: build, state: Idle}
}

// State returns the current FSM state.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Enable starts a scan run with params, remembering operatingChannel so
// Disable can restore it.
func (f *FSM) Enable(ctx context.Context, operatingChannel int, params Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Running {
		return wmacerr.ErrProtocolViolation
	}
	if len(params.Channels) == 0 {
		return wmacerr.ErrProtocolViolation
	}
	f.params = params
	f.operChannel = operatingChannel
	f.channelIdx = 0
	f.state = Running
	f.tuneAndArmLocked(ctx)
	return nil
}

// Pause holds the current channel and suspends probe emission (spec:
// "used while waiting for host commands").
func (f *FSM) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Running {
		return wmacerr.ErrProtocolViolation
	}
	f.cancelTimersLocked()
	f.state = Paused
	return nil
}

// Resume continues a paused scan from the current channel.
func (f *FSM) Resume(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Paused {
		return wmacerr.ErrProtocolViolation
	}
	f.state = Running
	f.armTimersLocked(ctx)
	return nil
}

// Disable stops the scan and retunes to the role's operating channel.
func (f *FSM) Disable(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Idle {
		return nil
	}
	f.cancelTimersLocked()
	f.state = Idle
	if f.radio != nil {
		return f.radio.SetChannel(ctx, f.operChannel)
	}
	return nil
}

func (f *FSM) tuneAndArmLocked(ctx context.Context) {
	ch := f.params.Channels[f.channelIdx]
	if f.radio != nil {
		_ = f.radio.SetChannel(ctx, ch)
	}
	f.armTimersLocked(ctx)
}

func (f *FSM) armTimersLocked(ctx context.Context) {
	f.dwellID = f.sched.ScheduleOnce(sched.Coarse, f.params.DwellUs, func(ctx context.Context, arg any) {
		f.onDwellExpiry(ctx)
	}, nil)
	if f.params.ProbeTxIntervalUs > 0 {
		f.probeID = f.sched.ScheduleRepeated(sched.Fine, f.params.ProbeTxIntervalUs, 0, func(ctx context.Context, arg any) {
			f.sendProbe()
		}, nil)
	}
	// Fire the first probe immediately rather than waiting a full
	// interval into the dwell.
	f.sendProbeLocked()
}

func (f *FSM) cancelTimersLocked() {
	if f.dwellID != 0 {
		_ = f.sched.Remove(sched.Coarse, f.dwellID)
		f.dwellID = 0
	}
	if f.probeID != 0 {
		_ = f.sched.Remove(sched.Fine, f.probeID)
		f.probeID = 0
	}
	if f.idleID != 0 {
		_ = f.sched.Remove(sched.Coarse, f.idleID)
		f.idleID = 0
	}
}

func (f *FSM) sendProbe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendProbeLocked()
}

func (f *FSM) sendProbeLocked() {
	if f.state != Running || f.build == nil || f.txq == nil {
		return
	}
	ssid := f.params.SSID

	body := f.build(ssid)
	r, err := f.txq.Checkout()
	if err != nil {
		return
	}
	elt, err := f.txq.Get(r)
	if err != nil {
		return
	}
	n := copy(elt.Payload[:], body)
	elt.Length = n
	_ = f.txq.EnqueueTail(txqueue.ManagementQID, r)
}

func (f *FSM) onDwellExpiry(ctx context.Context) {
	f.mu.Lock()
	if f.state != Running {
		f.mu.Unlock()
		return
	}
	if f.probeID != 0 {
		_ = f.sched.Remove(sched.Fine, f.probeID)
		f.probeID = 0
	}
	f.channelIdx++
	if f.channelIdx >= len(f.params.Channels) {
		f.channelIdx = 0
		if f.params.IdleUs > 0 {
			f.idleID = f.sched.ScheduleOnce(sched.Coarse, f.params.IdleUs, func(ctx context.Context, arg any) {
				f.mu.Lock()
				if f.state != Running {
					f.mu.Unlock()
					return
				}
				f.tuneAndArmLocked(ctx)
				f.mu.Unlock()
			}, nil)
			f.mu.Unlock()
			return
		}
	}
	f.tuneAndArmLocked(ctx)
	f.mu.Unlock()
}
