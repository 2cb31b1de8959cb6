// Package pktbuf implements the Tx/Rx packet-buffer pool shared with
// CPU-Low and the hardware-mutex handshake protocol over it (spec §4.1,
// §3). The mutex is modeled as a typed capability: acquiring a slot via
// TryLockTx/TryLockRx yields a *TxHandle/*RxHandle that is the only way to
// read or write the slot's state and fields; releasing the capability
// (Unlock) invalidates it, matching the teacher's style of never holding a
// raw pointer past its owning critical section (tq.go's
// tq_mutex.Lock()/Unlock() pairing, generalized to a per-slot lock here
// since CPU-Low genuinely owns disjoint slots concurrently with CPU-High).
package pktbuf

import (
	"fmt"
	"sync"

	"github.com/wmac/upper-mac/internal/wmacerr"
)

// Capacities fixed by the spec's data model.
const (
	NumTxBufs  = 16
	NumRxBufs  = 8
	MaxPktSize = 2048 // MAX_PKT_SIZE_B
)

// TxState is the advisory state byte written only by the current owner.
type TxState int

const (
	TxUninitialised TxState = iota
	TxHighCtrl
	TxReady
	TxLowCtrl
	TxDone
)

func (s TxState) String() string {
	switch s {
	case TxUninitialised:
		return "Uninitialised"
	case TxHighCtrl:
		return "HighCtrl"
	case TxReady:
		return "Ready"
	case TxLowCtrl:
		return "LowCtrl"
	case TxDone:
		return "Done"
	default:
		return fmt.Sprintf("TxState(%d)", int(s))
	}
}

// RxState mirrors TxState minus the Done phase (CPU-Low hands an Rx slot
// back in Ready; CPU-High never observes a distinct "done" for Rx).
type RxState int

const (
	RxUninitialised RxState = iota
	RxHighCtrl
	RxReady
	RxLowCtrl
)

// TxResult is the outcome CPU-Low records before returning a Tx buffer.
type TxResult int

const (
	TxResultPending TxResult = iota
	TxResultSuccess
	TxResultFailure
)

// TxParams carries the per-frame transmission parameters CPU-High fills
// in before handing the buffer to CPU-Low.
type TxParams struct {
	MCS         int
	PHYMode     PHYMode
	AntennaMode int
	PowerDBm    int
	MACFlags    uint32
}

// PHYMode distinguishes the two modulation families named in the glossary.
type PHYMode int

const (
	PHYNonHT PHYMode = iota // 802.11a/g
	PHYHTMF                 // 802.11n Mixed Format
)

// TxFlags, a subset named directly by the spec (§4.12/§4.13).
const (
	TxFlagFillTimestamp uint32 = 1 << iota
	TxFlagReqBO
	TxFlagAutocancel
)

// TxLowDetail is one per-attempt record CPU-Low appends to TX_DONE
// (retry, RTS/CTS, the MPDU itself, or an expected response).
type TxLowDetail struct {
	Retry           bool
	WasRTS          bool
	WasCTS          bool
	ResponseExpected bool
	TimestampOffsetUs uint64 // fractional offset from frame accept
}

// TxFrameInfo is the fixed header at the start of a Tx slot (spec §3).
type TxFrameInfo struct {
	State        TxState
	CreatedUs    uint64
	AcceptedUs   uint64
	DoneUs       uint64
	Seq          uint64
	QueueID      uint16
	Attempts     int
	Result       TxResult
	Flags        uint32
	AddresseeID  uint16
	Length       uint16
	Params       TxParams
	Details      []TxLowDetail
	Payload      [MaxPktSize]byte
}

// ChannelEstimate is the optional 64-word block Rx buffers carry.
type ChannelEstimate [64]complex64

// RxTxLowDetail describes the low-MAC-generated response (ACK/CTS) to a
// reception, when one was formed.
type RxTxLowDetail struct {
	Formed   bool
	Length   uint16
	MCS      int
	PHYMode  PHYMode
}

// RxFlags named in §3.
const (
	RxFlagFCSGood uint32 = 1 << iota
	RxFlagDuplicate
	RxFlagResponseFormed
)

// RxFrameInfo is the fixed header at the start of an Rx slot.
type RxFrameInfo struct {
	State           RxState
	Channel         int
	Antenna         int
	RSSI            float64
	Gain            int
	MCS             int
	PHYMode         PHYMode
	Length          uint16
	MACTimestampUs  uint64
	FracTimestampUs uint64
	Flags           uint32
	ChanEst         *ChannelEstimate
	TxLow           RxTxLowDetail
	Payload         [MaxPktSize]byte
}

type txSlot struct {
	mu   sync.Mutex
	info TxFrameInfo
}

type rxSlot struct {
	mu   sync.Mutex
	info RxFrameInfo
}

// Pool owns both the Tx and Rx buffer arrays and their per-slot mutexes.
type Pool struct {
	tx [NumTxBufs]txSlot
	rx [NumRxBufs]rxSlot
}

// NewPool constructs a pool with all slots Uninitialised and unlocked. This
// mirrors the teacher's init_pkt_buf, which tries to unlock every slot on
// boot to clean up post-reset state (those unlocks are harmless here since
// a fresh sync.Mutex is never locked).
func NewPool() *Pool {
	return &Pool{}
}

// TxHandle is the capability returned by a successful TryLockTx. Its
// methods are the only sanctioned way to read or mutate the slot while
// CPU-High holds it.
type TxHandle struct {
	pool *Pool
	idx  int
}

// TryLockTx attempts to acquire slot idx. Fails with ErrInvalidBuf if idx
// is out of range, ErrAlreadyLocked if the slot is currently held.
func (p *Pool) TryLockTx(idx int) (*TxHandle, error) {
	if idx < 0 || idx >= NumTxBufs {
		return nil, fmt.Errorf("pktbuf: tx index %d: %w", idx, wmacerr.ErrInvalidBuf)
	}
	if !p.tx[idx].mu.TryLock() {
		return nil, fmt.Errorf("pktbuf: tx slot %d: %w", idx, wmacerr.ErrAlreadyLocked)
	}
	return &TxHandle{pool: p, idx: idx}, nil
}

// Index returns the slot index this handle addresses.
func (h *TxHandle) Index() int { return h.idx }

// Info returns a mutable pointer to the slot's frame info. Valid only
// until Unlock.
func (h *TxHandle) Info() *TxFrameInfo { return &h.pool.tx[h.idx].info }

// Unlock releases the slot. Returns ErrNotLockOwner if called twice (Go's
// sync.Mutex would panic on a double-unlock; we trade that for an error
// here since this is a recoverable protocol violation in the reference
// design, not a programmer bug worth crashing over).
func (h *TxHandle) Unlock() error {
	if h == nil || h.pool == nil {
		return wmacerr.ErrNotLockOwner
	}
	h.pool.tx[h.idx].mu.Unlock()
	h.pool = nil
	return nil
}

// RxHandle mirrors TxHandle for Rx slots.
type RxHandle struct {
	pool *Pool
	idx  int
}

func (p *Pool) TryLockRx(idx int) (*RxHandle, error) {
	if idx < 0 || idx >= NumRxBufs {
		return nil, fmt.Errorf("pktbuf: rx index %d: %w", idx, wmacerr.ErrInvalidBuf)
	}
	if !p.rx[idx].mu.TryLock() {
		return nil, fmt.Errorf("pktbuf: rx slot %d: %w", idx, wmacerr.ErrAlreadyLocked)
	}
	return &RxHandle{pool: p, idx: idx}, nil
}

func (h *RxHandle) Index() int { return h.idx }

func (h *RxHandle) Info() *RxFrameInfo { return &h.pool.rx[h.idx].info }

func (h *RxHandle) Unlock() error {
	if h == nil || h.pool == nil {
		return wmacerr.ErrNotLockOwner
	}
	h.pool.rx[h.idx].mu.Unlock()
	h.pool = nil
	return nil
}
