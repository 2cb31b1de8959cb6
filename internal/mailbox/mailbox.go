// Package mailbox is the length-prefixed, typed message channel between
// CPU-High and CPU-Low (spec §3 C3). It plays the role the teacher's
// KISS/AGWPE framed-message servers play between a host application and
// the TNC (kiss_frame.go, agwpe.go): a small fixed command set, each
// message self-describing its kind, delivered in order over a bounded
// channel rather than shared memory + hardware doorbell registers (the
// real SoC's mechanism, out of scope here per §1 — CPU-Low is an external
// collaborator).
package mailbox

import (
	"context"
	"fmt"
)

// Kind enumerates the command set named in spec §3/§4.1/§5.
type Kind int

const (
	KindTxReady Kind = iota
	KindTxDone
	KindRxReady
	KindConfig
	KindTimeUpdate
	KindCPUStatus
)

func (k Kind) String() string {
	switch k {
	case KindTxReady:
		return "TX_READY"
	case KindTxDone:
		return "TX_DONE"
	case KindRxReady:
		return "RX_READY"
	case KindConfig:
		return "CONFIG"
	case KindTimeUpdate:
		return "TIME_UPDATE"
	case KindCPUStatus:
		return "CPU_STATUS"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Message is one mailbox entry. Fields not relevant to Kind are zero.
type Message struct {
	Kind Kind

	// TX_READY / TX_DONE / RX_READY carry a packet-buffer slot index.
	BufIndex int

	// TX_DONE carries the attempt count CPU-Low recorded.
	NumTxLowDetails int

	// CONFIG carries an opaque parameter blob (radio/queue parameters);
	// interpretation belongs to the caller, not this package.
	ConfigPayload []byte

	// TIME_UPDATE carries a new TSF value in microseconds.
	TimeUsec uint64

	// CPU_STATUS carries CPU-Low's status word; spec §7 treats the
	// exception bit as the only fatal condition in this system.
	StatusWord    uint32
	ExceptionBit  bool
	ExceptionCode int
}

// ErrChannelClosed is returned by Send/Recv once Close has been called.
type ErrChannelClosed struct{ Direction string }

func (e *ErrChannelClosed) Error() string {
	return fmt.Sprintf("mailbox: %s channel closed", e.Direction)
}

// Link is a bidirectional mailbox between CPU-High and CPU-Low, built from
// two bounded channels so each side's queue depth is independently
// bounded: CPU-High never blocks CPU-Low's completion reports behind its
// own outgoing backlog, and vice versa.
type Link struct {
	toLow  chan Message
	toHigh chan Message
	closed chan struct{}
}

// NewLink returns a Link with the given per-direction buffer depth. A
// depth of 0 gives synchronous, unbuffered hand-off — closest to the
// original's single in-flight TX_READY/TX_DONE per slot guarantee (spec §5:
// CPU-High does not submit a second TX_READY for a slot before the prior
// TX_DONE), while still allowing independent RX_READY traffic to queue if a
// depth > 0 is chosen.
func NewLink(depth int) *Link {
	return &Link{
		toLow:  make(chan Message, depth),
		toHigh: make(chan Message, depth),
		closed: make(chan struct{}),
	}
}

// HighSide returns the endpoint used by CPU-High code.
func (l *Link) HighSide() *Endpoint { return &Endpoint{send: l.toLow, recv: l.toHigh, link: l} }

// LowSide returns the endpoint used by the CPU-Low collaborator (a real
// companion process in production, a simulator in tests).
func (l *Link) LowSide() *Endpoint { return &Endpoint{send: l.toHigh, recv: l.toLow, link: l} }

// Close closes both directions. Safe to call once from either side.
func (l *Link) Close() {
	select {
	case <-l.closed:
		return
	default:
		close(l.closed)
		close(l.toLow)
		close(l.toHigh)
	}
}

// Endpoint is one side of a Link.
type Endpoint struct {
	send chan<- Message
	recv <-chan Message
	link *Link
}

// Send enqueues msg for the peer. Blocks if the peer's inbound buffer is
// full, matching the spec's CPU_LOW_DATA_REQ_TIMEOUT bound when called
// through SendTimeout instead.
func (e *Endpoint) Send(msg Message) error {
	select {
	case <-e.link.closed:
		return &ErrChannelClosed{Direction: "send"}
	default:
	}
	select {
	case e.send <- msg:
		return nil
	case <-e.link.closed:
		return &ErrChannelClosed{Direction: "send"}
	}
}

// SendTimeout enqueues msg, failing with context.DeadlineExceeded if the
// peer hasn't drained within the deadline carried by ctx. Used to bound
// waits on CPU-Low per spec §5 (CPU_LOW_DATA_REQ_TIMEOUT, 500ms).
func (e *Endpoint) SendTimeout(ctx context.Context, msg Message) error {
	select {
	case e.send <- msg:
		return nil
	case <-e.link.closed:
		return &ErrChannelClosed{Direction: "send"}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks for the next message from the peer.
func (e *Endpoint) Recv(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-e.recv:
		if !ok {
			return Message{}, &ErrChannelClosed{Direction: "recv"}
		}
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// TryRecv returns immediately with ok=false if nothing is pending.
func (e *Endpoint) TryRecv() (msg Message, ok bool) {
	select {
	case msg, ok = <-e.recv:
		return msg, ok
	default:
		return Message{}, false
	}
}
