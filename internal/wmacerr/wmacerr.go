// Package wmacerr defines the typed error kinds used across the upper-MAC
// core: capacity exhaustion, mutex contention, protocol violations,
// invariant breaks, and the one fatal kind, a CPU-Low exception.
package wmacerr

import "errors"

// Sentinel errors, one per kind. Wrap with fmt.Errorf("...: %w", ErrX) at
// the call site to add detail; callers test with errors.Is.
var (
	// ErrCapacity means a fixed-size free pool (queue element, BSS slot,
	// station slot, packet buffer) is exhausted.
	ErrCapacity = errors.New("wmac: capacity exhausted")

	// ErrAlreadyLocked means a packet-buffer try-lock lost the race.
	ErrAlreadyLocked = errors.New("wmac: buffer already locked")

	// ErrNotLockOwner means an unlock was attempted by a non-owner.
	ErrNotLockOwner = errors.New("wmac: not lock owner")

	// ErrInvalidBuf means a packet-buffer index is out of range; the
	// station store also returns it when a requested station id is taken.
	ErrInvalidBuf = errors.New("wmac: invalid buffer index")

	// ErrProtocolViolation covers unexpected mailbox messages, bad FCS,
	// and association-table overflow. Non-fatal.
	ErrProtocolViolation = errors.New("wmac: protocol violation")

	// ErrInvariantBreak covers null insert, unknown queue id, and similar
	// programmer errors that are logged and ignored rather than panicked.
	ErrInvariantBreak = errors.New("wmac: invariant break")

	// ErrCPULowException is the only fatal kind: CPU-Low reported its
	// status word with the exception bit set.
	ErrCPULowException = errors.New("wmac: CPU-Low exception")
)

// Code is the host-facing response status code from §7.
type Code uint32

const (
	CodeSuccess Code = 0x00000000
	CodeError   Code = 0xFF000000
)

// Subcode further qualifies CodeError for the host command surface.
type Subcode uint16

const (
	SubNone Subcode = iota
	SubCapacity
	SubBusy
	SubProtocol
	SubInvariant
	SubFatal
)

// SubcodeFor classifies err into a host-facing subcode by matching against
// the sentinel kinds above. Unrecognised errors map to SubProtocol, the
// most conservative "something went wrong externally" bucket.
func SubcodeFor(err error) Subcode {
	switch {
	case err == nil:
		return SubNone
	case errors.Is(err, ErrCapacity):
		return SubCapacity
	case errors.Is(err, ErrAlreadyLocked), errors.Is(err, ErrNotLockOwner):
		return SubBusy
	case errors.Is(err, ErrInvariantBreak), errors.Is(err, ErrInvalidBuf):
		return SubInvariant
	case errors.Is(err, ErrCPULowException):
		return SubFatal
	default:
		return SubProtocol
	}
}

// ResponseCode reduces err to the two-value host response code.
func ResponseCode(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	return CodeError
}
