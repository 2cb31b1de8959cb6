// Package join is the scan-then-join FSM (spec §4.11, C13), used by the
// STA and IBSS roles only: start a filtered scan, poll the BSS store
// every 100ms for a match, then either run the STA auth/assoc handshake
// or (IBSS) simply adopt the matched BSS. It is grounded on the scan
// package for the scan step and on the teacher's digipeater.go FSM shape
// for the explicit state/transition structure.
package join

import (
	"context"
	"time"

	"github.com/wmac/upper-mac/internal/bssstore"
	"github.com/wmac/upper-mac/internal/scan"
)

// PollInterval is how often the BSS store is polled for a match while
// joining (spec §4.11: "poll the BSS store every 100 ms").
const PollInterval = 100 * time.Millisecond

// RejectCode is a reason a join attempt failed, surfaced to the caller.
type RejectCode int

const (
	RejectNone              RejectCode = 0
	RejectTimeout           RejectCode = -1
	RejectUnspecified       RejectCode = 1
	RejectOutsideScope      RejectCode = 12
	RejectChallenge         RejectCode = 15
	RejectTooManyAssociations RejectCode = 17
)

// Result is delivered to the join-success/failure callback.
type Result struct {
	Success bool
	BSS     bssstore.Info
	Reject  RejectCode
}

// Authenticator performs the STA-side auth/assoc handshake against an
// already-tuned BSS; it returns the reject code (RejectNone on success).
// The role package supplies a concrete implementation wired to its own
// mailbox/Tx-queue plumbing.
type Authenticator interface {
	Authenticate(ctx context.Context, bss bssstore.Info) RejectCode
}

// Adopter is the IBSS equivalent of Authenticator: adopt bss as owned and
// start the beacon schedule, with no handshake.
type Adopter interface {
	Adopt(ctx context.Context, bss bssstore.Info) error
}

// Mode selects which completion path Run takes after a BSS match.
type Mode int

const (
	ModeSTA Mode = iota
	ModeIBSS
)

// Run drives one join attempt to completion (or timeout). It starts scan,
// polls store for ssid every PollInterval, and on match stops the scan
// and performs the mode-appropriate completion step. timeout <= 0 means
// no timeout (poll forever until ctx is cancelled).
func Run(ctx context.Context, mode Mode, s *scan.FSM, store *bssstore.Store, scanParams scan.Params, operatingChannel int, timeout time.Duration, auth Authenticator, adopt Adopter) Result {
	ssid := scanParams.SSID
	if err := s.Enable(ctx, operatingChannel, scanParams); err != nil {
		return Result{Success: false, Reject: RejectUnspecified}
	}
	defer func() { _ = s.Disable(ctx) }()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{Success: false, Reject: RejectTimeout}
		case <-deadline:
			return Result{Success: false, Reject: RejectTimeout}
		case <-ticker.C:
			matches := store.FindBySSID(ssid)
			if len(matches) == 0 {
				continue
			}
			bss := matches[0]
			if err := s.Disable(ctx); err != nil {
				return Result{Success: false, Reject: RejectUnspecified}
			}

			switch mode {
			case ModeIBSS:
				if adopt == nil {
					return Result{Success: false, Reject: RejectUnspecified}
				}
				if err := adopt.Adopt(ctx, bss); err != nil {
					return Result{Success: false, Reject: RejectUnspecified}
				}
				return Result{Success: true, BSS: bss}
			default: // ModeSTA
				if auth == nil {
					return Result{Success: false, Reject: RejectUnspecified}
				}
				reject := auth.Authenticate(ctx, bss)
				if reject != RejectNone {
					return Result{Success: false, BSS: bss, Reject: reject}
				}
				return Result{Success: true, BSS: bss}
			}
		}
	}
}
