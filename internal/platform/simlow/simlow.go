// Package simlow is an in-process simulator for the CPU-Low side of the
// mailbox handshake (spec §4.2/C3), driven over a pty the way the
// teacher's kisspt_open_pt (kiss.go) exposes a virtual TNC over
// github.com/creack/pty, with the pty put into raw mode using
// github.com/pkg/term the way serial_port.go configures a real serial
// line. It exists purely as an integration-test collaborator: production
// nodes talk to real CPU-Low firmware, not this simulator.
package simlow

import (
	"fmt"
	"os"

	"github.com/creack/pty"
	"github.com/pkg/term"
)

// Simulator owns one pty pair standing in for the shared-memory/mailbox
// link between CPU-High and CPU-Low in a bench setup where CPU-Low is
// emulated rather than real hardware.
type Simulator struct {
	master *os.File
	slave  *os.File
	slowTy *term.Term
}

// Open creates the pty pair and reopens the slave side in raw mode via
// pkg/term, mirroring kisspt_open_pt's pty.Open() followed by the
// cfmakeraw/tcsetattr sequence the teacher left as a TODO, and
// serial_port_open's term.Open(name, term.RawMode) call.
func Open() (*Simulator, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("simlow: open pty: %w", err)
	}
	rawSlave, err := term.Open(slave.Name(), term.RawMode)
	if err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("simlow: raw mode on %s: %w", slave.Name(), err)
	}
	return &Simulator{master: master, slave: slave, slowTy: rawSlave}, nil
}

// MasterName returns the name of the pty's master end, which the
// Simulator itself reads and writes as the CPU-Low side.
func (s *Simulator) MasterName() string { return s.master.Name() }

// SlavePath is the device path the CPU-High side (or a test harness
// standing in for it) opens to exchange bytes with the simulated CPU-Low.
func (s *Simulator) SlavePath() string { return s.slave.Name() }

// Write sends bytes as if CPU-Low had produced them (a TxDone/RxReady
// mailbox message encoded by the caller).
func (s *Simulator) Write(p []byte) (int, error) { return s.master.Write(p) }

// Read receives bytes CPU-High wrote toward CPU-Low.
func (s *Simulator) Read(p []byte) (int, error) { return s.master.Read(p) }

// Close releases both ends of the pty pair.
func (s *Simulator) Close() error {
	err1 := s.master.Close()
	err2 := s.slowTy.Close()
	err3 := s.slave.Close()
	if err1 != nil {
		return err1
	}
	if err2 != nil {
		return err2
	}
	return err3
}
