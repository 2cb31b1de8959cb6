// Package platform defines the collaborator interfaces this MAC core
// depends on but does not implement itself: the radio, Ethernet, and
// platform (LEDs/temperature/UART) planes named in spec §1's
// out-of-scope boundary. Concrete implementations live in sibling
// packages (radiorig, ethraw, simlow) and are wired in by cmd/wmacnode;
// the core only ever sees these interfaces, mirroring how the teacher
// keeps radio/audio-device access behind a narrow Go interface instead
// of importing cgo driver packages directly into protocol logic.
package platform

import "context"

// RadioPlane tunes the RF front end and reports its current settings.
// Grounded on the teacher's radio-control seam (ptt.go/hamlib usage):
// one interface, swappable concrete backends per environment.
type RadioPlane interface {
	SetChannel(ctx context.Context, channel int) error
	Channel() int
	SetTxPower(ctx context.Context, dBm int) error
}

// EthernetPlane sends and receives raw Ethernet frames on the wired side
// of the bridge (spec §4.8).
type EthernetPlane interface {
	Send(ctx context.Context, frame []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// NodeStatus is the platform plane's point-in-time readout.
type NodeStatus struct {
	TemperatureC float64
	UptimeUs     uint64
}

// PlatformPlane abstracts non-RF, non-Ethernet board services: status
// LEDs, temperature sensor, and a UART status line.
type PlatformPlane interface {
	Status(ctx context.Context) (NodeStatus, error)
	SetStatusLED(on bool) error
	WriteUARTLine(line string) error
}
