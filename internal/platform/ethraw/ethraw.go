// Package ethraw implements platform.EthernetPlane over a Linux AF_PACKET
// socket, grounded on the pack's raw-socket Ethernet I/O pattern (see
// DESIGN.md) rather than the teacher's own TNC/radio transport, since the
// teacher has no wired Ethernet plane of its own.
package ethraw

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/wmac/upper-mac/internal/platform"
)

// Socket is a platform.EthernetPlane backed by an AF_PACKET SOCK_RAW socket
// bound to one network interface, used to exchange the decapsulated
// Ethernet frames the bridge (spec §4.8) produces and consumes.
type Socket struct {
	fd        int
	ifIndex   int
	closeOnce bool
}

var _ platform.EthernetPlane = (*Socket)(nil)

// Open binds a raw AF_PACKET socket to ifName, receiving every Ethernet
// frame entering that interface (ETH_P_ALL) so the bridge can filter
// addressed-to-us traffic itself.
func Open(ifName string) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, htons(unix.ETH_P_ALL))
	if err != nil {
		return nil, fmt.Errorf("ethraw: socket: %w", err)
	}
	ifi, err := net.InterfaceByName(ifName)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ethraw: interface %s: %w", ifName, err)
	}
	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ethraw: bind %s: %w", ifName, err)
	}
	return &Socket{fd: fd, ifIndex: ifi.Index}, nil
}

// Send implements platform.EthernetPlane.
func (s *Socket) Send(ctx context.Context, frame []byte) error {
	addr := &unix.SockaddrLinklayer{Ifindex: s.ifIndex}
	if err := unix.Sendto(s.fd, frame, 0, addr); err != nil {
		return fmt.Errorf("ethraw: sendto: %w", err)
	}
	return nil
}

// Recv implements platform.EthernetPlane. It blocks until a frame arrives
// or ctx is cancelled.
func (s *Socket) Recv(ctx context.Context) ([]byte, error) {
	type result struct {
		buf []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		buf := make([]byte, 2048)
		n, _, err := unix.Recvfrom(s.fd, buf, 0)
		if err != nil {
			done <- result{err: fmt.Errorf("ethraw: recvfrom: %w", err)}
			return
		}
		done <- result{buf: buf[:n]}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.buf, r.err
	}
}

// Close implements platform.EthernetPlane.
func (s *Socket) Close() error {
	if s.closeOnce {
		return nil
	}
	s.closeOnce = true
	return unix.Close(s.fd)
}

func htons(v uint16) uint16 {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return binary.LittleEndian.Uint16(b)
}
