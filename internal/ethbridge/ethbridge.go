// Package ethbridge encapsulates Ethernet frames into 802.11 MPDUs and
// decapsulates them back, using an 802.2 LLC/SNAP header the way the
// teacher's 802.11 bridge does (spec §4.8, C10). Constants (LLC SNAP OUI
// byte, DHCP/ARP ethertypes, the gate bit for host-address learning) are
// grounded on wlan_mac_eth_util.h; addressing (which of addr1/2/3 plays
// BSSID/SA/DA under To-DS/From-DS) follows the common header's existing
// field semantics from the dot11 package rather than re-deriving them.
package ethbridge

import (
	"github.com/wmac/upper-mac/internal/dot11"
)

// EthAddrLen is the length of an Ethernet MAC address (identical layout
// to dot11.Addr, kept as a distinct name to mark the plane boundary).
const EthAddrLen = 6

// EthHeaderLen is the length of a standard Ethernet II header.
const EthHeaderLen = 14

// LLC/SNAP constants, matching wlan_mac_eth_util.h exactly.
const (
	llcSNAP            byte   = 0xAA
	llcControlUnnumbered byte = 0x03
	ethTypeARP         uint16 = 0x0806
	ethTypeIP          uint16 = 0x0800
	llcTypeWLANLTG     uint16 = 0x9090
)

// llcHeaderLen is sizeof(llc_header_t): DSAP, SSAP, control, OUI[3], type.
const llcHeaderLen = 8

// Role selects which addressing rule Encap/Decap apply (spec §4.8: AP
// frames use To-DS=0/From-DS=1 outbound and To-DS=1 inbound is expected
// from its stations; STA frames use the complementary bits, and IBSS
// frames carry To-DS=0/From-DS=0).
type Role int

const (
	RoleAP Role = iota
	RoleSTA
	RoleIBSS
)

// EthFrame is a parsed Ethernet II header plus payload.
type EthFrame struct {
	Dest    dot11.Addr
	Src     dot11.Addr
	EtherType uint16
	Payload []byte
}

// ParseEthFrame reads an Ethernet II header from buf.
func ParseEthFrame(buf []byte) (EthFrame, error) {
	if len(buf) < EthHeaderLen {
		return EthFrame{}, ErrShortFrame
	}
	var f EthFrame
	copy(f.Dest[:], buf[0:6])
	copy(f.Src[:], buf[6:12])
	f.EtherType = uint16(buf[12])<<8 | uint16(buf[13])
	f.Payload = buf[EthHeaderLen:]
	return f, nil
}

// Encap builds one 802.11 data MPDU (header + LLC/SNAP + payload) from an
// Ethernet frame, addressed according to role. bssid is the BSS this
// bridge belongs to.
func Encap(role Role, bssid, peer dot11.Addr, eth EthFrame) []byte {
	hdr := dot11.Header{Subtype: dot11.SubtypeData}
	switch role {
	case RoleAP:
		// AP -> STA: To-DS=0, From-DS=1. Addr1=STA, Addr2=BSSID, Addr3=original source.
		hdr.FromDS = true
		hdr.Addr1 = peer
		hdr.Addr2 = bssid
		hdr.Addr3 = eth.Src
	case RoleSTA:
		// STA -> AP: To-DS=1, From-DS=0. Addr1=BSSID, Addr2=STA, Addr3=original dest.
		hdr.ToDS = true
		hdr.Addr1 = bssid
		hdr.Addr2 = peer
		hdr.Addr3 = eth.Dest
	case RoleIBSS:
		// IBSS: To-DS=0, From-DS=0. Addr1=dest, Addr2=src, Addr3=BSSID.
		hdr.Addr1 = eth.Dest
		hdr.Addr2 = eth.Src
		hdr.Addr3 = bssid
	}

	out := make([]byte, dot11.HeaderLen, dot11.HeaderLen+llcHeaderLen+len(eth.Payload))
	_, _ = hdr.Encode(out)
	out = appendLLC(out, eth.EtherType)
	out = append(out, eth.Payload...)
	return out
}

func appendLLC(buf []byte, etherType uint16) []byte {
	llc := make([]byte, llcHeaderLen)
	llc[0] = llcSNAP
	llc[1] = llcSNAP
	llc[2] = llcControlUnnumbered
	llc[3], llc[4], llc[5] = 0, 0, 0 // OUI 00:00:00
	llc[6] = byte(etherType >> 8)
	llc[7] = byte(etherType)
	return append(buf, llc...)
}

// Decap reverses Encap: parses the 802.11 header and LLC/SNAP, and
// rebuilds an Ethernet II frame using whichever addresses identify the
// original source/destination for role.
func Decap(role Role, mpdu []byte) (EthFrame, error) {
	hdr, err := dot11.DecodeHeader(mpdu)
	if err != nil {
		return EthFrame{}, err
	}
	rest := mpdu[dot11.HeaderLen:]
	if len(rest) < llcHeaderLen {
		return EthFrame{}, ErrShortFrame
	}
	etherType := uint16(rest[6])<<8 | uint16(rest[7])
	payload := rest[llcHeaderLen:]

	var f EthFrame
	switch role {
	case RoleAP:
		f.Src, f.Dest = hdr.Addr2, hdr.Addr3 // To-DS frame from a station: addr2=SA, addr3=final DA
	case RoleSTA:
		f.Src, f.Dest = hdr.Addr3, hdr.Addr1
	case RoleIBSS:
		f.Src, f.Dest = hdr.Addr2, hdr.Addr1
	}
	f.EtherType = etherType
	f.Payload = payload
	return f, nil
}

// IsDHCP reports whether payload (an IPv4/UDP packet, starting at the IP
// header) looks like a DHCP message, for AP-role host-address learning.
func IsDHCP(ipPayload []byte) bool {
	const ipProtoUDP = 0x11
	const minIPHeader = 20
	const udpHeaderLen = 8
	if len(ipPayload) < minIPHeader {
		return false
	}
	if ipPayload[9] != ipProtoUDP {
		return false
	}
	ihl := int(ipPayload[0]&0x0F) * 4
	if ihl < minIPHeader || len(ipPayload) < ihl+udpHeaderLen {
		return false
	}
	udp := ipPayload[ihl:]
	srcPort := uint16(udp[0])<<8 | uint16(udp[1])
	dstPort := uint16(udp[2])<<8 | uint16(udp[3])
	const bootpc, bootps = 68, 67
	return (srcPort == bootpc && dstPort == bootps) || (srcPort == bootps && dstPort == bootpc)
}

// IsARP reports whether etherType identifies an ARP frame.
func IsARP(etherType uint16) bool { return etherType == ethTypeARP }

// IsIP reports whether etherType identifies an IPv4 frame.
func IsIP(etherType uint16) bool { return etherType == ethTypeIP }
