// Package dot11 is the 802.11 frame codec (spec §4.7, C9): common header
// build/parse, beacon/probe/auth/(re)assoc/deauth/disassoc bodies, an IE
// walker, and the small control-frame headers needed for log
// reconstruction. Field names and bit layouts are grounded directly on
// wlan_mac_802_11_defs.h; the builder/parser-pair shape (one function to
// write a frame into a caller-owned buffer, one to read it back into a Go
// struct) is grounded on the teacher's ax25_pad.go/ax25_pad2.go, which does
// the same job for AX.25 addresses and frame bodies.
package dot11

// AddrLen is the length of an 802.11 MAC address.
const AddrLen = 6

// Addr is a 48-bit MAC address.
type Addr [AddrLen]byte

// FrameType occupies frame_control_1 bits [3:2].
type FrameType uint8

const (
	TypeMgmt FrameType = 0x00
	TypeCtrl FrameType = 0x04
	TypeData FrameType = 0x08
)

// Subtype occupies frame_control_1 combined with FrameType, matching the
// teacher's MAC_FRAME_CTRL1_SUBTYPE_* constants byte-for-byte.
type Subtype uint8

const (
	SubtypeAssocReq   Subtype = Subtype(TypeMgmt) | 0x00
	SubtypeAssocResp  Subtype = Subtype(TypeMgmt) | 0x10
	SubtypeReassocReq Subtype = Subtype(TypeMgmt) | 0x20
	SubtypeReassocResp Subtype = Subtype(TypeMgmt) | 0x30
	SubtypeProbeReq   Subtype = Subtype(TypeMgmt) | 0x40
	SubtypeProbeResp  Subtype = Subtype(TypeMgmt) | 0x50
	SubtypeBeacon     Subtype = Subtype(TypeMgmt) | 0x80
	SubtypeATIM       Subtype = Subtype(TypeMgmt) | 0x90
	SubtypeDisassoc   Subtype = Subtype(TypeMgmt) | 0xA0
	SubtypeAuth       Subtype = Subtype(TypeMgmt) | 0xB0
	SubtypeDeauth     Subtype = Subtype(TypeMgmt) | 0xC0
	SubtypeAction     Subtype = Subtype(TypeMgmt) | 0xD0

	SubtypeBlockAckReq Subtype = Subtype(TypeCtrl) | 0x80
	SubtypeBlockAck    Subtype = Subtype(TypeCtrl) | 0x90
	SubtypePSPoll      Subtype = Subtype(TypeCtrl) | 0xA0
	SubtypeRTS         Subtype = Subtype(TypeCtrl) | 0xB0
	SubtypeCTS         Subtype = Subtype(TypeCtrl) | 0xC0
	SubtypeACK         Subtype = Subtype(TypeCtrl) | 0xD0
	SubtypeCFEnd       Subtype = Subtype(TypeCtrl) | 0xE0

	SubtypeData     Subtype = Subtype(TypeData) | 0x00
	SubtypeNullData Subtype = Subtype(TypeData) | 0x40
	SubtypeQoSData  Subtype = Subtype(TypeData) | 0x80
)

// Type extracts the frame type from a subtype value.
func (s Subtype) Type() FrameType { return FrameType(uint8(s) & 0x0C) }

// frame_control_2 flag bits, matching MAC_FRAME_CTRL2_FLAG_* exactly.
const (
	FrameControl2Order     byte = 0x80
	FrameControl2Protected byte = 0x40
	FrameControl2MoreData  byte = 0x20
	FrameControl2PowerMgmt byte = 0x10
	FrameControl2Retry     byte = 0x08
	FrameControl2MoreFlags byte = 0x04
	FrameControl2FromDS    byte = 0x02
	FrameControl2ToDS      byte = 0x01
)

// HeaderLen is the fixed common-header size (no addr4, no QoS control).
const HeaderLen = 24

// Header is the common 802.11 header (spec §3): frame control, duration,
// three addresses, sequence control. addr4/WDS is out of scope.
type Header struct {
	Subtype    Subtype
	ToDS       bool
	FromDS     bool
	MoreFrag   bool
	Retry      bool
	PowerMgmt  bool
	MoreData   bool
	Protected  bool
	Order      bool
	DurationID uint16
	Addr1      Addr
	Addr2      Addr
	Addr3      Addr
	SeqNum     uint16 // 12-bit sequence number, high 12 bits (bits 4-15) of SequenceControl
	FragNum    uint8  // 4-bit fragment number, low 4 bits of SequenceControl
}

// Encode writes the 24-byte common header into buf[0:HeaderLen], returning
// an error if buf is too short.
func (h *Header) Encode(buf []byte) (int, error) {
	if len(buf) < HeaderLen {
		return 0, ErrShortBuffer
	}
	buf[0] = byte(h.Subtype)
	var fc2 byte
	if h.Order {
		fc2 |= FrameControl2Order
	}
	if h.Protected {
		fc2 |= FrameControl2Protected
	}
	if h.MoreData {
		fc2 |= FrameControl2MoreData
	}
	if h.PowerMgmt {
		fc2 |= FrameControl2PowerMgmt
	}
	if h.Retry {
		fc2 |= FrameControl2Retry
	}
	if h.MoreFrag {
		fc2 |= FrameControl2MoreFlags
	}
	if h.FromDS {
		fc2 |= FrameControl2FromDS
	}
	if h.ToDS {
		fc2 |= FrameControl2ToDS
	}
	buf[1] = fc2
	putU16(buf[2:4], h.DurationID)
	copy(buf[4:10], h.Addr1[:])
	copy(buf[10:16], h.Addr2[:])
	copy(buf[16:22], h.Addr3[:])
	seqCtrl := (h.SeqNum&0x0FFF)<<4 | uint16(h.FragNum&0x0F)
	putU16(buf[22:24], seqCtrl)
	return HeaderLen, nil
}

// DecodeHeader reads the common header from buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, ErrShortBuffer
	}
	var h Header
	h.Subtype = Subtype(buf[0])
	fc2 := buf[1]
	h.Order = fc2&FrameControl2Order != 0
	h.Protected = fc2&FrameControl2Protected != 0
	h.MoreData = fc2&FrameControl2MoreData != 0
	h.PowerMgmt = fc2&FrameControl2PowerMgmt != 0
	h.Retry = fc2&FrameControl2Retry != 0
	h.MoreFrag = fc2&FrameControl2MoreFlags != 0
	h.FromDS = fc2&FrameControl2FromDS != 0
	h.ToDS = fc2&FrameControl2ToDS != 0
	h.DurationID = getU16(buf[2:4])
	copy(h.Addr1[:], buf[4:10])
	copy(h.Addr2[:], buf[10:16])
	copy(h.Addr3[:], buf[16:22])
	seqCtrl := getU16(buf[22:24])
	h.SeqNum = seqCtrl >> 4
	h.FragNum = uint8(seqCtrl & 0x0F)
	return h, nil
}

func putU16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func getU16(b []byte) uint16    { return uint16(b[0]) | uint16(b[1])<<8 }
func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
