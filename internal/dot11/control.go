package dot11

// Control frames carry a truncated header: no Addr3, no sequence control.
// These are grounded on the mac_header_80211_ACK/_CTS/_RTS structs and
// exist mainly for log reconstruction (spec §4.16's RX_OFDM/TX_LOW entries
// need to tell an ACK from an RTS from a data frame by subtype alone, but
// CTS/ACK carry only Addr1).

// AckCtsHeaderLen is the length of the truncated ACK/CTS header.
const AckCtsHeaderLen = 10

// AckCtsHeader is the common shape of ACK and CTS: frame control,
// duration, one address.
type AckCtsHeader struct {
	Subtype    Subtype
	DurationID uint16
	RA         Addr
}

func (h *AckCtsHeader) Encode(buf []byte) (int, error) {
	if len(buf) < AckCtsHeaderLen {
		return 0, ErrShortBuffer
	}
	buf[0] = byte(h.Subtype)
	buf[1] = 0
	putU16(buf[2:4], h.DurationID)
	copy(buf[4:10], h.RA[:])
	return AckCtsHeaderLen, nil
}

func DecodeAckCtsHeader(buf []byte) (AckCtsHeader, error) {
	if len(buf) < AckCtsHeaderLen {
		return AckCtsHeader{}, ErrShortBuffer
	}
	var h AckCtsHeader
	h.Subtype = Subtype(buf[0])
	h.DurationID = getU16(buf[2:4])
	copy(h.RA[:], buf[4:10])
	return h, nil
}

// RTSHeaderLen is the length of the RTS header (RA + TA, no Addr3).
const RTSHeaderLen = 16

// RTSHeader carries both receiver and transmitter address.
type RTSHeader struct {
	DurationID uint16
	RA         Addr
	TA         Addr
}

func (h *RTSHeader) Encode(buf []byte) (int, error) {
	if len(buf) < RTSHeaderLen {
		return 0, ErrShortBuffer
	}
	buf[0] = byte(SubtypeRTS)
	buf[1] = 0
	putU16(buf[2:4], h.DurationID)
	copy(buf[4:10], h.RA[:])
	copy(buf[10:16], h.TA[:])
	return RTSHeaderLen, nil
}

func DecodeRTSHeader(buf []byte) (RTSHeader, error) {
	if len(buf) < RTSHeaderLen {
		return RTSHeader{}, ErrShortBuffer
	}
	var h RTSHeader
	h.DurationID = getU16(buf[2:4])
	copy(h.RA[:], buf[4:10])
	copy(h.TA[:], buf[10:16])
	return h, nil
}
