package dot11

// Capabilities bits, matching CAPABILITIES_* in wlan_mac_802_11_defs.h.
const (
	CapESS               uint16 = 0x0001
	CapIBSS              uint16 = 0x0002
	CapPrivacy           uint16 = 0x0010
	CapShortPreamble     uint16 = 0x0020
	CapPBCC              uint16 = 0x0040
	CapChanAgility       uint16 = 0x0080
	CapSpecMgmt          uint16 = 0x0100
	CapShortTimeslot     uint16 = 0x0400
	CapAPSD              uint16 = 0x0800
	CapDSSSOFDM          uint16 = 0x2000
	CapDelayedBlockAck   uint16 = 0x4000
	CapImmediateBlockAck uint16 = 0x8000
)

// BeaconProbeBody is the fixed part common to Beacon and Probe Response
// frames, followed by a variable IE region.
type BeaconProbeBody struct {
	Timestamp      uint64
	BeaconInterval uint16
	Capabilities   uint16
	IEs            []byte
}

const beaconProbeFixedLen = 12

// Encode appends the fixed fields and raw IE region to buf.
func (b *BeaconProbeBody) Encode(buf []byte) []byte {
	var fixed [beaconProbeFixedLen]byte
	putU64(fixed[0:8], b.Timestamp)
	putU16(fixed[8:10], b.BeaconInterval)
	putU16(fixed[10:12], b.Capabilities)
	buf = append(buf, fixed[:]...)
	return append(buf, b.IEs...)
}

// DecodeBeaconProbeBody parses the fixed fields; b.IEs aliases the
// remainder of buf and should be walked with WalkIEs.
func DecodeBeaconProbeBody(buf []byte) (BeaconProbeBody, error) {
	if len(buf) < beaconProbeFixedLen {
		return BeaconProbeBody{}, ErrShortBuffer
	}
	return BeaconProbeBody{
		Timestamp:      getU64(buf[0:8]),
		BeaconInterval: getU16(buf[8:10]),
		Capabilities:   getU16(buf[10:12]),
		IEs:            buf[beaconProbeFixedLen:],
	}, nil
}

// ProbeRequestBody is just an IE region (SSID, supported rates, ...).
type ProbeRequestBody struct {
	IEs []byte
}

func (b *ProbeRequestBody) Encode(buf []byte) []byte { return append(buf, b.IEs...) }

func DecodeProbeRequestBody(buf []byte) ProbeRequestBody {
	return ProbeRequestBody{IEs: buf}
}

// AuthAlgorithm identifies the authentication algorithm field.
type AuthAlgorithm uint16

const AuthAlgoOpenSystem AuthAlgorithm = 0

// AuthStatusCode mirrors the 802.11 status code space; Success is the only
// value this MAC ever needs to test against directly.
type AuthStatusCode uint16

const AuthStatusSuccess AuthStatusCode = 0

// AuthBody is the Authentication management frame body.
type AuthBody struct {
	Algorithm     AuthAlgorithm
	SeqNum        uint16
	Status        AuthStatusCode
	ChallengeText []byte // unused (open-system only), kept for wire fidelity
}

const authFixedLen = 6

func (b *AuthBody) Encode(buf []byte) []byte {
	var fixed [authFixedLen]byte
	putU16(fixed[0:2], uint16(b.Algorithm))
	putU16(fixed[2:4], b.SeqNum)
	putU16(fixed[4:6], uint16(b.Status))
	buf = append(buf, fixed[:]...)
	return append(buf, b.ChallengeText...)
}

func DecodeAuthBody(buf []byte) (AuthBody, error) {
	if len(buf) < authFixedLen {
		return AuthBody{}, ErrShortBuffer
	}
	return AuthBody{
		Algorithm:     AuthAlgorithm(getU16(buf[0:2])),
		SeqNum:        getU16(buf[2:4]),
		Status:        AuthStatusCode(getU16(buf[4:6])),
		ChallengeText: buf[authFixedLen:],
	}, nil
}

// DeauthDisassocBody carries only a reason code.
type DeauthDisassocBody struct {
	ReasonCode uint16
}

func (b *DeauthDisassocBody) Encode(buf []byte) []byte {
	var fixed [2]byte
	putU16(fixed[:], b.ReasonCode)
	return append(buf, fixed[:]...)
}

func DecodeDeauthDisassocBody(buf []byte) (DeauthDisassocBody, error) {
	if len(buf) < 2 {
		return DeauthDisassocBody{}, ErrShortBuffer
	}
	return DeauthDisassocBody{ReasonCode: getU16(buf[0:2])}, nil
}

// AssocRequestBody is the Association Request body (Reassociation adds a
// current-AP address ahead of the IEs; see ReassocRequestBody).
type AssocRequestBody struct {
	Capabilities   uint16
	ListenInterval uint16
	IEs            []byte
}

const assocReqFixedLen = 4

func (b *AssocRequestBody) Encode(buf []byte) []byte {
	var fixed [assocReqFixedLen]byte
	putU16(fixed[0:2], b.Capabilities)
	putU16(fixed[2:4], b.ListenInterval)
	buf = append(buf, fixed[:]...)
	return append(buf, b.IEs...)
}

func DecodeAssocRequestBody(buf []byte) (AssocRequestBody, error) {
	if len(buf) < assocReqFixedLen {
		return AssocRequestBody{}, ErrShortBuffer
	}
	return AssocRequestBody{
		Capabilities:   getU16(buf[0:2]),
		ListenInterval: getU16(buf[2:4]),
		IEs:            buf[assocReqFixedLen:],
	}, nil
}

// ReassocRequestBody additionally carries the current AP's address.
type ReassocRequestBody struct {
	Capabilities   uint16
	ListenInterval uint16
	CurrentAP      Addr
	IEs            []byte
}

const reassocReqFixedLen = 10

func (b *ReassocRequestBody) Encode(buf []byte) []byte {
	var fixed [reassocReqFixedLen]byte
	putU16(fixed[0:2], b.Capabilities)
	putU16(fixed[2:4], b.ListenInterval)
	copy(fixed[4:10], b.CurrentAP[:])
	buf = append(buf, fixed[:]...)
	return append(buf, b.IEs...)
}

func DecodeReassocRequestBody(buf []byte) (ReassocRequestBody, error) {
	if len(buf) < reassocReqFixedLen {
		return ReassocRequestBody{}, ErrShortBuffer
	}
	var r ReassocRequestBody
	r.Capabilities = getU16(buf[0:2])
	r.ListenInterval = getU16(buf[2:4])
	copy(r.CurrentAP[:], buf[4:10])
	r.IEs = buf[reassocReqFixedLen:]
	return r, nil
}

// AssocStatusCode mirrors the 802.11 status code space for (re)association
// responses.
type AssocStatusCode uint16

const (
	AssocStatusSuccess         AssocStatusCode = 0
	AssocStatusRefusedCapacity AssocStatusCode = 17
)

// AssocResponseBody is shared by Association and Reassociation Response.
type AssocResponseBody struct {
	Capabilities uint16
	Status       AssocStatusCode
	AID          uint16
	IEs          []byte
}

const assocRespFixedLen = 6

func (b *AssocResponseBody) Encode(buf []byte) []byte {
	var fixed [assocRespFixedLen]byte
	putU16(fixed[0:2], b.Capabilities)
	putU16(fixed[2:4], uint16(b.Status))
	putU16(fixed[4:6], b.AID)
	buf = append(buf, fixed[:]...)
	return append(buf, b.IEs...)
}

func DecodeAssocResponseBody(buf []byte) (AssocResponseBody, error) {
	if len(buf) < assocRespFixedLen {
		return AssocResponseBody{}, ErrShortBuffer
	}
	return AssocResponseBody{
		Capabilities: getU16(buf[0:2]),
		Status:       AssocStatusCode(getU16(buf[2:4])),
		AID:          getU16(buf[4:6]),
		IEs:          buf[assocRespFixedLen:],
	}, nil
}
