package ap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/counts"
	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/role/ap"
	"github.com/wmac/upper-mac/internal/sched"
	"github.com/wmac/upper-mac/internal/stastore"
	"github.com/wmac/upper-mac/internal/txqueue"
)

func newRole(t *testing.T) (*ap.Role, *[]txqueue.QueueID, *[][]byte) {
	t.Helper()
	s := sched.New(sched.NewRealClock())
	var queues []txqueue.QueueID
	var payloads [][]byte
	tx := func(qid txqueue.QueueID, payload []byte) {
		queues = append(queues, qid)
		payloads = append(payloads, payload)
	}
	stas := stastore.New(4)
	cnts := counts.New(4)
	cfg := ap.Config{
		BSSID:           dot11.Addr{1, 2, 3, 4, 5, 6},
		SSID:            "MangoNet",
		Channel:         6,
		BeaconInterval:  100,
		DTIMPeriod:      3,
		MaxAssociations: 4,
	}
	return ap.New(s, cfg, tx, nil, stas, cnts), &queues, &payloads
}

func TestAddrFilterAllowsMatchingTuple(t *testing.T) {
	filter := []ap.AddrFilterEntry{
		{Mask: dot11.Addr{0xFF, 0xFF, 0xFF, 0, 0, 0}, Compare: dot11.Addr{0x40, 0xD8, 0x55, 0, 0, 0}},
	}
	assert.True(t, ap.Allow(filter, dot11.Addr{0x40, 0xD8, 0x55, 1, 2, 3}))
	assert.False(t, ap.Allow(filter, dot11.Addr{0x00, 0x11, 0x22, 1, 2, 3}))
}

func TestAddrFilterEmptyAllowsAll(t *testing.T) {
	assert.True(t, ap.Allow(nil, dot11.Addr{9, 9, 9, 9, 9, 9}))
}

func TestIsReferenceHardware(t *testing.T) {
	assert.True(t, ap.IsReferenceHardware(dot11.Addr{0x40, 0xD8, 0x55, 1, 2, 3}))
	assert.False(t, ap.IsReferenceHardware(dot11.Addr{0, 0, 0, 0, 0, 0}))
}

func TestProbeRequestGetsDirectedResponse(t *testing.T) {
	role, queues, _ := newRole(t)
	sta := dot11.Addr{9, 9, 9, 9, 9, 9}
	req := dot11.ProbeRequestBody{IEs: dot11.AppendIE(nil, dot11.IESSID, []byte("MangoNet"))}
	hdr := dot11.Header{Subtype: dot11.SubtypeProbeReq, Addr2: sta}
	buf := make([]byte, dot11.HeaderLen)
	body := req.Encode(buf)

	require.NoError(t, role.Rx(hdr, body[dot11.HeaderLen:]))
	require.Len(t, *queues, 1)
	assert.Equal(t, txqueue.ManagementQID, (*queues)[0])
}

func TestAuthThenAssocSucceeds(t *testing.T) {
	role, queues, payloads := newRole(t)
	sta := dot11.Addr{9, 9, 9, 9, 9, 9}

	authBody := dot11.AuthBody{Algorithm: dot11.AuthAlgoOpenSystem, SeqNum: 1}
	authBuf := authBody.Encode(nil)
	require.NoError(t, role.Rx(dot11.Header{Subtype: dot11.SubtypeAuth, Addr2: sta}, authBuf))

	assocBody := dot11.AssocRequestBody{Capabilities: dot11.CapESS}
	assocBuf := assocBody.Encode(nil)
	require.NoError(t, role.Rx(dot11.Header{Subtype: dot11.SubtypeAssocReq, Addr2: sta}, assocBuf))

	require.Len(t, *queues, 2)
	resp, err := dot11.DecodeAssocResponseBody((*payloads)[1][dot11.HeaderLen:])
	require.NoError(t, err)
	assert.Equal(t, dot11.AssocStatusSuccess, resp.Status)
	assert.Equal(t, uint16(1), resp.AID)
}

func TestAssocWithoutAuthIsRejected(t *testing.T) {
	role, _, payloads := newRole(t)
	sta := dot11.Addr{5, 5, 5, 5, 5, 5}
	assocBody := dot11.AssocRequestBody{}
	assocBuf := assocBody.Encode(nil)
	require.NoError(t, role.Rx(dot11.Header{Subtype: dot11.SubtypeAssocReq, Addr2: sta}, assocBuf))

	resp, err := dot11.DecodeAssocResponseBody((*payloads)[0][dot11.HeaderLen:])
	require.NoError(t, err)
	assert.Equal(t, dot11.AssocStatusRefusedCapacity, resp.Status)
}

func TestDeauthRemovesStation(t *testing.T) {
	role, _, payloads := newRole(t)
	sta := dot11.Addr{7, 7, 7, 7, 7, 7}
	authBody := dot11.AuthBody{Algorithm: dot11.AuthAlgoOpenSystem, SeqNum: 1}
	require.NoError(t, role.Rx(dot11.Header{Subtype: dot11.SubtypeAuth, Addr2: sta}, authBody.Encode(nil)))
	assocBody := dot11.AssocRequestBody{}
	require.NoError(t, role.Rx(dot11.Header{Subtype: dot11.SubtypeAssocReq, Addr2: sta}, assocBody.Encode(nil)))

	deauth := dot11.DeauthDisassocBody{ReasonCode: 3}
	require.NoError(t, role.Rx(dot11.Header{Subtype: dot11.SubtypeDeauth, Addr2: sta}, deauth.Encode(nil)))

	// A subsequent assoc without a fresh auth must be rejected again.
	require.NoError(t, role.Rx(dot11.Header{Subtype: dot11.SubtypeAssocReq, Addr2: sta}, assocBody.Encode(nil)))
	resp, err := dot11.DecodeAssocResponseBody((*payloads)[len(*payloads)-1][dot11.HeaderLen:])
	require.NoError(t, err)
	assert.Equal(t, dot11.AssocStatusRefusedCapacity, resp.Status)
}

func TestBSSInfoReflectsConfig(t *testing.T) {
	role, _, _ := newRole(t)
	info := role.BSSInfo()
	assert.Equal(t, "MangoNet", info.SSID)
	assert.Equal(t, 6, info.Channel)
}
