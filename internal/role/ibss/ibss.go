// Package ibss is the IBSS role top-level state machine (spec §4.12,
// C14): periodic beacon Tx with FILL_TIMESTAMP|REQ_BO|AUTOCANCEL, TSF
// resync against a later-timestamped peer beacon (IEEE 10.1.3.3: only the
// earlier-TSF station defers), directed probe-response, and implicit
// peer creation on first Rx (a station entry; no counts entry) rather
// than an explicit handshake. It
// is the join package's Adopter. Grounded on wlan_mac_high_ibss.c named in
// original_source/_INDEX.md.
package ibss

import (
	"context"
	"sync"

	"github.com/wmac/upper-mac/internal/bssstore"
	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/ethbridge"
	"github.com/wmac/upper-mac/internal/pktbuf"
	"github.com/wmac/upper-mac/internal/sched"
	"github.com/wmac/upper-mac/internal/stastore"
	"github.com/wmac/upper-mac/internal/txqueue"
)

// TxFunc enqueues a built management-frame payload, with flags, onto qid.
type TxFunc func(qid txqueue.QueueID, payload []byte, flags uint32)

// DataFunc receives an Ethernet frame decapsulated from a peer's data
// MPDU, to be handed to the Ethernet plane (spec §4.8).
type DataFunc func(ethbridge.EthFrame)

// TimeFunc reads/sets the local MAC time (TSF), satisfied by the timer
// plane collaborator in production and a fake in tests.
type TimeFunc interface {
	NowUs() uint64
	SetUs(uint64)
}

// Config configures one IBSS role instance.
type Config struct {
	Addr           dot11.Addr
	SSID           string
	Channel        int
	BeaconInterval uint16 // TU (1024us units)
}

// Role drives one IBSS's beacon/TSF-resync/peer-discovery state machine.
type Role struct {
	mu sync.Mutex

	cfg   Config
	s     *sched.Scheduler
	tx    TxFunc
	data  DataFunc
	clock TimeFunc
	stas  *stastore.Store

	bssid    dot11.Addr
	beaconID sched.ID
}

// New builds an IBSS Role. data may be nil if the node has no Ethernet
// plane to bridge peer data frames onto.
func New(s *sched.Scheduler, cfg Config, tx TxFunc, data DataFunc, clock TimeFunc, stas *stastore.Store) *Role {
	return &Role{cfg: cfg, s: s, tx: tx, data: data, clock: clock, stas: stas}
}

// Adopt implements join.Adopter: take ownership of bss (from a scan match,
// or a freshly self-originated BSSID) and start beaconing.
func (r *Role) Adopt(ctx context.Context, bss bssstore.Info) error {
	r.mu.Lock()
	r.bssid = bss.BSSID
	r.mu.Unlock()
	r.armBeacon()
	return nil
}

// BSSID returns the ad-hoc network's BSSID this role has adopted, for the
// node's Ethernet-uplink encap path.
func (r *Role) BSSID() dot11.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bssid
}

// Stop cancels the beacon schedule.
func (r *Role) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beaconID != 0 {
		_ = r.s.Remove(sched.Fine, r.beaconID)
		r.beaconID = 0
	}
}

func (r *Role) armBeacon() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armBeaconLocked(uint64(r.cfg.BeaconInterval) * 1024)
}

func (r *Role) armBeaconLocked(delayUs uint64) {
	if r.beaconID != 0 {
		_ = r.s.Remove(sched.Fine, r.beaconID)
	}
	r.beaconID = r.s.ScheduleOnce(sched.Fine, delayUs, func(ctx context.Context, arg any) {
		r.fireBeacon()
	}, nil)
}

func (r *Role) fireBeacon() {
	r.mu.Lock()
	body := r.buildBeaconLocked()
	r.armBeaconLocked(uint64(r.cfg.BeaconInterval) * 1024)
	r.mu.Unlock()

	if r.tx != nil {
		flags := pktbuf.TxFlagFillTimestamp | pktbuf.TxFlagReqBO | pktbuf.TxFlagAutocancel
		r.tx(txqueue.BeaconQID, body, flags)
	}
}

func (r *Role) buildBeaconLocked() []byte {
	ies := dot11.AppendIE(nil, dot11.IESSID, []byte(r.cfg.SSID))
	body := dot11.BeaconProbeBody{
		Timestamp:      r.nowUsLocked(),
		BeaconInterval: r.cfg.BeaconInterval,
		Capabilities:   dot11.CapIBSS,
		IEs:            ies,
	}
	hdr := dot11.Header{
		Subtype: dot11.SubtypeBeacon,
		Addr1:   dot11.Addr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		Addr2:   r.cfg.Addr,
		Addr3:   r.bssid,
	}
	buf := make([]byte, dot11.HeaderLen, dot11.HeaderLen+64)
	_, _ = hdr.Encode(buf)
	return body.Encode(buf)
}

func (r *Role) nowUsLocked() uint64 {
	if r.clock == nil {
		return 0
	}
	return r.clock.NowUs()
}

// Rx dispatches one received management MPDU.
func (r *Role) Rx(hdr dot11.Header, payload []byte) error {
	switch hdr.Subtype {
	case dot11.SubtypeBeacon:
		return r.handleBeacon(hdr, payload)
	case dot11.SubtypeProbeReq:
		return r.handleProbeReq(hdr, payload)
	case dot11.SubtypeData:
		return r.handleData(hdr, payload)
	default:
		r.touchPeer(hdr.Addr2)
		return nil
	}
}

// handleData bridges a peer's data MPDU to the Ethernet plane (spec
// §4.8); IBSS has no DS split, so addr1=self identifies frames destined
// here.
func (r *Role) handleData(hdr dot11.Header, payload []byte) error {
	r.touchPeer(hdr.Addr2)
	if hdr.Addr1 != r.cfg.Addr {
		return nil
	}
	buf := make([]byte, dot11.HeaderLen, dot11.HeaderLen+len(payload))
	_, _ = hdr.Encode(buf)
	eth, err := ethbridge.Decap(ethbridge.RoleIBSS, append(buf, payload...))
	if err != nil {
		return err
	}
	if r.data != nil {
		r.data(eth)
	}
	return nil
}

func (r *Role) handleBeacon(hdr dot11.Header, payload []byte) error {
	r.mu.Lock()
	sameBSS := hdr.Addr3 == r.bssid
	r.mu.Unlock()
	if !sameBSS {
		return nil
	}
	r.touchPeer(hdr.Addr2)

	body, err := dot11.DecodeBeaconProbeBody(payload)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	localNow := r.nowUsLocked()
	if body.Timestamp <= localNow {
		// IEEE 10.1.3.3: only the station with the earlier TSF defers; an
		// earlier-or-equal remote timestamp means we do not resync.
		return nil
	}
	delta := body.Timestamp - localNow
	if r.clock != nil {
		r.clock.SetUs(body.Timestamp)
	}

	// Resync the beacon schedule: cancel the pending beacon and reschedule
	// beacon_interval - (now - remote_ts) ahead. Since "now" has just
	// become body.Timestamp, the remaining wait is exactly one full
	// interval minus however much of the current interval the remote
	// station had already consumed; delta approximates that consumption
	// when the two stations' unsynced clocks were only delta apart.
	intervalUs := uint64(r.cfg.BeaconInterval) * 1024
	remaining := intervalUs
	if delta < intervalUs {
		remaining = intervalUs - delta
	}
	r.armBeaconLocked(remaining)
	return nil
}

func (r *Role) handleProbeReq(hdr dot11.Header, payload []byte) error {
	r.touchPeer(hdr.Addr2)
	req := dot11.DecodeProbeRequestBody(payload)
	ssid, ok := dot11.FindIE(req.IEs, dot11.IESSID)
	if ok && len(ssid.Value) > 0 && string(ssid.Value) != r.cfg.SSID {
		return nil
	}

	r.mu.Lock()
	body := dot11.BeaconProbeBody{
		Timestamp:      r.nowUsLocked(),
		BeaconInterval: r.cfg.BeaconInterval,
		Capabilities:   dot11.CapIBSS,
		IEs:            dot11.AppendIE(nil, dot11.IESSID, []byte(r.cfg.SSID)),
	}
	respHdr := dot11.Header{Subtype: dot11.SubtypeProbeResp, Addr1: hdr.Addr2, Addr2: r.cfg.Addr, Addr3: r.bssid}
	r.mu.Unlock()

	buf := make([]byte, dot11.HeaderLen, dot11.HeaderLen+64)
	_, _ = respHdr.Encode(buf)
	out := body.Encode(buf)
	if r.tx != nil {
		r.tx(txqueue.ManagementQID, out, 0)
	}
	return nil
}

// touchPeer creates a station entry on first Rx from addr and refreshes
// LastActivity on subsequent ones. It creates no counts entry.
func (r *Role) touchPeer(addr dot11.Addr) {
	if r.stas == nil || addr == (dot11.Addr{}) {
		return
	}
	if _, err := r.stas.Add(addr, stastore.AnyID); err != nil {
		return
	}
	r.stas.Touch(addr)
}
