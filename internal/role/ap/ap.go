// Package ap is the AP role top-level state machine (spec §4.12, C14):
// periodic beacon Tx, probe-response, Open auth, association accept with
// AID allocation, deauth, and an optional address filter gating which
// stations may authenticate. It is grounded on
// wlan_mac_high_ap/wlan_mac_high.c (the station_info bring-up sequence:
// auth -> assoc -> AID assignment) named in original_source/_INDEX.md, and
// on the teacher's digipeater.go for the periodic-beacon scheduling shape.
package ap

import (
	"context"
	"sync"
	"time"

	"github.com/wmac/upper-mac/internal/bssstore"
	"github.com/wmac/upper-mac/internal/counts"
	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/ethbridge"
	"github.com/wmac/upper-mac/internal/sched"
	"github.com/wmac/upper-mac/internal/stastore"
	"github.com/wmac/upper-mac/internal/txqueue"
	"github.com/wmac/upper-mac/internal/wmacerr"
)

// PeerState is an authenticating station's progress through the Open
// auth/assoc handshake (spec: "state→Authenticated", "state→Associated").
type PeerState int

const (
	PeerUnauthenticated PeerState = iota
	PeerAuthenticated
	PeerAssociated
)

// AddrFilterEntry is one (mask, compare) tuple gating which addresses may
// authenticate (spec §4.12, grounded on wlan_mac_addr_filter.h). An
// address is allowed if addr&Mask == Compare&Mask for any entry in the
// list, or if the list is empty.
type AddrFilterEntry struct {
	Mask    dot11.Addr
	Compare dot11.Addr
}

// Allow reports whether addr matches any entry, or true if filter is empty
// (no filter configured = allow all, matching the reference design's
// default-open behavior).
func Allow(filter []AddrFilterEntry, addr dot11.Addr) bool {
	if len(filter) == 0 {
		return true
	}
	for _, e := range filter {
		matches := true
		for i := 0; i < dot11.AddrLen; i++ {
			if addr[i]&e.Mask[i] != e.Compare[i]&e.Mask[i] {
				matches = false
				break
			}
		}
		if matches {
			return true
		}
	}
	return false
}

// warpOUI is the vendor OUI the reference design recognises for its own
// reference hardware (spec: "wlan_mac_addr_is_warp recognises the vendor
// OUI for reference testing").
var warpOUI = [3]byte{0x40, 0xD8, 0x55}

// IsReferenceHardware reports whether addr carries the reference design's
// vendor OUI in its first three octets.
func IsReferenceHardware(addr dot11.Addr) bool {
	return addr[0] == warpOUI[0] && addr[1] == warpOUI[1] && addr[2] == warpOUI[2]
}

// TxFunc enqueues a built management-frame payload onto the given queue.
type TxFunc func(qid txqueue.QueueID, payload []byte)

// DataFunc receives an Ethernet frame decapsulated from a To-DS uplink
// data MPDU, to be handed to the Ethernet plane (spec §4.8).
type DataFunc func(ethbridge.EthFrame)

// Config configures one AP role instance.
type Config struct {
	BSSID          dot11.Addr
	SSID           string
	Channel        int
	BeaconInterval uint16 // TU (1024us units)
	DTIMPeriod     int
	MaxAssociations int
	AddrFilter     []AddrFilterEntry
}

// Role drives one AP's management-plane state machine.
type Role struct {
	mu sync.Mutex

	cfg   Config
	s     *sched.Scheduler
	tx    TxFunc
	data  DataFunc
	stas  *stastore.Store
	cnts  *counts.Store

	peers          map[dot11.Addr]PeerState
	powerSave      map[dot11.Addr]bool         // spec §4.3: POWER_MGMT bit last seen from each associated peer
	hosts          map[dot11.Addr]dot11.Addr   // Ethernet host addr -> owning station addr, learned via DHCP/ARP
	mcastDrainOpen bool                        // true while draining the queue held open by the last DTIM beacon
	beaconCount    int
	beaconID       sched.ID
	now            func() time.Time
}

// New builds an AP Role. stas/cnts are this BSS's station/counts stores,
// sized and owned by the caller (internal/node wiring). data may be nil if
// the node has no Ethernet plane to bridge uplink frames onto.
func New(s *sched.Scheduler, cfg Config, tx TxFunc, data DataFunc, stas *stastore.Store, cnts *counts.Store) *Role {
	return &Role{
		cfg:       cfg,
		s:         s,
		tx:        tx,
		data:      data,
		stas:      stas,
		cnts:      cnts,
		peers:     make(map[dot11.Addr]PeerState),
		powerSave: make(map[dot11.Addr]bool),
		hosts:     make(map[dot11.Addr]dot11.Addr),
		now:       time.Now,
	}
}

// Start arms the periodic beacon event (spec: "Always-on beacon: periodic
// event every beacon_interval x 1024us").
func (r *Role) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	intervalUs := uint64(r.cfg.BeaconInterval) * 1024
	r.beaconID = r.s.ScheduleRepeated(sched.Fine, intervalUs, 0, func(ctx context.Context, arg any) {
		r.fireBeacon()
	}, nil)
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

func (r *Role) fireBeacon() {
	r.mu.Lock()
	isDTIM := r.cfg.DTIMPeriod > 0 && r.beaconCount%r.cfg.DTIMPeriod == 0
	r.beaconCount++
	body := r.buildBeaconLocked(isDTIM)
	r.mu.Unlock()

	if r.tx != nil {
		r.tx(txqueue.BeaconQID, body)
	}
	if isDTIM {
		// Multicast withheld for sleeping stations between DTIMs is drained
		// immediately after a DTIM beacon (spec: "multicast queue is
		// drained immediately after beacon").
		r.drainMulticast()
	}
}

func (r *Role) drainMulticast() {
	// Open the multicast drain window; the Tx service loop (C15) consults
	// MulticastGateOpen every tick and keeps draining until MCastQID runs
	// dry, then the window closes again until the next DTIM.
	r.mu.Lock()
	r.mcastDrainOpen = true
	r.mu.Unlock()
}

// MulticastGateOpen reports whether the Tx service loop may service
// MCastQID this round (spec §4.3: "multicast is held while any associated
// station has POWER_MGMT set, released only on DTIM beacons"). A DTIM
// beacon opens a drain window that stays open, regardless of power-save
// state, until txq reports the queue empty.
func (r *Role) MulticastGateOpen(txq *txqueue.Manager) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mcastDrainOpen {
		if txq.NumQueued(txqueue.MCastQID) == 0 {
			r.mcastDrainOpen = false
		}
		return true
	}
	return !r.anyPowerSaveLocked()
}

func (r *Role) anyPowerSaveLocked() bool {
	for _, sleeping := range r.powerSave {
		if sleeping {
			return true
		}
	}
	return false
}

func (r *Role) buildBeaconLocked(isDTIM bool) []byte {
	var ies []byte
	ies = dot11.AppendIE(ies, dot11.IESSID, []byte(r.cfg.SSID))
	tim := []byte{0, 1, byte(r.cfg.DTIMPeriod), 0}
	if isDTIM {
		tim[3] = 0x01
	}
	ies = dot11.AppendIE(ies, dot11.IETIM, tim)

	body := dot11.BeaconProbeBody{
		BeaconInterval: r.cfg.BeaconInterval,
		Capabilities:   dot11.CapESS,
		IEs:            ies,
	}
	hdr := dot11.Header{
		Subtype: dot11.SubtypeBeacon,
		Addr1:   dot11.Addr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		Addr2:   r.cfg.BSSID,
		Addr3:   r.cfg.BSSID,
	}
	buf := make([]byte, dot11.HeaderLen, dot11.HeaderLen+64)
	_, _ = hdr.Encode(buf)
	return body.Encode(buf)
}

// Rx dispatches one received management-frame MPDU (spec §4.12 AP
// behavior). Non-management subtypes and frames not addressed to this
// BSSID are ignored; data-plane frames are handled by internal/node, not
// here.
func (r *Role) Rx(hdr dot11.Header, payload []byte) error {
	r.notePowerMgmt(hdr)
	switch hdr.Subtype {
	case dot11.SubtypeProbeReq:
		return r.handleProbeReq(hdr, payload)
	case dot11.SubtypeAuth:
		return r.handleAuth(hdr, payload)
	case dot11.SubtypeAssocReq:
		return r.handleAssocReq(hdr, payload)
	case dot11.SubtypeDeauth:
		return r.handleDeauth(hdr)
	case dot11.SubtypeData:
		return r.handleData(hdr, payload)
	default:
		return nil
	}
}

// notePowerMgmt records the POWER_MGMT bit carried on any frame from an
// associated peer (spec §4.3), feeding MulticastGateOpen's defer decision.
func (r *Role) notePowerMgmt(hdr dot11.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[hdr.Addr2]; !ok {
		return
	}
	r.powerSave[hdr.Addr2] = hdr.PowerMgmt
}

func (r *Role) handleProbeReq(hdr dot11.Header, payload []byte) error {
	req := dot11.DecodeProbeRequestBody(payload)
	ssid, ok := dot11.FindIE(req.IEs, dot11.IESSID)
	if ok && len(ssid.Value) > 0 && string(ssid.Value) != r.cfg.SSID {
		return nil // directed probe for a different SSID
	}

	r.mu.Lock()
	body := dot11.BeaconProbeBody{
		BeaconInterval: r.cfg.BeaconInterval,
		Capabilities:   dot11.CapESS,
		IEs:            dot11.AppendIE(nil, dot11.IESSID, []byte(r.cfg.SSID)),
	}
	respHdr := dot11.Header{
		Subtype: dot11.SubtypeProbeResp,
		Addr1:   hdr.Addr2,
		Addr2:   r.cfg.BSSID,
		Addr3:   r.cfg.BSSID,
	}
	r.mu.Unlock()

	buf := make([]byte, dot11.HeaderLen, dot11.HeaderLen+64)
	_, _ = respHdr.Encode(buf)
	out := body.Encode(buf)
	if r.tx != nil {
		r.tx(txqueue.ManagementQID, out)
	}
	return nil
}

func (r *Role) handleAuth(hdr dot11.Header, payload []byte) error {
	auth, err := dot11.DecodeAuthBody(payload)
	if err != nil {
		return err
	}
	if auth.Algorithm != dot11.AuthAlgoOpenSystem || auth.SeqNum != 1 {
		return nil
	}
	if !Allow(r.cfg.AddrFilter, hdr.Addr2) {
		return nil
	}

	r.mu.Lock()
	r.peers[hdr.Addr2] = PeerAuthenticated
	r.mu.Unlock()

	resp := dot11.AuthBody{Algorithm: dot11.AuthAlgoOpenSystem, SeqNum: 2, Status: dot11.AuthStatusSuccess}
	respHdr := dot11.Header{Subtype: dot11.SubtypeAuth, Addr1: hdr.Addr2, Addr2: r.cfg.BSSID, Addr3: r.cfg.BSSID}
	buf := make([]byte, dot11.HeaderLen, dot11.HeaderLen+16)
	_, _ = respHdr.Encode(buf)
	out := resp.Encode(buf)
	if r.tx != nil {
		r.tx(txqueue.ManagementQID, out)
	}
	return nil
}

func (r *Role) handleAssocReq(hdr dot11.Header, payload []byte) error {
	req, err := dot11.DecodeAssocRequestBody(payload)
	if err != nil {
		return err
	}

	r.mu.Lock()
	state := r.peers[hdr.Addr2]
	r.mu.Unlock()
	_ = req

	if state != PeerAuthenticated && state != PeerAssociated {
		_ = r.sendAssocResp(hdr.Addr2, dot11.AssocStatusRefusedCapacity, 0)
		return nil
	}

	sta, err := r.stas.Add(hdr.Addr2, stastore.AnyID)
	if err != nil {
		// Association-table overflow: refused with status 17.
		_ = r.sendAssocResp(hdr.Addr2, dot11.AssocStatusRefusedCapacity, 0)
		return wmacerr.ErrProtocolViolation
	}

	r.mu.Lock()
	r.peers[hdr.Addr2] = PeerAssociated
	r.mu.Unlock()

	return r.sendAssocResp(hdr.Addr2, dot11.AssocStatusSuccess, uint16(sta.ID))
}

func (r *Role) sendAssocResp(addr dot11.Addr, status dot11.AssocStatusCode, aid uint16) error {
	resp := dot11.AssocResponseBody{Capabilities: dot11.CapESS, Status: status, AID: aid}
	respHdr := dot11.Header{Subtype: dot11.SubtypeAssocResp, Addr1: addr, Addr2: r.cfg.BSSID, Addr3: r.cfg.BSSID}
	buf := make([]byte, dot11.HeaderLen, dot11.HeaderLen+16)
	_, _ = respHdr.Encode(buf)
	out := resp.Encode(buf)
	if r.tx != nil {
		r.tx(txqueue.ManagementQID, out)
	}
	if status != dot11.AssocStatusSuccess {
		return wmacerr.ErrCapacity
	}
	return nil
}

func (r *Role) handleDeauth(hdr dot11.Header) error {
	r.mu.Lock()
	delete(r.peers, hdr.Addr2)
	delete(r.powerSave, hdr.Addr2)
	r.mu.Unlock()
	_, _ = r.stas.Remove(hdr.Addr2, nil)
	return nil
}

// handleData bridges a To-DS uplink data MPDU to the Ethernet plane (spec
// §4.8), learning the sending station's address from DHCP/ARP traffic the
// way wlan_mac_eth_util.h's host-address-learning gate does.
func (r *Role) handleData(hdr dot11.Header, payload []byte) error {
	r.mu.Lock()
	_, known := r.peers[hdr.Addr2]
	r.mu.Unlock()
	if !known || !hdr.ToDS {
		return nil
	}
	r.stas.Touch(hdr.Addr2)

	buf := make([]byte, dot11.HeaderLen, dot11.HeaderLen+len(payload))
	_, _ = hdr.Encode(buf)
	eth, err := ethbridge.Decap(ethbridge.RoleAP, append(buf, payload...))
	if err != nil {
		return err
	}
	if ethbridge.IsARP(eth.EtherType) || (ethbridge.IsIP(eth.EtherType) && ethbridge.IsDHCP(eth.Payload)) {
		r.mu.Lock()
		r.hosts[eth.Src] = hdr.Addr2
		r.mu.Unlock()
	}
	if r.data != nil {
		r.data(eth)
	}
	return nil
}

// StationForHost resolves which associated station's queue should carry a
// downlink frame addressed to hostAddr: the station itself if it is
// directly associated, or the station this AP learned hostAddr sits
// behind via DHCP/ARP snooping in handleData (spec §4.8 host-address
// learning).
func (r *Role) StationForHost(hostAddr dot11.Addr) (dot11.Addr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[hostAddr]; ok {
		return hostAddr, true
	}
	sta, ok := r.hosts[hostAddr]
	return sta, ok
}

// sendDeauth builds and transmits a deauth frame to addr, mirroring
// handleAuth/sendAssocResp's frame-building shape.
func (r *Role) sendDeauth(addr dot11.Addr, reason uint16) {
	body := dot11.DeauthDisassocBody{ReasonCode: reason}
	hdr := dot11.Header{Subtype: dot11.SubtypeDeauth, Addr1: addr, Addr2: r.cfg.BSSID, Addr3: r.cfg.BSSID}
	buf := make([]byte, dot11.HeaderLen, dot11.HeaderLen+16)
	_, _ = hdr.Encode(buf)
	out := body.Encode(buf)
	if r.tx != nil {
		r.tx(txqueue.ManagementQID, out)
	}
}

// SweepInactive deauthenticates and removes stations that have exceeded
// the association timeout (spec §4.5 and scenario 3: "send a deauth frame
// [reason=4] and remove").
func (r *Role) SweepInactive(txq *txqueue.Manager) {
	const reasonInactivity = 4
	for _, addr := range r.stas.Expired() {
		r.sendDeauth(addr, reasonInactivity)
		r.mu.Lock()
		delete(r.peers, addr)
		delete(r.powerSave, addr)
		r.mu.Unlock()
		_, _ = r.stas.Remove(addr, txq)
	}
}

// BSSInfo returns the bssstore.Info snapshot this AP advertises about
// itself, for local bookkeeping parity with the STA/IBSS roles.
func (r *Role) BSSInfo() bssstore.Info {
	return bssstore.Info{
		BSSID:          r.cfg.BSSID,
		SSID:           r.cfg.SSID,
		Channel:        r.cfg.Channel,
		Capabilities:   dot11.CapESS,
		BeaconInterval: r.cfg.BeaconInterval,
	}
}
