// Package node wires the upper-MAC core's collaborators into one
// cooperative, single-goroutine-driven process (spec §5): packet-buffer
// pool, Tx-queue manager, mailbox link, scheduler, BSS/station/counts
// stores, the event log, one role FSM, the Tx service loop, the host
// command dispatcher, and the platform/radio/Ethernet planes. It is
// grounded on the teacher's top-level main()/server.go composition root
// shape — one process building every collaborator and starting goroutines
// for each concurrent activity — generalized from TNC channels to MAC
// roles.
package node

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/wmac/upper-mac/internal/bssstore"
	"github.com/wmac/upper-mac/internal/config"
	"github.com/wmac/upper-mac/internal/counts"
	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/entrylog"
	"github.com/wmac/upper-mac/internal/ethbridge"
	"github.com/wmac/upper-mac/internal/hostcmd"
	"github.com/wmac/upper-mac/internal/join"
	"github.com/wmac/upper-mac/internal/ltg"
	"github.com/wmac/upper-mac/internal/mailbox"
	"github.com/wmac/upper-mac/internal/pktbuf"
	"github.com/wmac/upper-mac/internal/platform"
	"github.com/wmac/upper-mac/internal/role/ap"
	"github.com/wmac/upper-mac/internal/role/ibss"
	"github.com/wmac/upper-mac/internal/role/sta"
	"github.com/wmac/upper-mac/internal/scan"
	"github.com/wmac/upper-mac/internal/sched"
	"github.com/wmac/upper-mac/internal/stastore"
	"github.com/wmac/upper-mac/internal/txqueue"
	"github.com/wmac/upper-mac/internal/txservice"
	"github.com/wmac/upper-mac/internal/wlog"
	"github.com/wmac/upper-mac/internal/wmacerr"
)

// staUplinkQID is the fixed Tx queue a STA role's uplink data frames use.
// A STA has exactly one peer (its AP) rather than a dynamic set of
// stations, so it needs no per-peer allocation from stastore: it borrows
// the same id space a station with id=1 would get.
const staUplinkQID = txqueue.QueueID(txqueue.StationQueueOffset + 1)

// JoinTimeout bounds how long a STA or IBSS role spends scanning for a
// matching BSS before giving up (spec §4.11 join FSM).
const JoinTimeout = 30 * time.Second

// macClock is the settable MAC-time (TSF) collaborator named in spec §6's
// timer plane (mac_time_usec/set_mac_time_usec), distinct from the
// scheduler's own clock source: it satisfies ibss.TimeFunc for TSF resync
// (spec §4.12 IBSS behavior).
type macClock struct {
	mu       sync.Mutex
	base     time.Time
	offsetUs int64
}

func newMACClock() *macClock {
	return &macClock{base: time.Now()}
}

func (c *macClock) NowUs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(time.Since(c.base).Microseconds() + c.offsetUs)
}

func (c *macClock) SetUs(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsetUs = int64(v) - time.Since(c.base).Microseconds()
}

// WatchdogInterval is how often Run sweeps the BSS store for stale entries
// and checks stations for inactivity. The counts store is not swept.
const WatchdogInterval = 10 * time.Second

// roleFSM is the common surface every role implementation exposes to the
// node, beyond its own role-specific public API.
type roleFSM interface {
	Rx(hdr dot11.Header, payload []byte) error
}

// Node owns one running instance of the upper-MAC core.
type Node struct {
	cfg config.Node
	log *wlog.Logger

	sched  *sched.Scheduler
	pool   *pktbuf.Pool
	txq    *txqueue.Manager
	link   *mailbox.Link
	bsses  *bssstore.Store
	stas   *stastore.Store
	cnts   *counts.Store
	elog   *entrylog.Log
	dsp    *hostcmd.Dispatcher

	radio platform.RadioPlane
	eth   platform.EthernetPlane

	role    roleFSM
	apRole  *ap.Role
	staRole *sta.Role
	ibssRole *ibss.Role

	scanner *scan.FSM
	clock   *macClock

	txsvc *txservice.Loop
	ltg   *ltg.Manager
}

// New builds a Node from cfg, wiring every collaborator but starting
// nothing yet; call Run to start the cooperative main loop.
func New(cfg config.Node, radio platform.RadioPlane, eth platform.EthernetPlane) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{
		cfg:   cfg,
		log:   wlog.Default("node"),
		sched: sched.New(sched.NewRealClock()),
		pool:  pktbuf.NewPool(),
		bsses: bssstore.New(16),
		stas:  stastore.New(cfg.MaxAssociations),
		cnts:  counts.New(64),
		elog:  entrylog.New(cfg.LogCapacity),
		dsp:   hostcmd.NewDispatcher(),
		radio: radio,
		eth:   eth,
	}
	n.link = mailbox.NewLink(32)
	n.txq = txqueue.NewManager(256, n.onQueueStateChange)
	n.clock = newMACClock()

	bssid, bssidErr := parseAddr(cfg.BSSID)
	selfAddr, selfErr := parseAddr(cfg.SelfAddr)

	fixedOrder := []txqueue.QueueID{txqueue.BeaconQID, txqueue.ManagementQID, txqueue.MCastQID}

	switch cfg.Role {
	case config.RoleAP:
		if bssidErr != nil {
			return nil, fmt.Errorf("node: bssid: %w", bssidErr)
		}
		bssCfg := ap.Config{
			BSSID:           bssid,
			SSID:            cfg.SSID,
			Channel:         cfg.Channel,
			BeaconInterval:  uint16(cfg.BeaconInterval),
			DTIMPeriod:      cfg.DTIMPeriod,
			MaxAssociations: cfg.MaxAssociations,
		}
		n.apRole = ap.New(n.sched, bssCfg, n.apTx, n.bridgeToEthernet, n.stas, n.cnts)
		n.role = n.apRole
	case config.RoleSTA:
		if selfErr != nil {
			return nil, fmt.Errorf("node: self_addr: %w", selfErr)
		}
		staCfg := sta.Config{Addr: selfAddr}
		n.staRole = sta.New(staCfg, n.staTx, n.bridgeToEthernet)
		n.role = n.staRole
		fixedOrder = append(fixedOrder, staUplinkQID)
	case config.RoleIBSS:
		if selfErr != nil {
			return nil, fmt.Errorf("node: self_addr: %w", selfErr)
		}
		ibssCfg := ibss.Config{Addr: selfAddr, SSID: cfg.SSID, Channel: cfg.Channel, BeaconInterval: uint16(cfg.BeaconInterval)}
		n.ibssRole = ibss.New(n.sched, ibssCfg, n.ibssTx, n.bridgeToEthernet, n.clock, n.stas)
		n.role = n.ibssRole
	default:
		return nil, fmt.Errorf("node: unknown role %q", cfg.Role)
	}

	n.txsvc = txservice.New(n.txq, n.pool, n.link.HighSide(), n.cnts, n.elog, n.stationLookup, fixedOrder, n.stationQueueOrder, n.txGate)
	n.ltg = ltg.NewManager(n.sched, n.clock, sched.Fine, n.ltgEmit, n.associatedAddrs)

	if cfg.Role == config.RoleSTA || cfg.Role == config.RoleIBSS {
		n.scanner = scan.New(n.sched, n.radio, n.txq, n.buildProbeRequest)
	}

	n.registerHostCommands()
	return n, nil
}

// buildProbeRequest builds one probe-request MPDU for ssid, satisfying
// scan.ProbeBuilder (spec §4.10). Only built for STA/IBSS nodes, whose
// own address always comes from cfg.SelfAddr.
func (n *Node) buildProbeRequest(ssid string) []byte {
	body := dot11.ProbeRequestBody{}
	body.IEs = dot11.AppendIE(body.IEs, dot11.IESSID, []byte(ssid))
	broadcast := dot11.Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	self, _ := parseAddr(n.cfg.SelfAddr)
	hdr := dot11.Header{Subtype: dot11.SubtypeProbeReq, Addr1: broadcast, Addr2: self, Addr3: broadcast}
	buf := make([]byte, dot11.HeaderLen, dot11.HeaderLen+len(body.IEs))
	_, _ = hdr.Encode(buf)
	return body.Encode(buf)
}

// joinParams builds the scan parameters a STA/IBSS role joins with,
// scoped to the node's configured operating channel and SSID.
func (n *Node) joinParams() scan.Params {
	return scan.Params{
		Channels:          []int{n.cfg.Channel},
		DwellUs:           100000,
		IdleUs:            10000,
		ProbeTxIntervalUs: 20000,
		SSID:              n.cfg.SSID,
	}
}

func parseAddr(s string) (dot11.Addr, error) {
	var a dot11.Addr
	if s == "" {
		return a, fmt.Errorf("empty address")
	}
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x", &a[0], &a[1], &a[2], &a[3], &a[4], &a[5])
	if err != nil || n != 6 {
		return a, fmt.Errorf("malformed MAC address %q", s)
	}
	return a, nil
}

// onQueueStateChange is the Tx-queue manager's StateChange callback,
// mirroring the Ethernet bridge's backpressure hook from spec §4.3; the
// node only logs transitions for now, since the bridge itself lives in
// each role's TxFunc/DataFunc closures.
func (n *Node) onQueueStateChange(ch txqueue.StateChange) {
	n.log.Debug("tx queue state change", "queue", ch.Queue, "was_empty", ch.WasEmpty, "now_empty", ch.NowEmpty)
}

// enqueue copies payload into a fresh Tx-queue element and appends it to
// qid, the shared mechanism behind every role's TxFunc.
func (n *Node) enqueue(qid txqueue.QueueID, payload []byte) error {
	ref, err := n.txq.Checkout()
	if err != nil {
		return err
	}
	el, err := n.txq.Get(ref)
	if err != nil {
		_ = n.txq.Checkin(ref)
		return err
	}
	el.Length = copy(el.Payload[:], payload)
	el.MetaKind = txqueue.MetaIgnore
	return n.txq.EnqueueTail(qid, ref)
}

func (n *Node) apTx(qid txqueue.QueueID, payload []byte) {
	if err := n.enqueue(qid, payload); err != nil {
		n.log.Warn("ap tx enqueue failed", "queue", qid, "err", err)
	}
}

func (n *Node) staTx(qid txqueue.QueueID, payload []byte) {
	if err := n.enqueue(qid, payload); err != nil {
		n.log.Warn("sta tx enqueue failed", "queue", qid, "err", err)
	}
}

func (n *Node) ibssTx(qid txqueue.QueueID, payload []byte, flags uint32) {
	if err := n.enqueue(qid, payload); err != nil {
		n.log.Warn("ibss tx enqueue failed", "queue", qid, "err", err)
	}
}

// bridgeToEthernet is the DataFunc of every role (AP, STA and IBSS),
// forwarding a decapsulated frame to the wired Ethernet plane (spec §4.8).
func (n *Node) bridgeToEthernet(eth ethbridge.EthFrame) {
	if n.eth == nil {
		return
	}
	frame := make([]byte, 0, 14+len(eth.Payload))
	frame = append(frame, eth.Dest[:]...)
	frame = append(frame, eth.Src[:]...)
	frame = append(frame, byte(eth.EtherType>>8), byte(eth.EtherType))
	frame = append(frame, eth.Payload...)
	if err := n.eth.Send(context.Background(), frame); err != nil {
		n.log.Warn("ethernet send failed", "err", err)
	}
}

// stationLookup satisfies txservice.StationLookup: the node has no
// explicit purge-pending flag on stastore.Station today, so it reports
// every owned queue as not-purging; a station actually being removed goes
// through stastore.Remove, which purges its queue directly via
// txqueue.Manager.Purge rather than relying on this callback.
func (n *Node) stationLookup(qid txqueue.QueueID) (dot11.Addr, bool, bool) {
	for _, s := range n.stas.All() {
		if txqueue.StationQueueID(s.ID) == qid {
			return s.Addr, false, true
		}
	}
	return dot11.Addr{}, false, false
}

// stationQueueOrder satisfies txservice.StationQueuesFunc: every currently
// associated station's per-station unicast queue (spec §4.13: "round-robin
// over {Beacon, Management, Multicast, per-station data queues}").
func (n *Node) stationQueueOrder() []txqueue.QueueID {
	stas := n.stas.All()
	out := make([]txqueue.QueueID, 0, len(stas))
	for _, s := range stas {
		out = append(out, txqueue.StationQueueID(s.ID))
	}
	return out
}

// txGate satisfies txservice.GateFunc: the multicast queue is held closed
// while the AP role reports any associated station in power-save, opening
// only during the DTIM drain window (spec §4.3). Every other queue, and
// every queue on a non-AP node, is always open.
func (n *Node) txGate(qid txqueue.QueueID) bool {
	if qid != txqueue.MCastQID || n.apRole == nil {
		return true
	}
	return n.apRole.MulticastGateOpen(n.txq)
}

// isMulticastAddr reports whether addr is a group address (IEEE 802:
// group/individual bit is the LSB of the first octet).
func isMulticastAddr(addr dot11.Addr) bool {
	return addr[0]&0x01 != 0
}

// encapAndEnqueueDown builds a downlink 802.11 data MPDU from eth, bound
// for dest, and enqueues it onto whichever Tx queue reaches dest under the
// node's active role (spec §4.8/§4.9: the same encap path serves both the
// Ethernet bridge and the LTG).
func (n *Node) encapAndEnqueueDown(dest dot11.Addr, eth ethbridge.EthFrame) {
	switch n.cfg.Role {
	case config.RoleAP:
		if n.apRole == nil {
			return
		}
		bssid := n.apRole.BSSInfo().BSSID
		if isMulticastAddr(dest) {
			n.enqueueEncap(ethbridge.RoleAP, bssid, dest, txqueue.MCastQID, eth)
			return
		}
		staAddr, ok := n.apRole.StationForHost(dest)
		if !ok {
			return
		}
		sta, ok := n.stas.Lookup(staAddr)
		if !ok {
			return
		}
		n.enqueueEncap(ethbridge.RoleAP, bssid, staAddr, txqueue.StationQueueID(sta.ID), eth)
	case config.RoleSTA:
		if n.staRole == nil || !n.staRole.Associated() {
			return
		}
		bssid := n.staRole.BSS().BSSID
		n.enqueueEncap(ethbridge.RoleSTA, bssid, bssid, staUplinkQID, eth)
	case config.RoleIBSS:
		if n.ibssRole == nil {
			return
		}
		qid := txqueue.MCastQID
		if !isMulticastAddr(dest) {
			if sta, ok := n.stas.Lookup(dest); ok {
				qid = txqueue.StationQueueID(sta.ID)
			}
		}
		n.enqueueEncap(ethbridge.RoleIBSS, n.ibssRole.BSSID(), dest, qid, eth)
	}
}

func (n *Node) enqueueEncap(role ethbridge.Role, bssid, peer dot11.Addr, qid txqueue.QueueID, eth ethbridge.EthFrame) {
	mpdu := ethbridge.Encap(role, bssid, peer, eth)
	if err := n.enqueue(qid, mpdu); err != nil {
		n.log.Warn("ethernet encap enqueue failed", "queue", qid, "err", err)
	}
}

// ltgEmit satisfies ltg.EmitFunc: wraps a generated LTG payload as an
// Ethernet frame carrying the LTG ethertype and pushes it down the same
// encap path as bridged Ethernet traffic (spec §4.9).
func (n *Node) ltgEmit(ltgID uint32, dest dot11.Addr, payload []byte, arg any) {
	self, _ := parseAddr(n.cfg.SelfAddr)
	eth := ethbridge.EthFrame{Dest: dest, Src: self, EtherType: ltg.EtherType, Payload: payload}
	n.encapAndEnqueueDown(dest, eth)
}

// associatedAddrs satisfies ltg.AssociatedFunc.
func (n *Node) associatedAddrs() []dot11.Addr {
	stas := n.stas.All()
	out := make([]dot11.Addr, 0, len(stas))
	for _, s := range stas {
		out = append(out, s.Addr)
	}
	return out
}

// ethRecvLoop pumps frames off the wired Ethernet plane and bridges them
// onto the wireless side (spec §4.8 downlink direction), stopping when ctx
// is cancelled or the plane's Recv returns an error.
func (n *Node) ethRecvLoop(ctx context.Context) {
	for {
		frame, err := n.eth.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				n.log.Warn("ethernet recv failed", "err", err)
			}
			return
		}
		eth, err := ethbridge.ParseEthFrame(frame)
		if err != nil {
			n.log.Debug("ethernet parse failed", "err", err)
			continue
		}
		n.encapAndEnqueueDown(eth.Dest, eth)
	}
}

func (n *Node) registerHostCommands() {
	n.dsp.Register(hostcmd.CommandID{Group: hostcmd.GroupNode, Cmd: 1}, n.cmdNodeInfo)
	n.dsp.Register(hostcmd.CommandID{Group: hostcmd.GroupNode, Cmd: 2}, n.cmdCountsReset)
	n.dsp.Register(hostcmd.CommandID{Group: hostcmd.GroupNode, Cmd: 3}, n.cmdStationList)
	n.dsp.Register(hostcmd.CommandID{Group: hostcmd.GroupLTG, Cmd: 1}, n.cmdLTGAdd)
	n.dsp.Register(hostcmd.CommandID{Group: hostcmd.GroupLTG, Cmd: 2}, n.cmdLTGRemove)
}

func (n *Node) cmdNodeInfo(payload []byte) ([]byte, error) {
	return []byte(n.cfg.SSID), nil
}

func (n *Node) cmdCountsReset(payload []byte) ([]byte, error) {
	n.cnts.Reset()
	return nil, nil
}

func (n *Node) cmdStationList(payload []byte) ([]byte, error) {
	stas := n.stas.All()
	out := make([]byte, 0, len(stas)*6)
	for _, s := range stas {
		out = append(out, s.Addr[:]...)
	}
	return out, nil
}

// ltgAddPayloadLen is the wire size of a GroupLTG Add command: Kind(1) +
// TargetKind(1) + Addr(6) + PayloadKind(1) + MinLen(2) + MaxLen(2) +
// Interval/MinIntervalUs(8) + MaxIntervalUs(8) + MaxCalls(4) + StopAtUs(8),
// all little-endian per the dispatcher's payload convention.
const ltgAddPayloadLen = 1 + 1 + 6 + 1 + 2 + 2 + 8 + 8 + 4 + 8

func (n *Node) cmdLTGAdd(payload []byte) ([]byte, error) {
	if len(payload) != ltgAddPayloadLen {
		return nil, wmacerr.ErrProtocolViolation
	}
	var addr dot11.Addr
	copy(addr[:], payload[2:8])
	sc := ltg.Schedule{
		Kind: ltg.Kind(payload[0]),
		Descriptor: ltg.Descriptor{
			Target:  ltg.TargetKind(payload[1]),
			Addr:    addr,
			Payload: ltg.PayloadKind(payload[8]),
			MinLen:  int(binary.LittleEndian.Uint16(payload[9:11])),
			MaxLen:  int(binary.LittleEndian.Uint16(payload[11:13])),
		},
	}
	interval := binary.LittleEndian.Uint64(payload[13:21])
	if sc.Kind == ltg.Periodic {
		sc.IntervalUs = interval
	} else {
		sc.MinIntervalUs = interval
	}
	sc.MaxIntervalUs = binary.LittleEndian.Uint64(payload[21:29])
	sc.MaxCalls = int(binary.LittleEndian.Uint32(payload[29:33]))
	sc.StopAtUs = binary.LittleEndian.Uint64(payload[33:41])

	id, err := n.ltg.Add(sc)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, id)
	return out, nil
}

func (n *Node) cmdLTGRemove(payload []byte) ([]byte, error) {
	if len(payload) != 4 {
		return nil, wmacerr.ErrProtocolViolation
	}
	id := binary.LittleEndian.Uint32(payload)
	return nil, n.ltg.Remove(id)
}

// Dispatcher exposes the host command dispatcher so a transport (TCP
// listener, discovery-announced service, …) can feed it incoming frames.
func (n *Node) Dispatcher() *hostcmd.Dispatcher { return n.dsp }

// Rx feeds one received MPDU into the active role FSM.
func (n *Node) Rx(hdr dot11.Header, payload []byte) error {
	return n.role.Rx(hdr, payload)
}

// Run starts the scheduler, the Tx service loop, and the watchdog sweep,
// blocking until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	n.sched.Start(ctx)

	if n.apRole != nil {
		n.apRole.Start(ctx)
	}

	if n.scanner != nil {
		go n.joinOnce(ctx)
	}

	if n.eth != nil {
		go n.ethRecvLoop(ctx)
	}

	watchdog := time.NewTicker(WatchdogInterval)
	defer watchdog.Stop()

	txTick := time.NewTicker(time.Millisecond)
	defer txTick.Stop()

	for {
		select {
		case <-ctx.Done():
			n.sched.Wait()
			return ctx.Err()
		case <-watchdog.C:
			n.bsses.TimestampCheck()
			n.sweepStations()
		case <-txTick.C:
			if _, err := n.txsvc.ServiceOnce(ctx); err != nil {
				n.log.Debug("tx service", "err", err)
			}
		}
	}
}

// joinOnce runs the scan-then-join FSM once at startup for STA/IBSS roles
// (spec §4.11); an AP never scans or joins, it originates its own BSS.
func (n *Node) joinOnce(ctx context.Context) {
	var mode join.Mode
	var auth join.Authenticator
	var adopt join.Adopter
	switch n.cfg.Role {
	case config.RoleSTA:
		mode = join.ModeSTA
		auth = n.staRole
	case config.RoleIBSS:
		mode = join.ModeIBSS
		adopt = n.ibssRole
	default:
		return
	}

	result := join.Run(ctx, mode, n.scanner, n.bsses, n.joinParams(), n.cfg.Channel, JoinTimeout, auth, adopt)
	if !result.Success {
		n.log.Warn("join failed", "reject", result.Reject)
		return
	}
	n.log.Info("joined bss", "bssid", result.BSS.BSSID)
}

func (n *Node) sweepStations() {
	if n.apRole != nil {
		n.apRole.SweepInactive(n.txq)
	}
	if n.staRole != nil && n.staRole.CheckAssociationTimeout() {
		n.log.Warn("association timed out", "bssid", n.staRole.BSS().BSSID)
	}
}
