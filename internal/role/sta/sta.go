// Package sta is the STA role top-level state machine (spec §4.12, C14):
// Open auth/assoc initiator (the join package's Authenticator), TSF-less
// beacon tracking, internal disassociate on missed beacons, and bridging
// of From-DS data frames to Ethernet. Grounded on
// wlan_mac_high_sta/wlan_mac_high.c's station-side auth/assoc sequencing
// named in original_source/_INDEX.md.
package sta

import (
	"context"
	"sync"
	"time"

	"github.com/wmac/upper-mac/internal/bssstore"
	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/ethbridge"
	"github.com/wmac/upper-mac/internal/join"
	"github.com/wmac/upper-mac/internal/stastore"
	"github.com/wmac/upper-mac/internal/txqueue"
)

// TxFunc enqueues a built management-frame payload onto the given queue.
type TxFunc func(qid txqueue.QueueID, payload []byte)

// DataFunc receives an Ethernet frame decapsulated from a From-DS data
// MPDU, to be handed to the Ethernet plane.
type DataFunc func(ethbridge.EthFrame)

// Config configures one STA role instance.
type Config struct {
	Addr dot11.Addr
}

// Role drives one STA's management-plane state machine. It implements
// join.Authenticator.
type Role struct {
	mu sync.Mutex

	cfg  Config
	tx   TxFunc
	data DataFunc

	bss           bssstore.Info
	associated    bool
	lastRxBeacon  time.Time
	now           func() time.Time

	pendingAuth  chan dot11.AuthBody
	pendingAssoc chan dot11.AssocResponseBody
}

// New builds a STA Role.
func New(cfg Config, tx TxFunc, data DataFunc) *Role {
	return &Role{
		cfg:          cfg,
		tx:           tx,
		data:         data,
		now:          time.Now,
		pendingAuth:  make(chan dot11.AuthBody, 1),
		pendingAssoc: make(chan dot11.AssocResponseBody, 1),
	}
}

// Authenticate runs the Open-system auth/assoc handshake against bss,
// satisfying join.Authenticator.
func (r *Role) Authenticate(ctx context.Context, bss bssstore.Info) join.RejectCode {
	r.mu.Lock()
	r.bss = bss
	r.mu.Unlock()

	authReq := dot11.AuthBody{Algorithm: dot11.AuthAlgoOpenSystem, SeqNum: 1}
	hdr := dot11.Header{Subtype: dot11.SubtypeAuth, Addr1: bss.BSSID, Addr2: r.cfg.Addr, Addr3: bss.BSSID}
	r.send(hdr, authReq.Encode(nil))

	select {
	case resp := <-r.pendingAuth:
		if resp.Status != dot11.AuthStatusSuccess {
			return join.RejectUnspecified
		}
	case <-ctx.Done():
		return join.RejectTimeout
	case <-time.After(2 * time.Second):
		return join.RejectTimeout
	}

	assocReq := dot11.AssocRequestBody{Capabilities: dot11.CapESS}
	assocHdr := dot11.Header{Subtype: dot11.SubtypeAssocReq, Addr1: bss.BSSID, Addr2: r.cfg.Addr, Addr3: bss.BSSID}
	r.send(assocHdr, assocReq.Encode(nil))

	select {
	case resp := <-r.pendingAssoc:
		if resp.Status != dot11.AssocStatusSuccess {
			if resp.Status == dot11.AssocStatusRefusedCapacity {
				return join.RejectTooManyAssociations
			}
			return join.RejectUnspecified
		}
	case <-ctx.Done():
		return join.RejectTimeout
	case <-time.After(2 * time.Second):
		return join.RejectTimeout
	}

	r.mu.Lock()
	r.associated = true
	r.lastRxBeacon = r.now()
	r.mu.Unlock()
	return join.RejectNone
}

func (r *Role) send(hdr dot11.Header, body []byte) {
	if r.tx == nil {
		return
	}
	buf := make([]byte, dot11.HeaderLen, dot11.HeaderLen+len(body))
	_, _ = hdr.Encode(buf)
	r.tx(txqueue.ManagementQID, append(buf, body...))
}

// Associated reports whether the handshake has completed successfully and
// no disassociate has since been triggered.
func (r *Role) Associated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.associated
}

// BSS returns the bssstore.Info this STA is (or was) authenticating
// against, for the node's Ethernet-uplink encap path.
func (r *Role) BSS() bssstore.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bss
}

// Rx dispatches one received management or data-plane MPDU.
func (r *Role) Rx(hdr dot11.Header, payload []byte) error {
	switch hdr.Subtype {
	case dot11.SubtypeBeacon:
		return r.handleBeacon(hdr)
	case dot11.SubtypeAuth:
		body, err := dot11.DecodeAuthBody(payload)
		if err != nil {
			return err
		}
		select {
		case r.pendingAuth <- body:
		default:
		}
		return nil
	case dot11.SubtypeAssocResp:
		body, err := dot11.DecodeAssocResponseBody(payload)
		if err != nil {
			return err
		}
		select {
		case r.pendingAssoc <- body:
		default:
		}
		return nil
	case dot11.SubtypeData:
		return r.handleData(hdr, payload)
	case dot11.SubtypeDeauth:
		r.mu.Lock()
		r.associated = false
		r.mu.Unlock()
		return nil
	default:
		return nil
	}
}

func (r *Role) handleBeacon(hdr dot11.Header) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hdr.Addr2 != r.bss.BSSID {
		return nil
	}
	r.lastRxBeacon = r.now()
	return nil
}

func (r *Role) handleData(hdr dot11.Header, payload []byte) error {
	// Spec: "Data frames from the DS (From_DS=1, BSSID=addr2) with
	// addr1=self are bridged to Ethernet."
	if !hdr.FromDS || hdr.Addr1 != r.cfg.Addr || hdr.Addr2 != r.bss.BSSID {
		return nil
	}
	eth, err := ethbridge.Decap(ethbridge.RoleSTA, append(headerBytes(hdr), payload...))
	if err != nil {
		return err
	}
	if r.data != nil {
		r.data(eth)
	}
	return nil
}

func headerBytes(hdr dot11.Header) []byte {
	buf := make([]byte, dot11.HeaderLen)
	_, _ = hdr.Encode(buf)
	return buf
}

// CheckAssociationTimeout disassociates internally if no beacon has been
// heard within stastore.AssociationTimeout (spec: "repeated misses past
// association timeout trigger an internal disassociate").
func (r *Role) CheckAssociationTimeout() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.associated {
		return false
	}
	if r.now().Sub(r.lastRxBeacon) > stastore.AssociationTimeout {
		r.associated = false
		return true
	}
	return false
}
