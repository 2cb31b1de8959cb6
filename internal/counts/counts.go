// Package counts is the per-address Tx/Rx counters store (spec §4.6, C8):
// one record per address seen (associated or not), split into data and
// management frame-class sub-counters, with duplicate detection against
// the retry bit and last-seen sequence number. It is grounded directly on
// wlan_mac_counts_txrx.c: a bounded free-pool + chronological list
// identical in shape to bssstore, the same "dedupe on RETRY flag + last
// rx_seq" rule, and the same "oldest entry gets recycled when full and the
// address is new" admission policy.
package counts

import (
	"time"

	"github.com/wmac/upper-mac/internal/critsec"
	"github.com/wmac/upper-mac/internal/dlist"
	"github.com/wmac/upper-mac/internal/dot11"
)

// FrameClass distinguishes data frames from management frames, matching
// the original's separate `data`/`mgmt` frame_counts_txrx_t sub-structs.
type FrameClass int

const (
	ClassData FrameClass = iota
	ClassMgmt
)

// FrameCounts mirrors frame_counts_txrx_t.
type FrameCounts struct {
	RxBytes          uint64 // de-duplicated
	RxBytesTotal     uint64 // including duplicates
	TxBytesSuccess   uint64
	TxBytesTotal     uint64
	RxPackets        uint32
	RxPacketsTotal   uint32
	TxPacketsSuccess uint32
	TxPacketsTotal   uint32
	TxAttempts       uint64
}

// Record is one address's counters (spec §3 Counts).
type Record struct {
	Addr         dot11.Addr
	Pinned       bool // COUNTS_TXRX_FLAGS_KEEP: survives Reset
	Data         FrameCounts
	Mgmt         FrameCounts
	LatestTxRx   time.Time
	RxLatestSeq  uint16
	hasLatestSeq bool
}

func (r *Record) classCounts(c FrameClass) *FrameCounts {
	if c == ClassMgmt {
		return &r.Mgmt
	}
	return &r.Data
}

// Store is the bounded counts directory.
type Store struct {
	guard critsec.Guard
	arena *dlist.Arena[Record]
	free  *dlist.List[Record]
	list  *dlist.List[Record] // oldest (First) to newest (Last)
	now   func() time.Time
}

// New builds a Store with room for capacity addresses.
func New(capacity int) *Store {
	arena := dlist.NewArena[Record](capacity)
	free := dlist.NewList(arena)
	for i := 0; i < capacity; i++ {
		r, err := arena.Alloc(Record{})
		if err != nil {
			break
		}
		_ = free.InsertEnd(r)
	}
	return &Store{arena: arena, free: free, list: dlist.NewList(arena), now: time.Now}
}

func (s *Store) findLocked(addr dot11.Addr) (dlist.Ref, bool) {
	var found dlist.Ref
	ok := false
	s.list.Walk(func(r dlist.Ref) bool {
		rec, valid := s.arena.Get(r)
		if valid && rec.Addr == addr {
			found, ok = r, true
			return false
		}
		return true
	})
	return found, ok
}

// acquireLocked finds or creates the record for addr, recycling the oldest
// entry when the pool is exhausted and addr is new (matching
// find_counts_txrx_oldest's reallocation path). The record is always
// moved/inserted at the newest end.
func (s *Store) acquireLocked(addr dot11.Addr) *Record {
	if r, ok := s.findLocked(addr); ok {
		rec, _ := s.arena.Get(r)
		_ = s.list.Remove(r)
		_ = s.list.InsertEnd(r)
		return rec
	}

	var r dlist.Ref
	switch {
	case s.free.Len() > 0:
		r = s.free.First()
		_ = s.free.Remove(r)
	default:
		oldest, ok := s.oldestUnpinnedLocked()
		if !ok {
			return nil
		}
		r = oldest
		_ = s.list.Remove(r)
	}
	rec, _ := s.arena.Get(r)
	*rec = Record{Addr: addr}
	_ = s.list.InsertEnd(r)
	return rec
}

func (s *Store) oldestUnpinnedLocked() (dlist.Ref, bool) {
	var found dlist.Ref
	ok := false
	s.list.Walk(func(r dlist.Ref) bool {
		rec, valid := s.arena.Get(r)
		if valid && !rec.Pinned {
			found, ok = r, true
			return false
		}
		return true
	})
	return found, ok
}

// RecordTx updates Tx counters for addr (success indicates the frame was
// ultimately ACKed/delivered, as opposed to exhausting retries).
func (s *Store) RecordTx(addr dot11.Addr, class FrameClass, length int, attempts int, success bool) {
	defer s.guard.Enter()()
	rec := s.acquireLocked(addr)
	if rec == nil {
		return
	}
	rec.LatestTxRx = s.now()
	fc := rec.classCounts(class)
	fc.TxPacketsTotal++
	fc.TxBytesTotal += uint64(length)
	fc.TxAttempts += uint64(attempts)
	if success {
		fc.TxPacketsSuccess++
		fc.TxBytesSuccess += uint64(length)
	}
}

// RecordRx updates Rx counters for addr. retry and seqNum drive the
// duplicate filter exactly as in counts_txrx_rx_process: a reception is a
// duplicate iff the retry bit is set AND seqNum matches the address's
// last-seen sequence number. Only data and management frames are counted
// (control frames have no address_2 to key on, matching the original's
// pkt_type exclusion).
func (s *Store) RecordRx(addr dot11.Addr, class FrameClass, length int, retry bool, seqNum uint16) (duplicate bool) {
	defer s.guard.Enter()()
	rec := s.acquireLocked(addr)
	if rec == nil {
		return false
	}
	rec.LatestTxRx = s.now()
	fc := rec.classCounts(class)
	fc.RxPacketsTotal++
	fc.RxBytesTotal += uint64(length)

	duplicate = rec.hasLatestSeq && retry && rec.RxLatestSeq == seqNum
	if !duplicate {
		fc.RxPackets++
		fc.RxBytes += uint64(length)
	}
	rec.RxLatestSeq = seqNum
	rec.hasLatestSeq = true
	return duplicate
}

// Lookup returns a snapshot of addr's counters, if tracked.
func (s *Store) Lookup(addr dot11.Addr) (Record, bool) {
	defer s.guard.Enter()()
	r, ok := s.findLocked(addr)
	if !ok {
		return Record{}, false
	}
	rec, _ := s.arena.Get(r)
	return *rec, true
}

// Pin marks addr's record so Reset leaves it untouched.
func (s *Store) Pin(addr dot11.Addr, pinned bool) bool {
	defer s.guard.Enter()()
	r, ok := s.findLocked(addr)
	if !ok {
		return false
	}
	rec, _ := s.arena.Get(r)
	rec.Pinned = pinned
	return true
}

// Len returns the number of tracked records.
func (s *Store) Len() int {
	defer s.guard.Enter()()
	return s.list.Len()
}

// Reset zeroes every unpinned record's counters in place (counts_txrx_zero_all),
// leaving pinned records and the set of tracked addresses untouched.
func (s *Store) Reset() {
	defer s.guard.Enter()()
	s.list.Walk(func(r dlist.Ref) bool {
		rec, ok := s.arena.Get(r)
		if ok && !rec.Pinned {
			addr := rec.Addr
			pinned := rec.Pinned
			*rec = Record{Addr: addr, Pinned: pinned}
		}
		return true
	})
}
