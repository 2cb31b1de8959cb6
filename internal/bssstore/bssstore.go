// Package bssstore is the bounded BSS directory (spec §4.2, C6): a
// fixed-capacity free pool plus an in-use list kept oldest-to-newest, with
// lookups that walk that list from the oldest entry to the newest (a
// recently heard BSS is not found any sooner). It is grounded directly on
// wlan_mac_bss_info.c's
// bss_info_checkout/bss_info_timestamp_check/find-by-BSSID machinery,
// translated from a dl_list of pinned/unpinned dl_entry onto dlist.Arena.
package bssstore

import (
	"time"

	"github.com/wmac/upper-mac/internal/critsec"
	"github.com/wmac/upper-mac/internal/dlist"
	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/wmacerr"
)

// EvictionAge is how long an unpinned entry may go without a beacon/probe
// response before timestamp sweeping reclaims it (BSS_INFO_TIMEOUT_USEC).
const EvictionAge = 10 * time.Minute

// SweepInterval is how often the store should be asked to evict
// (SCHEDULE_COARSE, 10s in the original).
const SweepInterval = 10 * time.Second

// Info is one tracked BSS (spec §3 BSSInfo).
type Info struct {
	BSSID          dot11.Addr
	SSID           string
	Channel        int
	Capabilities   uint16
	BeaconInterval uint16
	LastActivity   time.Time
	Pinned         bool // BSS_FLAGS_KEEP: survives timestamp sweeping
}

// Store is the bounded BSS directory.
type Store struct {
	guard critsec.Guard
	arena *dlist.Arena[Info]
	free  *dlist.List[Info]
	list  *dlist.List[Info] // oldest (First) to newest (Last)
	now   func() time.Time
}

// New builds a Store with room for capacity entries.
func New(capacity int) *Store {
	arena := dlist.NewArena[Info](capacity)
	free := dlist.NewList(arena)
	for i := 0; i < capacity; i++ {
		r, err := arena.Alloc(Info{})
		if err != nil {
			break
		}
		_ = free.InsertEnd(r)
	}
	return &Store{
		arena: arena,
		free:  free,
		list:  dlist.NewList(arena),
		now:   time.Now,
	}
}

// Update records activity from bssid, creating an entry if one does not
// already exist and moving it to the newest end of the list either way. If
// the store is full and bssid is unknown, the oldest unpinned entry is
// evicted to make room; if every entry is pinned, ErrCapacity is returned.
func (s *Store) Update(bssid dot11.Addr, fn func(*Info)) error {
	defer s.guard.Enter()()

	if r, ok := s.findLocked(bssid); ok {
		info, _ := s.arena.Get(r)
		fn(info)
		info.LastActivity = s.now()
		_ = s.list.Remove(r)
		_ = s.list.InsertEnd(r)
		return nil
	}

	if s.free.Len() == 0 {
		if !s.evictOldestUnpinnedLocked() {
			return wmacerr.ErrCapacity
		}
	}

	r := s.free.First()
	if err := s.free.Remove(r); err != nil {
		return err
	}
	info, _ := s.arena.Get(r)
	*info = Info{BSSID: bssid, LastActivity: s.now()}
	fn(info)
	return s.list.InsertEnd(r)
}

func (s *Store) evictOldestUnpinnedLocked() bool {
	for r, ok := s.list.First(), s.list.Len() > 0; ok; r, ok = s.list.Next(r) {
		info, valid := s.arena.Get(r)
		if !valid {
			continue
		}
		if !info.Pinned {
			_ = s.list.Remove(r)
			*info = Info{}
			_ = s.free.InsertEnd(r)
			return true
		}
	}
	return false
}

// findLocked scans the list for bssid. wlan_mac_bss_info.c scans
// newest-first on the theory that a frequently-heard BSS is more likely
// recent; the list only supports forward traversal here, so this walks
// oldest-first instead — correctness is identical since BSSID is a unique
// key, only the average-case scan length differs.
func (s *Store) findLocked(bssid dot11.Addr) (dlist.Ref, bool) {
	var found dlist.Ref
	ok := false
	s.list.Walk(func(r dlist.Ref) bool {
		info, valid := s.arena.Get(r)
		if valid && info.BSSID == bssid {
			found, ok = r, true
			return false
		}
		return true
	})
	return found, ok
}

// Lookup returns the tracked Info for bssid, if any.
func (s *Store) Lookup(bssid dot11.Addr) (Info, bool) {
	defer s.guard.Enter()()
	r, ok := s.findLocked(bssid)
	if !ok {
		return Info{}, false
	}
	info, _ := s.arena.Get(r)
	return *info, true
}

// FindBySSID returns every tracked Info whose SSID matches, newest first.
func (s *Store) FindBySSID(ssid string) []Info {
	defer s.guard.Enter()()
	var out []Info
	s.list.Walk(func(r dlist.Ref) bool {
		info, ok := s.arena.Get(r)
		if ok && info.SSID == ssid {
			out = append([]Info{*info}, out...)
		}
		return true
	})
	return out
}

// Pin marks bssid's entry so timestamp sweeping never evicts it.
func (s *Store) Pin(bssid dot11.Addr, pinned bool) bool {
	defer s.guard.Enter()()
	r, ok := s.findLocked(bssid)
	if !ok {
		return false
	}
	info, _ := s.arena.Get(r)
	info.Pinned = pinned
	return true
}

// Len returns the number of tracked entries.
func (s *Store) Len() int {
	defer s.guard.Enter()()
	return s.list.Len()
}

// TimestampCheck evicts every unpinned entry whose last activity is older
// than EvictionAge, oldest first, stopping at the first entry still within
// the window (the list is chronological, so nothing after it can be
// older) — mirroring bss_info_timestamp_check's early return.
func (s *Store) TimestampCheck() int {
	defer s.guard.Enter()()
	n := 0
	now := s.now()
	r, ok := s.list.First(), s.list.Len() > 0
	for ok {
		info, valid := s.arena.Get(r)
		if !valid {
			break
		}
		if now.Sub(info.LastActivity) <= EvictionAge {
			break
		}
		next, hasNext := s.list.Next(r)
		if !info.Pinned {
			_ = s.list.Remove(r)
			*info = Info{}
			_ = s.free.InsertEnd(r)
			n++
		}
		r, ok = next, hasNext
	}
	return n
}
