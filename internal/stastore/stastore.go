// Package stastore is the per-BSS station-info store (spec §4.5, C7): a
// bounded list of associated peers keyed by address, each assigned a
// unique 1..max id used directly as its Tx-queue suffix. It is grounded
// on the same dl_entry-pool shape as bssstore/wlan_mac_bss_info.c, with
// id allocation and the AP inactivity sweep generalized from the
// station_info bookkeeping described for AP/IBSS roles.
package stastore

import (
	"time"

	"github.com/wmac/upper-mac/internal/critsec"
	"github.com/wmac/upper-mac/internal/dlist"
	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/pktbuf"
	"github.com/wmac/upper-mac/internal/txqueue"
	"github.com/wmac/upper-mac/internal/wmacerr"
)

// AnyID requests automatic id allocation from Add.
const AnyID = 0

// AssociationTimeout is how long an AP-role station may go without
// activity before the inactivity sweeper deauthenticates it.
const AssociationTimeout = 5 * time.Minute

// Station is one associated peer.
type Station struct {
	Addr         dot11.Addr
	ID           int
	TxParams     pktbuf.TxParams // negotiated per-peer rate/antenna/power (spec §3)
	LastActivity time.Time
	SeqNum       uint16 // not written by this package or its callers; duplicate filtering uses counts.Store (C8)
}

// Store is one BSS's station list.
type Store struct {
	guard             critsec.Guard
	arena             *dlist.Arena[Station]
	free              *dlist.List[Station]
	list              *dlist.List[Station]
	maxAssociations   int
	disableAssocCheck bool
	usedIDs           map[int]bool
	now               func() time.Time
}

// New builds a Store bounded to maxAssociations peers.
func New(maxAssociations int) *Store {
	arena := dlist.NewArena[Station](maxAssociations)
	free := dlist.NewList(arena)
	for i := 0; i < maxAssociations; i++ {
		r, err := arena.Alloc(Station{})
		if err != nil {
			break
		}
		_ = free.InsertEnd(r)
	}
	return &Store{
		arena:           arena,
		free:            free,
		list:            dlist.NewList(arena),
		maxAssociations: maxAssociations,
		usedIDs:         make(map[int]bool),
		now:             time.Now,
	}
}

// SetDisableAssocCheck controls whether the inactivity sweeper may
// deauthenticate idle peers (DISABLE_ASSOC_CHECK).
func (s *Store) SetDisableAssocCheck(v bool) {
	defer s.guard.Enter()()
	s.disableAssocCheck = v
}

// Add ensures a station exists for addr, assigning requestedID (or the
// next free id in [1..max] when requestedID is AnyID). Returns
// wmacerr.ErrCapacity if the store is full and addr is new, or
// wmacerr.ErrInvalidBuf if requestedID is already taken by another
// address.
func (s *Store) Add(addr dot11.Addr, requestedID int) (Station, error) {
	defer s.guard.Enter()()

	if r, ok := s.findByAddrLocked(addr); ok {
		st, _ := s.arena.Get(r)
		st.LastActivity = s.now()
		return *st, nil
	}

	id := requestedID
	if id == AnyID {
		id = s.nextFreeIDLocked()
		if id == 0 {
			return Station{}, wmacerr.ErrCapacity
		}
	} else if s.usedIDs[id] {
		return Station{}, wmacerr.ErrInvalidBuf
	}

	if s.free.Len() == 0 {
		return Station{}, wmacerr.ErrCapacity
	}
	r := s.free.First()
	if err := s.free.Remove(r); err != nil {
		return Station{}, err
	}
	st, _ := s.arena.Get(r)
	*st = Station{Addr: addr, ID: id, LastActivity: s.now()}
	if err := s.list.InsertEnd(r); err != nil {
		return Station{}, err
	}
	s.usedIDs[id] = true
	return *st, nil
}

func (s *Store) nextFreeIDLocked() int {
	for id := 1; id <= s.maxAssociations; id++ {
		if !s.usedIDs[id] {
			return id
		}
	}
	return 0
}

func (s *Store) findByAddrLocked(addr dot11.Addr) (dlist.Ref, bool) {
	var found dlist.Ref
	ok := false
	s.list.Walk(func(r dlist.Ref) bool {
		st, valid := s.arena.Get(r)
		if valid && st.Addr == addr {
			found, ok = r, true
			return false
		}
		return true
	})
	return found, ok
}

// Lookup returns the Station for addr, if associated.
func (s *Store) Lookup(addr dot11.Addr) (Station, bool) {
	defer s.guard.Enter()()
	r, ok := s.findByAddrLocked(addr)
	if !ok {
		return Station{}, false
	}
	st, _ := s.arena.Get(r)
	return *st, true
}

// Touch refreshes addr's last-activity timestamp (called on any Rx from
// that peer).
func (s *Store) Touch(addr dot11.Addr) bool {
	defer s.guard.Enter()()
	r, ok := s.findByAddrLocked(addr)
	if !ok {
		return false
	}
	st, _ := s.arena.Get(r)
	st.LastActivity = s.now()
	return true
}

// Remove tears down addr's per-peer Tx queue via txq.Purge and releases
// the record. Returns the station's id and whether it was present.
func (s *Store) Remove(addr dot11.Addr, txq *txqueue.Manager) (id int, removed bool) {
	defer s.guard.Enter()()
	r, ok := s.findByAddrLocked(addr)
	if !ok {
		return 0, false
	}
	st, _ := s.arena.Get(r)
	id = st.ID
	if txq != nil {
		txq.Purge(txqueue.StationQueueID(id))
	}
	_ = s.list.Remove(r)
	delete(s.usedIDs, id)
	*st = Station{}
	_ = s.free.InsertEnd(r)
	return id, true
}

// Len returns the number of associated stations.
func (s *Store) Len() int {
	defer s.guard.Enter()()
	return s.list.Len()
}

// MaxAssociations returns the store's configured capacity.
func (s *Store) MaxAssociations() int {
	return s.maxAssociations
}

// All returns a snapshot of every associated station.
func (s *Store) All() []Station {
	defer s.guard.Enter()()
	out := make([]Station, 0, s.list.Len())
	s.list.Walk(func(r dlist.Ref) bool {
		st, ok := s.arena.Get(r)
		if ok {
			out = append(out, *st)
		}
		return true
	})
	return out
}

// Expired returns the addresses of stations idle longer than
// AssociationTimeout, for the caller to deauthenticate and Remove. Returns
// nothing if DISABLE_ASSOC_CHECK is set.
func (s *Store) Expired() []dot11.Addr {
	defer s.guard.Enter()()
	if s.disableAssocCheck {
		return nil
	}
	now := s.now()
	var out []dot11.Addr
	s.list.Walk(func(r dlist.Ref) bool {
		st, ok := s.arena.Get(r)
		if ok && now.Sub(st.LastActivity) > AssociationTimeout {
			out = append(out, st.Addr)
		}
		return true
	})
	return out
}
