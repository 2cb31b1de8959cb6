// Package dlist is an intrusive doubly-linked list, re-architected per the
// spec's REDESIGN FLAGS away from the teacher's raw-pointer
// wlan_mac_dl_list.c idiom: entries live in a fixed-capacity arena and are
// addressed by a stable Ref (index + generation), so a stale reference to a
// removed entry fails loudly (ErrStale) rather than silently walking
// freed/reused memory. Critical sections are a critsec.Guard rather than a
// global interrupt mask.
package dlist

import (
	"errors"

	"github.com/wmac/upper-mac/internal/critsec"
)

// ErrStale means a Ref was reused (the slot's generation no longer
// matches) or was never allocated.
var ErrStale = errors.New("dlist: stale reference")

// ErrFull means the arena has no free slots.
var ErrFull = errors.New("dlist: arena full")

// Ref addresses one entry in an Arena. The zero Ref is never a valid
// allocated entry (generation 0 is reserved for "never used").
type Ref struct {
	idx uint32
	gen uint32
}

// Nil is the zero Ref, used as a list terminator.
var Nil = Ref{}

// IsNil reports whether r is the terminator value.
func (r Ref) IsNil() bool { return r == Nil }

type entry[T any] struct {
	next, prev Ref
	data       T
	gen        uint32
	allocated  bool
}

// Arena is a fixed-capacity pool of entries carrying payload T. Mutating
// methods and Get hold an internal guard; the pointer Get returns is used
// outside that guard and should not be retained across a later Free of the
// same Ref.
type Arena[T any] struct {
	guard   critsec.Guard
	entries []entry[T]
	free    []uint32
	nextGen uint32
}

// NewArena allocates an arena with room for capacity entries.
func NewArena[T any](capacity int) *Arena[T] {
	a := &Arena[T]{
		entries: make([]entry[T], capacity),
		free:    make([]uint32, capacity),
		nextGen: 1,
	}
	for i := range a.free {
		a.free[i] = uint32(capacity - 1 - i)
	}
	return a
}

// Cap returns the arena's fixed capacity.
func (a *Arena[T]) Cap() int { return len(a.entries) }

// NumFree returns the count of unallocated slots.
func (a *Arena[T]) NumFree() int {
	defer a.guard.Enter()()
	return len(a.free)
}

// Alloc reserves a slot, stores data, and returns a fresh Ref for it.
func (a *Arena[T]) Alloc(data T) (Ref, error) {
	defer a.guard.Enter()()
	if len(a.free) == 0 {
		return Nil, ErrFull
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	gen := a.nextGen
	a.nextGen++
	a.entries[idx] = entry[T]{gen: gen, allocated: true, data: data}
	return Ref{idx: idx, gen: gen}, nil
}

// Free releases r back to the free list. The Ref's generation is retired;
// any other Ref still pointing at idx becomes stale.
func (a *Arena[T]) Free(r Ref) error {
	defer a.guard.Enter()()
	e, ok := a.lookup(r)
	if !ok {
		return ErrStale
	}
	*e = entry[T]{} // next=prev=Nil, data=zero value: dereference-after-free fails loudly, not silently
	a.free = append(a.free, r.idx)
	return nil
}

// Get returns a pointer to the payload for r, or ok=false if r is stale.
// The pointer is valid until the next Free of the same slot.
func (a *Arena[T]) Get(r Ref) (*T, bool) {
	defer a.guard.Enter()()
	e, ok := a.lookup(r)
	if !ok {
		return nil, false
	}
	return &e.data, true
}

// Valid reports whether r currently addresses a live entry.
func (a *Arena[T]) Valid(r Ref) bool {
	defer a.guard.Enter()()
	_, ok := a.lookup(r)
	return ok
}

// lookup must be called with the guard held.
func (a *Arena[T]) lookup(r Ref) (*entry[T], bool) {
	if r.IsNil() || int(r.idx) >= len(a.entries) {
		return nil, false
	}
	e := &a.entries[r.idx]
	if !e.allocated || e.gen != r.gen {
		return nil, false
	}
	return e, true
}

// List is a doubly-linked view over entries allocated from a shared Arena.
// A List does not own its Arena; several Lists (e.g. a free-pool and N
// queues) can share one Arena, exactly as the teacher's queues share one
// free pool of packet buffers.
type List[T any] struct {
	arena  *Arena[T]
	first  Ref
	last   Ref
	length int
}

// NewList returns an empty list backed by arena.
func NewList[T any](arena *Arena[T]) *List[T] {
	return &List[T]{arena: arena}
}

// Len returns the number of entries currently on the list.
func (l *List[T]) Len() int { return l.length }

// First returns the head Ref, or Nil if empty.
func (l *List[T]) First() Ref { return l.first }

// Last returns the tail Ref, or Nil if empty.
func (l *List[T]) Last() Ref { return l.last }

// Next returns the successor of r within whatever list currently holds it.
func (l *List[T]) Next(r Ref) (Ref, bool) {
	e, ok := l.arena.lookup(r)
	if !ok {
		return Nil, false
	}
	return e.next, true
}

// InsertEnd appends r to the tail of l. r must already be allocated in
// l's arena and must not currently belong to any list.
func (l *List[T]) InsertEnd(r Ref) error {
	defer l.arena.guard.Enter()()
	e, ok := l.arena.lookup(r)
	if !ok {
		return ErrStale
	}
	e.prev = l.last
	e.next = Nil
	if l.last.IsNil() {
		l.first = r
	} else {
		if last, ok := l.arena.lookup(l.last); ok {
			last.next = r
		}
	}
	l.last = r
	l.length++
	return nil
}

// InsertBeginning prepends r to the head of l.
func (l *List[T]) InsertBeginning(r Ref) error {
	defer l.arena.guard.Enter()()
	e, ok := l.arena.lookup(r)
	if !ok {
		return ErrStale
	}
	e.next = l.first
	e.prev = Nil
	if l.first.IsNil() {
		l.last = r
	} else {
		if first, ok := l.arena.lookup(l.first); ok {
			first.prev = r
		}
	}
	l.first = r
	l.length++
	return nil
}

// InsertAfter inserts r immediately after at, which must already be on l.
func (l *List[T]) InsertAfter(at, r Ref) error {
	defer l.arena.guard.Enter()()
	atE, ok := l.arena.lookup(at)
	if !ok {
		return ErrStale
	}
	e, ok := l.arena.lookup(r)
	if !ok {
		return ErrStale
	}
	e.prev = at
	e.next = atE.next
	if atE.next.IsNil() {
		l.last = r
	} else if nextE, ok := l.arena.lookup(atE.next); ok {
		nextE.prev = r
	}
	atE.next = r
	l.length++
	return nil
}

// InsertBefore inserts r immediately before at, which must already be on l.
func (l *List[T]) InsertBefore(at, r Ref) error {
	defer l.arena.guard.Enter()()
	atE, ok := l.arena.lookup(at)
	if !ok {
		return ErrStale
	}
	e, ok := l.arena.lookup(r)
	if !ok {
		return ErrStale
	}
	e.next = at
	e.prev = atE.prev
	if atE.prev.IsNil() {
		l.first = r
	} else if prevE, ok := l.arena.lookup(atE.prev); ok {
		prevE.next = r
	}
	atE.prev = r
	l.length++
	return nil
}

// Remove unlinks r from l. r's next/prev are reset to Nil; its payload is
// left in place (the arena slot is not freed) so the caller may still read
// it, move it to another list, or explicitly Free it.
func (l *List[T]) Remove(r Ref) error {
	defer l.arena.guard.Enter()()
	e, ok := l.arena.lookup(r)
	if !ok {
		return ErrStale
	}
	if e.prev.IsNil() {
		l.first = e.next
	} else if prevE, ok := l.arena.lookup(e.prev); ok {
		prevE.next = e.next
	}
	if e.next.IsNil() {
		l.last = e.prev
	} else if nextE, ok := l.arena.lookup(e.next); ok {
		nextE.prev = e.prev
	}
	e.next = Nil
	e.prev = Nil
	l.length--
	return nil
}

// MoveN moves the first n entries of l (head to tail order preserved) onto
// the tail of dst. Used by queue purge/drain paths that hand a whole batch
// from one queue to another (e.g. free-pool checkin_list).
func (l *List[T]) MoveN(dst *List[T], n int) error {
	if n <= 0 {
		return nil
	}
	if n > l.length {
		n = l.length
	}
	cur := l.first
	for i := 0; i < n; i++ {
		e, ok := l.arena.lookup(cur)
		if !ok {
			return ErrStale
		}
		next := e.next
		if err := l.Remove(cur); err != nil {
			return err
		}
		if err := dst.InsertEnd(cur); err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// Walk calls fn for every Ref on l from head to tail. fn returning false
// stops the walk early.
func (l *List[T]) Walk(fn func(Ref) bool) {
	for r := l.first; !r.IsNil(); {
		e, ok := l.arena.lookup(r)
		if !ok {
			return
		}
		next := e.next
		if !fn(r) {
			return
		}
		r = next
	}
}
