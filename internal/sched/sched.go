// Package sched is the monotonic/wall-clock event scheduler (spec §4.14,
// C4): two priority classes, each a sorted-by-deadline queue, with
// one-shot and repeated events at microsecond resolution. It is grounded
// on the teacher's dlq.go deferred-work queue (a mutex-guarded list woken
// by a condition variable) generalized from "received frames" to "any
// scheduled callback", and on the REDESIGN FLAGS guidance to replace
// ISR-context firing with a queued-deferred-work design: a single goroutine
// per class drains due entries instead of an interrupt handler doing it in
// IRQ context.
package sched

import (
	"container/heap"
	"context"
	"sync"

	"github.com/wmac/upper-mac/internal/wmacerr"
)

// Class is the scheduler's two priority classes (spec §3: "fine" events
// are polled often, "coarse" less often — in this Go implementation both
// are driven by their own goroutine waking exactly at the next deadline,
// but callers should still reserve Fine for latency-sensitive work like
// beacon TBTTs and Coarse for housekeeping like the BSS timeout sweep).
type Class int

const (
	Fine Class = iota
	Coarse
	numClasses
)

// ID identifies a scheduled event. Monotonically increasing; ids are never
// reused (the spec explicitly calls out ids are not recycled until the
// store wraps — at 2^64 events that wrap is not worth modeling).
type ID uint64

// Callback runs when an event fires. ctx carries cancellation if the
// Scheduler is stopped mid-flight.
type Callback func(ctx context.Context, arg any)

type entry struct {
	id         ID
	class      Class
	enabled    bool
	delayUs    uint64
	remaining  int // 0 = forever
	nextFireUs uint64
	cb         Callback
	arg        any
	index      int // heap index, maintained by container/heap
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].nextFireUs < h[j].nextFireUs }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler holds the two class queues.
type Scheduler struct {
	mu      sync.Mutex
	queues  [numClasses]entryHeap
	byID    map[ID]*entry
	nextID  ID
	clock   clockSource
	wake    [numClasses]chan struct{}
	done    chan struct{}
	closeWG sync.WaitGroup
}

// clockSource is the minimal real-clock seam; RealClock and a fake clock
// for tests both implement it.
type clockSource interface {
	NowUs() uint64
}

// New returns a Scheduler driven by clock. Call Start to begin firing.
func New(clock clockSource) *Scheduler {
	s := &Scheduler{
		byID:  make(map[ID]*entry),
		clock: clock,
		done:  make(chan struct{}),
	}
	for c := Class(0); c < numClasses; c++ {
		s.wake[c] = make(chan struct{}, 1)
	}
	return s
}

// nudge wakes the class's driver goroutine, coalescing repeated nudges.
func (s *Scheduler) nudge(c Class) {
	select {
	case s.wake[c] <- struct{}{}:
	default:
	}
}

// ScheduleOnce registers a single firing delayUs from now.
func (s *Scheduler) ScheduleOnce(class Class, delayUs uint64, cb Callback, arg any) ID {
	return s.schedule(class, delayUs, 1, cb, arg)
}

// ScheduleRepeated registers a firing every delayUs, maxCalls times (0 =
// forever).
func (s *Scheduler) ScheduleRepeated(class Class, delayUs uint64, maxCalls int, cb Callback, arg any) ID {
	return s.schedule(class, delayUs, maxCalls, cb, arg)
}

func (s *Scheduler) schedule(class Class, delayUs uint64, remaining int, cb Callback, arg any) ID {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	e := &entry{
		id:         id,
		class:      class,
		enabled:    true,
		delayUs:    delayUs,
		remaining:  remaining,
		nextFireUs: s.clock.NowUs() + delayUs,
		cb:         cb,
		arg:        arg,
	}
	s.byID[id] = e
	heap.Push(&s.queues[class], e)
	wasHead := s.queues[class][0] == e
	s.mu.Unlock()
	if wasHead {
		s.nudge(class)
	}
	return id
}

// Remove marks id disabled. Actual removal happens lazily the next time
// the class's driver processes due entries, per spec §4.14 ("actual
// removal happens lazily at fire time to avoid iterating from ISR
// context") — this implementation has no ISR, but keeps the same shape so
// firing and cancellation never race on the heap structure mid-callback.
func (s *Scheduler) Remove(class Class, id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok || e.class != class {
		return wmacerr.ErrInvariantBreak
	}
	e.enabled = false
	delete(s.byID, id)
	return nil
}

// RemoveAll disables every pending event in both classes.
func (s *Scheduler) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.byID {
		e.enabled = false
	}
	s.byID = make(map[ID]*entry)
}

// Start launches one driver goroutine per class. Stop via ctx
// cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	for c := Class(0); c < numClasses; c++ {
		s.closeWG.Add(1)
		go s.drive(ctx, c)
	}
}

// Wait blocks until both driver goroutines have exited (post Start+cancel).
func (s *Scheduler) Wait() { s.closeWG.Wait() }

func (s *Scheduler) drive(ctx context.Context, class Class) {
	defer s.closeWG.Done()
	for {
		wait, due := s.nextWait(class)
		if len(due) > 0 {
			for _, e := range due {
				e.cb(ctx, e.arg)
			}
			continue
		}
		if wait == nil {
			// Nothing pending: block until a new entry is scheduled or we
			// are asked to stop.
			select {
			case <-ctx.Done():
				return
			case <-s.wake[class]:
				continue
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-s.wake[class]:
			continue
		case <-wait:
			continue
		}
	}
}

// nextWait pops every due entry (collected under the lock), re-scheduling
// repeats, and returns a timer channel for the remaining earliest entry if
// none were due.
func (s *Scheduler) nextWait(class Class) (<-chan struct{}, []*entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := &s.queues[class]
	var due []*entry
	now := s.clock.NowUs()
	for q.Len() > 0 {
		head := (*q)[0]
		if !head.enabled {
			heap.Pop(q)
			continue
		}
		if head.nextFireUs > now {
			break
		}
		heap.Pop(q)
		due = append(due, head)
		if head.remaining > 0 {
			head.remaining--
		}
		if head.remaining != 0 {
			head.nextFireUs = now + head.delayUs
			heap.Push(q, head)
		} else {
			delete(s.byID, head.id)
		}
	}
	if len(due) > 0 {
		return nil, due
	}
	if q.Len() == 0 {
		return nil, nil
	}
	deadline := (*q)[0].nextFireUs
	delta := int64(deadline) - int64(now)
	if delta < 0 {
		delta = 0
	}
	ch := make(chan struct{})
	timer := timeAfterUs(uint64(delta))
	go func() {
		<-timer
		close(ch)
	}()
	return ch, nil
}
