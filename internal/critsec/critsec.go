// Package critsec provides a scoped critical-section guard standing in for
// the teacher's "mask interrupts" convention (wlan_mac_dl_list.c requires
// mutations to happen with interrupts masked because entries are touched
// both from mainline code and from ISR-driven IPC completion). This process
// has no ISRs; the guard is a plain mutex, but it is named and shaped after
// the teacher's critical section so call sites read the same way:
// "enter, mutate, leave" rather than "lock, do unrelated things, unlock".
package critsec

import "sync"

// Guard is a named mutex. Zero value is ready to use.
type Guard struct {
	mu sync.Mutex
}

// Enter acquires the guard and returns a function that leaves it. Intended
// use is `defer g.Enter()()`.
func (g *Guard) Enter() func() {
	g.mu.Lock()
	return g.mu.Unlock
}

// Do runs fn with the guard held.
func (g *Guard) Do(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}
