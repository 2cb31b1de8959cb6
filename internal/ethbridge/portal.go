package ethbridge

import "sync/atomic"

// Portal gates whether Ethernet frames are bridged onto the wireless
// medium at all (wlan_eth_portal_en): disabled at boot, enabled once the
// role FSM reaches a state where bridging makes sense (e.g. AP up, STA
// associated).
type Portal struct {
	enabled atomic.Bool
}

// SetEnabled toggles the gate.
func (p *Portal) SetEnabled(enabled bool) { p.enabled.Store(enabled) }

// Enabled reports the current gate state.
func (p *Portal) Enabled() bool { return p.enabled.Load() }
