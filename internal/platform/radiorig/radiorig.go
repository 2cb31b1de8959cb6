// Package radiorig is the concrete radio-plane collaborator used against a
// real or simulated transceiver. Grounded on ptt.go's Hamlib rig_init/
// rig_set_ptt/rig_set_freq usage, reworked onto the pure-Go
// github.com/xylo04/goHamlib client (rigctld wire protocol) instead of the
// teacher's disabled cgo binding. It implements platform.RadioPlane and is
// deliberately kept outside the upper-MAC core per §1's out-of-scope
// boundary: it drives an external rig, it is not part of a MAC state
// machine.
package radiorig

import (
	"context"
	"fmt"

	hamlib "github.com/xylo04/goHamlib"

	"github.com/wmac/upper-mac/internal/platform"
)

// ChannelPlan maps an 802.11 channel number to a center frequency in Hz,
// since hamlib speaks frequency, not channel number.
type ChannelPlan func(channel int) (hz int64, ok bool)

// DefaultChannelPlan covers the 2.4GHz b/g/n channels (1-14, 5MHz spacing
// from channel 1 at 2412MHz, with channel 14 at 2484MHz).
func DefaultChannelPlan(channel int) (int64, bool) {
	switch {
	case channel == 14:
		return 2484_000_000, true
	case channel >= 1 && channel <= 13:
		return 2412_000_000 + int64(channel-1)*5_000_000, true
	default:
		return 0, false
	}
}

// Rig drives one hamlib-controlled transceiver as a RadioPlane.
type Rig struct {
	rig  *hamlib.Rig
	plan ChannelPlan

	channel int
}

var _ platform.RadioPlane = (*Rig)(nil)

// Open connects to a rigctld instance (or a rig hamlib can address
// directly) identified by model and serial/network port, mirroring the
// teacher's rig_init/rig_open sequence.
func Open(model int, port string, plan ChannelPlan) (*Rig, error) {
	if plan == nil {
		plan = DefaultChannelPlan
	}
	r := &hamlib.Rig{}
	if err := r.Init(model); err != nil {
		return nil, fmt.Errorf("radiorig: init model %d: %w", model, err)
	}
	r.SetConf("rig_pathname", port)
	if err := r.Open(); err != nil {
		return nil, fmt.Errorf("radiorig: open %s: %w", port, err)
	}
	return &Rig{rig: r, plan: plan}, nil
}

// SetChannel implements platform.RadioPlane by tuning to the channel's
// center frequency on hamlib's current VFO.
func (r *Rig) SetChannel(ctx context.Context, channel int) error {
	hz, ok := r.plan(channel)
	if !ok {
		return fmt.Errorf("radiorig: no frequency mapping for channel %d", channel)
	}
	if err := r.rig.SetFreq(hamlib.VFOCurrent, float64(hz)); err != nil {
		return fmt.Errorf("radiorig: set_freq channel %d: %w", channel, err)
	}
	r.channel = channel
	return nil
}

// Channel implements platform.RadioPlane.
func (r *Rig) Channel() int { return r.channel }

// SetTxPower implements platform.RadioPlane, mirroring the teacher's
// octrl-indexed power control but routed through hamlib's level API rather
// than a GPIO/parallel-port PTT line.
func (r *Rig) SetTxPower(ctx context.Context, dBm int) error {
	mw := dbmToMilliwatt(dBm)
	if err := r.rig.SetLevel(hamlib.VFOCurrent, hamlib.LevelRFPower, float64(mw)); err != nil {
		return fmt.Errorf("radiorig: set_tx_ctrl_power %ddBm: %w", dBm, err)
	}
	return nil
}

// Close releases the rig handle, mirroring rig_close/rig_cleanup.
func (r *Rig) Close() error {
	return r.rig.Close()
}

func dbmToMilliwatt(dBm int) float64 {
	// P(mW) = 10^(dBm/10); hamlib's RFPOWER level wants a 0..1 fraction of
	// the rig's max power on most backends, but absolute mW is accepted by
	// rigctld's \power_mW extension, which is what Open connects to.
	mw := 1.0
	for i := 0; i < dBm; i++ {
		mw *= 1.2589254 // 10^(1/10) per dB
	}
	for i := 0; i > dBm; i-- {
		mw /= 1.2589254
	}
	return mw
}
