package match

import "github.com/gadorlhiac/pvdrp/internal/xtc"

// PendingEvent is one admitted DMA event awaiting dispatch: an L1Accept
// with PV bits still outstanding, or a transition passing through
// unmatched. Remaining is a bitmask over configured PV ids; bit k clear
// means PV k has been reconciled for this event.
type PendingEvent struct {
	PebbleIndex uint32
	Header      xtc.Header
	Remaining   uint32

	// Xtc is the write cursor over this event's payload region. For an
	// L1Accept it wraps the pebble buffer and already has the DMA
	// reader's raw body skipped past; for a transition it is nil until
	// matchUp's transition branch fills it from the transition pool.
	Xtc *xtc.Xtc

	// rawPayload is the DMA reader's decoded body, held only for
	// transitions until it is copied into the transition pool's slot.
	rawPayload []byte
}

// allPVMask returns the bitmask with the low n bits set, used to seed a
// new L1Accept's Remaining field. n must be <= 32.
func allPVMask(n int) uint32 {
	if n <= 0 {
		return 0
	}
	if n >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<uint(n) - 1
}

// setBitsAscending returns the indices of the set bits of mask, from bit
// 0 upward, matching "iterate the set bits of evt.remaining" in ascending
// PV id order.
func setBitsAscending(mask uint32) []uint32 {
	var out []uint32
	for i := uint32(0); i < 32; i++ {
		if mask&(1<<i) != 0 {
			out = append(out, i)
		}
	}
	return out
}
