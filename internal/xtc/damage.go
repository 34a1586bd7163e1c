package xtc

import "strings"

// Damage is a bitfield recording why a datagram's payload is incomplete.
// Distinct bits compose: an event can be both MissingData (one PV arrived
// too late to match) and TimedOut (no PV arrived before the watermark).
type Damage uint32

const (
	// DamageOK reports an intact payload.
	DamageOK Damage = 0
	// DamageMissingData is set when a PV was newer than its event at match
	// time (t(PV) > t(event)): no earlier PV will ever arrive to fill it.
	DamageMissingData Damage = 1 << iota
	// DamageTruncated is set when a PV's live payload exceeded its buffer.
	DamageTruncated
	// DamageTimedOut is set when the watermark passed while at least one PV
	// was still outstanding.
	DamageTimedOut
)

// Increase ORs bit into the damage value, matching the original's
// Damage::increase, which never clears a previously set bit.
func (d *Damage) Increase(bit Damage) { *d |= bit }

// Has reports whether bit is set.
func (d Damage) Has(bit Damage) bool { return d&bit != 0 }

func (d Damage) String() string {
	if d == DamageOK {
		return "ok"
	}
	var parts []string
	if d.Has(DamageMissingData) {
		parts = append(parts, "MissingData")
	}
	if d.Has(DamageTruncated) {
		parts = append(parts, "Truncated")
	}
	if d.Has(DamageTimedOut) {
		parts = append(parts, "TimedOut")
	}
	return strings.Join(parts, "|")
}
