// Package xtc implements the event datagram's data model: the fixed
// header, the damage bitfield, and a typed, shape-preserving writer over a
// caller-allocated byte buffer (the Container Builder). The real container
// format library is an external collaborator; this package only needs to
// be self-consistent with itself, since every reader of a datagram in this
// repo goes through the same Writer/Reader pair.
package xtc

import (
	"fmt"
	"time"
)

// TimeStamp is a detector or PV timestamp, seconds plus nanoseconds.
// The nanoseconds field follows the original's convention of packing a
// fiducial into its low bits; callers that need degree-1 matching mask
// those bits out explicitly rather than relying on this type to do it.
type TimeStamp struct {
	Seconds     uint32
	Nanoseconds uint32
}

// TimeMax is a sentinel "infinitely late" timestamp used by the original
// degree-0 comparison rule. It is not used by the match loop in this
// implementation (see the compare degree-0 note in internal/match); it is
// kept here because it is part of the timestamp type's public contract.
var TimeMax = TimeStamp{Seconds: ^uint32(0), Nanoseconds: ^uint32(0)}

// Value packs the timestamp into a single comparable uint64, seconds in
// the high bits, exactly as the original TimeStamp::value() does.
func (t TimeStamp) Value() uint64 {
	return uint64(t.Seconds)<<32 | uint64(t.Nanoseconds)
}

// Equal reports whether two timestamps are bit-identical.
func (t TimeStamp) Equal(o TimeStamp) bool { return t.Value() == o.Value() }

// After reports whether t is strictly later than o.
func (t TimeStamp) After(o TimeStamp) bool { return t.Value() > o.Value() }

// Before reports whether t is strictly earlier than o.
func (t TimeStamp) Before(o TimeStamp) bool { return t.Value() < o.Value() }

// FromTime converts a wall-clock time.Time into a TimeStamp, used by the
// Matcher to derive the timeout watermark from its own clock. Detector
// and PV timestamps themselves always come from their respective
// sources; this core never synchronizes wall clocks across hosts.
func FromTime(t time.Time) TimeStamp {
	return TimeStamp{Seconds: uint32(t.Unix()), Nanoseconds: uint32(t.Nanosecond())}
}

// Sub returns t minus d as a TimeStamp, saturating at zero rather than
// wrapping if d exceeds t.
func (t TimeStamp) Sub(d time.Duration) TimeStamp {
	total := int64(t.Seconds)*int64(time.Second) + int64(t.Nanoseconds) - int64(d)
	if total < 0 {
		return TimeStamp{}
	}
	return TimeStamp{
		Seconds:     uint32(total / int64(time.Second)),
		Nanoseconds: uint32(total % int64(time.Second)),
	}
}

func (t TimeStamp) String() string {
	return fmt.Sprintf("%d.%09d", t.Seconds, t.Nanoseconds)
}
