package match

import (
	"time"

	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

// fiducialMask clears the low 17 bits of a nanoseconds field, matching
// the original degree-1 comparison's "fiducial-ignored" behavior.
const fiducialMask = ^uint32(0) << 17

// Compare implements the three timestamp-matching degrees. It returns -1
// if t1 is older than t2, +1 if t1 is newer, and 0 if they are considered
// equal under the given degree.
//
// Degree 2 (strict, the default) is a plain integer compare of the packed
// timestamp value. Degree 1 masks off the fiducial before comparing and
// only reports a difference once the gap exceeds 10ms; it is implemented
// here for completeness but is rejected at the CLI (see cmd/pvdrp).
// Degree 0 always reports equal unless t2 is the TimeMax sentinel, and is
// not invoked by the match loop itself; see the package doc for why.
func Compare(t1, t2 xtc.TimeStamp, degree int) int {
	switch degree {
	case 0:
		if t2 == xtc.TimeMax {
			return -1
		}
		return 0
	case 1:
		d1 := nanos(maskFiducial(t1))
		d2 := nanos(maskFiducial(t2))
		delta := d1 - d2
		if delta > int64(10*time.Millisecond) {
			return 1
		}
		if delta < -int64(10*time.Millisecond) {
			return -1
		}
		return 0
	default: // degree 2
		v1, v2 := t1.Value(), t2.Value()
		switch {
		case v1 < v2:
			return -1
		case v1 > v2:
			return 1
		default:
			return 0
		}
	}
}

func maskFiducial(t xtc.TimeStamp) xtc.TimeStamp {
	return xtc.TimeStamp{Seconds: t.Seconds, Nanoseconds: t.Nanoseconds & fiducialMask}
}

func nanos(t xtc.TimeStamp) int64 {
	return int64(t.Seconds)*int64(time.Second) + int64(t.Nanoseconds)
}
