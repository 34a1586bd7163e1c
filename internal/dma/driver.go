// Package dma implements the DMA Reader (C2): draining a batch of DMA
// completions from a hardware ring, decoding each one's fixed timing
// header, allocating a pebble, and constructing the event datagram in
// place. The real DMA/PGP driver is an external collaborator (a kernel
// character device); this package only depends on the small Driver
// contract below, and a simulated Driver is provided for tests and for
// running the pipeline without real hardware.
package dma

// FlagBroken marks a completion the driver itself flagged as bad (a
// hardware-reported transfer error, distinct from a zero-length read).
const FlagBroken uint32 = 1 << 0

// Completion is one DMA ring completion: a reference to the driver's
// mapped buffer plus the driver's own bookkeeping for it.
type Completion struct {
	BufferIndex uint32
	RetLen      int
	Flags       uint32
	Data        []byte
}

// Driver is the DMA/PGP ring contract: an opaque, driver-owned set of
// fixed-size mapped buffers, read in bulk and returned by index.
// ReadBulk must never block indefinitely: it is expected to return
// (nil, nil) after a bounded interval if nothing is ready, so the
// Matcher's timeout housekeeping keeps running even with no DMA
// traffic.
type Driver interface {
	ReadBulk(maxCount int) ([]Completion, error)
	Return(indices []uint32) error
}
