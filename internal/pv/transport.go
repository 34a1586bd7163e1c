package pv

import "github.com/gadorlhiac/pvdrp/internal/xtc"

// Transport is the external collaborator a Monitor drives: a live
// pvAccess/channel-access subscription. The real implementation lives
// outside this repo's domain (it is a thin wrapper over a C client
// library); Monitor only needs the four calls below, and tests drive it
// with a fake that satisfies the same interface.
type Transport interface {
	// TryGetParams reports the PV's reported element type, element count,
	// and array rank. ok is false if the underlying channel has not yet
	// delivered type information (the monitor stays in NotReady and tries
	// again on the next update). err is non-nil only for a hard failure
	// that will never resolve on retry.
	TryGetParams() (dataType xtc.DataType, nElem int, rank int, ok bool, err error)

	// Timestamp returns the timestamp of the most recent update.
	Timestamp() (xtc.TimeStamp, error)

	// Fetch copies the most recent update's payload into buf (sized to
	// the monitor's payloadSize) and reports the shape actually delivered
	// and the number of payload bytes written. If the live payload would
	// not fit in buf, Fetch copies what fits and returns truncated=true.
	Fetch(buf []byte) (shape [xtc.MaxRank]uint32, n int, truncated bool, err error)

	// Configure establishes the full monitor subscription once GetParams
	// has determined the PV's rank and built its pvRequest string: the
	// initial TryGetParams probe only needs type information, but the
	// live subscription a real pvAccess/channel-access client opens needs
	// the complete request (value, timeStamp, and, for pva, dimension).
	Configure(request string) error
}
