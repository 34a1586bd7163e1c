package dma

import (
	"encoding/binary"
	"fmt"

	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

// timingHeaderSize is the fixed prefix every DMA completion's payload
// carries ahead of its detector-specific body: the datagram header plus a
// monotonic per-lane event counter used to derive the PGP ring index.
const timingHeaderSize = 4 + 4 + 8 + 4 + 1 + 4 + 8

// ErrShortHeader is returned when a completion's payload is too small to
// hold a full timing header; the completion is treated as broken.
var ErrShortHeader = fmt.Errorf("dma: completion shorter than timing header (%d bytes)", timingHeaderSize)

// decodeHeader splits a completion's raw payload into its datagram header,
// event counter, and the remaining body bytes.
func decodeHeader(data []byte) (hdr xtc.Header, evtCounter uint64, body []byte, err error) {
	if len(data) < timingHeaderSize {
		return xtc.Header{}, 0, nil, ErrShortHeader
	}
	hdr.Time.Seconds = binary.LittleEndian.Uint32(data[0:4])
	hdr.Time.Nanoseconds = binary.LittleEndian.Uint32(data[4:8])
	hdr.PulseId = binary.LittleEndian.Uint64(data[8:16])
	hdr.Environment = binary.LittleEndian.Uint32(data[16:20])
	hdr.Service = xtc.Service(data[20])
	hdr.Source = binary.LittleEndian.Uint32(data[21:25])
	evtCounter = binary.LittleEndian.Uint64(data[25:33])
	return hdr, evtCounter, data[timingHeaderSize:], nil
}

// EncodeHeader writes a timing header plus body into buf, for tests and
// simulated drivers that construct DMA completions. buf must have at
// least timingHeaderSize+len(body) bytes.
func EncodeHeader(buf []byte, hdr xtc.Header, evtCounter uint64, body []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], hdr.Time.Seconds)
	binary.LittleEndian.PutUint32(buf[4:8], hdr.Time.Nanoseconds)
	binary.LittleEndian.PutUint64(buf[8:16], hdr.PulseId)
	binary.LittleEndian.PutUint32(buf[16:20], hdr.Environment)
	buf[20] = byte(hdr.Service)
	binary.LittleEndian.PutUint32(buf[21:25], hdr.Source)
	binary.LittleEndian.PutUint64(buf[25:33], evtCounter)
	n := copy(buf[timingHeaderSize:], body)
	return timingHeaderSize + n
}
