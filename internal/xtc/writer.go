package xtc

import (
	"encoding/binary"
	"fmt"
)

// Xtc is a contiguous write-once payload region backed by a caller-owned
// byte buffer (a slice into a pebble or transition buffer). Alloc reserves
// the next n bytes; nothing may be written past what Alloc returned.
type Xtc struct {
	buf    []byte
	off    int
	Damage Damage
}

// ErrOverflow is returned when a write would exceed the backing buffer.
var ErrOverflow = fmt.Errorf("xtc: payload would overflow backing buffer")

// NewXtc wraps buf as an empty payload region.
func NewXtc(buf []byte) *Xtc {
	return &Xtc{buf: buf}
}

// Alloc reserves the next n bytes of the payload region and returns them
// for the caller to fill. It never returns fewer than n bytes nor partial
// allocations: on overflow it reserves nothing.
func (x *Xtc) Alloc(n int) ([]byte, error) {
	if x.off+n > len(x.buf) {
		return nil, ErrOverflow
	}
	b := x.buf[x.off : x.off+n : x.off+n]
	x.off += n
	return b, nil
}

// Skip advances the write cursor by n bytes without writing, for bytes a
// caller already placed directly into the backing buffer ahead of
// wrapping it in an Xtc (the DMA reader writes a completion's raw body in
// place to avoid a second copy; the Matcher then wraps the same buffer
// and Skips past what the reader already wrote before appending PV data).
func (x *Xtc) Skip(n int) error {
	if x.off+n > len(x.buf) {
		return ErrOverflow
	}
	x.off += n
	return nil
}

// Payload returns the bytes written so far.
func (x *Xtc) Payload() []byte { return x.buf[:x.off] }

// Len reports the number of bytes written so far.
func (x *Xtc) Len() int { return x.off }

// Cap reports the backing buffer's total capacity.
func (x *Xtc) Cap() int { return len(x.buf) }

// Reset rewinds the write cursor and clears damage, preparing the region
// for reuse by a new datagram occupying the same pebble.
func (x *Xtc) Reset() {
	x.off = 0
	x.Damage = DamageOK
}

// WriteRawArray writes a shape-prefixed array: MaxRank uint32 dimensions
// followed by the raw payload bytes. The total bytes written equals
// MaxRank*4 + len(payload), matching the invariant that an alloc's
// declared size is exactly what gets filled.
func WriteRawArray(x *Xtc, shape [MaxRank]uint32, payload []byte) error {
	buf, err := x.Alloc(MaxRank*4 + len(payload))
	if err != nil {
		return err
	}
	for i, dim := range shape {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], dim)
	}
	copy(buf[MaxRank*4:], payload)
	return nil
}

// ReadRawArray decodes a region previously written by WriteRawArray.
func ReadRawArray(region []byte) (shape [MaxRank]uint32, payload []byte, err error) {
	if len(region) < MaxRank*4 {
		return shape, nil, fmt.Errorf("xtc: region too small for shape header")
	}
	for i := range shape {
		shape[i] = binary.LittleEndian.Uint32(region[i*4 : i*4+4])
	}
	return shape, region[MaxRank*4:], nil
}

// WriteInfoRecord writes the pvdetinfo record: two length-prefixed
// strings, the comma-delimited alias list ("keys") and the newline-
// delimited PV name list, in that order. This is the layout the original
// InfoDef/CreateData pair produces for pvdetinfo_<detName>.
func WriteInfoRecord(x *Xtc, keys, names string) error {
	total := 4 + len(keys) + 4 + len(names)
	buf, err := x.Alloc(total)
	if err != nil {
		return err
	}
	off := 0
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(keys)))
	off += 4
	off += copy(buf[off:], keys)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(names)))
	off += 4
	copy(buf[off:], names)
	return nil
}

// ReadInfoRecord decodes a region previously written by WriteInfoRecord.
func ReadInfoRecord(region []byte) (keys, names string, err error) {
	if len(region) < 4 {
		return "", "", fmt.Errorf("xtc: region too small for info record")
	}
	off := 0
	klen := int(binary.LittleEndian.Uint32(region[off : off+4]))
	off += 4
	if off+klen+4 > len(region) {
		return "", "", fmt.Errorf("xtc: info record truncated")
	}
	keys = string(region[off : off+klen])
	off += klen
	nlen := int(binary.LittleEndian.Uint32(region[off : off+4]))
	off += 4
	if off+nlen > len(region) {
		return "", "", fmt.Errorf("xtc: info record truncated")
	}
	names = string(region[off : off+nlen])
	return keys, names, nil
}
