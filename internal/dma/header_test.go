package dma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

func TestHeader_RoundTrip(t *testing.T) {
	hdr := xtc.Header{
		Time:        xtc.TimeStamp{Seconds: 10, Nanoseconds: 500},
		PulseId:     42,
		Environment: 7,
		Service:     xtc.L1Accept,
		Source:      3,
	}
	buf := make([]byte, timingHeaderSize+4)
	n := EncodeHeader(buf, hdr, 99, []byte{1, 2, 3, 4})
	assert.Equal(t, len(buf), n)

	gotHdr, evtCounter, body, err := decodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, hdr, gotHdr)
	assert.Equal(t, uint64(99), evtCounter)
	assert.Equal(t, []byte{1, 2, 3, 4}, body)
}

func TestHeader_RejectsShortInput(t *testing.T) {
	_, _, _, err := decodeHeader(make([]byte, timingHeaderSize-1))
	assert.ErrorIs(t, err, ErrShortHeader)
}
