package noff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/nachosfs/noff"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := &noff.Header{
		Magic:      noff.Magic,
		Code:       noff.Segment{VirtualAddr: 0, InFileAddr: 40, Size: 128},
		InitData:   noff.Segment{VirtualAddr: 128, InFileAddr: 168, Size: 64},
		UninitData: noff.Segment{VirtualAddr: 192, InFileAddr: 0, Size: 256},
	}
	buf := noff.Encode(h)
	assert.Len(t, buf, noff.HeaderSize())

	decoded, err := noff.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
}

func TestDecodeBadMagic(t *testing.T) {
	buf := make([]byte, noff.HeaderSize())
	_, err := noff.Decode(buf)
	assert.ErrorIs(t, err, noff.ErrBadMagic)
}

func TestDecodeTooShort(t *testing.T) {
	_, err := noff.Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, noff.ErrBadMagic)
}
