package iomem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"nexmotion-go/pkg/errors"
)

func TestWordAccessLittleEndian(t *testing.T) {
	r := NewRegion("output", 8)
	require.NoError(t, r.WriteI32(0, -2))
	require.NoError(t, r.WriteI16(4, 0x1234))

	raw := make([]byte, 6)
	require.NoError(t, r.Read(0, raw))
	require.Equal(t, []byte{0xFE, 0xFF, 0xFF, 0xFF, 0x34, 0x12}, raw)

	v, err := r.ReadI32(0)
	require.NoError(t, err)
	require.Equal(t, int32(-2), v)

	b, err := r.ReadI8(5)
	require.NoError(t, err)
	require.Equal(t, int8(0x12), b)
}

func TestBits(t *testing.T) {
	r := NewRegion("output", 2)
	require.NoError(t, r.WriteBit(1, 7, true))
	on, err := r.ReadBit(1, 7)
	require.NoError(t, err)
	require.True(t, on)
	require.NoError(t, r.WriteBit(1, 7, false))
	on, _ = r.ReadBit(1, 7)
	require.False(t, on)

	_, err = r.ReadBit(0, 8)
	require.Equal(t, errors.ParameterValueInvalid, errors.CodeOf(err))
}

func TestOutOfRange(t *testing.T) {
	r := NewRegion("input", 4)
	_, err := r.ReadI32(1)
	require.Equal(t, errors.AccessAreaInvalid, errors.CodeOf(err))
	require.Equal(t, errors.AccessAreaInvalid, errors.CodeOf(r.WriteBit(4, 0, true)))
	require.Equal(t, errors.AccessAreaInvalid, errors.CodeOf(r.Read(-1, make([]byte, 1))))
	require.Equal(t, errors.AccessAreaInvalid, errors.CodeOf(r.Read(0, make([]byte, 5))))
}

func TestHugeOffset(t *testing.T) {
	r := NewRegion("input", 8)
	_, err := r.ReadI32(math.MaxInt - 1)
	require.Equal(t, errors.AccessAreaInvalid, errors.CodeOf(err))
	require.Equal(t, errors.AccessAreaInvalid, errors.CodeOf(r.WriteI16(math.MaxInt, 1)))
	require.Equal(t, errors.AccessAreaInvalid, errors.CodeOf(r.Read(math.MaxInt-3, make([]byte, 4))))
}

func TestLoopback(t *testing.T) {
	im := NewImage(2, 4)
	require.NoError(t, im.Out.WriteI32(0, 0x0A0B0C0D))
	im.Loopback()
	v, err := im.In.ReadI16(0)
	require.NoError(t, err)
	require.Equal(t, int16(0x0C0D), v)
}
