package params

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nexmotion-go/pkg/errors"
)

func axisTable() *Table {
	return NewTable(AxisDefs(AxisDefaults{VM: 100, Acc: 1000, Dec: 1000, StopDec: 5000, HomeVel: 10, BuffSize: 32}))
}

func TestRoundTrip(t *testing.T) {
	tb := axisTable()

	require.NoError(t, tb.SetF64(AxpVM, 0, 250.5))
	v, err := tb.GetF64(AxpVM, 0)
	require.NoError(t, err)
	require.Equal(t, 250.5, v)

	require.NoError(t, tb.SetI32(AxpBuffMode, 0, BuffBuffered))
	m, err := tb.GetI32(AxpBuffMode, 0)
	require.NoError(t, err)
	require.Equal(t, int32(BuffBuffered), m)
}

func TestCrossTypedAccess(t *testing.T) {
	tb := axisTable()
	require.NoError(t, tb.SetI32(AxpVM, 0, 42))
	v, err := tb.GetF64(AxpVM, 0)
	require.NoError(t, err)
	require.Equal(t, 42.0, v)

	require.NoError(t, tb.SetF64(AxpProfType, 0, 1))
	p, err := tb.GetI32(AxpProfType, 0)
	require.NoError(t, err)
	require.Equal(t, int32(1), p)

	err = tb.SetF64(AxpProfType, 0, 0.5)
	require.Equal(t, errors.ParameterValueInvalid, errors.CodeOf(err))
}

func TestErrors(t *testing.T) {
	tb := axisTable()

	_, err := tb.GetF64(0x7F, 0)
	require.Equal(t, errors.ParameterNumberInvalid, errors.CodeOf(err))

	_, err = tb.GetF64(AxpVM, 1)
	require.Equal(t, errors.ParameterValueInvalid, errors.CodeOf(err))

	err = tb.SetF64(AxpVM, 0, -1)
	require.Equal(t, errors.ParameterValueInvalid, errors.CodeOf(err))

	err = tb.SetI32(AxpBuffSize, 0, 8)
	require.Equal(t, errors.ParameterReadOnly, errors.CodeOf(err))
	require.NoError(t, tb.Force(AxpBuffSize, 0, 8))
	require.Equal(t, int32(8), tb.I32(AxpBuffSize))
}

func TestSubIndexedFrames(t *testing.T) {
	tb := NewTable(GroupDefs(GroupDefaults{VM: 1, Acc: 1, Dec: 1, StopDec: 1}))
	require.NoError(t, tb.SetF64(GpToolTrans, 2*6+3, 90))
	v, err := tb.GetF64(GpToolTrans, 15)
	require.NoError(t, err)
	require.Equal(t, 90.0, v)

	_, err = tb.GetF64(GpToolTrans, MaxTools*6)
	require.Equal(t, errors.ParameterValueInvalid, errors.CodeOf(err))

	require.Equal(t, int32(-1), tb.I32(GpToolIndex))
	require.Error(t, tb.SetI32(GpToolIndex, 0, MaxTools))
}

func TestOnChange(t *testing.T) {
	tb := axisTable()
	var got Key
	tb.OnChange(func(k Key, v float64) { got = k })
	require.NoError(t, tb.SetF64(AxpAcc, 0, 10))
	require.Equal(t, Key{AxpAcc, 0}, got)
	require.Equal(t, []int32{AxpVM, AxpAcc, AxpDec}, tb.Numbers()[:3])
}

func TestCheckDoesNotWrite(t *testing.T) {
	tb := axisTable()
	require.NoError(t, tb.Check(AxpVM, 0, 7))
	require.Equal(t, 100.0, tb.F64(AxpVM))

	require.Equal(t, errors.ParameterValueInvalid, errors.CodeOf(tb.Check(AxpProfType, 0, 0.5)))
	require.Equal(t, errors.ParameterReadOnly, errors.CodeOf(tb.Check(AxpBuffSize, 0, 8)))
	require.Equal(t, errors.ParameterNumberInvalid, errors.CodeOf(tb.Check(0x7F, 0, 1)))
}
