package coord

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func requireFrame(t *testing.T, want, got Frame) {
	t.Helper()
	for i := 0; i < 3; i++ {
		require.InDeltaSlice(t, want.R[i][:], got.R[i][:], 1e-9)
	}
	require.InDelta(t, want.T.X, got.T.X, 1e-9)
	require.InDelta(t, want.T.Y, got.T.Y, 1e-9)
	require.InDelta(t, want.T.Z, got.T.Z, 1e-9)
}

func TestPoseRoundTrip(t *testing.T) {
	poses := []CoordTrans{
		{1, 2, 3, 0, 0, 0},
		{10, -5, 2, 30, -20, 75},
		{0, 0, 0, -170, 10, 179},
	}
	for _, p := range poses {
		got := FromPose(p).Pose()
		require.InDeltaSlice(t, p[:], got[:], 1e-9)
	}
}

func TestYawRotatesXIntoY(t *testing.T) {
	f := FromPose(CoordTrans{0, 0, 0, 0, 0, 90})
	v := f.Rotate(r3.Vec{X: 1})
	require.InDelta(t, 0, v.X, 1e-12)
	require.InDelta(t, 1, v.Y, 1e-12)
}

func TestInverseAndMul(t *testing.T) {
	f := FromPose(CoordTrans{5, 6, 7, 10, 20, 30})
	requireFrame(t, Identity(), f.Mul(f.Inverse()))

	g := FromPose(CoordTrans{-1, 0, 2, 0, 45, 0})
	p := r3.Vec{X: 1, Y: 2, Z: 3}
	a := f.Mul(g).Apply(p)
	b := f.Apply(g.Apply(p))
	require.InDelta(t, b.X, a.X, 1e-9)
	require.InDelta(t, b.Y, a.Y, 1e-9)
	require.InDelta(t, b.Z, a.Z, 1e-9)
}

func TestTransformerChain(t *testing.T) {
	tr := Transformer{
		Tool: FromPose(CoordTrans{0, 0, 50, 0, 0, 0}),
		Base: FromPose(CoordTrans{100, 0, 0, 0, 0, 90}),
	}
	flange := []float64{100, 20, 0, 0, 0, 0, 7, 8}

	mcs := tr.FlangeToMCS(flange)
	require.InDelta(t, 50, mcs[2], 1e-9)
	require.Equal(t, 7.0, mcs[6])

	pcs := tr.FlangeToPCS(flange)
	// base rotated 90 deg about Z at x=100: machine (100, 20) is product (20, 0)
	require.InDelta(t, 20, pcs[0], 1e-9)
	require.InDelta(t, 0, pcs[1], 1e-9)
	require.InDelta(t, -90, pcs[5], 1e-9)

	back := tr.PCSToFlange(pcs)
	require.InDeltaSlice(t, flange, back[:], 1e-9)

	gotMCS := tr.PCSToMCS(pcs)
	require.InDeltaSlice(t, mcs[:], gotMCS[:], 1e-9)
	gotFlange := tr.MCSToFlange(mcs)
	require.InDeltaSlice(t, flange, gotFlange[:], 1e-9)
}
