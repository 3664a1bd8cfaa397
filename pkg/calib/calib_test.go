package calib

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"nexmotion-go/pkg/coord"
	"nexmotion-go/pkg/errors"
)

// touching returns the flange pose that puts tool offset t on point q
// with orientation (roll, pitch, yaw).
func touching(q, t r3.Vec, roll, pitch, yaw float64) coord.Pos {
	f := coord.FromPose(coord.CoordTrans{0, 0, 0, roll, pitch, yaw})
	f.T = r3.Sub(q, f.Rotate(t))
	p := f.Pose()
	var out coord.Pos
	copy(out[:], p[:])
	return out
}

func TestTool4pRecoversOffset(t *testing.T) {
	tool := r3.Vec{X: 10, Y: -5, Z: 50}
	q := r3.Vec{X: 300, Y: 100, Z: 20}
	ct, tol, err := Tool4p(
		touching(q, tool, 180, 0, 0),
		touching(q, tool, 160, 10, 30),
		touching(q, tool, 200, -15, 90),
		touching(q, tool, 170, 20, -45),
	)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{10, -5, 50, 0, 0, 0}, ct[:], 1e-6)
	require.Less(t, tol, 1e-6)
}

func TestTool4pRejectsSameOrientation(t *testing.T) {
	tool := r3.Vec{Z: 50}
	q := r3.Vec{X: 1}
	p := touching(q, tool, 180, 0, 0)
	_, _, err := Tool4p(p, p, p, p)
	require.Equal(t, errors.ParameterValueInvalid, errors.CodeOf(err))
}

func TestTool4pWithZ(t *testing.T) {
	tool := r3.Vec{Z: 80}
	q := r3.Vec{X: 200, Y: 50}
	ct, _, err := Tool4pWithZ(
		touching(q, tool, 150, 0, 0),
		touching(q, tool, 180, 20, 10),
		touching(q, tool, 190, -20, 60),
		touching(q, tool, 180, 0, 0),
	)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{0, 0, 80}, ct[:3], 1e-6)

	// flange z already points down in the fourth pose, so tool z = flange z
	f := coord.FromPose(ct)
	z := f.Axis(2)
	require.InDelta(t, 1, z.Z, 1e-9)
}

func TestToolOri(t *testing.T) {
	org := coord.Pos{100, 0, 200, 180, 0, 0}
	minusZ := org
	minusZ[2] += 10 // flange z points down, so tool -Z is machine +Z
	yz := org
	yz[1] -= 10 // flange y is machine -y after the 180 deg roll
	ct, err := ToolOri(org, minusZ, yz)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{0, 0, 0}, ct[:3], 1e-9)
	f := coord.FromPose(ct)
	require.InDelta(t, 1, f.R[0][0], 1e-9)
	require.InDelta(t, 1, f.R[1][1], 1e-9)
	require.InDelta(t, 1, f.R[2][2], 1e-9)
}

func TestBaseCalibration(t *testing.T) {
	b1, err := Base1p(coord.Pos{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.Equal(t, coord.CoordTrans{1, 2, 3, 4, 5, 6}, b1)

	b2, err := Base2p(coord.Pos{100, 100, 0}, coord.Pos{100, 200, 0})
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{100, 100, 0, 0, 0, 90}, b2[:], 1e-9)

	b3, err := Base3p(coord.Pos{0, 0, 10}, coord.Pos{10, 0, 10}, coord.Pos{5, 0, 20})
	require.NoError(t, err)
	// p3 above the x axis: the base XY plane is the machine XZ plane
	f := coord.FromPose(b3)
	y := f.Axis(1)
	require.InDelta(t, 1, y.Z, 1e-9)
	require.InDelta(t, 10, f.T.Z, 1e-9)

	_, err = Base2p(coord.Pos{1, 1, 1}, coord.Pos{1, 1, 1})
	require.Equal(t, errors.ParameterValueInvalid, errors.CodeOf(err))
	_, err = Base3p(coord.Pos{}, coord.Pos{1}, coord.Pos{2})
	require.Equal(t, errors.ParameterValueInvalid, errors.CodeOf(err))
}
