// Package calib computes tool and base frames from taught poses.
//
// Inputs are flange poses in the machine frame (MCS, no tool applied).
// Outputs are CoordTrans values ready for GP_TOOL_TRANS / GP_BASE_TRANS.
package calib

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"nexmotion-go/pkg/coord"
	"nexmotion-go/pkg/errors"
)

const minSpan = 1e-6

func frameOf(p coord.Pos) coord.Frame {
	return coord.FrameOfCart(p[:])
}

func point(p coord.Pos) r3.Vec {
	return r3.Vec{X: p[0], Y: p[1], Z: p[2]}
}

// tcpOffset solves R_i t + p_i = q for the tool offset t (flange frame)
// and the touched point q (machine frame) in the least-squares sense.
// The tolerance is the largest distance of any pose's TCP from q.
func tcpOffset(poses ...coord.Pos) (r3.Vec, float64, error) {
	n := len(poses)
	A := mat.NewDense(3*n, 6, nil)
	b := mat.NewVecDense(3*n, nil)
	for i, p := range poses {
		f := frameOf(p)
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				A.Set(3*i+r, c, f.R[r][c])
			}
			A.Set(3*i+r, 3+r, -1)
		}
		b.SetVec(3*i, -p[0])
		b.SetVec(3*i+1, -p[1])
		b.SetVec(3*i+2, -p[2])
	}

	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDThin) {
		return r3.Vec{}, 0, errors.New(errors.ParameterValueInvalid, "calibration poses are degenerate")
	}
	vals := svd.Values(nil)
	if vals[len(vals)-1] < 1e-6*vals[0] {
		return r3.Vec{}, 0, errors.New(errors.ParameterValueInvalid, "calibration poses do not differ in orientation")
	}
	var x mat.VecDense
	if err := x.SolveVec(A, b); err != nil {
		return r3.Vec{}, 0, errors.Wrap(err, errors.ParameterValueInvalid, "least squares failed")
	}

	t := r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	q := r3.Vec{X: x.AtVec(3), Y: x.AtVec(4), Z: x.AtVec(5)}
	tol := 0.0
	for _, p := range poses {
		d := r3.Norm(r3.Sub(frameOf(p).Apply(t), q))
		tol = math.Max(tol, d)
	}
	return t, tol, nil
}

// orthoFrame builds a right-handed rotation whose z axis is z and whose
// y axis lies in the plane of z and yHint.
func orthoFrame(origin, yHint, z r3.Vec) (coord.Frame, error) {
	if r3.Norm(z) < minSpan {
		return coord.Frame{}, errors.New(errors.ParameterValueInvalid, "z direction is degenerate")
	}
	z = r3.Unit(z)
	x := r3.Cross(yHint, z)
	if r3.Norm(x) < minSpan {
		return coord.Frame{}, errors.New(errors.ParameterValueInvalid, "plane point is collinear with the z axis")
	}
	x = r3.Unit(x)
	y := r3.Cross(z, x)
	return coord.FromAxes(origin, x, y, z), nil
}

// Tool4p finds the tool offset from four poses touching one fixed point
// with different orientations. The tool orientation equals the flange.
func Tool4p(p1, p2, p3, p4 coord.Pos) (coord.CoordTrans, float64, error) {
	t, tol, err := tcpOffset(p1, p2, p3, p4)
	if err != nil {
		return coord.CoordTrans{}, 0, err
	}
	return coord.CoordTrans{t.X, t.Y, t.Z}, tol, nil
}

// Tool4pWithZ is Tool4p where the fourth pose also points the tool z axis
// straight down (-Z of the machine frame).
func Tool4pWithZ(p1, p2, p3, p4ZDir coord.Pos) (coord.CoordTrans, float64, error) {
	t, tol, err := tcpOffset(p1, p2, p3, p4ZDir)
	if err != nil {
		return coord.CoordTrans{}, 0, err
	}
	f4 := frameOf(p4ZDir)
	// tool z in flange coordinates
	z := f4.Inverse().Rotate(r3.Vec{Z: -1})
	hint := r3.Vec{Y: 1}
	if math.Abs(r3.Dot(r3.Unit(z), hint)) > 0.99 {
		hint = r3.Vec{X: -1}
	}
	f, err := orthoFrame(t, hint, z)
	if err != nil {
		return coord.CoordTrans{}, 0, err
	}
	return f.Pose(), tol, nil
}

// toolOrientation derives the tool rotation in flange coordinates from a
// reference pose, a pose moved along the tool's -Z and a pose moved into
// the tool's YZ plane (positive Y side). Both moves are pure translations.
func toolOrientation(ref, minusZ, yz coord.Pos) (coord.Frame, error) {
	o := point(ref)
	zw := r3.Sub(o, point(minusZ))
	yw := r3.Sub(point(yz), o)
	fw, err := orthoFrame(r3.Vec{}, yw, zw)
	if err != nil {
		return coord.Frame{}, err
	}
	rot := frameOf(ref).Inverse()
	rot.T = r3.Vec{}
	return rot.Mul(fw), nil
}

// Tool4pWithOri combines Tool4p with an orientation taught from the fourth
// pose.
func Tool4pWithOri(p1, p2, p3, p4, minusZ, yzPlane coord.Pos) (coord.CoordTrans, float64, error) {
	t, tol, err := tcpOffset(p1, p2, p3, p4)
	if err != nil {
		return coord.CoordTrans{}, 0, err
	}
	f, err := toolOrientation(p4, minusZ, yzPlane)
	if err != nil {
		return coord.CoordTrans{}, 0, err
	}
	f.T = t
	return f.Pose(), tol, nil
}

// ToolOri teaches the tool orientation only; the translation is zero.
func ToolOri(org, minusZ, yz coord.Pos) (coord.CoordTrans, error) {
	f, err := toolOrientation(org, minusZ, yz)
	if err != nil {
		return coord.CoordTrans{}, err
	}
	return f.Pose(), nil
}

// Base1p uses the taught TCP pose as the base frame.
func Base1p(p1 coord.Pos) (coord.CoordTrans, error) {
	var out coord.CoordTrans
	copy(out[:], p1[:coord.PoseSize])
	return out, nil
}

// Base2p places the origin at p1 with the x axis toward p2. The z axis
// stays as close to the machine z axis as possible.
func Base2p(p1, p2 coord.Pos) (coord.CoordTrans, error) {
	o := point(p1)
	x := r3.Sub(point(p2), o)
	if r3.Norm(x) < minSpan {
		return coord.CoordTrans{}, errors.New(errors.ParameterValueInvalid, "base points coincide")
	}
	x = r3.Unit(x)
	y := r3.Cross(r3.Vec{Z: 1}, x)
	if r3.Norm(y) < minSpan {
		return coord.CoordTrans{}, errors.New(errors.ParameterValueInvalid, "base x axis is vertical")
	}
	y = r3.Unit(y)
	z := r3.Cross(x, y)
	return coord.FromAxes(o, x, y, z).Pose(), nil
}

// Base3p places the origin at p1 with the x axis toward p2 and p3 in the
// XY plane on the positive y side.
func Base3p(p1, p2, p3 coord.Pos) (coord.CoordTrans, error) {
	o := point(p1)
	x := r3.Sub(point(p2), o)
	if r3.Norm(x) < minSpan {
		return coord.CoordTrans{}, errors.New(errors.ParameterValueInvalid, "base points coincide")
	}
	x = r3.Unit(x)
	z := r3.Cross(x, r3.Sub(point(p3), o))
	if r3.Norm(z) < minSpan {
		return coord.CoordTrans{}, errors.New(errors.ParameterValueInvalid, "base points are collinear")
	}
	z = r3.Unit(z)
	y := r3.Cross(z, x)
	return coord.FromAxes(o, x, y, z).Pose(), nil
}
