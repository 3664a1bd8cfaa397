// Package coord holds position vectors and rigid frames for the MCS, PCS
// and ACS coordinate systems.
package coord

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vector sizes of the public position types
const (
	PosSize  = 8
	XyzSize  = 3
	PoseSize = 6
)

// Pos is a group position. In ACS it holds axis 0..7, in MCS/PCS it holds
// X, Y, Z, A, B, C, U, V.
type Pos [PosSize]float64

// Xyz is a point or direction in cartesian space
type Xyz [XyzSize]float64

// Vec converts to a gonum vector
func (p Xyz) Vec() r3.Vec { return r3.Vec{X: p[0], Y: p[1], Z: p[2]} }

// XyzOf converts a gonum vector
func XyzOf(v r3.Vec) Xyz { return Xyz{v.X, v.Y, v.Z} }

// CoordTrans is a pose (x, y, z, roll, pitch, yaw), angles in degrees
type CoordTrans [PoseSize]float64

// CoordSys selects a coordinate system
type CoordSys int32

const (
	MCS CoordSys = 0
	PCS CoordSys = 1
	ACS CoordSys = 2
)

func (c CoordSys) String() string {
	switch c {
	case MCS:
		return "MCS"
	case PCS:
		return "PCS"
	case ACS:
		return "ACS"
	default:
		return fmt.Sprintf("CoordSys(%d)", int32(c))
	}
}

// None marks an unselected tool or base
const None = -1

// Frame is a rigid transform: p' = R p + T
type Frame struct {
	R [3][3]float64
	T r3.Vec
}

// Identity returns the identity frame
func Identity() Frame {
	return Frame{R: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }

// FromPose builds a frame from (x, y, z, roll, pitch, yaw) with the
// rotation Rz(yaw) * Ry(pitch) * Rx(roll).
func FromPose(p CoordTrans) Frame {
	cr, sr := math.Cos(radians(p[3])), math.Sin(radians(p[3]))
	cp, sp := math.Cos(radians(p[4])), math.Sin(radians(p[4]))
	cy, sy := math.Cos(radians(p[5])), math.Sin(radians(p[5]))
	return Frame{
		R: [3][3]float64{
			{cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr},
			{sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr},
			{-sp, cp * sr, cp * cr},
		},
		T: r3.Vec{X: p[0], Y: p[1], Z: p[2]},
	}
}

// Pose returns the (x, y, z, roll, pitch, yaw) form of the frame
func (f Frame) Pose() CoordTrans {
	R := f.R
	sp := math.Max(-1, math.Min(1, -R[2][0]))
	pitch := math.Asin(sp)
	var roll, yaw float64
	if math.Abs(math.Cos(pitch)) > 1e-9 {
		roll = math.Atan2(R[2][1], R[2][2])
		yaw = math.Atan2(R[1][0], R[0][0])
	} else {
		yaw = math.Atan2(-R[0][1], R[1][1])
	}
	return CoordTrans{f.T.X, f.T.Y, f.T.Z, degrees(roll), degrees(pitch), degrees(yaw)}
}

// Rotate applies only the rotation
func (f Frame) Rotate(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: f.R[0][0]*v.X + f.R[0][1]*v.Y + f.R[0][2]*v.Z,
		Y: f.R[1][0]*v.X + f.R[1][1]*v.Y + f.R[1][2]*v.Z,
		Z: f.R[2][0]*v.X + f.R[2][1]*v.Y + f.R[2][2]*v.Z,
	}
}

// Apply maps a point through the frame
func (f Frame) Apply(v r3.Vec) r3.Vec {
	return r3.Add(f.Rotate(v), f.T)
}

// Mul composes frames: (f.Mul(g)).Apply(p) == f.Apply(g.Apply(p))
func (f Frame) Mul(g Frame) Frame {
	var out Frame
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out.R[i][j] += f.R[i][k] * g.R[k][j]
			}
		}
	}
	out.T = f.Apply(g.T)
	return out
}

// Inverse returns the inverse transform
func (f Frame) Inverse() Frame {
	var out Frame
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.R[i][j] = f.R[j][i]
		}
	}
	out.T = r3.Scale(-1, out.Rotate(f.T))
	return out
}

// Axis returns column i of the rotation (the frame's x, y or z direction)
func (f Frame) Axis(i int) r3.Vec {
	return r3.Vec{X: f.R[0][i], Y: f.R[1][i], Z: f.R[2][i]}
}

// FromAxes builds a frame from an origin and three orthonormal directions
func FromAxes(origin, x, y, z r3.Vec) Frame {
	return Frame{
		R: [3][3]float64{
			{x.X, y.X, z.X},
			{x.Y, y.Y, z.Y},
			{x.Z, y.Z, z.Z},
		},
		T: origin,
	}
}

// FrameOfCart reads the pose part of a cartesian vector
func FrameOfCart(cart []float64) Frame {
	var p CoordTrans
	copy(p[:], cart)
	return FromPose(p)
}

// CartOfFrame writes a frame into a cartesian vector, keeping the
// components after the pose (U, V) from rest.
func CartOfFrame(f Frame, rest []float64) Pos {
	var out Pos
	copy(out[:], rest)
	p := f.Pose()
	copy(out[:PoseSize], p[:])
	return out
}

// Transformer converts flange poses to MCS and PCS through the selected
// tool and base frames.
type Transformer struct {
	Tool Frame
	Base Frame
}

// NewTransformer returns a transformer with identity tool and base
func NewTransformer() Transformer {
	return Transformer{Tool: Identity(), Base: Identity()}
}

// FlangeToMCS returns the tool center point in the machine frame
func (t Transformer) FlangeToMCS(flange []float64) Pos {
	return CartOfFrame(FrameOfCart(flange).Mul(t.Tool), flange)
}

// FlangeToPCS returns the tool center point in the product frame
func (t Transformer) FlangeToPCS(flange []float64) Pos {
	return CartOfFrame(t.Base.Inverse().Mul(FrameOfCart(flange)).Mul(t.Tool), flange)
}

// MCSToFlange inverts FlangeToMCS
func (t Transformer) MCSToFlange(mcs Pos) Pos {
	return CartOfFrame(FrameOfCart(mcs[:]).Mul(t.Tool.Inverse()), mcs[:])
}

// PCSToFlange inverts FlangeToPCS
func (t Transformer) PCSToFlange(pcs Pos) Pos {
	return CartOfFrame(t.Base.Mul(FrameOfCart(pcs[:])).Mul(t.Tool.Inverse()), pcs[:])
}

// PCSToMCS maps a product-frame pose to the machine frame
func (t Transformer) PCSToMCS(pcs Pos) Pos {
	return CartOfFrame(t.Base.Mul(FrameOfCart(pcs[:])), pcs[:])
}
