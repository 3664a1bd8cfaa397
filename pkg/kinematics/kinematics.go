// Package kinematics maps joint (ACS) positions to flange poses in the
// machine frame and back.
//
// Cartesian vectors use the group position layout: X, Y, Z, A, B, C, U, V,
// with A/B/C the roll/pitch/yaw angles in degrees.
package kinematics

import (
	"math"

	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/status"
)

// CartSize is the length of a cartesian position vector.
const CartSize = 8

// Rail bounds one joint.
type Rail struct {
	Name        string
	PositionMin float64
	PositionMax float64
}

// Bounded reports whether the rail carries a usable range.
func (r Rail) Bounded() bool {
	return r.PositionMin < r.PositionMax
}

// Kinematics is the interface for all kinematic implementations.
type Kinematics interface {
	// GetType returns the kinematic type name (e.g. "cartesian", "scara").
	GetType() string

	// AxisCount returns the number of joints.
	AxisCount() int

	// CartMask returns the cartesian components the mechanism controls.
	CartMask() status.AxisMask

	// Forward computes the flange pose from joint positions.
	Forward(joints []float64) ([]float64, error)

	// Inverse computes joint positions for a flange pose. seed is the
	// current joint position and selects between multiple solutions.
	Inverse(cart []float64, seed []float64) ([]float64, error)

	// GetLimits returns the joint ranges.
	GetLimits() [][2]float64
}

// BaseKinematics provides joint bookkeeping shared by all implementations.
type BaseKinematics struct {
	Rails []Rail
	axes  int
}

// NewBaseKinematics creates a base for n joints. Missing rails are unbounded.
func NewBaseKinematics(n int, rails []Rail) *BaseKinematics {
	r := make([]Rail, n)
	copy(r, rails)
	return &BaseKinematics{Rails: r, axes: n}
}

// AxisCount returns the number of joints.
func (bk *BaseKinematics) AxisCount() int {
	return bk.axes
}

// GetLimits returns the joint ranges, unbounded joints as +-Inf.
func (bk *BaseKinematics) GetLimits() [][2]float64 {
	out := make([][2]float64, bk.axes)
	for i, r := range bk.Rails {
		if r.Bounded() {
			out[i] = [2]float64{r.PositionMin, r.PositionMax}
		} else {
			out[i] = [2]float64{math.Inf(-1), math.Inf(1)}
		}
	}
	return out
}

// CheckLimits verifies that every bounded joint is within its rail.
func (bk *BaseKinematics) CheckLimits(joints []float64) error {
	for i, r := range bk.Rails {
		if i >= len(joints) || !r.Bounded() {
			continue
		}
		if joints[i] < r.PositionMin-1e-9 || joints[i] > r.PositionMax+1e-9 {
			return errors.Newf(errors.IKOverAxisLimit,
				"joint %d position %.4f outside [%.4f, %.4f]", i, joints[i], r.PositionMin, r.PositionMax)
		}
	}
	return nil
}

func (bk *BaseKinematics) checkLen(joints []float64) error {
	if len(joints) != bk.axes {
		return errors.Newf(errors.AxisCountInvalid, "expected %d joints, got %d", bk.axes, len(joints))
	}
	return nil
}

func seedOrZero(seed []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, seed)
	return out
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }
func rad(deg float64) float64 { return deg * math.Pi / 180 }

// nearestAngle returns a + k*360 closest to ref.
func nearestAngle(a, ref float64) float64 {
	return a + 360*math.Round((ref-a)/360)
}

// lowMask selects the first n components.
func lowMask(n int) status.AxisMask {
	if n >= CartSize {
		return status.MaskAll
	}
	return status.AxisMask(1<<uint(n) - 1)
}
