// Polar kinematics for a rotating table with a linear arm.
package kinematics

import (
	"math"

	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/status"
)

// PolarKinematics uses joint 0 as arm radius, joint 1 as table angle in
// degrees and joint 2 as Z:
//   - X = r * cos(theta)
//   - Y = r * sin(theta)
type PolarKinematics struct {
	*BaseKinematics
	maxRadius float64
}

// NewPolarKinematics creates a polar mechanism with n >= 2 joints. The arm
// rail bounds the reachable radius.
func NewPolarKinematics(n int, rails []Rail) *PolarKinematics {
	pk := &PolarKinematics{BaseKinematics: NewBaseKinematics(n, rails), maxRadius: math.Inf(1)}
	if len(rails) > 0 && rails[0].Bounded() {
		pk.maxRadius = rails[0].PositionMax
	}
	return pk
}

func (pk *PolarKinematics) GetType() string {
	return "polar"
}

func (pk *PolarKinematics) CartMask() status.AxisMask {
	return lowMask(pk.axes)
}

func (pk *PolarKinematics) Forward(joints []float64) ([]float64, error) {
	if err := pk.checkLen(joints); err != nil {
		return nil, err
	}
	cart := make([]float64, CartSize)
	copy(cart, joints)
	r, theta := joints[0], rad(joints[1])
	cart[0] = r * math.Cos(theta)
	cart[1] = r * math.Sin(theta)
	return cart, nil
}

func (pk *PolarKinematics) Inverse(cart []float64, seed []float64) ([]float64, error) {
	s := seedOrZero(seed, pk.axes)
	joints := make([]float64, pk.axes)
	copy(joints, cart)
	x, y := cart[0], cart[1]
	r := math.Hypot(x, y)
	if r > pk.maxRadius+1e-9 {
		return nil, errors.Newf(errors.IKOverAxisLimit, "radius %.4f beyond arm reach %.4f", r, pk.maxRadius)
	}
	joints[0] = r
	if r < 1e-9 {
		// the table angle is free at the center
		joints[1] = s[1]
	} else {
		joints[1] = nearestAngle(deg(math.Atan2(y, x)), s[1])
	}
	if err := pk.CheckLimits(joints); err != nil {
		return nil, err
	}
	return joints, nil
}
