package kinematics

import (
	"math"

	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/status"
)

// ScaraKinematics is a 4-joint SCARA arm: shoulder and elbow angles in
// degrees, a linear Z and a wrist roll about Z. The wrist sets the yaw (C)
// component of the flange pose.
type ScaraKinematics struct {
	*BaseKinematics
	l1, l2 float64
}

// NewScaraKinematics creates a SCARA arm with link lengths l1 and l2.
func NewScaraKinematics(l1, l2 float64, rails []Rail) (*ScaraKinematics, error) {
	if l1 <= 0 || l2 <= 0 {
		return nil, errors.Newf(errors.KinematicsParameterInvalid, "link lengths must be positive, got %v and %v", l1, l2)
	}
	return &ScaraKinematics{BaseKinematics: NewBaseKinematics(4, rails), l1: l1, l2: l2}, nil
}

func (sk *ScaraKinematics) GetType() string {
	return "scara"
}

func (sk *ScaraKinematics) CartMask() status.AxisMask {
	return status.MaskX | status.MaskY | status.MaskZ | status.MaskC
}

func (sk *ScaraKinematics) Forward(joints []float64) ([]float64, error) {
	if err := sk.checkLen(joints); err != nil {
		return nil, err
	}
	t1, t12 := rad(joints[0]), rad(joints[0]+joints[1])
	cart := make([]float64, CartSize)
	cart[0] = sk.l1*math.Cos(t1) + sk.l2*math.Cos(t12)
	cart[1] = sk.l1*math.Sin(t1) + sk.l2*math.Sin(t12)
	cart[2] = joints[2]
	cart[5] = joints[0] + joints[1] + joints[3]
	return cart, nil
}

// Inverse keeps the elbow on the side of the seed posture.
func (sk *ScaraKinematics) Inverse(cart []float64, seed []float64) ([]float64, error) {
	s := seedOrZero(seed, 4)
	x, y := cart[0], cart[1]
	r2 := x*x + y*y
	if r2 < 1e-12 {
		return nil, errors.New(errors.IKSingular, "target on the shoulder axis")
	}
	c2 := (r2 - sk.l1*sk.l1 - sk.l2*sk.l2) / (2 * sk.l1 * sk.l2)
	if c2 > 1+1e-9 || c2 < -1-1e-9 {
		return nil, errors.Newf(errors.InverseKinematicsFailed, "target (%.4f, %.4f) out of reach", x, y)
	}
	c2 = math.Max(-1, math.Min(1, c2))
	t2 := math.Acos(c2)
	if s[1] < 0 {
		t2 = -t2
	}
	t1 := math.Atan2(y, x) - math.Atan2(sk.l2*math.Sin(t2), sk.l1+sk.l2*math.Cos(t2))

	joints := make([]float64, 4)
	joints[0] = nearestAngle(deg(t1), s[0])
	joints[1] = deg(t2)
	joints[2] = cart[2]
	joints[3] = nearestAngle(cart[5]-joints[0]-joints[1], s[3])
	if err := sk.CheckLimits(joints); err != nil {
		return nil, err
	}
	return joints, nil
}
