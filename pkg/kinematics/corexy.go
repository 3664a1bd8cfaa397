// CoreXY kinematics
package kinematics

import "nexmotion-go/pkg/status"

// CoreXYKinematics couples the first two joints through crossed belts:
//   - X = 0.5 * (A + B)
//   - Y = 0.5 * (A - B)
//
// Remaining joints map directly.
type CoreXYKinematics struct {
	*BaseKinematics
}

// NewCoreXYKinematics creates a CoreXY mechanism with n >= 2 joints.
func NewCoreXYKinematics(n int, rails []Rail) *CoreXYKinematics {
	return &CoreXYKinematics{BaseKinematics: NewBaseKinematics(n, rails)}
}

func (ck *CoreXYKinematics) GetType() string {
	return "corexy"
}

func (ck *CoreXYKinematics) CartMask() status.AxisMask {
	return lowMask(ck.axes)
}

func (ck *CoreXYKinematics) Forward(joints []float64) ([]float64, error) {
	if err := ck.checkLen(joints); err != nil {
		return nil, err
	}
	cart := make([]float64, CartSize)
	copy(cart, joints)
	cart[0] = 0.5 * (joints[0] + joints[1])
	cart[1] = 0.5 * (joints[0] - joints[1])
	return cart, nil
}

func (ck *CoreXYKinematics) Inverse(cart []float64, seed []float64) ([]float64, error) {
	joints := make([]float64, ck.axes)
	copy(joints, cart)
	joints[0] = cart[0] + cart[1]
	joints[1] = cart[0] - cart[1]
	if err := ck.CheckLimits(joints); err != nil {
		return nil, err
	}
	return joints, nil
}
