package kinematics

import "nexmotion-go/pkg/status"

// CartesianKinematics maps joint i directly to cartesian component i.
type CartesianKinematics struct {
	*BaseKinematics
}

// NewCartesianKinematics creates an n-joint gantry.
func NewCartesianKinematics(n int, rails []Rail) *CartesianKinematics {
	return &CartesianKinematics{BaseKinematics: NewBaseKinematics(n, rails)}
}

func (ck *CartesianKinematics) GetType() string {
	return "cartesian"
}

func (ck *CartesianKinematics) CartMask() status.AxisMask {
	return lowMask(ck.axes)
}

func (ck *CartesianKinematics) Forward(joints []float64) ([]float64, error) {
	if err := ck.checkLen(joints); err != nil {
		return nil, err
	}
	cart := make([]float64, CartSize)
	copy(cart, joints)
	return cart, nil
}

func (ck *CartesianKinematics) Inverse(cart []float64, seed []float64) ([]float64, error) {
	joints := make([]float64, ck.axes)
	copy(joints, cart)
	if err := ck.CheckLimits(joints); err != nil {
		return nil, err
	}
	return joints, nil
}
