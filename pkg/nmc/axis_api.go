package nmc

import (
	"math"

	"nexmotion-go/pkg/axis"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/opt"
	"nexmotion-go/pkg/status"
)

// axisCmd runs fn on axis i under the device lock and publishes the
// result
func (d *Device) axisCmd(i int, fn func(a *axis.Axis) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.operational(); err != nil {
		return err
	}
	a, err := d.axisLocked(i)
	if err != nil {
		return err
	}
	err = fn(a)
	d.publish()
	if e, ok := err.(*errors.Error); ok && e.Object == "" {
		e.SetObject("axis %d", i)
	}
	return err
}

func (d *Device) axisLocked(i int) (*axis.Axis, error) {
	if i < 0 || i >= len(d.axes) {
		return nil, errors.InvalidObject("axis", i)
	}
	return d.axes[i], nil
}

func (d *Device) axisSnap(i int) (axis.Snapshot, error) {
	s := d.snap.Load()
	if i < 0 || i >= len(s.Axes) {
		return axis.Snapshot{}, errors.InvalidObject("axis", i)
	}
	return s.Axes[i], nil
}

// maxVelOf maps an optional velocity onto the axis convention where zero
// keeps AXP_VM
func maxVelOf(v opt.Float) (float64, error) {
	vel, ok := v.Get()
	if !ok {
		return 0, nil
	}
	if !(vel > 0) || math.IsInf(vel, 0) {
		return 0, errors.InvalidValue("max velocity %v", vel)
	}
	return vel, nil
}

// GetAxisCount returns the number of configured axes
func (d *Device) GetAxisCount() int {
	return len(d.snap.Load().Axes)
}

// AxisGetDescription returns the configured axis name
func (d *Device) AxisGetDescription(i int) (desc string, err error) {
	defer d.traced("AxisGetDescription", d.begin(), &err)
	s, err := d.axisSnap(i)
	return s.Description, err
}

// AxisEnable energizes the drive; an active alarm or emergency stop
// moves the axis to Error
func (d *Device) AxisEnable(i int) (err error) {
	defer d.traced("AxisEnable", d.begin(), &err)
	return d.axisCmd(i, func(a *axis.Axis) error {
		if err := d.safetyLatched(); err != nil {
			return err
		}
		return a.Enable()
	})
}

// AxisDisable switches the servo off and clears the motion queue
func (d *Device) AxisDisable(i int) (err error) {
	defer d.traced("AxisDisable", d.begin(), &err)
	return d.axisCmd(i, func(a *axis.Axis) error {
		a.Disable()
		return nil
	})
}

// AxisPtp moves axis i to target. A given maxVel is stored to AXP_VM.
func (d *Device) AxisPtp(i int, target float64, maxVel opt.Float) (err error) {
	defer d.traced("AxisPtp", d.begin(), &err)
	vel, err := maxVelOf(maxVel)
	if err != nil {
		return err
	}
	return d.axisCmd(i, func(a *axis.Axis) error { return a.Ptp(target, vel) })
}

// AxisJog moves axis i continuously in dir (1 or -1) until halted
func (d *Device) AxisJog(i, dir int, maxVel opt.Float) (err error) {
	defer d.traced("AxisJog", d.begin(), &err)
	vel, err := maxVelOf(maxVel)
	if err != nil {
		return err
	}
	return d.axisCmd(i, func(a *axis.Axis) error { return a.Jog(dir, vel) })
}

// AxisHalt decelerates with AXP_DEC back to StandStill
func (d *Device) AxisHalt(i int) (err error) {
	defer d.traced("AxisHalt", d.begin(), &err)
	return d.axisCmd(i, (*axis.Axis).Halt)
}

// AxisStop decelerates with AXP_STOP_PROF_DEC and latches Stopped
func (d *Device) AxisStop(i int) (err error) {
	defer d.traced("AxisStop", d.begin(), &err)
	return d.axisCmd(i, (*axis.Axis).Stop)
}

// AxisResetState clears Stopped or Error. A released emergency stop or
// watchdog fault is cleared as well.
func (d *Device) AxisResetState(i int) (err error) {
	defer d.traced("AxisResetState", d.begin(), &err)
	return d.axisCmd(i, func(a *axis.Axis) error {
		if err := d.safety.Reset(); err != nil && a.State() == status.AxisError {
			return err
		}
		return a.ResetState()
	})
}

// AxisResetDriveAlm clears the drive alarm without leaving Error
func (d *Device) AxisResetDriveAlm(i int) (err error) {
	defer d.traced("AxisResetDriveAlm", d.begin(), &err)
	return d.axisCmd(i, func(a *axis.Axis) error {
		a.ResetDriveAlm()
		return nil
	})
}

// AxisGetDriveAlmCode returns the drive alarm code, zero when clear
func (d *Device) AxisGetDriveAlmCode(i int) (code int32, err error) {
	defer d.traced("AxisGetDriveAlmCode", d.begin(), &err)
	s, err := d.axisSnap(i)
	return s.AlarmCode, err
}

// AxisHomeDrive moves to the drive reference and latches RHOM
func (d *Device) AxisHomeDrive(i int) (err error) {
	defer d.traced("AxisHomeDrive", d.begin(), &err)
	return d.axisCmd(i, (*axis.Axis).HomeDrive)
}

// AxisSetHomePos sets the position assigned by the next homing
func (d *Device) AxisSetHomePos(i int, pos float64) (err error) {
	defer d.traced("AxisSetHomePos", d.begin(), &err)
	return d.axisCmd(i, func(a *axis.Axis) error { return a.SetHomePos(pos) })
}

// AxisGetHomePos returns the configured home position
func (d *Device) AxisGetHomePos(i int) (pos float64, err error) {
	defer d.traced("AxisGetHomePos", d.begin(), &err)
	s, err := d.axisSnap(i)
	return s.HomePos, err
}

// AxisVelOverride replans the active motion with a new velocity
func (d *Device) AxisVelOverride(i int, vel float64) (err error) {
	defer d.traced("AxisVelOverride", d.begin(), &err)
	return d.axisCmd(i, func(a *axis.Axis) error { return a.VelOverride(vel) })
}

// AxisAccOverride stores AXP_ACC and replans the active motion
func (d *Device) AxisAccOverride(i int, acc float64) (err error) {
	defer d.traced("AxisAccOverride", d.begin(), &err)
	return d.axisCmd(i, func(a *axis.Axis) error { return a.AccOverride(acc) })
}

// AxisDecOverride stores AXP_DEC and replans the active motion
func (d *Device) AxisDecOverride(i int, dec float64) (err error) {
	defer d.traced("AxisDecOverride", d.begin(), &err)
	return d.axisCmd(i, func(a *axis.Axis) error { return a.DecOverride(dec) })
}

// AxisSetSpeedRatio time-scales every motion of the axis, 0..100 percent
func (d *Device) AxisSetSpeedRatio(i int, pct float64) (err error) {
	defer d.traced("AxisSetSpeedRatio", d.begin(), &err)
	return d.axisCmd(i, func(a *axis.Axis) error { return a.SetSpeedRatio(pct) })
}

// AxisGetSpeedRatio returns the speed ratio in percent
func (d *Device) AxisGetSpeedRatio(i int) (pct float64, err error) {
	defer d.traced("AxisGetSpeedRatio", d.begin(), &err)
	s, err := d.axisSnap(i)
	return s.SpeedRatio, err
}

// AxisSetVelRatio is the former name of AxisSetSpeedRatio
func (d *Device) AxisSetVelRatio(i int, pct float64) error {
	return d.AxisSetSpeedRatio(i, pct)
}

// AxisGetVelRatio is the former name of AxisGetSpeedRatio
func (d *Device) AxisGetVelRatio(i int) (float64, error) {
	return d.AxisGetSpeedRatio(i)
}

// AxisGetState returns the axis state
func (d *Device) AxisGetState(i int) (st status.AxisState, err error) {
	defer d.traced("AxisGetState", d.begin(), &err)
	s, err := d.axisSnap(i)
	return s.State, err
}

// AxisGetStatus returns the axis status word
func (d *Device) AxisGetStatus(i int) (st status.AxisStatus, err error) {
	defer d.traced("AxisGetStatus", d.begin(), &err)
	s, err := d.axisSnap(i)
	return s.Status, err
}

// AxisGetCommandPos returns the commanded position
func (d *Device) AxisGetCommandPos(i int) (pos float64, err error) {
	defer d.traced("AxisGetCommandPos", d.begin(), &err)
	s, err := d.axisSnap(i)
	return s.CmdPos, err
}

// AxisGetActualPos returns the feedback position
func (d *Device) AxisGetActualPos(i int) (pos float64, err error) {
	defer d.traced("AxisGetActualPos", d.begin(), &err)
	s, err := d.axisSnap(i)
	return s.ActPos, err
}

// AxisGetCommandVel returns the commanded velocity
func (d *Device) AxisGetCommandVel(i int) (vel float64, err error) {
	defer d.traced("AxisGetCommandVel", d.begin(), &err)
	s, err := d.axisSnap(i)
	return s.CmdVel, err
}

// AxisGetActualVel returns the feedback velocity
func (d *Device) AxisGetActualVel(i int) (vel float64, err error) {
	defer d.traced("AxisGetActualVel", d.begin(), &err)
	s, err := d.axisSnap(i)
	return s.ActVel, err
}

// AxisGetMotionBuffSpace returns the free motion queue entries
func (d *Device) AxisGetMotionBuffSpace(i int) (n int, err error) {
	defer d.traced("AxisGetMotionBuffSpace", d.begin(), &err)
	s, err := d.axisSnap(i)
	return s.BuffSpace, err
}
