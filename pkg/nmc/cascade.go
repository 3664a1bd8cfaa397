package nmc

import (
	"time"

	"nexmotion-go/pkg/axis"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/group"
	"nexmotion-go/pkg/safety"
)

// Device-wide operations visit axes in index order, then groups, and
// stop at the first failure. Earlier objects keep their new state.

func (d *Device) cascade(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.operational(); err != nil {
		return err
	}
	err := fn()
	d.publish()
	return err
}

func (d *Device) eachAxis(skipFollowing bool, fn func(a *axis.Axis) error) error {
	for _, a := range d.axes {
		// a segment follower is brought to rest by its group
		if skipFollowing && a.Following() != nil {
			continue
		}
		if err := fn(a); err != nil {
			if e, ok := err.(*errors.Error); ok && e.Object == "" {
				e.SetObject("axis %d", a.Index())
			}
			return err
		}
	}
	return nil
}

func (d *Device) eachGroup(fn func(g *group.Group) error) error {
	for _, g := range d.groups {
		if err := fn(g); err != nil {
			if e, ok := err.(*errors.Error); ok && e.Object == "" {
				e.SetObject("group %d", g.Index())
			}
			return err
		}
	}
	return nil
}

// ResetStateAll clears the safety latch, then every axis and group
func (d *Device) ResetStateAll() (err error) {
	defer d.traced("DeviceResetStateAll", d.begin(), &err)
	return d.cascade(func() error {
		if err := d.safety.Reset(); err != nil {
			return err
		}
		if err := d.eachAxis(false, (*axis.Axis).ResetState); err != nil {
			return err
		}
		return d.eachGroup((*group.Group).ResetState)
	})
}

// EnableAll enables every axis, then every group
func (d *Device) EnableAll() (err error) {
	defer d.traced("DeviceEnableAll", d.begin(), &err)
	return d.cascade(func() error {
		if err := d.safetyLatched(); err != nil {
			return err
		}
		if err := d.eachAxis(false, (*axis.Axis).Enable); err != nil {
			return err
		}
		return d.eachGroup((*group.Group).Enable)
	})
}

// DisableAll disables every axis and group
func (d *Device) DisableAll() (err error) {
	defer d.traced("DeviceDisableAll", d.begin(), &err)
	return d.cascade(func() error {
		d.eachAxis(false, func(a *axis.Axis) error {
			a.Disable()
			return nil
		})
		return d.eachGroup(func(g *group.Group) error {
			g.Disable()
			return nil
		})
	})
}

// HaltAll halts every axis and group
func (d *Device) HaltAll() (err error) {
	defer d.traced("DeviceHaltAll", d.begin(), &err)
	return d.cascade(func() error {
		if err := d.eachAxis(true, (*axis.Axis).Halt); err != nil {
			return err
		}
		return d.eachGroup((*group.Group).Halt)
	})
}

// StopAll stops every axis and group
func (d *Device) StopAll() (err error) {
	defer d.traced("DeviceStopAll", d.begin(), &err)
	return d.cascade(d.stopAllLocked)
}

func (d *Device) stopAllLocked() error {
	if err := d.eachAxis(true, (*axis.Axis).Stop); err != nil {
		return err
	}
	return d.eachGroup((*group.Group).Stop)
}

// AxisHaltAll halts every axis that is not driven by a group segment
func (d *Device) AxisHaltAll() (err error) {
	defer d.traced("AxisHaltAll", d.begin(), &err)
	return d.cascade(func() error {
		return d.eachAxis(true, (*axis.Axis).Halt)
	})
}

// AxisStopAll stops every axis, breaking axes out of group segments
func (d *Device) AxisStopAll() (err error) {
	defer d.traced("AxisStopAll", d.begin(), &err)
	return d.cascade(func() error {
		return d.eachAxis(false, (*axis.Axis).Stop)
	})
}

// GroupHaltAll halts every group
func (d *Device) GroupHaltAll() (err error) {
	defer d.traced("GroupHaltAll", d.begin(), &err)
	return d.cascade(func() error {
		return d.eachGroup((*group.Group).Halt)
	})
}

// GroupStopAll stops every group
func (d *Device) GroupStopAll() (err error) {
	defer d.traced("GroupStopAll", d.begin(), &err)
	return d.cascade(func() error {
		return d.eachGroup((*group.Group).Stop)
	})
}

// Watchdog modes
const (
	WatchdogStop0 = int32(safety.Stop0)
	WatchdogStop1 = int32(safety.Stop1)
)

// DeviceWatchdogTimerEnable arms the watchdog. Unless reset within
// timeoutMs, STOP0 error-stops every axis and STOP1 stops them with their
// stop deceleration.
func (d *Device) DeviceWatchdogTimerEnable(timeoutMs uint32, mode int32) (err error) {
	defer d.traced("DeviceWatchdogTimerEnable", d.begin(), &err)
	if timeoutMs == 0 || timeoutMs == WaitTimeInfinite {
		return errors.InvalidValue("watchdog timeout %d ms", timeoutMs)
	}
	return d.cascade(func() error {
		return d.safety.WatchdogEnable(time.Duration(timeoutMs)*time.Millisecond, safety.WatchdogMode(mode))
	})
}

// DeviceWatchdogTimerDisable disarms the watchdog
func (d *Device) DeviceWatchdogTimerDisable() (err error) {
	defer d.traced("DeviceWatchdogTimerDisable", d.begin(), &err)
	return d.cascade(func() error {
		d.safety.WatchdogDisable()
		return nil
	})
}

// DeviceWatchdogTimerReset restarts the watchdog interval
func (d *Device) DeviceWatchdogTimerReset() (err error) {
	defer d.traced("DeviceWatchdogTimerReset", d.begin(), &err)
	return d.safety.WatchdogReset()
}
