package axis

import (
	"sync"

	"nexmotion-go/pkg/errors"
)

// Drive is the servo drive behind an axis. Positions are raw drive units
// before the home offset is applied.
type Drive interface {
	ServoOn() error
	ServoOff()
	SetCommand(pos float64)
	ActualPosition() float64
	AlarmCode() int32
	ResetAlarm()
	// LimitSwitches reports the positive and negative hardware limits.
	LimitSwitches() (pel, nel bool)
}

// SimDrive is an ideal drive: the actual position follows the command
// without lag. Alarms and limit switches can be injected for testing.
type SimDrive struct {
	mu         sync.Mutex
	on         bool
	pos        float64
	alarm      int32
	persistent bool
	pel, nel   bool
}

// NewSimDrive creates a simulated drive, optionally with an alarm that is
// already active.
func NewSimDrive(alarm int32) *SimDrive {
	return &SimDrive{alarm: alarm}
}

func (d *SimDrive) ServoOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.alarm != 0 {
		return errors.Newf(errors.OperationDenied, "drive alarm 0x%X", d.alarm)
	}
	d.on = true
	return nil
}

func (d *SimDrive) ServoOff() {
	d.mu.Lock()
	d.on = false
	d.mu.Unlock()
}

func (d *SimDrive) SetCommand(pos float64) {
	d.mu.Lock()
	if d.on {
		d.pos = pos
	}
	d.mu.Unlock()
}

func (d *SimDrive) ActualPosition() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

func (d *SimDrive) AlarmCode() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alarm
}

// ResetAlarm clears the alarm unless it was injected as persistent.
func (d *SimDrive) ResetAlarm() {
	d.mu.Lock()
	if !d.persistent {
		d.alarm = 0
	}
	d.mu.Unlock()
}

func (d *SimDrive) LimitSwitches() (bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pel, d.nel
}

// InjectAlarm raises a drive alarm. A persistent alarm survives
// ResetAlarm until it is injected again with code 0.
func (d *SimDrive) InjectAlarm(code int32, persistent bool) {
	d.mu.Lock()
	d.alarm = code
	d.persistent = persistent && code != 0
	if code != 0 {
		d.on = false
	}
	d.mu.Unlock()
}

// SetLimitSwitches drives the hardware limit inputs.
func (d *SimDrive) SetLimitSwitches(pel, nel bool) {
	d.mu.Lock()
	d.pel, d.nel = pel, nel
	d.mu.Unlock()
}

// Servo reports whether the drive is energized.
func (d *SimDrive) Servo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on
}
