// Single axis state machine and motion queue
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package axis

import (
	"fmt"
	"math"

	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/log"
	"nexmotion-go/pkg/params"
	"nexmotion-go/pkg/profile"
	"nexmotion-go/pkg/status"
)

// Event reports a fault or notice raised from the control cycle
type Event struct {
	Axis  int
	Fault bool
	Code  errors.Code
	Text  string
}

// Snapshot is the published view of an axis
type Snapshot struct {
	Index       int
	Description string
	State       status.AxisState
	Status      status.AxisStatus
	CmdPos      float64
	CmdVel      float64
	ActPos      float64
	ActVel      float64
	AlarmCode   int32
	SpeedRatio  float64
	BuffSpace   int
	HomePos     float64
}

// Axis is one servo axis. It is not safe for concurrent use; the device
// serializes commands and cycle ticks.
type Axis struct {
	index  int
	desc   string
	params *params.Table
	drive  Drive
	notify func(Event)
	logger *log.Logger

	state status.AxisState
	st    status.AxisStatus

	// axis position = raw drive position + offset
	offset  float64
	homePos float64

	cmdPos, cmdVel float64
	actPos, actVel float64
	// profile velocity before the speed ratio is applied
	pvel float64

	lastTarget float64
	ratio      float64

	depth int
	queue []command
	cur   *motion

	emg              bool
	alarm            int32
	prevPel, prevNel bool
}

// New creates a disabled axis. The table must be built from
// params.AxisDefs.
func New(index int, desc string, table *params.Table, drive Drive, notify func(Event)) *Axis {
	if desc == "" {
		desc = fmt.Sprintf("Axis%d", index)
	}
	a := &Axis{
		index:  index,
		desc:   desc,
		params: table,
		drive:  drive,
		notify: notify,
		logger: log.GetLogger(fmt.Sprintf("axis%d", index)),
		state:  status.AxisDisable,
		ratio:  1,
		depth:  int(table.I32(params.AxpBuffSize)),
	}
	a.actPos = drive.ActualPosition()
	a.cmdPos = a.actPos
	a.lastTarget = a.cmdPos
	return a
}

func (a *Axis) Index() int                { return a.index }
func (a *Axis) Description() string       { return a.desc }
func (a *Axis) Params() *params.Table     { return a.params }
func (a *Axis) State() status.AxisState   { return a.state }
func (a *Axis) Status() status.AxisStatus { return a.st }
func (a *Axis) CommandPos() float64       { return a.cmdPos }
func (a *Axis) CommandVel() float64       { return a.cmdVel }
func (a *Axis) ActualPos() float64        { return a.actPos }
func (a *Axis) ActualVel() float64        { return a.actVel }
func (a *Axis) HomePos() float64          { return a.homePos }
func (a *Axis) SpeedRatio() float64       { return a.ratio * 100 }
func (a *Axis) DriveAlarmCode() int32     { return a.drive.AlarmCode() }
func (a *Axis) BuffSpace() int            { return a.depth - len(a.queue) }

// Snapshot captures the published state
func (a *Axis) Snapshot() Snapshot {
	return Snapshot{
		Index:       a.index,
		Description: a.desc,
		State:       a.state,
		Status:      a.st,
		CmdPos:      a.cmdPos,
		CmdVel:      a.cmdVel,
		ActPos:      a.actPos,
		ActVel:      a.actVel,
		AlarmCode:   a.alarm,
		SpeedRatio:  a.ratio * 100,
		BuffSpace:   a.BuffSpace(),
		HomePos:     a.homePos,
	}
}

func (a *Axis) limits() profile.Limits {
	return profile.Limits{
		Vel: a.params.F64(params.AxpVM),
		Acc: a.params.F64(params.AxpAcc),
		Dec: a.params.F64(params.AxpDec),
	}
}

func (a *Axis) strategy() profile.Strategy {
	return profile.ForType(a.params.I32(params.AxpProfType))
}

func (a *Axis) buffered() bool {
	return a.params.I32(params.AxpBuffMode) == params.BuffBuffered
}

func (a *Axis) swLimits() (bool, float64, float64) {
	return a.params.I32(params.AxpSwLimitEnable) != 0,
		a.params.F64(params.AxpSwLimitPos),
		a.params.F64(params.AxpSwLimitNeg)
}

func (a *Axis) denied(op string) error {
	return errors.Denied("axis %d: %s not allowed in state %s", a.index, op, a.state)
}

// Enable energizes the drive
func (a *Axis) Enable() error {
	switch a.state {
	case status.AxisError:
		return a.denied("enable")
	case status.AxisDisable:
	default:
		return nil
	}
	if a.emg {
		a.fault(errors.EmergencyStopActive, "emergency stop active on enable")
		return errors.Newf(errors.EmergencyStopActive, "axis %d: emergency stop active", a.index)
	}
	if code := a.drive.AlarmCode(); code != 0 {
		a.alarm = code
		a.fault(errors.OperationDenied, fmt.Sprintf("drive alarm 0x%X on enable", code))
		return errors.Newf(errors.OperationDenied, "axis %d: drive alarm 0x%X", a.index, code)
	}
	if err := a.drive.ServoOn(); err != nil {
		a.fault(errors.CodeOf(err), err.Error())
		return err
	}
	a.actPos = a.drive.ActualPosition() + a.offset
	a.cmdPos = a.actPos
	a.lastTarget = a.cmdPos
	a.pvel, a.cmdVel = 0, 0
	a.st = a.st.With(status.BitENA, true).With(status.BitTAR, true)
	a.state = status.AxisStandStill
	a.logger.Debug("enabled at %.4f", a.cmdPos)
	return nil
}

// Disable switches the servo off and drops all motion. An error state is
// kept.
func (a *Axis) Disable() {
	a.drive.ServoOff()
	a.clearMotion()
	a.st = a.st.With(status.BitENA, false).With(status.BitSTOP, false)
	if a.state != status.AxisError {
		a.state = status.AxisDisable
	}
}

func (a *Axis) clearMotion() {
	a.queue = a.queue[:0]
	a.cur = nil
	a.pvel, a.cmdVel = 0, 0
	a.lastTarget = a.cmdPos
}

// Ptp moves to target. maxVel > 0 is stored to AXP_VM once the command
// is accepted.
func (a *Axis) Ptp(target, maxVel float64) error {
	switch a.state {
	case status.AxisStandStill, status.AxisDiscreteMotion, status.AxisContinuousMotion:
	default:
		return a.denied("ptp")
	}
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return errors.InvalidValue("axis %d: target %v", a.index, target)
	}
	if err := a.checkMaxVel(maxVel); err != nil {
		return err
	}
	if a.params.I32(params.AxpAbsRelMode) == 1 {
		base := a.lastTarget
		if a.jogging() {
			base = a.cmdPos
		}
		target += base
	}
	if on, pos, neg := a.swLimits(); on && (target > pos || target < neg) {
		return errors.InvalidValue("axis %d: target %.4f outside software limits [%.4f, %.4f]",
			a.index, target, neg, pos)
	}
	if err := a.admit(); err != nil {
		return err
	}
	if err := a.storeMaxVel(maxVel); err != nil {
		return err
	}
	c := command{kind: KindPtp, target: target, lim: a.limits(), strategy: a.strategy()}
	if err := a.submit(c); err != nil {
		return err
	}
	a.lastTarget = target
	return nil
}

// Jog moves continuously in dir until halted. maxVel > 0 is stored to
// AXP_VM once the command is accepted.
func (a *Axis) Jog(dir int, maxVel float64) error {
	if dir != 1 && dir != -1 {
		return errors.InvalidValue("axis %d: jog direction %d", a.index, dir)
	}
	switch a.state {
	case status.AxisStandStill, status.AxisDiscreteMotion, status.AxisContinuousMotion:
	default:
		return a.denied("jog")
	}
	if err := a.checkMaxVel(maxVel); err != nil {
		return err
	}
	if on, pos, neg := a.swLimits(); on {
		tol := a.params.F64(params.AxpInPosTol)
		if (dir > 0 && a.cmdPos >= pos-tol) || (dir < 0 && a.cmdPos <= neg+tol) {
			return errors.Denied("axis %d: already at software limit", a.index)
		}
	}
	if err := a.admit(); err != nil {
		return err
	}
	if err := a.storeMaxVel(maxVel); err != nil {
		return err
	}
	return a.submit(command{kind: KindJog, dir: float64(dir), lim: a.limits(), strategy: a.strategy()})
}

// HomeDrive moves to the drive reference and sets the home position
func (a *Axis) HomeDrive() error {
	if a.state != status.AxisStandStill {
		return a.denied("home")
	}
	lim := a.limits()
	lim.Vel = a.params.F64(params.AxpHomeVel)
	a.queue = a.queue[:0]
	a.start(command{kind: KindHome, target: a.offset, lim: lim, strategy: a.strategy()})
	return nil
}

// SetHomePos sets the position assigned to the reference by HomeDrive
func (a *Axis) SetHomePos(pos float64) error {
	if math.IsNaN(pos) || math.IsInf(pos, 0) {
		return errors.InvalidValue("axis %d: home position %v", a.index, pos)
	}
	a.homePos = pos
	return nil
}

// Halt decelerates with AXP_DEC and returns to StandStill
func (a *Axis) Halt() error {
	switch a.state {
	case status.AxisDisable, status.AxisStandStill:
		return nil
	case status.AxisDiscreteMotion, status.AxisContinuousMotion:
	default:
		return a.denied("halt")
	}
	c := command{kind: KindHalt, lim: a.limits(), strategy: a.strategy()}
	if a.buffered() && !a.jogging() {
		return a.enqueue(c)
	}
	a.queue = a.queue[:0]
	a.preempt(c)
	return nil
}

// HaltNow halts single-axis motion regardless of the buffer mode. Group
// segments and stop ramps are left alone.
func (a *Axis) HaltNow() {
	if a.cur == nil {
		return
	}
	switch a.cur.kind {
	case KindGroup, KindHalt, KindStop:
		return
	}
	a.queue = a.queue[:0]
	a.preempt(command{kind: KindHalt, lim: a.limits(), strategy: a.strategy()})
}

// Stop decelerates with AXP_STOP_PROF_DEC and latches Stopped until
// ResetState. It also breaks an axis out of a group segment.
func (a *Axis) Stop() error {
	switch a.state {
	case status.AxisDisable, status.AxisStopped, status.AxisError:
		return nil
	case status.AxisStandStill:
		a.queue = a.queue[:0]
		a.state = status.AxisStopped
		a.st = a.st.With(status.BitSTOP, true)
		return nil
	}
	if a.cur != nil && a.cur.kind == KindStop {
		return nil
	}
	lim := a.limits()
	lim.Dec = a.params.F64(params.AxpStopDec)
	a.queue = a.queue[:0]
	a.preempt(command{kind: KindStop, lim: lim, strategy: a.strategy()})
	return nil
}

// ResetState clears Stopped and Error
func (a *Axis) ResetState() error {
	switch a.state {
	case status.AxisStopped:
		a.state = status.AxisStandStill
		a.st = a.st.With(status.BitSTOP, false)
		return nil
	case status.AxisError:
	default:
		return nil
	}
	if a.emg {
		return errors.Newf(errors.EmergencyStopActive, "axis %d: emergency stop active", a.index)
	}
	a.drive.ResetAlarm()
	if code := a.drive.AlarmCode(); code != 0 {
		a.alarm = code
		return errors.Newf(errors.OperationDenied, "axis %d: drive alarm 0x%X persists", a.index, code)
	}
	a.alarm = 0
	a.st = a.st.With(status.BitERR, false).With(status.BitRPEL, false).
		With(status.BitRNEL, false).With(status.BitSTOP, false).With(status.BitALM, false)
	a.state = status.AxisDisable
	a.logger.Info("error state reset")
	return nil
}

// ResetDriveAlm clears the drive alarm without leaving the Error state
func (a *Axis) ResetDriveAlm() {
	a.drive.ResetAlarm()
	a.alarm = a.drive.AlarmCode()
	a.st = a.st.With(status.BitALM, a.alarm != 0)
}

// SetSpeedRatio time-scales every motion of the axis, pct in 0..100
func (a *Axis) SetSpeedRatio(pct float64) error {
	if math.IsNaN(pct) || pct < 0 || pct > 100 {
		return errors.InvalidValue("axis %d: speed ratio %v", a.index, pct)
	}
	a.ratio = pct / 100
	return nil
}

// VelOverride replans the active motion with a new maximum velocity. The
// parameter table is not changed.
func (a *Axis) VelOverride(v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return errors.InvalidValue("axis %d: velocity %v", a.index, v)
	}
	if a.state == status.AxisError {
		return a.denied("override")
	}
	a.replan(func(l *profile.Limits) { l.Vel = v })
	return nil
}

// AccOverride stores AXP_ACC and replans the active motion
func (a *Axis) AccOverride(acc float64) error {
	if a.state == status.AxisError {
		return a.denied("override")
	}
	if err := a.params.SetF64(params.AxpAcc, 0, acc); err != nil {
		return err
	}
	a.replan(func(l *profile.Limits) { l.Acc = acc })
	return nil
}

// DecOverride stores AXP_DEC and replans the active motion
func (a *Axis) DecOverride(dec float64) error {
	if a.state == status.AxisError {
		return a.denied("override")
	}
	if err := a.params.SetF64(params.AxpDec, 0, dec); err != nil {
		return err
	}
	a.replan(func(l *profile.Limits) { l.Dec = dec })
	return nil
}

// SetEmergency forwards the device emergency stop input
func (a *Axis) SetEmergency(on bool) {
	a.emg = on
	a.st = a.st.With(status.BitEMG, on)
	if on && a.state != status.AxisDisable && a.state != status.AxisError {
		a.fault(errors.EmergencyStopActive, "emergency stop")
	}
}

// ErrorStop latches Error from outside, e.g. a STOP0 watchdog reaction
func (a *Axis) ErrorStop(code errors.Code, text string) {
	if a.state != status.AxisDisable && a.state != status.AxisError {
		a.fault(code, text)
	}
}

func (a *Axis) fault(code errors.Code, text string) {
	a.drive.ServoOff()
	a.clearMotion()
	a.state = status.AxisError
	a.st = a.st.With(status.BitERR, true).With(status.BitENA, false)
	a.logger.Warn("fault: %s", text)
	if a.notify != nil {
		a.notify(Event{Axis: a.index, Fault: true, Code: code, Text: text})
	}
}

func (a *Axis) jogging() bool {
	if a.cur == nil {
		return false
	}
	if a.cur.kind == KindBrake && a.cur.next != nil {
		return a.cur.next.kind == KindJog
	}
	return a.cur.kind == KindJog
}

func (a *Axis) checkMaxVel(v float64) error {
	if v > 0 {
		return a.params.Check(params.AxpVM, 0, v)
	}
	return nil
}

func (a *Axis) storeMaxVel(v float64) error {
	if v > 0 {
		return a.params.SetF64(params.AxpVM, 0, v)
	}
	return nil
}

// admit fails when submit would reject the next command
func (a *Axis) admit() error {
	if a.buffered() && a.cur != nil && !a.jogging() && len(a.queue) >= a.depth {
		return errors.Busy("axis %d: motion buffer full", a.index)
	}
	return nil
}

// submit applies the buffer policy to a motion command
func (a *Axis) submit(c command) error {
	if a.buffered() && a.cur != nil && !a.jogging() {
		return a.enqueue(c)
	}
	a.queue = a.queue[:0]
	a.preempt(c)
	return nil
}

func (a *Axis) enqueue(c command) error {
	if len(a.queue) >= a.depth {
		return errors.Busy("axis %d: motion buffer full", a.index)
	}
	a.queue = append(a.queue, c)
	return nil
}

// preempt replaces the active motion, planning from the current position
// and velocity
func (a *Axis) preempt(c command) {
	a.cur = nil
	a.start(c)
}

func (a *Axis) replan(update func(*profile.Limits)) {
	m := a.cur
	if m == nil {
		return
	}
	c := m.command
	if m.kind == KindBrake {
		c = *m.next
	}
	switch c.kind {
	case KindPtp, KindJog, KindHome:
	default:
		return
	}
	update(&c.lim)
	a.cur = nil
	a.start(c)
}

// start makes c the active motion. Ptp and homing moves that cannot stop
// in time are preceded by a brake ramp.
func (a *Axis) start(c command) {
	m := &motion{command: c, start: a.cmdPos}
	shape := shapeOf(c.strategy)
	switch c.kind {
	case KindPtp, KindHome:
		p, err := c.strategy.Plan(c.target-a.cmdPos, a.pvel, c.lim)
		switch {
		case err == profile.ErrOvershoot:
			next := c
			m = &motion{
				command: command{kind: KindBrake, lim: c.lim, strategy: c.strategy},
				start:   a.cmdPos,
				next:    &next,
				traj:    profile.Ramp(shape, a.pvel, 0, c.lim.Dec, false),
			}
		case err != nil:
			a.logger.Error("plan %s to %.4f: %v", c.kind, c.target, err)
			m.traj = profile.Ramp(shape, a.pvel, 0, c.lim.Dec, false)
		default:
			m.traj = p
		}
	case KindJog:
		v1 := c.dir * c.lim.Vel
		acc := c.lim.Acc
		if a.pvel*v1 >= 0 && math.Abs(v1) < math.Abs(a.pvel) {
			acc = c.lim.Dec
		}
		m.traj = profile.Ramp(shape, a.pvel, v1, acc, true)
	case KindHalt, KindStop:
		m.traj = profile.Ramp(shape, a.pvel, 0, c.lim.Dec, false)
	}
	a.cur = m
	a.st = a.st.With(status.BitTAR, false)

	kind := c.kind
	if m.kind == KindBrake {
		kind = m.next.kind
	}
	switch kind {
	case KindPtp:
		a.state = status.AxisDiscreteMotion
	case KindJog:
		a.state = status.AxisContinuousMotion
	case KindHome:
		a.state = status.AxisHoming
	case KindHalt:
		a.state = status.AxisStopping
	case KindStop:
		a.state = status.AxisStopping
		a.st = a.st.With(status.BitSTOP, true)
	case KindGroup:
		a.state = status.AxisWaitSync
		a.pvel, a.cmdVel = 0, 0
	}
}

// finish completes the active motion and starts the next one
func (a *Axis) finish() {
	m := a.cur
	a.cur = nil
	if m.kind == KindBrake {
		a.start(*m.next)
		return
	}
	a.pvel, a.cmdVel = 0, 0
	a.st = a.st.With(status.BitTAR, true)

	switch m.kind {
	case KindHome:
		// the reference is raw position zero
		a.cmdPos = a.homePos
		a.offset = a.homePos
		a.actPos = a.cmdPos
		a.st = a.st.With(status.BitRHOM, true)
		a.logger.Info("homed, position set to %.4f", a.homePos)
	case KindStop:
		a.queue = a.queue[:0]
		a.lastTarget = a.cmdPos
		a.state = status.AxisStopped
		return
	}
	a.startNext()
}

func (a *Axis) startNext() {
	if len(a.queue) > 0 {
		next := a.queue[0]
		a.queue = append(a.queue[:0], a.queue[1:]...)
		a.start(next)
		return
	}
	a.lastTarget = a.cmdPos
	a.state = status.AxisStandStill
}
