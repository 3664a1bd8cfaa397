package axis

import (
	"fmt"
	"math"

	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/params"
	"nexmotion-go/pkg/profile"
	"nexmotion-go/pkg/status"
)

const velEps = 1e-9

// Tick advances the axis by dt seconds of control-cycle time
func (a *Axis) Tick(dt float64) {
	prevVel := a.cmdVel
	a.sampleInputs()

	if a.cur != nil && a.state != status.AxisDisable && a.state != status.AxisError {
		if a.cur.kind == KindGroup {
			a.follow()
		} else {
			a.advance(dt)
		}
	}

	if a.st.ENA() && a.state != status.AxisError {
		a.drive.SetCommand(a.cmdPos - a.offset)
	}
	act := a.drive.ActualPosition() + a.offset
	if dt > 0 {
		a.actVel = (act - a.actPos) / dt
	}
	if math.Abs(a.actVel) < velEps {
		a.actVel = 0
	}
	a.actPos = act
	a.updateStatus(prevVel)
}

// sampleInputs reads alarm and limit inputs and latches faults
func (a *Axis) sampleInputs() {
	a.alarm = a.drive.AlarmCode()
	pel, nel := a.drive.LimitSwitches()
	risingP, risingN := pel && !a.prevPel, nel && !a.prevNel
	a.prevPel, a.prevNel = pel, nel
	a.st = a.st.With(status.BitALM, a.alarm != 0).
		With(status.BitPEL, pel).
		With(status.BitNEL, nel).
		With(status.BitEMG, a.emg)

	if a.state == status.AxisDisable || a.state == status.AxisError {
		return
	}
	switch {
	case a.emg:
		a.fault(errors.EmergencyStopActive, "emergency stop")
	case a.alarm != 0:
		a.fault(errors.OperationDenied, fmt.Sprintf("drive alarm 0x%X", a.alarm))
	case pel && (risingP || a.cmdVel > 0):
		a.st = a.st.With(status.BitRPEL, true)
		a.fault(errors.SafetyError, "positive hardware limit")
	case nel && (risingN || a.cmdVel < 0):
		a.st = a.st.With(status.BitRNEL, true)
		a.fault(errors.SafetyError, "negative hardware limit")
	}
}

func (a *Axis) advance(dt float64) {
	m := a.cur
	m.t += dt * a.ratio
	p := m.traj.Sample(m.t)
	a.cmdPos = m.start + p.Pos
	a.pvel = p.Vel
	a.cmdVel = p.Vel * a.ratio

	if m.kind == KindJog && !m.limited {
		a.jogLimit(dt)
	}
	if m.t >= a.cur.traj.Duration() {
		a.finish()
	}
}

// jogLimit replans a jog to stop exactly at an enabled software limit
func (a *Axis) jogLimit(dt float64) {
	on, pos, neg := a.swLimits()
	if !on {
		return
	}
	m := a.cur
	limit := pos
	if m.dir < 0 {
		limit = neg
	}
	rem := (limit - a.cmdPos) * m.dir
	v := math.Abs(a.pvel)
	if rem > v*dt+profile.StopDistance(v, m.lim.Dec) {
		return
	}
	a.logger.Info("jog reached software limit %.4f", limit)
	if a.notify != nil {
		a.notify(Event{Axis: a.index, Code: errors.ParameterValueInvalid,
			Text: fmt.Sprintf("jog stopped at software limit %.4f", limit)})
	}
	if rem <= 0 || v < velEps {
		a.cmdPos = limit
		a.pvel, a.cmdVel = 0, 0
		m.traj = &profile.Profile{}
		m.limited = true
		return
	}
	lim := m.lim
	lim.Vel = math.Max(lim.Vel, v)
	lim.Dec = math.Max(lim.Dec, v*v/(2*rem))
	p, err := m.strategy.Plan(limit-a.cmdPos, a.pvel, lim)
	if err != nil {
		a.cmdPos = limit
		a.pvel, a.cmdVel = 0, 0
		p = &profile.Profile{}
	}
	m.start = a.cmdPos
	m.t = 0
	m.traj = p
	m.limited = true
}

// follow tracks the group segment of the active motion
func (a *Axis) follow() {
	m := a.cur
	out := m.seg.Outcome()
	vel := 0.0
	if !m.released {
		// segments that end before release leave the axis where it is
		a.pvel, a.cmdVel = 0, 0
		if out == Running {
			return
		}
	} else {
		var pos float64
		pos, vel = m.seg.Joint(a.index)
		a.cmdPos, a.pvel, a.cmdVel = pos, vel, vel
	}

	switch out {
	case Running:
	case Completed, Halted:
		a.finish()
	case Stopped:
		m.kind = KindStop
		a.finish()
	case Aborted:
		a.cur = nil
		if math.Abs(vel) > velEps {
			a.start(command{kind: KindHalt, lim: a.limits(), strategy: a.strategy()})
			return
		}
		a.pvel, a.cmdVel = 0, 0
		a.startNext()
	}
}

func (a *Axis) updateStatus(prevVel float64) {
	s := a.st
	v, pv := math.Abs(a.cmdVel), math.Abs(prevVel)
	s = s.With(status.BitCSTP, v < velEps).
		With(status.BitACC, v > pv+velEps).
		With(status.BitDEC, v < pv-velEps).
		With(status.BitMV, a.actVel != 0).
		With(status.BitOP, s.ENA() && a.state != status.AxisError).
		With(status.BitERR, a.state == status.AxisError)

	on, pos, neg := a.swLimits()
	tol := a.params.F64(params.AxpInPosTol)
	s = s.With(status.BitPSEL, on && a.cmdPos >= pos-tol).
		With(status.BitNSEL, on && a.cmdPos <= neg+tol)
	a.st = s
}
