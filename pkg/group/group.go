// Axis groups: derived state, synchronized and interpolated motion
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package group

import (
	"fmt"
	"math"

	"nexmotion-go/pkg/axis"
	"nexmotion-go/pkg/coord"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/kinematics"
	"nexmotion-go/pkg/log"
	"nexmotion-go/pkg/params"
	"nexmotion-go/pkg/status"
)

// MaxMembers is the largest group size
const MaxMembers = 8

// Event reports a group motion failure raised from the control cycle
type Event struct {
	Group int
	Code  errors.Code
	Text  string
}

// Config assembles a group from existing axes
type Config struct {
	Index       int
	Description string
	Members     []*axis.Axis
	Kinematics  kinematics.Kinematics
	Params      *params.Table   // built from params.GroupDefs
	AxisParams  []*params.Table // one per member, built from params.GroupAxisDefs
	Arcs        ArcSelector
	Notify      func(Event)
}

// Group coordinates its member axes. Like Axis it is serialized by the
// device.
type Group struct {
	index   int
	desc    string
	members []*axis.Axis
	kin     kinematics.Kinematics
	params  *params.Table
	gaxp    []*params.Table
	arcs    ArcSelector
	notify  func(Event)
	logger  *log.Logger

	ratio      float64
	errLatched bool

	segs []*segment
	// planned end of the last queued segment
	end []float64
}

// New validates the member mapping and builds a group
func New(cfg Config) (*Group, error) {
	n := len(cfg.Members)
	if n < 1 || n > MaxMembers {
		return nil, errors.Newf(errors.AxisCountInvalid, "group %d: %d members", cfg.Index, n)
	}
	if cfg.Kinematics == nil {
		return nil, errors.Newf(errors.KinematicsTypeInvalid, "group %d: no kinematics", cfg.Index)
	}
	if cfg.Kinematics.AxisCount() != n {
		return nil, errors.Newf(errors.AxisMappingInvalid, "group %d: kinematics %s expects %d axes, group has %d",
			cfg.Index, cfg.Kinematics.GetType(), cfg.Kinematics.AxisCount(), n)
	}
	if cfg.Params == nil {
		return nil, errors.Newf(errors.PointerNull, "group %d: no parameter table", cfg.Index)
	}
	gaxp := cfg.AxisParams
	if len(gaxp) != n {
		gaxp = make([]*params.Table, n)
		for i := range gaxp {
			gaxp[i] = params.NewTable(params.GroupAxisDefs())
		}
	}
	arcs := cfg.Arcs
	if arcs == nil {
		arcs = PLCopenArcs{}
	}
	desc := cfg.Description
	if desc == "" {
		desc = fmt.Sprintf("Group%d", cfg.Index)
	}
	return &Group{
		index:   cfg.Index,
		desc:    desc,
		members: cfg.Members,
		kin:     cfg.Kinematics,
		params:  cfg.Params,
		gaxp:    gaxp,
		arcs:    arcs,
		notify:  cfg.Notify,
		logger:  log.GetLogger(fmt.Sprintf("group%d", cfg.Index)),
		ratio:   1,
	}, nil
}

func (g *Group) Index() int                        { return g.index }
func (g *Group) Description() string               { return g.desc }
func (g *Group) AxisCount() int                    { return len(g.members) }
func (g *Group) Params() *params.Table             { return g.params }
func (g *Group) Kinematics() kinematics.Kinematics { return g.kin }
func (g *Group) SpeedRatio() float64               { return g.ratio * 100 }

// Member returns the axis behind a member index
func (g *Group) Member(i int) (*axis.Axis, error) {
	if i < 0 || i >= len(g.members) {
		return nil, errors.InvalidValue("group %d: member %d out of range", g.index, i)
	}
	return g.members[i], nil
}

// AxisParams returns the group-axis parameter table of a member
func (g *Group) AxisParams(i int) (*params.Table, error) {
	if i < 0 || i >= len(g.gaxp) {
		return nil, errors.InvalidValue("group %d: member %d out of range", g.index, i)
	}
	return g.gaxp[i], nil
}

// State derives the group state from the members. It does not change
// the group; Tick latches ErrorStop.
func (g *Group) State() status.GroupState {
	var failed, disabled, stopping, stopped, homing, moving bool
	for _, a := range g.members {
		switch a.State() {
		case status.AxisError:
			failed = true
		case status.AxisDisable:
			disabled = true
		case status.AxisStopping:
			stopping = true
		case status.AxisStopped:
			stopped = true
		case status.AxisHoming:
			homing = true
		case status.AxisDiscreteMotion, status.AxisContinuousMotion,
			status.AxisGroupMotion, status.AxisWaitSync:
			moving = true
		}
	}
	switch {
	case g.errLatched || failed:
		return status.GroupErrorStop
	case disabled:
		return status.GroupDisable
	case stopping:
		return status.GroupStopping
	case stopped:
		return status.GroupStopped
	case homing:
		return status.GroupHoming
	case moving:
		return status.GroupMoving
	}
	return status.GroupStandStill
}

// latchError keeps ErrorStop once any member faulted
func (g *Group) latchError() {
	for _, a := range g.members {
		if a.State() == status.AxisError {
			g.errLatched = true
			return
		}
	}
}

// Status aggregates the member status words
func (g *Group) Status() status.GroupStatus {
	st := make([]status.AxisStatus, len(g.members))
	for i, a := range g.members {
		st[i] = a.Status()
	}
	return status.GroupStatusFrom(st...)
}

func (g *Group) denied(op string) error {
	return errors.Denied("group %d: %s not allowed in state %s", g.index, op, g.State())
}

// Enable enables members in order and stops at the first failure
func (g *Group) Enable() error {
	for i, a := range g.members {
		if err := a.Enable(); err != nil {
			return errors.Wrap(err, errors.CodeOf(err), fmt.Sprintf("group %d member %d", g.index, i))
		}
	}
	return nil
}

// Disable disables every member
func (g *Group) Disable() {
	for _, a := range g.members {
		a.Disable()
	}
	g.dropSegments(axis.Aborted)
}

// ResetState clears Stopped, or ErrorStop by resetting and re-enabling
// every member
func (g *Group) ResetState() error {
	switch g.State() {
	case status.GroupStopped:
		for _, a := range g.members {
			if err := a.ResetState(); err != nil {
				return err
			}
		}
	case status.GroupErrorStop:
		for _, a := range g.members {
			if err := a.ResetState(); err != nil {
				return err
			}
		}
		g.errLatched = false
		for _, a := range g.members {
			if err := a.Enable(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResetDriveAlm clears the drive alarm of one member
func (g *Group) ResetDriveAlm(member int) error {
	a, err := g.Member(member)
	if err != nil {
		return err
	}
	a.ResetDriveAlm()
	return nil
}

// ResetDriveAlmAll clears the drive alarms of every member
func (g *Group) ResetDriveAlmAll() {
	for _, a := range g.members {
		a.ResetDriveAlm()
	}
}

// DriveAlmCode returns the drive alarm of one member
func (g *Group) DriveAlmCode(member int) (int32, error) {
	a, err := g.Member(member)
	if err != nil {
		return 0, err
	}
	return a.DriveAlarmCode(), nil
}

// SetSpeedRatio time-scales the group segments, pct in 0..100
func (g *Group) SetSpeedRatio(pct float64) error {
	if math.IsNaN(pct) || pct < 0 || pct > 100 {
		return errors.InvalidValue("group %d: speed ratio %v", g.index, pct)
	}
	g.ratio = pct / 100
	return nil
}

// BuffSpace is the smallest free motion buffer of the members
func (g *Group) BuffSpace() int {
	space := math.MaxInt32
	for _, a := range g.members {
		if s := a.BuffSpace(); s < space {
			space = s
		}
	}
	return space
}

// Halt brings the group to StandStill along the current path. Homing
// members ramp down with AXP_DEC and keep their previous reference.
func (g *Group) Halt() error {
	switch g.State() {
	case status.GroupDisable, status.GroupStandStill:
		return nil
	case status.GroupMoving, status.GroupHoming:
	default:
		return g.denied("halt")
	}
	dec := g.params.F64(params.GpDec)
	for _, s := range g.segs {
		s.halt(dec, axis.Halted)
	}
	for _, a := range g.members {
		if a.Following() != nil {
			a.MarkStopping(false)
		} else {
			a.HaltNow()
		}
	}
	return nil
}

// Stop brings the group to Stopped with GP_STOP_PROF_DEC
func (g *Group) Stop() error {
	switch g.State() {
	case status.GroupDisable, status.GroupStopped, status.GroupErrorStop:
		return nil
	}
	dec := g.params.F64(params.GpStopDec)
	for _, s := range g.segs {
		s.halt(dec, axis.Stopped)
	}
	for _, a := range g.members {
		if a.Following() != nil {
			a.MarkStopping(true)
		} else if err := a.Stop(); err != nil {
			return err
		}
	}
	return nil
}

func (g *Group) dropSegments(out axis.Outcome) {
	for _, s := range g.segs {
		if !s.finished() {
			s.end(out)
		}
	}
}

func (g *Group) fail(s *segment, err error) {
	s.end(axis.Aborted)
	g.logger.Warn("%s segment aborted: %v", s.kind, err)
	if g.notify != nil {
		g.notify(Event{Group: g.index, Code: errors.CodeOf(err), Text: err.Error()})
	}
}

// commandJoints returns the member command positions
func (g *Group) commandJoints() []float64 {
	q := make([]float64, len(g.members))
	for i, a := range g.members {
		q[i] = a.CommandPos()
	}
	return q
}

func (g *Group) actualJoints() []float64 {
	q := make([]float64, len(g.members))
	for i, a := range g.members {
		q[i] = a.ActualPos()
	}
	return q
}

// Tick releases barriers and advances running segments. It runs after
// the member axes have ticked.
func (g *Group) Tick(dt float64) {
	live := g.segs[:0]
	for _, s := range g.segs {
		g.step(s, dt)
		if !s.finished() || g.followed(s) {
			live = append(live, s)
		}
	}
	for i := len(live); i < len(g.segs); i++ {
		g.segs[i] = nil
	}
	g.segs = live
	g.latchError()
}

func (g *Group) followed(s *segment) bool {
	for _, m := range s.parts {
		if g.members[m].Following() == axis.Segment(s) {
			return true
		}
	}
	return false
}

func (g *Group) step(s *segment, dt float64) {
	if s.finished() {
		return
	}
	for _, m := range s.parts {
		if !g.members[m].Holds(s) {
			// the member dropped it on a fault or a single-axis command
			g.logger.Debug("%s segment dropped by member %d", s.kind, m)
			s.end(axis.Aborted)
			return
		}
	}
	if s.started {
		if err := s.advance(dt, g.ratio); err != nil {
			g.fail(s, err)
		}
		return
	}
	for _, m := range s.parts {
		if g.members[m].Parked() != axis.Segment(s) {
			return
		}
	}
	g.release(s)
}

// release starts a segment once every participant waits on it. The plan
// is rebuilt when the members did not end up where it assumed.
func (g *Group) release(s *segment) {
	q := g.commandJoints()
	for _, i := range s.parts {
		if math.Abs(q[i]-s.plan.start[i]) > 1e-9 {
			p, err := s.build(q)
			if err == nil {
				err = p.validate()
			}
			if err != nil {
				g.fail(s, err)
				return
			}
			s.plan = p
			copy(s.pos, p.start)
			break
		}
	}
	s.started = true
	for _, m := range s.parts {
		g.members[m].Release()
	}
}

// Snapshot is the published view of a group
type Snapshot struct {
	Index       int
	Description string
	State       status.GroupState
	Status      status.GroupStatus
	AxisCount   int
	CmdACS      coord.Pos
	ActACS      coord.Pos
	CmdPCS      coord.Pos
	ActPCS      coord.Pos
	CmdMCS      coord.Pos
	ActMCS      coord.Pos
	SpeedRatio  float64
	BuffSpace   int
	ToolIndex   int32
	BaseIndex   int32
}

// Snapshot captures the published state. Cartesian positions stay zero
// when the forward kinematics fail.
func (g *Group) Snapshot() Snapshot {
	snap := Snapshot{
		Index:       g.index,
		Description: g.desc,
		State:       g.State(),
		Status:      g.Status(),
		AxisCount:   len(g.members),
		SpeedRatio:  g.ratio * 100,
		BuffSpace:   g.BuffSpace(),
		ToolIndex:   g.params.I32(params.GpToolIndex),
		BaseIndex:   g.params.I32(params.GpBaseIndex),
	}
	cmd, act := g.commandJoints(), g.actualJoints()
	copy(snap.CmdACS[:], cmd)
	copy(snap.ActACS[:], act)
	tr := g.transformer()
	if flange, err := g.kin.Forward(cmd); err == nil {
		snap.CmdMCS = tr.FlangeToMCS(flange)
		snap.CmdPCS = tr.FlangeToPCS(flange)
	}
	if flange, err := g.kin.Forward(act); err == nil {
		snap.ActMCS = tr.FlangeToMCS(flange)
		snap.ActPCS = tr.FlangeToPCS(flange)
	}
	return snap
}
