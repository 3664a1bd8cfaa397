package nmc

import (
	"nexmotion-go/pkg/coord"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/group"
	"nexmotion-go/pkg/opt"
	"nexmotion-go/pkg/status"
)

// Arc directions
const (
	CW  = group.CW
	CCW = group.CCW
)

func (d *Device) groupCmd(g int, fn func(gr *group.Group) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.operational(); err != nil {
		return err
	}
	gr, err := d.groupLocked(g)
	if err != nil {
		return err
	}
	err = fn(gr)
	d.publish()
	if e, ok := err.(*errors.Error); ok && e.Object == "" {
		e.SetObject("group %d", g)
	}
	return err
}

func (d *Device) groupLocked(g int) (*group.Group, error) {
	if g < 0 || g >= len(d.groups) {
		return nil, errors.InvalidObject("group", g)
	}
	return d.groups[g], nil
}

func (d *Device) groupSnap(g int) (group.Snapshot, error) {
	s := d.snap.Load()
	if g < 0 || g >= len(s.Groups) {
		return group.Snapshot{}, errors.InvalidObject("group", g)
	}
	return s.Groups[g], nil
}

// GetGroupCount returns the number of configured groups
func (d *Device) GetGroupCount() int {
	return len(d.snap.Load().Groups)
}

// GetGroupAxisCount returns the member count of group g
func (d *Device) GetGroupAxisCount(g int) (n int, err error) {
	defer d.traced("DeviceGetGroupAxisCount", d.begin(), &err)
	s, err := d.groupSnap(g)
	return s.AxisCount, err
}

// GroupGetDescription returns the configured group name
func (d *Device) GroupGetDescription(g int) (desc string, err error) {
	defer d.traced("GroupGetDescription", d.begin(), &err)
	s, err := d.groupSnap(g)
	return s.Description, err
}

// GroupEnable enables the members in order
func (d *Device) GroupEnable(g int) (err error) {
	defer d.traced("GroupEnable", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error {
		if err := d.safetyLatched(); err != nil {
			return err
		}
		return gr.Enable()
	})
}

// GroupDisable disables every member
func (d *Device) GroupDisable(g int) (err error) {
	defer d.traced("GroupDisable", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error {
		gr.Disable()
		return nil
	})
}

// GroupResetState clears Stopped, or ErrorStop with a re-enable
func (d *Device) GroupResetState(g int) (err error) {
	defer d.traced("GroupResetState", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error {
		if err := d.safety.Reset(); err != nil && gr.State() == status.GroupErrorStop {
			return err
		}
		return gr.ResetState()
	})
}

// GroupResetDriveAlm clears the drive alarm of one member
func (d *Device) GroupResetDriveAlm(g, member int) (err error) {
	defer d.traced("GroupResetDriveAlm", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.ResetDriveAlm(member) })
}

// GroupResetDriveAlmAll clears the drive alarms of every member
func (d *Device) GroupResetDriveAlmAll(g int) (err error) {
	defer d.traced("GroupResetDriveAlmAll", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error {
		gr.ResetDriveAlmAll()
		return nil
	})
}

// GroupGetDriveAlmCode returns the drive alarm of one member
func (d *Device) GroupGetDriveAlmCode(g, member int) (code int32, err error) {
	defer d.traced("GroupGetDriveAlmCode", d.begin(), &err)
	d.mu.Lock()
	defer d.mu.Unlock()
	gr, err := d.groupLocked(g)
	if err != nil {
		return 0, err
	}
	return gr.DriveAlmCode(member)
}

// GroupHalt brings the group to StandStill along its path
func (d *Device) GroupHalt(g int) (err error) {
	defer d.traced("GroupHalt", d.begin(), &err)
	return d.groupCmd(g, (*group.Group).Halt)
}

// GroupStop brings the group to Stopped with GP_STOP_PROF_DEC
func (d *Device) GroupStop(g int) (err error) {
	defer d.traced("GroupStop", d.begin(), &err)
	return d.groupCmd(g, (*group.Group).Stop)
}

// GroupGetState returns the derived group state
func (d *Device) GroupGetState(g int) (st status.GroupState, err error) {
	defer d.traced("GroupGetState", d.begin(), &err)
	s, err := d.groupSnap(g)
	return s.State, err
}

// GroupGetStatus returns the aggregated status word
func (d *Device) GroupGetStatus(g int) (st status.GroupStatus, err error) {
	defer d.traced("GroupGetStatus", d.begin(), &err)
	s, err := d.groupSnap(g)
	return s.Status, err
}

// GroupSetSpeedRatio time-scales the group segments, 0..100 percent
func (d *Device) GroupSetSpeedRatio(g int, pct float64) (err error) {
	defer d.traced("GroupSetSpeedRatio", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.SetSpeedRatio(pct) })
}

// GroupGetSpeedRatio returns the group speed ratio in percent
func (d *Device) GroupGetSpeedRatio(g int) (pct float64, err error) {
	defer d.traced("GroupGetSpeedRatio", d.begin(), &err)
	s, err := d.groupSnap(g)
	return s.SpeedRatio, err
}

// GroupSetVelRatio is the former name of GroupSetSpeedRatio
func (d *Device) GroupSetVelRatio(g int, pct float64) error {
	return d.GroupSetSpeedRatio(g, pct)
}

// GroupGetVelRatio is the former name of GroupGetSpeedRatio
func (d *Device) GroupGetVelRatio(g int) (float64, error) {
	return d.GroupGetSpeedRatio(g)
}

// GroupGetMotionBuffSpace returns the smallest free member buffer
func (d *Device) GroupGetMotionBuffSpace(g int) (n int, err error) {
	defer d.traced("GroupGetMotionBuffSpace", d.begin(), &err)
	s, err := d.groupSnap(g)
	return s.BuffSpace, err
}

func posIn(s group.Snapshot, sys coord.CoordSys, actual bool) (coord.Pos, error) {
	switch {
	case sys == coord.ACS && actual:
		return s.ActACS, nil
	case sys == coord.ACS:
		return s.CmdACS, nil
	case sys == coord.PCS && actual:
		return s.ActPCS, nil
	case sys == coord.PCS:
		return s.CmdPCS, nil
	case sys == coord.MCS && actual:
		return s.ActMCS, nil
	case sys == coord.MCS:
		return s.CmdMCS, nil
	}
	return coord.Pos{}, errors.InvalidValue("coordinate system %d", sys)
}

// GroupGetCommandPos returns the commanded position in sys
func (d *Device) GroupGetCommandPos(g int, sys coord.CoordSys) (pos coord.Pos, err error) {
	defer d.traced("GroupGetCommandPos", d.begin(), &err)
	s, err := d.groupSnap(g)
	if err != nil {
		return pos, err
	}
	return posIn(s, sys, false)
}

// GroupGetActualPos returns the feedback position in sys
func (d *Device) GroupGetActualPos(g int, sys coord.CoordSys) (pos coord.Pos, err error) {
	defer d.traced("GroupGetActualPos", d.begin(), &err)
	s, err := d.groupSnap(g)
	if err != nil {
		return pos, err
	}
	return posIn(s, sys, true)
}

func (d *Device) GroupGetCommandPosAcs(g int) (coord.Pos, error) {
	return d.GroupGetCommandPos(g, coord.ACS)
}

func (d *Device) GroupGetCommandPosPcs(g int) (coord.Pos, error) {
	return d.GroupGetCommandPos(g, coord.PCS)
}

func (d *Device) GroupGetActualPosAcs(g int) (coord.Pos, error) {
	return d.GroupGetActualPos(g, coord.ACS)
}

func (d *Device) GroupGetActualPosPcs(g int) (coord.Pos, error) {
	return d.GroupGetActualPos(g, coord.PCS)
}

// GroupPtpAcs moves one member; the other members hold position
func (d *Device) GroupPtpAcs(g, member int, pos float64, maxVel opt.Float) (err error) {
	defer d.traced("GroupPtpAcs", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.PtpAcs(member, pos, maxVel) })
}

// GroupPtpAcsAll moves the masked members so that they arrive together
func (d *Device) GroupPtpAcsAll(g int, mask status.AxisMask, pos coord.Pos) (err error) {
	defer d.traced("GroupPtpAcsAll", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.PtpAcsAll(mask, pos) })
}

// GroupPtpCart moves to a cartesian value through the inverse kinematics
func (d *Device) GroupPtpCart(g, cartAxis int, value float64) (err error) {
	defer d.traced("GroupPtpCart", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.PtpCart(cartAxis, value) })
}

// GroupPtpCartAll moves to a cartesian pose through the inverse kinematics
func (d *Device) GroupPtpCartAll(g int, mask status.AxisMask, pos coord.Pos) (err error) {
	defer d.traced("GroupPtpCartAll", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.PtpCartAll(mask, pos) })
}

// GroupLineXY runs a line in the XY plane of the PCS
func (d *Device) GroupLineXY(g int, x, y, maxVel opt.Float) (err error) {
	defer d.traced("GroupLineXY", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.LineXY(x, y, maxVel) })
}

// GroupLine runs a cartesian line in the PCS
func (d *Device) GroupLine(g int, mask status.AxisMask, pos coord.Pos, maxVel opt.Float) (err error) {
	defer d.traced("GroupLine", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.Line(mask, pos, maxVel) })
}

// GroupCirc2R runs an XY arc of the given radius
func (d *Device) GroupCirc2R(g int, ex, ey opt.Float, radius float64, dir group.Direction, maxVel opt.Float) (err error) {
	defer d.traced("GroupCirc2R", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.Circ2R(ex, ey, radius, dir, maxVel) })
}

// GroupCirc2C runs an XY arc about a center offset from the start
func (d *Device) GroupCirc2C(g int, ex, ey, cxOfs, cyOfs opt.Float, dir group.Direction, maxVel opt.Float) (err error) {
	defer d.traced("GroupCirc2C", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.Circ2C(ex, ey, cxOfs, cyOfs, dir, maxVel) })
}

// GroupCirc2B runs an XY arc through a border point
func (d *Device) GroupCirc2B(g int, ex, ey, bx, by, maxVel opt.Float) (err error) {
	defer d.traced("GroupCirc2B", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.Circ2B(ex, ey, bx, by, maxVel) })
}

// GroupCirc2BEx runs an XY border-point arc with an explicit sweep
func (d *Device) GroupCirc2BEx(g int, ex, ey, bx, by, angle, maxVel opt.Float) (err error) {
	defer d.traced("GroupCirc2BEx", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.Circ2BEx(ex, ey, bx, by, angle, maxVel) })
}

// GroupCircR runs a 3-D arc of the given radius about normal
func (d *Device) GroupCircR(g int, mask status.AxisMask, pos coord.Pos, normal coord.Xyz, radius float64, dir group.Direction, maxVel opt.Float) (err error) {
	defer d.traced("GroupCircR", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.CircR(mask, pos, normal, radius, dir, maxVel) })
}

// GroupCircC runs a 3-D arc about a center offset from the start
func (d *Device) GroupCircC(g int, mask status.AxisMask, pos coord.Pos, cenMask status.AxisMask, cenOfs coord.Xyz, dir group.Direction, maxVel opt.Float) (err error) {
	defer d.traced("GroupCircC", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.CircC(mask, pos, cenMask, cenOfs, dir, maxVel) })
}

// GroupCircB runs a 3-D arc through a border point
func (d *Device) GroupCircB(g int, mask status.AxisMask, pos coord.Pos, borMask status.AxisMask, border coord.Xyz, maxVel opt.Float) (err error) {
	defer d.traced("GroupCircB", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.CircB(mask, pos, borMask, border, maxVel) })
}

// GroupCircBEx runs a 3-D border-point arc with an explicit sweep
func (d *Device) GroupCircBEx(g int, mask status.AxisMask, pos coord.Pos, borMask status.AxisMask, border coord.Xyz, angle, maxVel opt.Float) (err error) {
	defer d.traced("GroupCircBEx", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error {
		return gr.CircBEx(mask, pos, borMask, border, angle, maxVel)
	})
}

// GroupJogAcs jogs one member until halted
func (d *Device) GroupJogAcs(g, member, dir int, maxVel opt.Float) (err error) {
	defer d.traced("GroupJogAcs", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.JogAcs(member, dir, maxVel) })
}

// GroupJogTcpFrame jogs the TCP along a tool frame axis
func (d *Device) GroupJogTcpFrame(g, cartAxis, dir int, maxVel opt.Float) (err error) {
	defer d.traced("GroupJogTcpFrame", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.JogTcpFrame(cartAxis, dir, maxVel) })
}

// GroupJogPcsFrame jogs the TCP along a PCS axis
func (d *Device) GroupJogPcsFrame(g, cartAxis, dir int, maxVel opt.Float) (err error) {
	defer d.traced("GroupJogPcsFrame", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.JogPcsFrame(cartAxis, dir, maxVel) })
}

// GroupSetHomePos sets the home positions of the masked members
func (d *Device) GroupSetHomePos(g int, mask status.AxisMask, pos coord.Pos) (err error) {
	defer d.traced("GroupSetHomePos", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.SetHomePos(mask, pos) })
}

// GroupAxesHomeDrive homes the masked members
func (d *Device) GroupAxesHomeDrive(g int, mask status.AxisMask) (err error) {
	defer d.traced("GroupAxesHomeDrive", d.begin(), &err)
	return d.groupCmd(g, func(gr *group.Group) error { return gr.AxesHomeDrive(mask) })
}

// GroupSetToolTrans stores tool frame idx
func (d *Device) GroupSetToolTrans(g, idx int, tr coord.CoordTrans) (err error) {
	defer d.traced("GroupSetToolTrans", d.begin(), &err)
	return d.groupParam(g, func(gr *group.Group) error { return gr.SetToolTrans(idx, tr) })
}

// GroupGetToolTrans reads tool frame idx
func (d *Device) GroupGetToolTrans(g, idx int) (tr coord.CoordTrans, err error) {
	defer d.traced("GroupGetToolTrans", d.begin(), &err)
	err = d.groupParam(g, func(gr *group.Group) (err error) {
		tr, err = gr.ToolTrans(idx)
		return err
	})
	return tr, err
}

// GroupSetBaseTrans stores base frame idx
func (d *Device) GroupSetBaseTrans(g, idx int, tr coord.CoordTrans) (err error) {
	defer d.traced("GroupSetBaseTrans", d.begin(), &err)
	return d.groupParam(g, func(gr *group.Group) error { return gr.SetBaseTrans(idx, tr) })
}

// GroupGetBaseTrans reads base frame idx
func (d *Device) GroupGetBaseTrans(g, idx int) (tr coord.CoordTrans, err error) {
	defer d.traced("GroupGetBaseTrans", d.begin(), &err)
	err = d.groupParam(g, func(gr *group.Group) (err error) {
		tr, err = gr.BaseTrans(idx)
		return err
	})
	return tr, err
}

// GroupSelectTool selects the active tool frame, coord.None for the flange
func (d *Device) GroupSelectTool(g, idx int) (err error) {
	defer d.traced("GroupSelectTool", d.begin(), &err)
	return d.groupParam(g, func(gr *group.Group) error { return gr.SelectTool(idx) })
}

// GroupSelectBase selects the active base frame, coord.None for the MCS
func (d *Device) GroupSelectBase(g, idx int) (err error) {
	defer d.traced("GroupSelectBase", d.begin(), &err)
	return d.groupParam(g, func(gr *group.Group) error { return gr.SelectBase(idx) })
}
