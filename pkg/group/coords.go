package group

import (
	"nexmotion-go/pkg/coord"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/params"
)

// frameOf reads entry idx of GP_TOOL_TRANS or GP_BASE_TRANS. coord.None
// selects the identity.
func (g *Group) frameOf(num, idx int32) coord.Frame {
	if idx == coord.None {
		return coord.Identity()
	}
	var p coord.CoordTrans
	for i := range p {
		v, err := g.params.GetF64(num, idx*coord.PoseSize+int32(i))
		if err != nil {
			return coord.Identity()
		}
		p[i] = v
	}
	return coord.FromPose(p)
}

// transformer follows GP_TOOL_INDEX and GP_BASE_INDEX
func (g *Group) transformer() coord.Transformer {
	return coord.Transformer{
		Tool: g.frameOf(params.GpToolTrans, g.params.I32(params.GpToolIndex)),
		Base: g.frameOf(params.GpBaseTrans, g.params.I32(params.GpBaseIndex)),
	}
}

func (g *Group) solver() solver {
	return solver{kin: g.kin, tr: g.transformer()}
}

// SetToolTrans stores a tool frame
func (g *Group) SetToolTrans(idx int, tr coord.CoordTrans) error {
	return g.setTrans(params.GpToolTrans, idx, tr)
}

// SetBaseTrans stores a base frame
func (g *Group) SetBaseTrans(idx int, tr coord.CoordTrans) error {
	return g.setTrans(params.GpBaseTrans, idx, tr)
}

// ToolTrans returns a stored tool frame
func (g *Group) ToolTrans(idx int) (coord.CoordTrans, error) {
	return g.trans(params.GpToolTrans, idx)
}

// BaseTrans returns a stored base frame
func (g *Group) BaseTrans(idx int) (coord.CoordTrans, error) {
	return g.trans(params.GpBaseTrans, idx)
}

func (g *Group) setTrans(num int32, idx int, tr coord.CoordTrans) error {
	if idx < 0 || idx >= params.MaxTools {
		return errors.InvalidValue("group %d: frame index %d", g.index, idx)
	}
	for i, v := range tr {
		if err := g.params.SetF64(num, int32(idx*coord.PoseSize+i), v); err != nil {
			return err
		}
	}
	return nil
}

func (g *Group) trans(num int32, idx int) (coord.CoordTrans, error) {
	var out coord.CoordTrans
	if idx < 0 || idx >= params.MaxTools {
		return out, errors.InvalidValue("group %d: frame index %d", g.index, idx)
	}
	for i := range out {
		v, err := g.params.GetF64(num, int32(idx*coord.PoseSize+i))
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

// SelectTool sets GP_TOOL_INDEX, coord.None clears it
func (g *Group) SelectTool(idx int) error {
	return g.params.SetI32(params.GpToolIndex, 0, int32(idx))
}

// SelectBase sets GP_BASE_INDEX, coord.None clears it
func (g *Group) SelectBase(idx int) error {
	return g.params.SetI32(params.GpBaseIndex, 0, int32(idx))
}

func (g *Group) positionIn(sys coord.CoordSys, joints []float64) (coord.Pos, error) {
	var out coord.Pos
	switch sys {
	case coord.ACS:
		copy(out[:], joints)
		return out, nil
	case coord.MCS, coord.PCS:
		flange, err := g.kin.Forward(joints)
		if err != nil {
			return out, err
		}
		tr := g.transformer()
		if sys == coord.MCS {
			return tr.FlangeToMCS(flange), nil
		}
		return tr.FlangeToPCS(flange), nil
	}
	return out, errors.InvalidValue("coordinate system %d", sys)
}

// CommandPos returns the commanded position in sys
func (g *Group) CommandPos(sys coord.CoordSys) (coord.Pos, error) {
	return g.positionIn(sys, g.commandJoints())
}

// ActualPos returns the feedback position in sys
func (g *Group) ActualPos(sys coord.CoordSys) (coord.Pos, error) {
	return g.positionIn(sys, g.actualJoints())
}
