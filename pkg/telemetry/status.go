package telemetry

import (
	"nexmotion-go/pkg/axis"
	"nexmotion-go/pkg/group"
	"nexmotion-go/pkg/nmc"
)

// DeviceStatus is the wire view of a device snapshot
type DeviceStatus struct {
	ID         int32   `json:"id"`
	Type       string  `json:"type"`
	Index      int     `json:"index"`
	State      string  `json:"state"`
	StateCode  int32   `json:"state_code"`
	Safety     string  `json:"safety"`
	Emergency  bool    `json:"emergency"`
	Cycles     uint64  `json:"cycles"`
	AxisCount  int     `json:"axis_count"`
	GroupCount int     `json:"group_count"`
	Time       float64 `json:"time"`
}

type AxisStatus struct {
	Index       int     `json:"index"`
	Description string  `json:"description"`
	State       string  `json:"state"`
	StateCode   int32   `json:"state_code"`
	Status      uint32  `json:"status"`
	CmdPos      float64 `json:"cmd_pos"`
	ActPos      float64 `json:"act_pos"`
	CmdVel      float64 `json:"cmd_vel"`
	ActVel      float64 `json:"act_vel"`
	AlarmCode   int32   `json:"alarm_code"`
	SpeedRatio  float64 `json:"speed_ratio"`
	BuffSpace   int     `json:"buff_space"`
}

// GroupStatus carries the ACS positions of the member axes and the full
// cartesian PCS position
type GroupStatus struct {
	Index       int       `json:"index"`
	Description string    `json:"description"`
	State       string    `json:"state"`
	StateCode   int32     `json:"state_code"`
	Status      uint32    `json:"status"`
	AxisCount   int       `json:"axis_count"`
	CmdACS      []float64 `json:"cmd_acs"`
	ActACS      []float64 `json:"act_acs"`
	CmdPCS      []float64 `json:"cmd_pcs"`
	ActPCS      []float64 `json:"act_pcs"`
	SpeedRatio  float64   `json:"speed_ratio"`
	BuffSpace   int       `json:"buff_space"`
	Tool        int32     `json:"tool"`
	Base        int32     `json:"base"`
}

func deviceStatus(s *nmc.Snapshot) DeviceStatus {
	return DeviceStatus{
		ID:         int32(s.ID),
		Type:       s.Type.String(),
		Index:      s.Index,
		State:      s.State.String(),
		StateCode:  int32(s.State),
		Safety:     s.Safety.State,
		Emergency:  s.Safety.Emergency,
		Cycles:     s.Cycles,
		AxisCount:  len(s.Axes),
		GroupCount: len(s.Groups),
		Time:       float64(s.Time.UnixNano()) / 1e9,
	}
}

func axisStatus(a axis.Snapshot) AxisStatus {
	return AxisStatus{
		Index:       a.Index,
		Description: a.Description,
		State:       a.State.String(),
		StateCode:   int32(a.State),
		Status:      uint32(a.Status),
		CmdPos:      a.CmdPos,
		ActPos:      a.ActPos,
		CmdVel:      a.CmdVel,
		ActVel:      a.ActVel,
		AlarmCode:   a.AlarmCode,
		SpeedRatio:  a.SpeedRatio,
		BuffSpace:   a.BuffSpace,
	}
}

func groupStatus(g group.Snapshot) GroupStatus {
	n := g.AxisCount
	if n > len(g.CmdACS) {
		n = len(g.CmdACS)
	}
	return GroupStatus{
		Index:       g.Index,
		Description: g.Description,
		State:       g.State.String(),
		StateCode:   int32(g.State),
		Status:      uint32(g.Status),
		AxisCount:   g.AxisCount,
		CmdACS:      append([]float64(nil), g.CmdACS[:n]...),
		ActACS:      append([]float64(nil), g.ActACS[:n]...),
		CmdPCS:      append([]float64(nil), g.CmdPCS[:]...),
		ActPCS:      append([]float64(nil), g.ActPCS[:]...),
		SpeedRatio:  g.SpeedRatio,
		BuffSpace:   g.BuffSpace,
		Tool:        g.ToolIndex,
		Base:        g.BaseIndex,
	}
}
