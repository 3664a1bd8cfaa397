// Axis, group and device states and status bitfields
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package status

import (
	"fmt"
	"math/bits"
	"strings"
)

// DeviceState is the device lifecycle state
type DeviceState int32

const (
	DeviceInit      DeviceState = 1
	DeviceReady     DeviceState = 2
	DeviceError     DeviceState = 3
	DeviceOperation DeviceState = 4
)

func (s DeviceState) String() string {
	switch s {
	case DeviceInit:
		return "init"
	case DeviceReady:
		return "ready"
	case DeviceError:
		return "error"
	case DeviceOperation:
		return "operation"
	default:
		return fmt.Sprintf("DeviceState(%d)", int32(s))
	}
}

// AxisState is the per-axis motion state
type AxisState int32

const (
	AxisDisable          AxisState = 0
	AxisStandStill       AxisState = 1
	AxisHoming           AxisState = 2
	AxisDiscreteMotion   AxisState = 3
	AxisContinuousMotion AxisState = 4
	AxisStopping         AxisState = 5
	AxisStopped          AxisState = 6
	AxisWaitSync         AxisState = 7
	AxisGroupMotion      AxisState = 8
	AxisError            AxisState = 10
)

var axisStateNames = map[AxisState]string{
	AxisDisable:          "disable",
	AxisStandStill:       "stand_still",
	AxisHoming:           "homing",
	AxisDiscreteMotion:   "discrete_motion",
	AxisContinuousMotion: "continuous_motion",
	AxisStopping:         "stopping",
	AxisStopped:          "stopped",
	AxisWaitSync:         "wait_sync",
	AxisGroupMotion:      "group_motion",
	AxisError:            "error",
}

func (s AxisState) String() string {
	if n, ok := axisStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("AxisState(%d)", int32(s))
}

// Moving reports whether the axis is executing any motion
func (s AxisState) Moving() bool {
	switch s {
	case AxisHoming, AxisDiscreteMotion, AxisContinuousMotion,
		AxisStopping, AxisWaitSync, AxisGroupMotion:
		return true
	}
	return false
}

// GroupState is the derived group state
type GroupState int32

const (
	GroupDisable    GroupState = 0
	GroupStandStill GroupState = 1
	GroupStopped    GroupState = 2
	GroupStopping   GroupState = 3
	GroupMoving     GroupState = 4
	GroupHoming     GroupState = 5
	GroupErrorStop  GroupState = 6
)

var groupStateNames = map[GroupState]string{
	GroupDisable:    "disable",
	GroupStandStill: "stand_still",
	GroupStopped:    "stopped",
	GroupStopping:   "stopping",
	GroupMoving:     "moving",
	GroupHoming:     "homing",
	GroupErrorStop:  "error_stop",
}

func (s GroupState) String() string {
	if n, ok := groupStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("GroupState(%d)", int32(s))
}

// Bit positions shared by the axis and group status words
const (
	BitEMG  = 0
	BitALM  = 1
	BitPEL  = 2
	BitNEL  = 3
	BitPSEL = 4
	BitNSEL = 5
	BitENA  = 6
	BitERR  = 7
	BitTAR  = 8
	BitCSTP = 9
	BitACC  = 10
	BitDEC  = 11
	BitMV   = 12
	BitOP   = 13
	BitSTOP = 14
	BitRPEL = 16
	BitRNEL = 17
	BitRHOM = 18
)

var bitNames = []struct {
	bit  uint
	name string
}{
	{BitEMG, "EMG"}, {BitALM, "ALM"}, {BitPEL, "PEL"}, {BitNEL, "NEL"},
	{BitPSEL, "PSEL"}, {BitNSEL, "NSEL"}, {BitENA, "ENA"}, {BitERR, "ERR"},
	{BitTAR, "TAR"}, {BitCSTP, "CSTP"}, {BitACC, "ACC"}, {BitDEC, "DEC"},
	{BitMV, "MV"}, {BitOP, "OP"}, {BitSTOP, "STOP"}, {BitRPEL, "RPEL"},
	{BitRNEL, "RNEL"}, {BitRHOM, "RHOM"},
}

// AxisStatus is the 32-bit axis status word
type AxisStatus uint32

func (s AxisStatus) Has(bit uint) bool { return s&(1<<bit) != 0 }

func (s AxisStatus) With(bit uint, on bool) AxisStatus {
	if on {
		return s | 1<<bit
	}
	return s &^ (1 << bit)
}

func (s AxisStatus) EMG() bool  { return s.Has(BitEMG) }
func (s AxisStatus) ALM() bool  { return s.Has(BitALM) }
func (s AxisStatus) PEL() bool  { return s.Has(BitPEL) }
func (s AxisStatus) NEL() bool  { return s.Has(BitNEL) }
func (s AxisStatus) PSEL() bool { return s.Has(BitPSEL) }
func (s AxisStatus) NSEL() bool { return s.Has(BitNSEL) }
func (s AxisStatus) ENA() bool  { return s.Has(BitENA) }
func (s AxisStatus) ERR() bool  { return s.Has(BitERR) }
func (s AxisStatus) TAR() bool  { return s.Has(BitTAR) }
func (s AxisStatus) CSTP() bool { return s.Has(BitCSTP) }
func (s AxisStatus) ACC() bool  { return s.Has(BitACC) }
func (s AxisStatus) DEC() bool  { return s.Has(BitDEC) }
func (s AxisStatus) MV() bool   { return s.Has(BitMV) }
func (s AxisStatus) OP() bool   { return s.Has(BitOP) }
func (s AxisStatus) STOP() bool { return s.Has(BitSTOP) }
func (s AxisStatus) RPEL() bool { return s.Has(BitRPEL) }
func (s AxisStatus) RNEL() bool { return s.Has(BitRNEL) }
func (s AxisStatus) RHOM() bool { return s.Has(BitRHOM) }

func (s AxisStatus) String() string { return bitString(uint32(s)) }

// GroupStatus is the 32-bit group status word. It carries the axis bits
// except TAR and the latched R* bits.
type GroupStatus uint32

const groupStatusMask = 0x7EFF

// GroupStatusFrom aggregates member status words
func GroupStatusFrom(members ...AxisStatus) GroupStatus {
	var s uint32
	for _, m := range members {
		s |= uint32(m)
	}
	return GroupStatus(s & groupStatusMask)
}

func (s GroupStatus) Has(bit uint) bool { return s&(1<<bit) != 0 }
func (s GroupStatus) EMG() bool         { return s.Has(BitEMG) }
func (s GroupStatus) ALM() bool         { return s.Has(BitALM) }
func (s GroupStatus) ENA() bool         { return s.Has(BitENA) }
func (s GroupStatus) ERR() bool         { return s.Has(BitERR) }
func (s GroupStatus) MV() bool          { return s.Has(BitMV) }
func (s GroupStatus) STOP() bool        { return s.Has(BitSTOP) }
func (s GroupStatus) String() string    { return bitString(uint32(s)) }

func bitString(v uint32) string {
	var parts []string
	for _, b := range bitNames {
		if v&(1<<b.bit) != 0 {
			parts = append(parts, b.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

// AxisMask selects group members or cartesian components, bit i = index i
type AxisMask uint32

const (
	MaskX   AxisMask = 0x01
	MaskY   AxisMask = 0x02
	MaskZ   AxisMask = 0x04
	MaskA   AxisMask = 0x08
	MaskB   AxisMask = 0x10
	MaskC   AxisMask = 0x20
	MaskU   AxisMask = 0x40
	MaskV   AxisMask = 0x80
	MaskAll AxisMask = 0xFF
)

// Has reports whether index i is selected
func (m AxisMask) Has(i int) bool { return i >= 0 && i < 32 && m&(1<<uint(i)) != 0 }

// Count returns the number of selected indexes
func (m AxisMask) Count() int { return bits.OnesCount32(uint32(m)) }

// Within reports whether every selected index is below n
func (m AxisMask) Within(n int) bool {
	if n >= 32 {
		return true
	}
	return uint32(m)>>uint(n) == 0
}

// Indexes lists the selected indexes in ascending order
func (m AxisMask) Indexes() []int {
	out := make([]int, 0, m.Count())
	for i := 0; i < 32; i++ {
		if m.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

// MaskOf builds a mask from indexes
func MaskOf(idx ...int) AxisMask {
	var m AxisMask
	for _, i := range idx {
		m |= 1 << uint(i)
	}
	return m
}
