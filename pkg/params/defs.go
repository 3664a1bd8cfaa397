package params

import "math"

const inf = math.MaxFloat64

// Axis parameters
const (
	AxpVM            int32 = 0x10
	AxpAcc           int32 = 0x11
	AxpDec           int32 = 0x12
	AxpJerk          int32 = 0x13
	AxpProfType      int32 = 0x14
	AxpVBase         int32 = 0x15
	AxpStopDec       int32 = 0x20
	AxpAbsRelMode    int32 = 0x30
	AxpBuffMode      int32 = 0x31
	AxpHomeVel       int32 = 0x40
	AxpSwLimitEnable int32 = 0x50
	AxpSwLimitPos    int32 = 0x51
	AxpSwLimitNeg    int32 = 0x52
	AxpBuffSize      int32 = 0x60
	AxpInPosTol      int32 = 0x61
)

// Group parameters
const (
	GpVM         int32 = 0x10
	GpAcc        int32 = 0x11
	GpDec        int32 = 0x12
	GpJerk       int32 = 0x13
	GpProfType   int32 = 0x14
	GpStopDec    int32 = 0x21
	GpAbsRelMode int32 = 0x30
	GpBuffMode   int32 = 0x31
	GpToolIndex  int32 = 0x40
	GpBaseIndex  int32 = 0x41
	GpToolTrans  int32 = 0x50
	GpBaseTrans  int32 = 0x51
)

// Group axis parameters
const (
	GaxpVM  int32 = 0x10
	GaxpAcc int32 = 0x11
	GaxpDec int32 = 0x12
)

// Device parameters
const (
	DpCycleTimeUs int32 = 0x10
	DpIOLoopback  int32 = 0x20
	DpMsgLevel    int32 = 0x21
)

// Buffer modes
const (
	BuffAbort    = 0
	BuffBuffered = 1
)

// Frame table sizes
const (
	MaxTools = 16
	MaxBases = 16
)

// AxisDefaults carries the ini values seeded into a new axis table
type AxisDefaults struct {
	VM, Acc, Dec, StopDec float64
	HomeVel               float64
	BuffSize              int
}

// AxisDefs returns the axis parameter declarations
func AxisDefs(d AxisDefaults) []Def {
	return []Def{
		{Num: AxpVM, Name: "AXP_VM", Kind: F64, Default: d.VM, Min: 1e-9, Max: inf},
		{Num: AxpAcc, Name: "AXP_ACC", Kind: F64, Default: d.Acc, Min: 1e-9, Max: inf},
		{Num: AxpDec, Name: "AXP_DEC", Kind: F64, Default: d.Dec, Min: 1e-9, Max: inf},
		{Num: AxpJerk, Name: "AXP_JERK", Kind: F64, Default: 0, Min: 0, Max: inf},
		{Num: AxpProfType, Name: "AXP_PROF_TYPE", Kind: I32, Default: 0, Min: 0, Max: 1},
		{Num: AxpVBase, Name: "AXP_V_BASE", Kind: F64, Default: 0, Min: 0, Max: inf},
		{Num: AxpStopDec, Name: "AXP_STOP_PROF_DEC", Kind: F64, Default: d.StopDec, Min: 1e-9, Max: inf},
		{Num: AxpAbsRelMode, Name: "AXP_ABS_REL_MODE", Kind: I32, Default: 0, Min: 0, Max: 1},
		{Num: AxpBuffMode, Name: "AXP_BUFF_PARAM", Kind: I32, Default: BuffAbort, Min: 0, Max: 1},
		{Num: AxpHomeVel, Name: "AXP_HOME_VEL", Kind: F64, Default: d.HomeVel, Min: 1e-9, Max: inf},
		{Num: AxpSwLimitEnable, Name: "AXP_SW_LIMIT_ENABLE", Kind: I32, Default: 0, Min: 0, Max: 1},
		{Num: AxpSwLimitPos, Name: "AXP_SW_LIMIT_POS", Kind: F64, Default: 1e9, Min: -inf, Max: inf},
		{Num: AxpSwLimitNeg, Name: "AXP_SW_LIMIT_NEG", Kind: F64, Default: -1e9, Min: -inf, Max: inf},
		{Num: AxpBuffSize, Name: "AXP_MOTION_BUFF_SIZE", Kind: I32, Default: float64(d.BuffSize), Min: 1, Max: 4096, ReadOnly: true},
		{Num: AxpInPosTol, Name: "AXP_IN_POS_TOL", Kind: F64, Default: 1e-6, Min: 0, Max: inf},
	}
}

// GroupDefaults carries the ini values seeded into a new group table
type GroupDefaults struct {
	VM, Acc, Dec, StopDec float64
}

// GroupDefs returns the group parameter declarations
func GroupDefs(d GroupDefaults) []Def {
	return []Def{
		{Num: GpVM, Name: "GP_VM", Kind: F64, Default: d.VM, Min: 1e-9, Max: inf},
		{Num: GpAcc, Name: "GP_ACC", Kind: F64, Default: d.Acc, Min: 1e-9, Max: inf},
		{Num: GpDec, Name: "GP_DEC", Kind: F64, Default: d.Dec, Min: 1e-9, Max: inf},
		{Num: GpJerk, Name: "GP_JERK", Kind: F64, Default: 0, Min: 0, Max: inf},
		{Num: GpProfType, Name: "GP_PROF_TYPE", Kind: I32, Default: 0, Min: 0, Max: 1},
		{Num: GpStopDec, Name: "GP_STOP_PROF_DEC", Kind: F64, Default: d.StopDec, Min: 1e-9, Max: inf},
		{Num: GpAbsRelMode, Name: "GP_ABS_REL_MODE", Kind: I32, Default: 0, Min: 0, Max: 1},
		{Num: GpBuffMode, Name: "GP_BUFF_PARAM", Kind: I32, Default: BuffAbort, Min: 0, Max: 1},
		{Num: GpToolIndex, Name: "GP_TOOL_INDEX", Kind: I32, Default: -1, Min: -1, Max: MaxTools - 1},
		{Num: GpBaseIndex, Name: "GP_BASE_INDEX", Kind: I32, Default: -1, Min: -1, Max: MaxBases - 1},
		{Num: GpToolTrans, Name: "GP_TOOL_TRANS", Kind: F64, Subs: MaxTools * 6, Min: -inf, Max: inf},
		{Num: GpBaseTrans, Name: "GP_BASE_TRANS", Kind: F64, Subs: MaxBases * 6, Min: -inf, Max: inf},
	}
}

// GroupAxisDefs returns the per-member declarations. Zero means "use the
// group value".
func GroupAxisDefs() []Def {
	return []Def{
		{Num: GaxpVM, Name: "GAXP_VM", Kind: F64, Min: 0, Max: inf},
		{Num: GaxpAcc, Name: "GAXP_ACC", Kind: F64, Min: 0, Max: inf},
		{Num: GaxpDec, Name: "GAXP_DEC", Kind: F64, Min: 0, Max: inf},
	}
}

// DeviceDefs returns the device parameter declarations
func DeviceDefs(cycleUs int) []Def {
	return []Def{
		{Num: DpCycleTimeUs, Name: "DP_CYCLE_TIME_US", Kind: I32, Default: float64(cycleUs), Min: 1, Max: 1e7, ReadOnly: true},
		{Num: DpIOLoopback, Name: "DP_IO_LOOPBACK", Kind: I32, Default: 0, Min: 0, Max: 1},
		{Num: DpMsgLevel, Name: "DP_MSG_OUTPUT_LEVEL", Kind: I32, Default: 0, Min: 0, Max: 3},
	}
}
