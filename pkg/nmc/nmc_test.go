package nmc

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nexmotion-go/pkg/axis"
	"nexmotion-go/pkg/config"
	"nexmotion-go/pkg/coord"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/message"
	"nexmotion-go/pkg/opt"
	"nexmotion-go/pkg/params"
	"nexmotion-go/pkg/status"
	"nexmotion-go/pkg/trace"
)

const simIni = `
[device]
type = simulator
cycle_time_us = 1000
input_size = 8
output_size = 8
io_loopback = true

[axis 0]
[axis 1]
[axis 2]
[axis 3]

[group 0]
kinematics = cartesian
axes = 0, 1, 2
`

func iniDir(t *testing.T, data string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.IniFileName), []byte(data), 0644))
	return dir
}

// openSim opens simulator device 0 on a manually stepped library
func openSim(t *testing.T, opts ...Option) (*Library, *Device) {
	t.Helper()
	lib := NewLibrary(append([]Option{WithManualCycle()}, opts...)...)
	lib.SetIniPath(iniDir(t, simIni))
	id, err := lib.OpenUp(DevSimulator, 0)
	require.NoError(t, err)
	d, err := lib.Device(id)
	require.NoError(t, err)
	require.Equal(t, DeviceOperation, d.GetState())
	drain(lib)
	return lib, d
}

func drain(lib *Library) {
	for {
		if _, err := lib.MessagePopFirst(); err != nil {
			return
		}
	}
}

// settleAxis steps until axis i stops moving
func settleAxis(t *testing.T, d *Device, i, max int) {
	t.Helper()
	for n := 0; n < max; n++ {
		d.Step(1)
		st, err := d.AxisGetState(i)
		require.NoError(t, err)
		if !st.Moving() {
			return
		}
	}
	t.Fatalf("axis %d still moving after %d cycles", i, max)
}

func requireCode(t *testing.T, code errors.Code, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, errors.CodeOf(err), "%v", err)
}

func TestVersion(t *testing.T) {
	v := GetLibVersion()
	require.Equal(t, "1.2.5.26", GetLibVersionString())
	require.Equal(t, int32(10000000+200000+50000+26), v.Number())
	require.NotEmpty(t, ErrorDescription(errors.ObjectIdInvalid))
}

func TestOpenUpAndShutdown(t *testing.T) {
	lib, d := openSim(t)
	require.Equal(t, 4, d.GetAxisCount())
	require.Equal(t, 1, d.GetGroupCount())
	n, err := d.GetGroupAxisCount(0)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	_, err = lib.OpenUp(DevSimulator, 0)
	requireCode(t, errors.OperationDenied, err)

	require.NoError(t, lib.Shutdown(d.ID()))
	_, err = lib.Device(d.ID())
	requireCode(t, errors.ObjectIdInvalid, err)
	require.Empty(t, lib.Devices())
}

func TestCommandsNeedOperation(t *testing.T) {
	lib := NewLibrary(WithManualCycle())
	id, err := lib.DeviceCreate(DevSimulator, 0)
	require.NoError(t, err)
	d, err := lib.Device(id)
	require.NoError(t, err)
	require.Equal(t, DeviceInit, d.GetState())

	requireCode(t, errors.SystemNotInitialization, d.Start())
	_, err = d.AxisGetParamF64(0, params.AxpVM, 0)
	requireCode(t, errors.SystemNotInitialization, err)

	require.NoError(t, d.Configure(config.DefaultLibConfig()))
	require.Equal(t, DeviceReady, d.GetState())
	requireCode(t, errors.SystemNotReady, d.AxisEnable(0))

	// parameters work before start
	require.NoError(t, d.AxisSetParamF64(0, params.AxpVM, 0, 50))

	require.NoError(t, d.Start())
	require.Equal(t, DeviceOperation, d.GetState())
	requireCode(t, errors.OperationDenied, d.ResetConfig())
	requireCode(t, errors.OperationDenied, lib.DeviceDelete(id))

	require.NoError(t, d.Stop())
	require.Equal(t, DeviceReady, d.GetState())
	require.NoError(t, d.ResetConfig())
	require.Equal(t, DeviceInit, d.GetState())
	require.NoError(t, lib.DeviceDelete(id))
}

func TestWaitOpenUpRequest(t *testing.T) {
	lib := NewLibrary(WithManualCycle())
	lib.SetIniPath(iniDir(t, simIni))

	_, err := lib.WaitOpenUpRequest(DevSimulator, 0, 10)
	requireCode(t, errors.WaitFailed, err)

	require.NoError(t, lib.OpenUpRequest(DevSimulator, 0))
	requireCode(t, errors.OperationBusy, lib.OpenUpRequest(DevSimulator, 0))

	// no cycle ran yet
	_, err = lib.WaitOpenUpRequest(DevSimulator, 0, 10)
	requireCode(t, errors.ProcessTimeout, err)

	devs := lib.Devices()
	require.Len(t, devs, 1)
	devs[0].Step(1)
	id, err := lib.WaitOpenUpRequest(DevSimulator, 0, WaitTimeInfinite)
	require.NoError(t, err)
	require.Equal(t, devs[0].ID(), id)

	_, err = lib.WaitOpenUpRequest(DevSimulator, 0, 10)
	requireCode(t, errors.WaitFailed, err)

	require.NoError(t, lib.ShutdownRequest(id))
	devs[0].Step(1)
	require.NoError(t, lib.WaitShutdownRequest(id, WaitTimeInfinite))
}

func TestMissingExplicitIni(t *testing.T) {
	lib := NewLibrary(WithManualCycle())
	lib.SetIniPath(t.TempDir())
	require.Error(t, lib.OpenUpRequest(DevSimulator, 0))
	require.Empty(t, lib.Devices())
}

func TestEtherCATNeedsDriveBackend(t *testing.T) {
	lib := NewLibrary(WithManualCycle())
	_, err := lib.DeviceCreate(DevEtherCAT, 0)
	requireCode(t, errors.ExternalLibraryNotFound, err)

	var built []int
	lib = NewLibrary(WithManualCycle(), WithDriveFactory(func(typ DevType, idx int, ac config.AxisConfig) (axis.Drive, error) {
		built = append(built, ac.Index)
		return axis.NewSimDrive(0), nil
	}))
	id, err := lib.DeviceCreate(DevEtherCAT, 0)
	require.NoError(t, err)
	d, err := lib.Device(id)
	require.NoError(t, err)
	require.NoError(t, d.Configure(config.DefaultLibConfig()))
	require.Equal(t, []int{0, 1, 2, 3}, built)
	require.NoError(t, d.Start())
	require.Equal(t, DeviceOperation, d.GetState())
}

func TestAxisPtp(t *testing.T) {
	_, d := openSim(t)
	require.NoError(t, d.AxisEnable(0))

	require.NoError(t, d.AxisPtp(0, 100, opt.None[float64]()))
	st, err := d.AxisGetState(0)
	require.NoError(t, err)
	require.Equal(t, status.AxisDiscreteMotion, st)

	settleAxis(t, d, 0, 5000)
	st, _ = d.AxisGetState(0)
	require.Equal(t, status.AxisStandStill, st)
	pos, err := d.AxisGetActualPos(0)
	require.NoError(t, err)
	require.InDelta(t, 100, pos, 1e-6)

	requireCode(t, errors.ParameterValueInvalid, d.AxisPtp(0, 0, opt.F(-1)))
	requireCode(t, errors.ObjectIdInvalid, d.AxisPtp(9, 0, opt.None[float64]()))
}

func TestEnableAllStopsAtDriveAlarm(t *testing.T) {
	lib := NewLibrary(WithManualCycle())
	id, err := lib.DeviceCreate(DevSimulator, 0)
	require.NoError(t, err)
	d, _ := lib.Device(id)

	lc := config.DefaultLibConfig()
	lc.Axes[1].DriveAlarm = 0x7301
	require.NoError(t, d.Configure(lc))
	require.NoError(t, d.Start())
	drain(lib)

	requireCode(t, errors.OperationDenied, d.EnableAll())
	want := []status.AxisState{status.AxisStandStill, status.AxisError, status.AxisDisable, status.AxisDisable}
	for i, w := range want {
		st, err := d.AxisGetState(i)
		require.NoError(t, err)
		require.Equal(t, w, st, "axis %d", i)
	}
	code, err := d.AxisGetDriveAlmCode(1)
	require.NoError(t, err)
	require.Equal(t, int32(0x7301), code)

	msg, err := lib.MessagePopFirst()
	require.NoError(t, err)
	require.Equal(t, message.Error, msg.Type)
	require.Equal(t, "dev0.axis1", msg.Source)
}

func TestMessageQueue(t *testing.T) {
	lib, d := openSim(t)
	_, err := lib.MessagePopFirst()
	requireCode(t, errors.QueueEmpty, err)

	sim, err := d.SimDrive(3)
	require.NoError(t, err)
	require.NoError(t, d.AxisEnable(3))
	sim.InjectAlarm(0x2220, true)
	d.Step(1)

	msg, err := lib.MessagePopFirst()
	require.NoError(t, err)
	require.Equal(t, message.Error, msg.Type)
	require.Equal(t, int32(3), msg.ID)
	require.Equal(t, "dev0.axis3", msg.Source)
	_, err = lib.MessagePopFirst()
	requireCode(t, errors.QueueEmpty, err)
}

func TestWatchdogStop1(t *testing.T) {
	_, d := openSim(t)
	require.NoError(t, d.EnableAll())

	requireCode(t, errors.ParameterValueInvalid, d.DeviceWatchdogTimerEnable(0, WatchdogStop1))
	requireCode(t, errors.OperationDenied, d.DeviceWatchdogTimerReset())
	require.NoError(t, d.DeviceWatchdogTimerEnable(10, WatchdogStop1))

	for i := 0; i < 5; i++ {
		d.Step(5)
		require.NoError(t, d.DeviceWatchdogTimerReset())
	}
	st, _ := d.AxisGetState(0)
	require.Equal(t, status.AxisStandStill, st)

	d.Step(20)
	for i := 0; i < d.GetAxisCount(); i++ {
		st, _ := d.AxisGetState(i)
		require.Equal(t, status.AxisStopped, st, "axis %d", i)
	}
}

func TestWatchdogStop0(t *testing.T) {
	_, d := openSim(t)
	require.NoError(t, d.EnableAll())
	require.NoError(t, d.DeviceWatchdogTimerEnable(5, WatchdogStop0))
	d.Step(10)

	st, _ := d.AxisGetState(3)
	require.Equal(t, status.AxisError, st)
	require.Equal(t, DeviceOperation, d.GetState())

	// the fault stays latched until reset
	requireCode(t, errors.SafetyError, d.AxisEnable(3))
	require.NoError(t, d.DeviceWatchdogTimerDisable())
	require.NoError(t, d.ResetStateAll())
	require.NoError(t, d.EnableAll())
}

func TestEmergencyStop(t *testing.T) {
	_, d := openSim(t)
	require.NoError(t, d.AxisEnable(0))
	require.NoError(t, d.SetEmergencyStop(true))

	st, _ := d.AxisGetState(0)
	require.Equal(t, status.AxisError, st)
	ast, _ := d.AxisGetStatus(0)
	require.True(t, ast.EMG())
	requireCode(t, errors.EmergencyStopActive, d.AxisResetState(0))

	require.NoError(t, d.SetEmergencyStop(false))
	require.NoError(t, d.AxisResetState(0))
	st, _ = d.AxisGetState(0)
	require.Equal(t, status.AxisDisable, st)
	require.NoError(t, d.AxisEnable(0))
}

func TestGroupPtpAcsAllMask(t *testing.T) {
	_, d := openSim(t)
	require.NoError(t, d.EnableAll())

	require.NoError(t, d.GroupPtpAcsAll(0, status.MaskOf(0, 2), coord.Pos{10, 50, 20}))
	for n := 0; n < 5000; n++ {
		d.Step(1)
		st, err := d.GroupGetState(0)
		require.NoError(t, err)
		if st == status.GroupStandStill {
			break
		}
	}
	pos, err := d.GroupGetActualPosAcs(0)
	require.NoError(t, err)
	require.InDelta(t, 10, pos[0], 1e-6)
	require.InDelta(t, 0, pos[1], 1e-9)
	require.InDelta(t, 20, pos[2], 1e-6)

	requireCode(t, errors.ParameterValueInvalid, d.GroupPtpAcsAll(0, 0, coord.Pos{}))
	requireCode(t, errors.ObjectIdInvalid, d.GroupHalt(1))
}

func TestIOLoopback(t *testing.T) {
	_, d := openSim(t)
	n, err := d.GetInputMemorySize()
	require.NoError(t, err)
	require.Equal(t, 8, n)

	require.NoError(t, d.WriteOutputI16(2, -1234))
	require.NoError(t, d.WriteOutputBit(0, 3, true))
	d.Step(1)
	v, err := d.ReadInputI16(2)
	require.NoError(t, err)
	require.Equal(t, int16(-1234), v)
	on, err := d.ReadInputBit(0, 3)
	require.NoError(t, err)
	require.True(t, on)

	requireCode(t, errors.AccessAreaInvalid, d.WriteOutputI32(6, 1))
	requireCode(t, errors.AccessAreaInvalid, d.ReadInputMemory(4, make([]byte, 8)))
	_, err = d.ReadInputI32(math.MaxInt - 1)
	requireCode(t, errors.AccessAreaInvalid, err)

	// loopback off: inputs keep their last value
	require.NoError(t, d.DeviceSetParam(params.DpIOLoopback, 0, 0))
	require.NoError(t, d.WriteOutputI16(2, 7))
	d.Step(1)
	v, _ = d.ReadInputI16(2)
	require.Equal(t, int16(-1234), v)
}

func TestParams(t *testing.T) {
	_, d := openSim(t)
	require.NoError(t, d.AxisSetParamF64(1, params.AxpVM, 0, 250))
	vm, err := d.AxisGetParamF64(1, params.AxpVM, 0)
	require.NoError(t, err)
	require.Equal(t, 250.0, vm)

	require.NoError(t, d.GroupSetParamF64(0, params.GpVM, 0, 400))
	gvm, err := d.GroupGetParamF64(0, params.GpVM, 0)
	require.NoError(t, err)
	require.Equal(t, 400.0, gvm)

	_, err = d.AxisGetParamI32(0, 9999, 0)
	requireCode(t, errors.ParameterNumberInvalid, err)
	_, err = d.GroupAxisGetParamF64(0, 5, params.GpVM, 0)
	require.Error(t, err)
}

func TestTraceHook(t *testing.T) {
	lib, d := openSim(t)

	type call struct {
		api  string
		code errors.Code
		data interface{}
	}
	var calls []call
	lib.DebugSetHookFunction(func(api string, code errors.Code, data interface{}) {
		calls = append(calls, call{api, code, data})
	})
	lib.DebugSetHookData("tag")

	require.NoError(t, lib.DebugSetTraceMode(trace.Error))
	require.Equal(t, trace.Error, lib.DebugGetTraceMode())
	require.NoError(t, d.AxisEnable(0))
	require.Error(t, d.AxisEnable(7))
	require.Equal(t, []call{{"AxisEnable", errors.ObjectIdInvalid, "tag"}}, calls)

	calls = nil
	require.NoError(t, lib.DebugSetTraceMode(trace.All))
	_, _ = d.AxisGetCommandPos(0)
	require.Len(t, calls, 1)
	require.Equal(t, "AxisGetCommandPos", calls[0].api)

	calls = nil
	require.NoError(t, lib.DebugSetTraceMode(trace.Disable))
	require.Error(t, d.AxisEnable(7))
	require.Empty(t, calls)
}

func TestTraceMessages(t *testing.T) {
	lib, d := openSim(t, WithTraceMessages())
	require.NoError(t, lib.DebugSetTraceMode(trace.All))
	drain(lib)
	require.NoError(t, d.AxisEnable(0))
	msg, err := lib.MessagePopFirst()
	require.NoError(t, err)
	require.Equal(t, "AxisEnable", msg.Source)
	require.Equal(t, message.Debug, msg.Type)
}

func TestBaseCalib(t *testing.T) {
	lib := NewLibrary()
	tr, err := lib.BaseCalib1p(coord.Pos{1, 2, 3, 0, 0, 90})
	require.NoError(t, err)
	require.Equal(t, coord.CoordTrans{1, 2, 3, 0, 0, 90}, tr)
}

func TestToolFramesBeforeStart(t *testing.T) {
	lib := NewLibrary(WithManualCycle())
	id, _ := lib.DeviceCreate(DevSimulator, 0)
	d, _ := lib.Device(id)
	require.NoError(t, d.Configure(config.DefaultLibConfig()))

	tool := coord.CoordTrans{0, 0, 120, 0, 0, 0}
	require.NoError(t, d.GroupSetToolTrans(0, 1, tool))
	got, err := d.GroupGetToolTrans(0, 1)
	require.NoError(t, err)
	require.Equal(t, tool, got)
	require.NoError(t, d.GroupSelectTool(0, 1))
	snap := d.Snapshot()
	require.Equal(t, int32(1), snap.Groups[0].ToolIndex)
}
