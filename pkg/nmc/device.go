// Device lifecycle and control cycle
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package nmc

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"nexmotion-go/pkg/axis"
	"nexmotion-go/pkg/config"
	"nexmotion-go/pkg/coord"
	"nexmotion-go/pkg/cycle"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/group"
	"nexmotion-go/pkg/iomem"
	"nexmotion-go/pkg/kinematics"
	"nexmotion-go/pkg/log"
	"nexmotion-go/pkg/message"
	"nexmotion-go/pkg/params"
	"nexmotion-go/pkg/safety"
	"nexmotion-go/pkg/status"
)

// Device states
const (
	DeviceInit      = status.DeviceInit
	DeviceReady     = status.DeviceReady
	DeviceError     = status.DeviceError
	DeviceOperation = status.DeviceOperation
)

// Snapshot is the immutable view published after every cycle and every
// command. Read APIs never lock the device.
type Snapshot struct {
	ID     DevID
	Type   DevType
	Index  int
	State  status.DeviceState
	Safety safety.Status
	Cycles uint64
	Time   time.Time
	Axes   []axis.Snapshot
	Groups []group.Snapshot
}

// Device owns the axes, groups, I/O image and control cycle of one
// controller. Commands and cycle ticks serialize on the device mutex.
type Device struct {
	lib    *Library
	id     DevID
	typ    DevType
	index  int
	logger *log.Logger

	mu       sync.Mutex
	state    status.DeviceState
	cfg      *config.LibConfig
	params   *params.Table
	axes     []*axis.Axis
	drives   []axis.Drive
	groups   []*group.Group
	safety   *safety.Manager
	runner   *cycle.Runner
	starting *cycle.Completion
	stopReq  *cycle.Completion
	cycles   uint64

	image atomic.Pointer[iomem.Image]
	snap  atomic.Pointer[Snapshot]
}

func newDevice(l *Library, id DevID, typ DevType, index int) *Device {
	d := &Device{
		lib:    l,
		id:     id,
		typ:    typ,
		index:  index,
		logger: log.GetLogger(fmt.Sprintf("dev%d", id)),
		state:  DeviceInit,
		safety: safety.New(),
	}
	d.params = d.deviceTable(config.DefaultDevice())
	d.safety.OnEvent(d.onSafetyEvent)
	d.publish()
	return d
}

// ID returns the device id
func (d *Device) ID() DevID { return d.id }

// Type returns the device type
func (d *Device) Type() DevType { return d.typ }

// Index returns the device index
func (d *Device) Index() int { return d.index }

// Library returns the owning library
func (d *Device) Library() *Library { return d.lib }

func (d *Device) begin() time.Time { return d.lib.tracer.Begin() }

func (d *Device) traced(api string, start time.Time, err *error) {
	if r := recover(); r != nil {
		*err = errors.FromPanic(r)
	}
	if e, ok := (*err).(*errors.Error); ok && e.Op == "" {
		e.SetOp(api)
	}
	d.lib.tracer.End(api, start, *err)
}

// Snapshot returns the last published view
func (d *Device) Snapshot() *Snapshot {
	return d.snap.Load()
}

// GetState returns the device lifecycle state
func (d *Device) GetState() status.DeviceState {
	return d.snap.Load().State
}

// Config returns the loaded configuration, nil in the Init state
func (d *Device) Config() *config.LibConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// publish must be called with d.mu held
func (d *Device) publish() {
	s := &Snapshot{
		ID:     d.id,
		Type:   d.typ,
		Index:  d.index,
		State:  d.state,
		Safety: d.safety.GetStatus(),
		Cycles: d.cycles,
		Time:   time.Now(),
		Axes:   make([]axis.Snapshot, len(d.axes)),
		Groups: make([]group.Snapshot, len(d.groups)),
	}
	for i, a := range d.axes {
		s.Axes[i] = a.Snapshot()
	}
	for i, g := range d.groups {
		s.Groups[i] = g.Snapshot()
	}
	d.snap.Store(s)
}

func (d *Device) deviceTable(dc config.DeviceConfig) *params.Table {
	t := params.NewTable(params.DeviceDefs(dc.CycleTimeUs))
	if dc.IOLoopback {
		t.SetI32(params.DpIOLoopback, 0, 1)
	}
	t.SetI32(params.DpMsgLevel, 0, int32(dc.MsgOutputLevel))
	t.OnChange(func(k params.Key, v float64) {
		if k.Num == params.DpMsgLevel {
			d.lib.msgLevel.Store(int32(v))
		}
	})
	d.lib.msgLevel.Store(int32(dc.MsgOutputLevel))
	return t
}

// LoadIniConfig finds and loads NexMotionLibConfig.ini. Without an
// explicit path and without a file the simulator defaults are used.
func (d *Device) LoadIniConfig() (err error) {
	defer d.traced("DeviceLoadIniConfig", d.begin(), &err)

	explicit := d.lib.IniPath()
	path, err := config.FindIni(explicit)
	if err != nil {
		if explicit != "" {
			return err
		}
		d.logger.Info("%s not found, using simulator defaults", config.IniFileName)
		return d.configure(config.DefaultLibConfig())
	}
	lc, err := config.LoadLibConfig(path)
	if err != nil {
		return err
	}
	for _, opt := range lc.Unused {
		d.logger.Warn("unused option %s in %s", opt, path)
	}
	d.logger.Info("loaded %s: %d axes, %d groups", path, len(lc.Axes), len(lc.Groups))
	return d.configure(lc)
}

// Configure applies a configuration without reading a file
func (d *Device) Configure(lc *config.LibConfig) (err error) {
	defer d.traced("DeviceConfigure", d.begin(), &err)
	if lc == nil {
		return errors.New(errors.PointerNull, "no configuration")
	}
	return d.configure(lc)
}

func (d *Device) configure(lc *config.LibConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DeviceOperation {
		return errors.Denied("device %d is in operation", d.id)
	}

	var (
		axes   []*axis.Axis
		drives []axis.Drive
		groups []*group.Group
	)
	for i, ac := range lc.Axes {
		if ac.Index != i {
			return errors.Newf(errors.AxisMappingInvalid, "axis %d configured at position %d", ac.Index, i)
		}
		drive, err := d.newDrive(ac)
		if err != nil {
			return err
		}
		table, err := axisTable(ac, lc.Device.MotionBufferSize)
		if err != nil {
			return err
		}
		a := axis.New(ac.Index, ac.Description, table, drive, d.onAxisEvent)
		if err := a.SetHomePos(ac.HomePos); err != nil {
			return err
		}
		axes = append(axes, a)
		drives = append(drives, drive)
	}

	owner := make(map[int]int)
	for i, gc := range lc.Groups {
		if gc.Index != i {
			return errors.Newf(errors.GroupCountInvalid, "group %d configured at position %d", gc.Index, i)
		}
		members := make([]*axis.Axis, 0, len(gc.Axes))
		rails := make([]kinematics.Rail, 0, len(gc.Axes))
		for _, ai := range gc.Axes {
			if ai < 0 || ai >= len(axes) {
				return errors.Newf(errors.AxisMappingInvalid, "group %d: axis %d does not exist", i, ai)
			}
			if g, ok := owner[ai]; ok {
				return errors.Newf(errors.AxisMappingInvalid, "group %d: axis %d already belongs to group %d", i, ai, g)
			}
			owner[ai] = i
			members = append(members, axes[ai])
			rails = append(rails, railOf(lc.Axes[ai]))
		}
		kin, err := kinematics.NewFromConfig(kinematics.Config{
			Type:   gc.Kinematics,
			Axes:   len(members),
			Rails:  rails,
			Params: gc.KinParams,
		})
		if err != nil {
			return err
		}
		table := params.NewTable(params.GroupDefs(params.GroupDefaults{
			VM: gc.VM, Acc: gc.Acc, Dec: gc.Dec, StopDec: gc.StopDec,
		}))
		if err := table.SetI32(params.GpProfType, 0, int32(gc.ProfType)); err != nil {
			return err
		}
		g, err := group.New(group.Config{
			Index:       gc.Index,
			Description: gc.Description,
			Members:     members,
			Kinematics:  kin,
			Params:      table,
			Notify:      d.onGroupEvent,
		})
		if err != nil {
			return err
		}
		for idx, pose := range gc.Tools {
			if err := g.SetToolTrans(idx, coord.CoordTrans(pose)); err != nil {
				return err
			}
		}
		for idx, pose := range gc.Bases {
			if err := g.SetBaseTrans(idx, coord.CoordTrans(pose)); err != nil {
				return err
			}
		}
		groups = append(groups, g)
	}

	d.cfg = lc
	d.axes, d.drives, d.groups = axes, drives, groups
	d.params = d.deviceTable(lc.Device)
	d.image.Store(iomem.NewImage(lc.Device.InputSize, lc.Device.OutputSize))
	d.state = DeviceReady
	d.publish()
	return nil
}

func (d *Device) newDrive(ac config.AxisConfig) (axis.Drive, error) {
	if d.typ == DevSimulator {
		return axis.NewSimDrive(ac.DriveAlarm), nil
	}
	if d.lib.drives == nil {
		return nil, errors.New(errors.ExternalLibraryNotFound, "no EtherCAT drive backend installed")
	}
	drive, err := d.lib.drives(d.typ, d.index, ac)
	if err != nil {
		return nil, errors.Wrap(err, errors.ExternalCallFailed, fmt.Sprintf("drive of axis %d", ac.Index))
	}
	return drive, nil
}

func axisTable(ac config.AxisConfig, buffSize int) (*params.Table, error) {
	t := params.NewTable(params.AxisDefs(params.AxisDefaults{
		VM:       ac.VM,
		Acc:      ac.Acc,
		Dec:      ac.Dec,
		StopDec:  ac.StopDec,
		HomeVel:  ac.HomeVel,
		BuffSize: buffSize,
	}))
	swOn := int32(0)
	if ac.SwLimitEnable {
		swOn = 1
	}
	for _, set := range []func() error{
		func() error { return t.SetI32(params.AxpProfType, 0, int32(ac.ProfType)) },
		func() error { return t.SetF64(params.AxpSwLimitPos, 0, ac.SwLimitPos) },
		func() error { return t.SetF64(params.AxpSwLimitNeg, 0, ac.SwLimitNeg) },
		func() error { return t.SetI32(params.AxpSwLimitEnable, 0, swOn) },
	} {
		if err := set(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func railOf(ac config.AxisConfig) kinematics.Rail {
	r := kinematics.Rail{Name: ac.Description, PositionMin: math.Inf(-1), PositionMax: math.Inf(1)}
	if ac.SwLimitEnable {
		r.PositionMin, r.PositionMax = ac.SwLimitNeg, ac.SwLimitPos
	}
	return r
}

// ResetConfig drops the configuration and returns to the Init state
func (d *Device) ResetConfig() (err error) {
	defer d.traced("DeviceResetConfig", d.begin(), &err)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DeviceOperation || d.starting != nil {
		return errors.Denied("device %d is in operation", d.id)
	}
	d.cfg = nil
	d.axes, d.drives, d.groups = nil, nil, nil
	d.image.Store(nil)
	d.params = d.deviceTable(config.DefaultDevice())
	d.state = DeviceInit
	d.publish()
	return nil
}

// Start starts the control cycle and blocks until the device is in
// operation. In manual cycle mode it runs the first cycle itself.
func (d *Device) Start() (err error) {
	defer d.traced("DeviceStart", d.begin(), &err)
	done, err := d.startRequest()
	if err != nil {
		return err
	}
	if d.lib.manual {
		d.Step(1)
	}
	return d.waitStarted(done, WaitTimeInfinite)
}

// StartRequest starts the control cycle and returns at once. The device
// enters the operation state on its first cycle.
func (d *Device) StartRequest() (err error) {
	defer d.traced("DeviceStartRequest", d.begin(), &err)
	_, err = d.startRequest()
	return err
}

func (d *Device) startRequest() (*cycle.Completion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.starting != nil {
		return d.starting, nil
	}
	if d.state == DeviceOperation {
		return cycle.Completed(nil), nil
	}
	if d.cfg == nil {
		return nil, errors.Newf(errors.SystemNotInitialization, "device %d has no configuration", d.id)
	}
	if err := d.safety.Enable(); err != nil {
		d.logger.Warn("starting with %v", err)
	}

	dc := d.cfg.Device
	var r *cycle.Runner
	r = cycle.New(cycle.Config{
		Period:     time.Duration(dc.CycleTimeUs) * time.Microsecond,
		PinCPU:     dc.CPUAffinity >= 0,
		CPU:        dc.CPUAffinity,
		LockThread: true,
		Manual:     d.lib.manual,
	}, func(dt time.Duration) { d.tick(r, dt) })
	r.SetLogger(log.GetLogger(fmt.Sprintf("cycle%d", d.id)))
	if m := d.lib.metrics; m != nil {
		dev := int(d.id)
		r.OnOverrun(func(x time.Duration) { m.RecordOverrun(dev, x) })
	}

	d.runner = r
	d.starting = cycle.NewCompletion()
	done := d.starting
	if err := r.Start(); err != nil {
		d.runner, d.starting = nil, nil
		d.state = DeviceError
		d.safety.Disable()
		d.publish()
		done.Complete(err)
		return nil, err
	}
	return done, nil
}

func (d *Device) waitStarted(done *cycle.Completion, timeoutMs uint32) error {
	return done.Wait(timeoutOf(timeoutMs))
}

// Stop stops the control cycle and blocks until the device is ready.
// Every axis is disabled first.
func (d *Device) Stop() (err error) {
	defer d.traced("DeviceStop", d.begin(), &err)
	done, err := d.stopRequest()
	if err != nil {
		return err
	}
	if d.lib.manual {
		d.Step(1)
	}
	return d.waitStopped(done, WaitTimeInfinite)
}

// StopRequest asks the control cycle to stop and returns at once
func (d *Device) StopRequest() (err error) {
	defer d.traced("DeviceStopRequest", d.begin(), &err)
	_, err = d.stopRequest()
	return err
}

func (d *Device) stopRequest() (*cycle.Completion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopReq != nil {
		return d.stopReq, nil
	}
	if d.starting != nil {
		// the cycle never ran: cancel the start
		d.starting.Complete(errors.New(errors.SystemClosedDenied, "device stopped before start completed"))
		d.starting = nil
		r := d.runner
		d.runner = nil
		go r.Stop()
		d.safety.Disable()
		d.state = DeviceReady
		d.publish()
		return cycle.Completed(nil), nil
	}
	if d.state != DeviceOperation {
		return cycle.Completed(nil), nil
	}
	d.stopReq = cycle.NewCompletion()
	return d.stopReq, nil
}

// stopping returns the pending stop request, if any
func (d *Device) stopping() *cycle.Completion {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopReq
}

func (d *Device) waitStopped(done *cycle.Completion, timeoutMs uint32) error {
	return done.Wait(timeoutOf(timeoutMs))
}

// Step runs n control cycles synchronously. It is how tests drive a
// device created with WithManualCycle.
func (d *Device) Step(n int) {
	d.mu.Lock()
	r := d.runner
	d.mu.Unlock()
	if r != nil {
		r.Step(n)
	}
}

// CycleStats returns the control cycle timing
func (d *Device) CycleStats() cycle.Stats {
	d.mu.Lock()
	r := d.runner
	d.mu.Unlock()
	if r == nil {
		return cycle.Stats{}
	}
	return r.Stats()
}

// tick is the control cycle body: safety, axes, groups, I/O, snapshot
func (d *Device) tick(r *cycle.Runner, dt time.Duration) {
	start := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runner != r {
		return
	}

	if d.starting != nil {
		d.state = DeviceOperation
		d.starting.Complete(nil)
		d.starting = nil
		d.logger.Info("in operation, cycle %v", dt)
		d.post(message.Normal, "device", int32(d.id), errors.Success, "device in operation")
	}
	if d.stopReq != nil {
		d.shutdownLocked()
		done := d.stopReq
		d.stopReq = nil
		d.runner = nil
		d.publish()
		done.Complete(nil)
		go r.Stop()
		return
	}

	if ev := d.safety.Advance(dt); ev != nil {
		d.applySafety(*ev)
	}
	sec := dt.Seconds()
	for _, a := range d.axes {
		a.Tick(sec)
	}
	for _, g := range d.groups {
		g.Tick(sec)
	}
	if img := d.image.Load(); img != nil && d.params.I32(params.DpIOLoopback) == 1 {
		img.Loopback()
	}
	d.cycles++
	d.publish()

	if m := d.lib.metrics; m != nil {
		d.observe(m)
		m.ObserveCycle(int(d.id), time.Since(start))
	}
}

func (d *Device) observe(m Metrics) {
	dev := int(d.id)
	m.ObserveDevice(dev, int32(d.state))
	for _, a := range d.axes {
		m.ObserveAxis(dev, a.Index(), int32(a.State()), a.CommandPos(), a.ActualPos())
	}
	for _, g := range d.groups {
		m.ObserveGroup(dev, g.Index(), int32(g.State()))
	}
}

// shutdownLocked disables every axis and the safety manager
func (d *Device) shutdownLocked() {
	for _, g := range d.groups {
		g.Disable()
	}
	for _, a := range d.axes {
		a.Disable()
	}
	d.safety.Disable()
	d.state = DeviceReady
	d.logger.Info("stopped after %d cycles", d.cycles)
}

// close stops a runner that is still attached; used by DeviceDelete
func (d *Device) close() {
	d.mu.Lock()
	r := d.runner
	d.runner = nil
	if d.starting != nil {
		d.starting.Complete(errors.New(errors.SystemClosedDenied, "device deleted"))
		d.starting = nil
	}
	if d.stopReq != nil {
		d.stopReq.Complete(nil)
		d.stopReq = nil
	}
	d.mu.Unlock()
	if r != nil {
		go r.Stop()
	}
}

// operational must be called with d.mu held
func (d *Device) operational() error {
	if d.state != DeviceOperation {
		return errors.Newf(errors.SystemNotReady, "device %d is %s", d.id, d.state)
	}
	return nil
}

// configured must be called with d.mu held
func (d *Device) configured() error {
	if d.cfg == nil {
		return errors.Newf(errors.SystemNotInitialization, "device %d has no configuration", d.id)
	}
	return nil
}

func (d *Device) post(typ message.Type, source string, id int32, code errors.Code, text string) {
	d.lib.queue.Post(typ, source, id, int32(code), text)
}

func (d *Device) onAxisEvent(ev axis.Event) {
	typ := message.Warning
	if ev.Fault {
		typ = message.Error
	}
	d.post(typ, fmt.Sprintf("dev%d.axis%d", d.id, ev.Axis), int32(ev.Axis), ev.Code, ev.Text)
}

func (d *Device) onGroupEvent(ev group.Event) {
	d.post(message.Error, fmt.Sprintf("dev%d.group%d", d.id, ev.Group), int32(ev.Group), ev.Code, ev.Text)
}

func (d *Device) onSafetyEvent(ev safety.Event) {
	code := errors.SafetyError
	if ev.Reason == safety.ReasonEmergencyStop {
		code = errors.EmergencyStopActive
	}
	d.post(message.Error, fmt.Sprintf("dev%d.safety", d.id), int32(d.id), code,
		fmt.Sprintf("%s: %s", ev.Reason, ev.Message))
}

// applySafety reacts to a safety event, d.mu held
func (d *Device) applySafety(ev safety.Event) {
	if ev.Immediate {
		for _, a := range d.axes {
			a.ErrorStop(errors.SafetyError, ev.Message)
		}
		return
	}
	if err := d.stopAllLocked(); err != nil {
		d.logger.Warn("watchdog stop: %v", err)
	}
}

// safetyLatched rejects enabling after a latched watchdog fault. The
// emergency stop itself is reported by the axes.
func (d *Device) safetyLatched() error {
	if d.safety.GetState() == safety.StateError && !d.safety.EmergencyActive() {
		st := d.safety.GetStatus()
		return errors.Newf(errors.SafetyError, "safety fault latched: %s", st.Message)
	}
	return nil
}

// SetEmergencyStop drives the simulated emergency stop input
func (d *Device) SetEmergencyStop(active bool) (err error) {
	defer d.traced("DeviceSetEmergencyStop", d.begin(), &err)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.configured(); err != nil {
		return err
	}
	d.safety.SetEmergencyStop(active, "emergency stop input")
	for _, a := range d.axes {
		a.SetEmergency(active)
	}
	d.publish()
	return nil
}

// SimDrive returns the simulated drive of an axis for fault injection
func (d *Device) SimDrive(index int) (*axis.SimDrive, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.drives) {
		return nil, errors.InvalidObject("axis", index)
	}
	sim, ok := d.drives[index].(*axis.SimDrive)
	if !ok {
		return nil, errors.Denied("axis %d is not simulated", index)
	}
	return sim, nil
}
