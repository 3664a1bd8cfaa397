// NexMotion library entry point
//
// A Library owns the device arena, the INI search path, the system message
// queue and the call tracer. Several libraries may coexist in one process;
// nothing is kept in package state.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package nmc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"nexmotion-go/pkg/axis"
	"nexmotion-go/pkg/config"
	"nexmotion-go/pkg/cycle"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/log"
	"nexmotion-go/pkg/message"
	"nexmotion-go/pkg/trace"
)

// Library version
const (
	VersionMajor = 1
	VersionMinor = 2
	VersionStage = 5
	VersionBuild = 26
)

// WaitTimeInfinite makes the blocking calls wait without a timeout
const WaitTimeInfinite uint32 = 0xFFFFFFFF

// DevID addresses a device in the library arena
type DevID int32

// DevType selects the device backend
type DevType int32

const (
	DevSimulator DevType = config.DevTypeSimulator
	DevEtherCAT  DevType = config.DevTypeEtherCAT
)

func (t DevType) String() string {
	switch t {
	case DevSimulator:
		return "simulator"
	case DevEtherCAT:
		return "ethercat"
	default:
		return fmt.Sprintf("DevType(%d)", int32(t))
	}
}

// DriveFactory builds the drive of one configured axis for devices that
// are not simulators
type DriveFactory func(devType DevType, devIndex int, cfg config.AxisConfig) (axis.Drive, error)

// Metrics receives measurements from the devices of a library
type Metrics interface {
	trace.Observer
	ObserveCycle(dev int, d time.Duration)
	RecordOverrun(dev int, d time.Duration)
	RecordMessage(m message.Message)
	ObserveDevice(dev int, state int32)
	ObserveAxis(dev, index int, state int32, cmdPos, actPos float64)
	ObserveGroup(dev, index int, state int32)
}

// Option configures a Library
type Option func(*Library)

// WithManualCycle creates devices whose control cycle is advanced with
// Device.Step instead of a timer goroutine
func WithManualCycle() Option {
	return func(l *Library) { l.manual = true }
}

// WithDriveFactory installs the drive backend for EtherCAT devices
func WithDriveFactory(f DriveFactory) Option {
	return func(l *Library) { l.drives = f }
}

// WithObserver adds a trace observer filtered by the trace mode
func WithObserver(o trace.Observer) Option {
	return func(l *Library) { l.observers = append(l.observers, o) }
}

// WithLogger replaces the library logger
func WithLogger(lg *log.Logger) Option {
	return func(l *Library) { l.logger = lg }
}

// WithMetrics reports every call, cycle and message to m
func WithMetrics(m Metrics) Option {
	return func(l *Library) { l.metrics = m }
}

// WithQueueDepth bounds the system message queue
func WithQueueDepth(n int) Option {
	return func(l *Library) { l.depth = n }
}

// WithTraceMessages posts traced calls to the message queue
func WithTraceMessages() Option {
	return func(l *Library) { l.traceMsgs = true }
}

// Library is the root object of the API
type Library struct {
	mu      sync.Mutex
	devices []*Device
	iniPath string
	pending map[devKey]*openUp

	queue  *message.Queue
	tracer *trace.Tracer
	logger *log.Logger

	manual    bool
	drives    DriveFactory
	metrics   Metrics
	observers []trace.Observer
	depth     int
	traceMsgs bool

	msgOutput atomic.Bool
	msgLevel  atomic.Int32
}

type devKey struct {
	typ   DevType
	index int
}

// openUp tracks an OpenUpRequest until it is waited on
type openUp struct {
	id   DevID
	done *cycle.Completion
}

// NewLibrary creates a library without devices
func NewLibrary(opts ...Option) *Library {
	l := &Library{
		pending: make(map[devKey]*openUp),
		logger:  log.GetLogger("nmc"),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.queue = message.NewQueue(l.depth)
	l.queue.Subscribe(l.echo)

	var always []trace.Observer
	if l.metrics != nil {
		always = append(always, l.metrics)
		l.queue.Subscribe(l.metrics.RecordMessage)
	}
	l.tracer = trace.New(always...)
	l.tracer.AddObserver(trace.LogObserver{Logger: l.logger})
	if l.traceMsgs {
		l.tracer.AddObserver(trace.QueueObserver{Queue: l.queue})
	}
	for _, o := range l.observers {
		l.tracer.AddObserver(o)
	}
	return l
}

// Logger returns the library logger
func (l *Library) Logger() *log.Logger { return l.logger }

// Queue returns the system message queue
func (l *Library) Queue() *message.Queue { return l.queue }

func (l *Library) traced(api string, start time.Time, err *error) {
	if r := recover(); r != nil {
		*err = errors.FromPanic(r)
	}
	if e, ok := (*err).(*errors.Error); ok && e.Op == "" {
		e.SetOp(api)
	}
	l.tracer.End(api, start, *err)
}

// Version is the library version
type Version struct {
	Major, Minor, Stage, Build int32
}

// Number encodes the version as Major*10^7 + Minor*10^5 + Stage*10^4 + Build
func (v Version) Number() int32 {
	return v.Major*10000000 + v.Minor*100000 + v.Stage*10000 + v.Build
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Stage, v.Build)
}

// GetLibVersion returns the library version
func GetLibVersion() Version {
	return Version{Major: VersionMajor, Minor: VersionMinor, Stage: VersionStage, Build: VersionBuild}
}

// GetLibVersionString returns Major.Minor.Stage.Build
func GetLibVersionString() string {
	return GetLibVersion().String()
}

// ErrorDescription returns the text of a return code
func ErrorDescription(code errors.Code) string {
	return errors.Description(code)
}

// SetIniPath sets the file or directory searched for the library
// configuration. An empty path restores the default search.
func (l *Library) SetIniPath(path string) {
	l.mu.Lock()
	l.iniPath = path
	l.mu.Unlock()
}

// IniPath returns the path set with SetIniPath
func (l *Library) IniPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.iniPath
}

// Device returns the device addressed by id
func (l *Library) Device(id DevID) (*Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deviceLocked(id)
}

func (l *Library) deviceLocked(id DevID) (*Device, error) {
	if id < 0 || int(id) >= len(l.devices) || l.devices[id] == nil {
		return nil, errors.InvalidObject("device", int(id))
	}
	return l.devices[id], nil
}

// Devices returns the live devices in id order
func (l *Library) Devices() []*Device {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Device
	for _, d := range l.devices {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

// DeviceCreate allocates a device in the Init state
func (l *Library) DeviceCreate(devType DevType, devIndex int) (id DevID, err error) {
	defer l.traced("DeviceCreate", l.tracer.Begin(), &err)

	if devType != DevSimulator && devType != DevEtherCAT {
		return -1, errors.InvalidValue("device type %d", devType)
	}
	if devIndex < 0 {
		return -1, errors.InvalidValue("device index %d", devIndex)
	}
	if devType == DevEtherCAT && l.drives == nil {
		return -1, errors.New(errors.ExternalLibraryNotFound, "no EtherCAT drive backend installed")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range l.devices {
		if d != nil && d.typ == devType && d.index == devIndex {
			return -1, errors.Denied("%s device %d already created", devType, devIndex)
		}
	}
	id = DevID(len(l.devices))
	for i, d := range l.devices {
		if d == nil {
			id = DevID(i)
			break
		}
	}
	d := newDevice(l, id, devType, devIndex)
	if int(id) == len(l.devices) {
		l.devices = append(l.devices, d)
	} else {
		l.devices[id] = d
	}
	l.logger.Info("created %s device %d as id %d", devType, devIndex, id)
	return id, nil
}

// DeviceDelete removes a device that is not in operation
func (l *Library) DeviceDelete(id DevID) (err error) {
	defer l.traced("DeviceDelete", l.tracer.Begin(), &err)

	l.mu.Lock()
	defer l.mu.Unlock()
	d, err := l.deviceLocked(id)
	if err != nil {
		return err
	}
	if d.GetState() == DeviceOperation {
		return errors.Denied("device %d is in operation", id)
	}
	d.close()
	l.devices[id] = nil
	return nil
}

// OpenUp creates, configures and starts a device and blocks until it is
// in operation
func (l *Library) OpenUp(devType DevType, devIndex int) (DevID, error) {
	if err := l.OpenUpRequest(devType, devIndex); err != nil {
		return -1, err
	}
	if l.manual {
		l.mu.Lock()
		p := l.pending[devKey{devType, devIndex}]
		l.mu.Unlock()
		if d, err := l.Device(p.id); err == nil {
			d.Step(1)
		}
	}
	return l.WaitOpenUpRequest(devType, devIndex, WaitTimeInfinite)
}

// OpenUpRequest starts opening a device and returns at once
func (l *Library) OpenUpRequest(devType DevType, devIndex int) (err error) {
	defer l.traced("DeviceOpenUpRequest", l.tracer.Begin(), &err)

	key := devKey{devType, devIndex}
	l.mu.Lock()
	_, busy := l.pending[key]
	l.mu.Unlock()
	if busy {
		return errors.Busy("%s device %d is already opening", devType, devIndex)
	}

	id, err := l.DeviceCreate(devType, devIndex)
	if err != nil {
		return err
	}
	d, err := l.Device(id)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		l.DeviceDelete(id)
		return err
	}
	if err := d.LoadIniConfig(); err != nil {
		return fail(err)
	}
	done, err := d.startRequest()
	if err != nil {
		return fail(err)
	}

	l.mu.Lock()
	l.pending[key] = &openUp{id: id, done: done}
	l.mu.Unlock()
	return nil
}

// WaitOpenUpRequest blocks until a requested device is in operation and
// returns its id. timeoutMs may be WaitTimeInfinite.
func (l *Library) WaitOpenUpRequest(devType DevType, devIndex int, timeoutMs uint32) (id DevID, err error) {
	defer l.traced("DeviceWaitOpenUpRequest", l.tracer.Begin(), &err)

	key := devKey{devType, devIndex}
	l.mu.Lock()
	p, ok := l.pending[key]
	l.mu.Unlock()
	if !ok {
		return -1, errors.Newf(errors.WaitFailed, "no open up request for %s device %d", devType, devIndex)
	}
	d, err := l.Device(p.id)
	if err != nil {
		return -1, err
	}
	if err := d.waitStarted(p.done, timeoutMs); err != nil {
		if errors.Is(err, errors.ProcessTimeout) {
			return -1, err
		}
		l.mu.Lock()
		delete(l.pending, key)
		l.mu.Unlock()
		return -1, err
	}
	l.mu.Lock()
	delete(l.pending, key)
	l.mu.Unlock()
	return p.id, nil
}

// Shutdown stops a device and deletes it
func (l *Library) Shutdown(id DevID) error {
	if err := l.ShutdownRequest(id); err != nil {
		return err
	}
	if l.manual {
		if d, err := l.Device(id); err == nil {
			d.Step(1)
		}
	}
	return l.WaitShutdownRequest(id, WaitTimeInfinite)
}

// ShutdownRequest starts stopping a device and returns at once
func (l *Library) ShutdownRequest(id DevID) (err error) {
	defer l.traced("DeviceShutdownRequest", l.tracer.Begin(), &err)

	d, err := l.Device(id)
	if err != nil {
		return err
	}
	_, err = d.stopRequest()
	return err
}

// WaitShutdownRequest blocks until a device has stopped, then deletes it
func (l *Library) WaitShutdownRequest(id DevID, timeoutMs uint32) (err error) {
	defer l.traced("DeviceWaitShutdownRequest", l.tracer.Begin(), &err)

	d, err := l.Device(id)
	if err != nil {
		return err
	}
	done := d.stopping()
	if done == nil {
		if d.GetState() == DeviceOperation {
			return errors.Newf(errors.WaitFailed, "device %d: no shutdown request", id)
		}
		done = cycle.Completed(nil)
	}
	if err := d.waitStopped(done, timeoutMs); err != nil {
		return err
	}
	return l.DeviceDelete(id)
}

// MessagePopFirst removes the oldest system message
func (l *Library) MessagePopFirst() (msg message.Message, err error) {
	defer l.traced("MessagePopFirst", l.tracer.Begin(), &err)
	return l.queue.PopFirst()
}

// MessageOutputEnable echoes posted messages to the library logger
func (l *Library) MessageOutputEnable(on bool) {
	l.msgOutput.Store(on)
}

// severity ranks message types for DP_MSG_OUTPUT_LEVEL
func severity(t message.Type) int32 {
	switch t {
	case message.Debug:
		return 0
	case message.Normal:
		return 1
	case message.Warning:
		return 2
	default:
		return 3
	}
}

func (l *Library) echo(m message.Message) {
	if !l.msgOutput.Load() || severity(m.Type) < l.msgLevel.Load() {
		return
	}
	entry := l.logger.WithFields(log.Fields{"source": m.Source, "id": m.ID, "code": m.Code, "index": m.Index})
	switch m.Type {
	case message.Error:
		entry.Errorf("%s", m.Text)
	case message.Warning:
		entry.Warnf("%s", m.Text)
	case message.Debug:
		entry.Debugf("%s", m.Text)
	default:
		entry.Infof("%s", m.Text)
	}
}

// DebugSetTraceMode selects which calls reach the hook and observers
func (l *Library) DebugSetTraceMode(mode trace.Mode) error {
	return l.tracer.SetMode(mode)
}

// DebugGetTraceMode returns the trace mode
func (l *Library) DebugGetTraceMode() trace.Mode {
	return l.tracer.Mode()
}

// DebugSetHookFunction installs the call hook, nil removes it
func (l *Library) DebugSetHookFunction(fn trace.HookFunc) {
	l.tracer.SetHook(fn)
}

// DebugSetHookData sets the user data passed to the hook
func (l *Library) DebugSetHookData(data interface{}) {
	l.tracer.SetHookData(data)
}

// timeoutOf converts a millisecond timeout of the API
func timeoutOf(ms uint32) time.Duration {
	if ms == WaitTimeInfinite {
		return cycle.Infinite
	}
	return time.Duration(ms) * time.Millisecond
}
