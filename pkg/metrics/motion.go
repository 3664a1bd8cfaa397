// Motion controller metrics
//
// MotionMetrics receives the calls, cycles, messages and object states of
// an nmc library and exposes them for Prometheus.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"strconv"
	"time"

	"nexmotion-go/pkg/message"
	"nexmotion-go/pkg/trace"
)

type MotionMetrics struct {
	// Control cycle
	CycleDuration *Histogram
	CycleOverruns *Counter
	CyclesTotal   *Counter

	// API
	APICalls    *Counter
	APIDuration *Histogram

	// Objects
	DeviceState    *Gauge
	AxisState      *Gauge
	AxisCommandPos *Gauge
	AxisActualPos  *Gauge
	AxisFollowErr  *Gauge
	GroupState     *Gauge

	// Messages
	MessagesTotal *Counter

	// Host
	Uptime     *Gauge
	Goroutines *Gauge
	HeapBytes  *Gauge
	GCCycles   *Gauge

	start    time.Time
	registry *Registry
}

// NewMotionMetrics creates the metrics on a private registry
func NewMotionMetrics() *MotionMetrics {
	m := &MotionMetrics{start: time.Now(), registry: NewRegistry()}

	m.CycleDuration = NewHistogram("nmc_cycle_duration_seconds",
		"Execution time of the control cycle body", ExponentialBuckets(25e-6, 2, 10))
	m.CycleOverruns = NewCounter("nmc_cycle_overruns_total",
		"Control cycles that took longer than their period")
	m.CyclesTotal = NewCounter("nmc_cycles_total",
		"Control cycles executed")

	m.APICalls = NewCounter("nmc_api_calls_total",
		"Library calls by API and return code")
	m.APIDuration = NewHistogram("nmc_api_call_seconds",
		"Library call latency", ExponentialBuckets(1e-6, 4, 10))

	m.DeviceState = NewGauge("nmc_device_state",
		"Device state (1=init, 2=ready, 3=error, 4=operation)")
	m.AxisState = NewGauge("nmc_axis_state",
		"Axis state (0=disable, 1=stand_still, 3=discrete, 4=continuous, 5=stopping, 6=stopped, 8=group, 10=error)")
	m.AxisCommandPos = NewGauge("nmc_axis_command_position",
		"Commanded axis position")
	m.AxisActualPos = NewGauge("nmc_axis_actual_position",
		"Feedback axis position")
	m.AxisFollowErr = NewGauge("nmc_axis_following_error",
		"Commanded minus feedback position")
	m.GroupState = NewGauge("nmc_group_state",
		"Group state (0=disable, 1=stand_still, 2=stopped, 3=stopping, 4=moving, 5=homing, 6=error_stop)")

	m.MessagesTotal = NewCounter("nmc_messages_total",
		"System messages posted by type")

	m.Uptime = NewGauge("nmc_uptime_seconds", "Seconds since the metrics were created")
	m.Goroutines = NewGauge("nmc_go_goroutines", "Number of goroutines")
	m.HeapBytes = NewGauge("nmc_go_heap_bytes", "Heap bytes in use")
	m.GCCycles = NewGauge("nmc_go_gc_cycles", "Completed GC cycles")

	m.registry.MustRegister(
		m.CycleDuration, m.CycleOverruns, m.CyclesTotal,
		m.APICalls, m.APIDuration,
		m.DeviceState, m.AxisState, m.AxisCommandPos, m.AxisActualPos, m.AxisFollowErr, m.GroupState,
		m.MessagesTotal,
		m.Uptime, m.Goroutines, m.HeapBytes, m.GCCycles,
	)
	return m
}

func devLabels(dev int) Labels {
	return Labels{"device": strconv.Itoa(dev)}
}

// Observe counts a finished library call
func (m *MotionMetrics) Observe(c trace.Call) {
	m.APICalls.Inc(Labels{"api": c.API, "code": strconv.Itoa(int(c.Code))})
	m.APIDuration.ObserveDuration(Labels{"api": c.API}, c.Duration)
}

func (m *MotionMetrics) ObserveCycle(dev int, d time.Duration) {
	l := devLabels(dev)
	m.CyclesTotal.Inc(l)
	m.CycleDuration.ObserveDuration(l, d)
}

func (m *MotionMetrics) RecordOverrun(dev int, d time.Duration) {
	m.CycleOverruns.Inc(devLabels(dev))
}

func (m *MotionMetrics) RecordMessage(msg message.Message) {
	m.MessagesTotal.Inc(Labels{"type": msg.Type.String()})
}

func (m *MotionMetrics) ObserveDevice(dev int, state int32) {
	m.DeviceState.Set(devLabels(dev), float64(state))
}

func (m *MotionMetrics) ObserveAxis(dev, index int, state int32, cmdPos, actPos float64) {
	l := Labels{"device": strconv.Itoa(dev), "axis": strconv.Itoa(index)}
	m.AxisState.Set(l, float64(state))
	m.AxisCommandPos.Set(l, cmdPos)
	m.AxisActualPos.Set(l, actPos)
	m.AxisFollowErr.Set(l, cmdPos-actPos)
}

func (m *MotionMetrics) ObserveGroup(dev, index int, state int32) {
	m.GroupState.Set(Labels{"device": strconv.Itoa(dev), "group": strconv.Itoa(index)}, float64(state))
}

// UpdateRuntime samples the Go runtime
func (m *MotionMetrics) UpdateRuntime() {
	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)
	m.Goroutines.Set(nil, float64(goruntime.NumGoroutine()))
	m.HeapBytes.Set(nil, float64(ms.HeapAlloc))
	m.GCCycles.Set(nil, float64(ms.NumGC))
	m.Uptime.Set(nil, time.Since(m.start).Seconds())
}

// Gather refreshes the runtime gauges and renders everything
func (m *MotionMetrics) Gather() string {
	m.UpdateRuntime()
	return m.registry.Gather()
}

func (m *MotionMetrics) Registry() *Registry {
	return m.registry
}
