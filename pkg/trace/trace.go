// API call tracing
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package trace

import (
	"sync"
	"sync/atomic"
	"time"

	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/log"
	"nexmotion-go/pkg/message"
)

// Mode filters which calls are traced
type Mode int32

const (
	Disable Mode = 0
	Error   Mode = 1
	All     Mode = 2
)

func (m Mode) String() string {
	switch m {
	case Disable:
		return "disable"
	case Error:
		return "error"
	case All:
		return "all"
	default:
		return "unknown"
	}
}

// Call describes one finished API call
type Call struct {
	API      string
	Code     errors.Code
	Err      error
	Start    time.Time
	Duration time.Duration
}

// Observer receives traced calls
type Observer interface {
	Observe(Call)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Call)

func (f ObserverFunc) Observe(c Call) { f(c) }

// HookFunc is the user hook: API name, return code and the registered
// user data.
type HookFunc func(api string, code errors.Code, userData interface{})

// Tracer dispatches finished calls to the hook and observers according to
// the trace mode. Observers registered at construction always receive
// calls, independent of the mode.
type Tracer struct {
	mode atomic.Int32

	mu        sync.RWMutex
	hook      HookFunc
	userData  interface{}
	observers []Observer
	always    []Observer
}

// New creates a tracer. always observers see every call.
func New(always ...Observer) *Tracer {
	return &Tracer{always: always}
}

// SetMode selects which calls reach the hook and mode observers
func (t *Tracer) SetMode(m Mode) error {
	if m < Disable || m > All {
		return errors.InvalidValue("trace mode %d", m)
	}
	t.mode.Store(int32(m))
	return nil
}

// Mode returns the current trace mode
func (t *Tracer) Mode() Mode {
	return Mode(t.mode.Load())
}

// SetHook installs the user hook, nil removes it
func (t *Tracer) SetHook(fn HookFunc) {
	t.mu.Lock()
	t.hook = fn
	t.mu.Unlock()
}

// SetHookData sets the value passed to the hook
func (t *Tracer) SetHookData(data interface{}) {
	t.mu.Lock()
	t.userData = data
	t.mu.Unlock()
}

// AddObserver registers an observer filtered by the trace mode
func (t *Tracer) AddObserver(o Observer) {
	t.mu.Lock()
	t.observers = append(append([]Observer(nil), t.observers...), o)
	t.mu.Unlock()
}

// Begin starts timing a call
func (t *Tracer) Begin() time.Time {
	return time.Now()
}

// End records a finished call and returns its code
func (t *Tracer) End(api string, start time.Time, err error) errors.Code {
	c := Call{API: api, Code: errors.CodeOf(err), Err: err, Start: start, Duration: time.Since(start)}

	t.mu.RLock()
	hook, data := t.hook, t.userData
	observers, always := t.observers, t.always
	t.mu.RUnlock()

	for _, o := range always {
		o.Observe(c)
	}
	switch t.Mode() {
	case Disable:
		return c.Code
	case Error:
		if c.Code == errors.Success {
			return c.Code
		}
	}
	if hook != nil {
		hook(api, c.Code, data)
	}
	for _, o := range observers {
		o.Observe(c)
	}
	return c.Code
}

// LogObserver writes traced calls to a logger
type LogObserver struct {
	Logger *log.Logger
}

func (o LogObserver) Observe(c Call) {
	entry := o.Logger.WithFields(log.Fields{"api": c.API, "code": int32(c.Code), "took": c.Duration})
	if c.Err != nil {
		entry.WithError(c.Err).Warn("call failed")
		return
	}
	entry.Debug("call")
}

// QueueObserver posts traced calls as system messages
type QueueObserver struct {
	Queue *message.Queue
}

func (o QueueObserver) Observe(c Call) {
	typ, text := message.Debug, "ok"
	if c.Err != nil {
		typ, text = message.Error, c.Err.Error()
	}
	o.Queue.Post(typ, c.API, 0, int32(c.Code), text)
}
