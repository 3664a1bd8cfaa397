// Package safety tracks the emergency stop input and the device watchdog.
// It holds safety state only; the device applies the resulting stops to
// its axes and groups.
package safety

import (
	"fmt"
	"sync"
	"time"

	"nexmotion-go/pkg/errors"
)

// State is the safety state of a device.
type State int

const (
	// StateDisable indicates the device is not running.
	StateDisable State = 0

	// StateReady indicates normal operation.
	StateReady State = 1

	// StateError indicates a latched safety fault.
	StateError State = 2
)

func (s State) String() string {
	switch s {
	case StateDisable:
		return "disable"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// WatchdogMode selects the reaction to a watchdog timeout.
type WatchdogMode int

const (
	// Stop0 error-stops every axis immediately.
	Stop0 WatchdogMode = 0

	// Stop1 decelerates every axis with its stop deceleration.
	Stop1 WatchdogMode = 1
)

func (m WatchdogMode) String() string {
	switch m {
	case Stop0:
		return "stop0"
	case Stop1:
		return "stop1"
	default:
		return "unknown"
	}
}

// Reason describes why a safety event fired.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonEmergencyStop   Reason = "emergency_stop"
	ReasonWatchdogTimeout Reason = "watchdog_timeout"
	ReasonUserRequest     Reason = "user_request"
)

// Event is a safety reaction the device has to apply.
type Event struct {
	Reason Reason
	// Immediate requests an error stop instead of a controlled stop.
	Immediate bool
	Message   string
	Time      time.Time
}

// Manager manages the safety state of one device.
type Manager struct {
	mu sync.RWMutex

	state     State
	emg       bool
	reason    Reason
	msg       string
	faultTime time.Time

	// Watchdog, advanced by the control cycle
	wdtEnabled bool
	wdtTimeout time.Duration
	wdtMode    WatchdogMode
	wdtElapsed time.Duration
	wdtTripped bool

	onEvent       []func(Event)
	onStateChange []func(oldState, newState State)
}

// New creates a new safety Manager in StateDisable.
func New() *Manager {
	return &Manager{state: StateDisable}
}

// OnEvent registers a callback invoked for every safety event.
func (m *Manager) OnEvent(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvent = append(m.onEvent, fn)
}

// OnStateChange registers a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = append(m.onStateChange, fn)
}

// GetState returns the current safety state.
func (m *Manager) GetState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// EmergencyActive reports whether the emergency stop input is asserted.
func (m *Manager) EmergencyActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emg
}

// Enable moves the manager to StateReady. With the emergency stop
// asserted it latches StateError and returns EmergencyStopActive.
func (m *Manager) Enable() error {
	m.mu.Lock()
	if m.emg {
		changes := m.setStateLocked(StateError)
		m.mu.Unlock()
		m.notify(changes, nil)
		return errors.New(errors.EmergencyStopActive, "emergency stop input asserted")
	}
	changes := m.setStateLocked(StateReady)
	m.mu.Unlock()
	m.notify(changes, nil)
	return nil
}

// Disable moves the manager to StateDisable and disarms the watchdog.
func (m *Manager) Disable() {
	m.mu.Lock()
	m.wdtEnabled = false
	changes := m.setStateLocked(StateDisable)
	m.mu.Unlock()
	m.notify(changes, nil)
}

// SetEmergencyStop asserts or releases the emergency stop input. Asserting
// it latches StateError and returns the stop event; releasing it keeps
// the error until Reset.
func (m *Manager) SetEmergencyStop(active bool, msg string) *Event {
	m.mu.Lock()
	if !active || m.emg {
		m.emg = active
		m.mu.Unlock()
		return nil
	}
	m.emg = true
	ev := m.faultLocked(ReasonEmergencyStop, msg, true)
	changes := m.setStateLocked(StateError)
	m.mu.Unlock()
	m.notify(changes, &ev)
	return &ev
}

// CheckOperational returns an error unless the device may move.
func (m *Manager) CheckOperational() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case m.emg:
		return errors.New(errors.EmergencyStopActive, "emergency stop input asserted")
	case m.state == StateError:
		return errors.Newf(errors.SafetyError, "%s: %s", m.reason, m.msg)
	}
	return nil
}

// Reset clears a latched safety error. It fails while the emergency stop
// input is still asserted.
func (m *Manager) Reset() error {
	m.mu.Lock()
	if m.emg {
		m.mu.Unlock()
		return errors.New(errors.EmergencyStopActive, "emergency stop input asserted")
	}
	if m.state != StateError {
		m.mu.Unlock()
		return nil
	}
	m.reason = ReasonNone
	m.msg = ""
	m.faultTime = time.Time{}
	m.wdtTripped = false
	m.wdtElapsed = 0
	changes := m.setStateLocked(StateReady)
	m.mu.Unlock()
	m.notify(changes, nil)
	return nil
}

// WatchdogEnable arms the watchdog. The host has to call WatchdogReset
// more often than timeout or the device reacts according to mode.
func (m *Manager) WatchdogEnable(timeout time.Duration, mode WatchdogMode) error {
	if timeout <= 0 {
		return errors.InvalidValue("watchdog timeout must be positive")
	}
	if mode != Stop0 && mode != Stop1 {
		return errors.InvalidValue("invalid watchdog mode %d", mode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wdtEnabled = true
	m.wdtTimeout = timeout
	m.wdtMode = mode
	m.wdtElapsed = 0
	m.wdtTripped = false
	return nil
}

// WatchdogDisable disarms the watchdog.
func (m *Manager) WatchdogDisable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wdtEnabled = false
	m.wdtElapsed = 0
}

// WatchdogReset restarts the watchdog interval.
func (m *Manager) WatchdogReset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.wdtEnabled {
		return errors.Denied("watchdog is not enabled")
	}
	m.wdtElapsed = 0
	m.wdtTripped = false
	return nil
}

// Advance accounts dt of control-cycle time against the watchdog. It
// returns the event to apply when the watchdog expires during this call.
func (m *Manager) Advance(dt time.Duration) *Event {
	m.mu.Lock()
	if !m.wdtEnabled || m.wdtTripped || m.state == StateDisable {
		m.mu.Unlock()
		return nil
	}
	m.wdtElapsed += dt
	if m.wdtElapsed < m.wdtTimeout {
		m.mu.Unlock()
		return nil
	}
	m.wdtTripped = true
	immediate := m.wdtMode == Stop0
	ev := m.faultLocked(ReasonWatchdogTimeout,
		fmt.Sprintf("no watchdog reset within %v", m.wdtTimeout), immediate)
	var changes []stateChange
	if immediate {
		changes = m.setStateLocked(StateError)
	}
	m.mu.Unlock()
	m.notify(changes, &ev)
	return &ev
}

type stateChange struct{ from, to State }

func (m *Manager) setStateLocked(s State) []stateChange {
	if m.state == s {
		return nil
	}
	old := m.state
	m.state = s
	return []stateChange{{old, s}}
}

func (m *Manager) faultLocked(reason Reason, msg string, immediate bool) Event {
	now := time.Now()
	if m.reason == ReasonNone || m.state != StateError {
		m.reason = reason
		m.msg = msg
		m.faultTime = now
	}
	return Event{Reason: reason, Immediate: immediate, Message: msg, Time: now}
}

// notify runs callbacks outside the lock.
func (m *Manager) notify(changes []stateChange, ev *Event) {
	m.mu.RLock()
	onState := append([]func(State, State){}, m.onStateChange...)
	onEvent := append([]func(Event){}, m.onEvent...)
	m.mu.RUnlock()

	for _, c := range changes {
		for _, fn := range onState {
			fn(c.from, c.to)
		}
	}
	if ev != nil {
		for _, fn := range onEvent {
			fn(*ev)
		}
	}
}

// WatchdogStatus describes the watchdog for reporting.
type WatchdogStatus struct {
	Enabled bool
	Timeout time.Duration
	Mode    WatchdogMode
	Elapsed time.Duration
	Tripped bool
}

// Status returns a status struct for reporting.
type Status struct {
	State     string
	Emergency bool
	Reason    string
	Message   string
	FaultTime time.Time
	Watchdog  WatchdogStatus
}

// GetStatus returns the current status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Status{
		State:     m.state.String(),
		Emergency: m.emg,
		Reason:    string(m.reason),
		Message:   m.msg,
		FaultTime: m.faultTime,
		Watchdog: WatchdogStatus{
			Enabled: m.wdtEnabled,
			Timeout: m.wdtTimeout,
			Mode:    m.wdtMode,
			Elapsed: m.wdtElapsed,
			Tripped: m.wdtTripped,
		},
	}
}
