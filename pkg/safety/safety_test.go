package safety

import (
	"sync/atomic"
	"testing"
	"time"

	"nexmotion-go/pkg/errors"
)

func TestNew(t *testing.T) {
	m := New()
	if m.GetState() != StateDisable {
		t.Errorf("initial state should be disable, got %s", m.GetState())
	}
	if err := m.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if m.GetState() != StateReady {
		t.Errorf("expected ready, got %s", m.GetState())
	}
	if err := m.CheckOperational(); err != nil {
		t.Errorf("expected operational, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateDisable, "disable"},
		{StateReady, "ready"},
		{StateError, "error"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.expected)
		}
	}
}

func TestEmergencyStop(t *testing.T) {
	m := New()
	m.Enable()

	var events atomic.Int32
	var lastState atomic.Int32
	m.OnEvent(func(ev Event) {
		if ev.Reason == ReasonEmergencyStop && ev.Immediate {
			events.Add(1)
		}
	})
	m.OnStateChange(func(_, s State) { lastState.Store(int32(s)) })

	ev := m.SetEmergencyStop(true, "button")
	if ev == nil || !ev.Immediate {
		t.Fatalf("expected immediate event, got %+v", ev)
	}
	if m.SetEmergencyStop(true, "again") != nil {
		t.Error("asserting twice should not fire again")
	}
	if events.Load() != 1 {
		t.Errorf("expected one callback, got %d", events.Load())
	}
	if State(lastState.Load()) != StateError {
		t.Errorf("expected state change to error, got %d", lastState.Load())
	}
	if !errors.Is(m.CheckOperational(), errors.EmergencyStopActive) {
		t.Errorf("expected EmergencyStopActive, got %v", m.CheckOperational())
	}

	if err := m.Reset(); !errors.Is(err, errors.EmergencyStopActive) {
		t.Errorf("Reset with EMG asserted: %v", err)
	}
	m.SetEmergencyStop(false, "")
	if m.GetState() != StateError {
		t.Error("releasing EMG must keep the error latched")
	}
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if m.GetState() != StateReady {
		t.Errorf("expected ready after reset, got %s", m.GetState())
	}
}

func TestEnableWithEmergency(t *testing.T) {
	m := New()
	m.SetEmergencyStop(true, "")
	if err := m.Enable(); !errors.Is(err, errors.EmergencyStopActive) {
		t.Fatalf("expected EmergencyStopActive, got %v", err)
	}
	if m.GetState() != StateError {
		t.Errorf("expected error state, got %s", m.GetState())
	}
}

func TestWatchdogStop1(t *testing.T) {
	m := New()
	m.Enable()
	if err := m.WatchdogEnable(10*time.Millisecond, Stop1); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 9; i++ {
		if ev := m.Advance(time.Millisecond); ev != nil {
			t.Fatalf("tripped early at %d", i)
		}
	}
	m.WatchdogReset()
	for i := 0; i < 9; i++ {
		if ev := m.Advance(time.Millisecond); ev != nil {
			t.Fatalf("reset did not restart the interval (%d)", i)
		}
	}

	ev := m.Advance(5 * time.Millisecond)
	if ev == nil || ev.Reason != ReasonWatchdogTimeout || ev.Immediate {
		t.Fatalf("expected controlled watchdog stop, got %+v", ev)
	}
	if m.Advance(time.Second) != nil {
		t.Error("watchdog must fire once until reset")
	}
	if m.GetState() != StateReady {
		t.Errorf("STOP1 keeps the device ready, got %s", m.GetState())
	}
	if !m.GetStatus().Watchdog.Tripped {
		t.Error("expected tripped status")
	}
}

func TestWatchdogStop0(t *testing.T) {
	m := New()
	m.Enable()
	m.WatchdogEnable(time.Millisecond, Stop0)

	ev := m.Advance(2 * time.Millisecond)
	if ev == nil || !ev.Immediate {
		t.Fatalf("expected immediate stop, got %+v", ev)
	}
	if !errors.Is(m.CheckOperational(), errors.SafetyError) {
		t.Errorf("expected SafetyError, got %v", m.CheckOperational())
	}
	if err := m.Reset(); err != nil {
		t.Fatal(err)
	}
	if m.GetStatus().Watchdog.Tripped {
		t.Error("Reset should clear the trip")
	}
}

func TestWatchdogValidation(t *testing.T) {
	m := New()
	if err := m.WatchdogEnable(0, Stop0); !errors.Is(err, errors.ParameterValueInvalid) {
		t.Errorf("zero timeout: %v", err)
	}
	if err := m.WatchdogEnable(time.Second, WatchdogMode(7)); !errors.Is(err, errors.ParameterValueInvalid) {
		t.Errorf("bad mode: %v", err)
	}
	if err := m.WatchdogReset(); !errors.Is(err, errors.OperationDenied) {
		t.Errorf("reset while disarmed: %v", err)
	}
}

func TestWatchdogIdleWhileDisabled(t *testing.T) {
	m := New()
	m.WatchdogEnable(time.Millisecond, Stop0)
	if m.Advance(time.Second) != nil {
		t.Error("watchdog must not run while the device is disabled")
	}
	m.Enable()
	m.WatchdogDisable()
	if m.Advance(time.Second) != nil {
		t.Error("disarmed watchdog fired")
	}
}
