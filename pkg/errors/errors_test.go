package errors

import (
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != Success {
		t.Fatalf("nil error should map to Success")
	}
	if got := CodeOf(fmt.Errorf("plain")); got != UnexpectedException {
		t.Errorf("foreign error: got %d, want %d", got, UnexpectedException)
	}
	wrapped := fmt.Errorf("outer: %w", Denied("axis busy"))
	if got := CodeOf(wrapped); got != OperationDenied {
		t.Errorf("wrapped: got %d, want %d", got, OperationDenied)
	}
}

func TestErrorString(t *testing.T) {
	err := New(ParameterReadOnly, "").SetOp("AxisSetParamI32").SetObject("axis %d", 2)
	want := "[-44] AxisSetParamI32 (axis 2): parameter is read only"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDescriptionTable(t *testing.T) {
	codes := []Code{
		Success, ExternalLibraryNotFound, FileBadFormat, OperationDenied,
		OperationBusy, ProcessTimeout, ObjectIdInvalid, QueueEmpty,
		IKSingular, SafetyError,
	}
	for _, c := range codes {
		if !Known(c) {
			t.Errorf("code %d missing from table", c)
		}
	}
	if Known(-99) {
		t.Errorf("-99 should not be a known code")
	}
	if Description(-99) != "unknown error -99" {
		t.Errorf("unexpected description %q", Description(-99))
	}
}

func TestCategories(t *testing.T) {
	tests := []struct {
		code  Code
		check func(error) bool
	}{
		{OperationBusy, IsLifecycle},
		{AccessAreaInvalid, IsParameter},
		{IKOverAxisLimit, IsKinematics},
		{SafeGuardActive, IsSafety},
	}
	for _, tt := range tests {
		if !tt.check(New(tt.code, "x")) {
			t.Errorf("code %d not in expected category", tt.code)
		}
	}
	if IsSafety(New(OperationDenied, "x")) {
		t.Errorf("OperationDenied is not a safety error")
	}
}

func TestFromPanic(t *testing.T) {
	run := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = FromPanic(r)
			}
		}()
		var m map[string]int
		m["x"] = 1
		return nil
	}
	if got := CodeOf(run()); got != UnexpectedException {
		t.Fatalf("got %d, want %d", got, UnexpectedException)
	}
}
