// Structured logging tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(prefix string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(prefix)
	l.SetWriter(&buf)
	l.SetColorize(false)
	l.SetLevel(DEBUG)
	return l, &buf
}

func TestLoggerText(t *testing.T) {
	l, buf := newTestLogger("axis")
	l.Info("enabled axis %d", 3)

	out := buf.String()
	for _, want := range []string{"[INFO ]", "axis:", "enabled axis 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	l, buf := newTestLogger("cycle")
	l.SetLevel(WARN)

	l.Debug("tick")
	l.Info("tick")
	if buf.Len() != 0 {
		t.Fatalf("expected DEBUG and INFO to be filtered, got %q", buf.String())
	}
	l.Warn("overrun")
	if !strings.Contains(buf.String(), "overrun") {
		t.Errorf("expected WARN line, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		" error ": ERROR,
		"bogus":   INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerJSONFields(t *testing.T) {
	l, buf := newTestLogger("nmc")
	l.SetFormat(FormatJSON)

	l.With(Fields{"dev": 0}).WithField("axis", 2).WithError(errors.New("alarm")).Error("enable failed")

	var entry JSONLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v (%s)", err, buf.String())
	}
	if entry.Level != "ERROR" || entry.Logger != "nmc" || entry.Message != "enable failed" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Fields["error"] != "alarm" {
		t.Errorf("expected error field, got %v", entry.Fields)
	}
	if entry.Fields["axis"] != float64(2) || entry.Fields["dev"] != float64(0) {
		t.Errorf("expected axis and dev fields, got %v", entry.Fields)
	}
}

func TestWithPrefixSharesOutput(t *testing.T) {
	parent, buf := newTestLogger("nmc")
	child := parent.WithPrefix("telemetry")

	parent.SetLevel(ERROR)
	child.Info("hidden")
	child.Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("child should follow the parent level, got %q", out)
	}
	if !strings.Contains(out, "telemetry: shown") {
		t.Errorf("expected child prefix, got %q", out)
	}
}

func TestLoggerCaller(t *testing.T) {
	l, buf := newTestLogger("test")
	l.SetCaller(true)

	l.Info("caller test")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Errorf("expected caller info, got %q", buf.String())
	}
}

func TestConfigureFromEnv(t *testing.T) {
	t.Setenv("NMC_LOG_LEVEL", "error")
	t.Setenv("NMC_LOG_FORMAT", "json")
	l, buf := newTestLogger("env")
	ConfigureFromEnv(l)

	if l.GetLevel() != ERROR {
		t.Fatalf("expected ERROR level, got %v", l.GetLevel())
	}
	l.Error("boom")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}
