package config

import (
	"os"
	"path/filepath"
	"testing"

	nmcerrors "nexmotion-go/pkg/errors"
)

const sampleIni = `
[device]
type = simulator
cycle_time_us = 2000
input_size = 16
output_size = 8
io_loopback = true
motion_buffer_size = 4

[axis 0]
description = Shoulder
vm = 50
[axis 1]
drive_alarm = 0x1234
sw_limit_enable = 1
sw_limit_pos = 90
sw_limit_neg = -90
[axis 2]
[axis 3]

[group 0]
kinematics = scara
axes = 0, 1, 2, 3
kin_l1 = 300
kin_l2 = 200
tool_2 = 0, 0, 100, 0, 0, 0
typo_option = 1
`

func writeIni(t *testing.T, dir, data string) string {
	t.Helper()
	p := filepath.Join(dir, IniFileName)
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadLibConfig(t *testing.T) {
	p := writeIni(t, t.TempDir(), sampleIni)
	lc, err := LoadLibConfig(p)
	if err != nil {
		t.Fatalf("LoadLibConfig failed: %v", err)
	}

	d := lc.Device
	if d.Type != DevTypeSimulator || d.CycleTimeUs != 2000 || d.InputSize != 16 || d.OutputSize != 8 {
		t.Errorf("unexpected device %+v", d)
	}
	if !d.IOLoopback || d.MotionBufferSize != 4 || d.CPUAffinity != -1 {
		t.Errorf("unexpected device %+v", d)
	}

	if len(lc.Axes) != 4 {
		t.Fatalf("expected 4 axes, got %d", len(lc.Axes))
	}
	if lc.Axes[0].Description != "Shoulder" || lc.Axes[0].VM != 50 {
		t.Errorf("axis 0 = %+v", lc.Axes[0])
	}
	if lc.Axes[1].DriveAlarm != 0x1234 || !lc.Axes[1].SwLimitEnable || lc.Axes[1].SwLimitPos != 90 {
		t.Errorf("axis 1 = %+v", lc.Axes[1])
	}
	if lc.Axes[2].Description != "Axis2" || lc.Axes[2].Acc != 1000 {
		t.Errorf("axis 2 defaults = %+v", lc.Axes[2])
	}

	if len(lc.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(lc.Groups))
	}
	g := lc.Groups[0]
	if g.Kinematics != "scara" || len(g.Axes) != 4 || g.KinParams["l1"] != 300 || g.KinParams["l2"] != 200 {
		t.Errorf("group = %+v", g)
	}
	if g.Tools[2][2] != 100 {
		t.Errorf("tool 2 = %v", g.Tools[2])
	}
	if len(lc.Unused) != 1 || lc.Unused[0] != "[group 0] typo_option" {
		t.Errorf("unused = %v", lc.Unused)
	}
}

func TestLoadLibConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"gap in axes", "[axis 0]\n[axis 2]\n"},
		{"bad axis mapping", "[axis 0]\n[group 0]\naxes = 0, 1\n"},
		{"shared axis", "[axis 0]\n[axis 1]\n[group 0]\naxes = 0\n[group 1]\naxes = 0, 1\n"},
		{"non-positive vm", "[axis 0]\nvm = 0\n"},
		{"limits inverted", "[axis 0]\nsw_limit_enable = 1\nsw_limit_pos = -1\nsw_limit_neg = 1\n"},
		{"short frame", "[axis 0]\n[group 0]\naxes = 0\nbase_0 = 1, 2\n"},
		{"bad type", "[device]\ntype = canopen\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeIni(t, t.TempDir(), tt.data)
			_, err := LoadLibConfig(p)
			if got := nmcerrors.CodeOf(err); got != nmcerrors.FileBadFormat {
				t.Fatalf("expected FileBadFormat, got %v (%v)", got, err)
			}
		})
	}
}

func TestLoadLibConfigMissing(t *testing.T) {
	_, err := LoadLibConfig(filepath.Join(t.TempDir(), IniFileName))
	if got := nmcerrors.CodeOf(err); got != nmcerrors.FileNotFound {
		t.Fatalf("expected FileNotFound, got %v", got)
	}
}

func TestFindIni(t *testing.T) {
	dir := t.TempDir()
	p := writeIni(t, dir, sampleIni)

	if got, err := FindIni(p); err != nil || got != p {
		t.Errorf("explicit file: %q, %v", got, err)
	}
	if got, err := FindIni(dir); err != nil || got != p {
		t.Errorf("explicit dir: %q, %v", got, err)
	}

	t.Setenv(IniPathEnv, dir)
	if got, err := FindIni(""); err != nil || got != p {
		t.Errorf("env dir: %q, %v", got, err)
	}

	if _, err := FindIni(filepath.Join(dir, "missing")); nmcerrors.CodeOf(err) != nmcerrors.FileNotFound {
		t.Errorf("expected FileNotFound, got %v", err)
	}
}

func TestDefaultLibConfig(t *testing.T) {
	lc := DefaultLibConfig()
	if len(lc.Axes) != 4 || len(lc.Groups) != 1 || len(lc.Groups[0].Axes) != 3 {
		t.Fatalf("unexpected default %+v", lc)
	}
}
