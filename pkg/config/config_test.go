package config

import (
	"os"
	"path/filepath"
	"testing"

	nmcerrors "nexmotion-go/pkg/errors"
)

func TestLoadString(t *testing.T) {
	data := `
; library settings
[device]
type = simulator
cycle_time_us: 500   # colon works too

[axis 0]
description = X
vm = 250.5
`
	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	if !cfg.HasSection("device") || !cfg.HasSection("axis 0") {
		t.Fatalf("expected device and axis sections, got %v", cfg.GetSectionNames())
	}
	if cfg.HasSection("nonexistent") {
		t.Error("expected [nonexistent] section to not exist")
	}

	dev, err := cfg.GetSection("device")
	if err != nil {
		t.Fatalf("GetSection(device) failed: %v", err)
	}
	if v, _ := dev.Get("type"); v != "simulator" {
		t.Errorf("expected 'simulator', got %q", v)
	}
	if v, _ := dev.GetInt("cycle_time_us"); v != 500 {
		t.Errorf("expected 500, got %d", v)
	}

	ax, _ := cfg.GetSection("axis 0")
	if v, _ := ax.GetFloat("VM"); v != 250.5 {
		t.Errorf("expected case-insensitive lookup 250.5, got %v", v)
	}
}

func TestBadFormat(t *testing.T) {
	tests := []string{
		"[device\ntype = simulator",
		"[]\n",
		"[device]\njust a line\n",
		"[device]\n= 3\n",
	}
	for _, data := range tests {
		_, err := LoadString(data)
		if err == nil {
			t.Errorf("expected error for %q", data)
			continue
		}
		ce, ok := err.(*ConfigError)
		if !ok || ce.Code != nmcerrors.FileBadFormat {
			t.Errorf("expected FileBadFormat for %q, got %v", data, err)
		}
	}
}

func TestSectionGetters(t *testing.T) {
	cfg, err := LoadString(`
[s]
i = 0x10
f = 1.5
b = yes
list = 1, 2 ,3
flist = 1.5, -2
choice = EtherCAT
bad = abc
`)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := cfg.GetSection("s")

	if v, err := s.GetInt("i"); err != nil || v != 16 {
		t.Errorf("GetInt hex = %d, %v", v, err)
	}
	if v, err := s.GetBool("b"); err != nil || !v {
		t.Errorf("GetBool = %v, %v", v, err)
	}
	if v, err := s.GetIntList("list"); err != nil || len(v) != 3 || v[2] != 3 {
		t.Errorf("GetIntList = %v, %v", v, err)
	}
	if v, err := s.GetFloatList("flist"); err != nil || len(v) != 2 || v[1] != -2 {
		t.Errorf("GetFloatList = %v, %v", v, err)
	}
	if v, err := s.GetChoice("choice", []string{"simulator", "ethercat"}); err != nil || v != "ethercat" {
		t.Errorf("GetChoice = %q, %v", v, err)
	}
	if _, err := s.GetInt("bad"); err == nil {
		t.Error("expected invalid integer error")
	}
	if v, err := s.GetFloat("missing", 7); err != nil || v != 7 {
		t.Errorf("fallback = %v, %v", v, err)
	}
	if _, err := s.GetFloat("missing"); err == nil {
		t.Error("expected missing option error")
	}
}

func TestBoundsChecking(t *testing.T) {
	cfg, _ := LoadString("[s]\nzero = 0\nbig = 99\n")
	s, _ := cfg.GetSection("s")

	if _, err := s.GetFloatWithBounds("zero", Positive); err == nil {
		t.Error("expected zero to be rejected by Positive")
	}
	if _, err := s.GetIntWithBounds("big", 0, 10); err == nil {
		t.Error("expected 99 to exceed the maximum")
	}
	if v, err := s.GetIntWithBounds("big", 0, 100); err != nil || v != 99 {
		t.Errorf("GetIntWithBounds = %d, %v", v, err)
	}
}

func TestAccessTracking(t *testing.T) {
	cfg, _ := LoadString("[a]\nx = 1\ny = 2\n[b]\nz = 3\n")
	a, _ := cfg.GetSection("a")
	a.GetInt("x")

	if got := cfg.GetUnusedSections(); len(got) != 1 || got[0] != "b" {
		t.Errorf("unused sections = %v", got)
	}
	if got := cfg.UnusedOptions(); len(got) != 1 || got[0] != "[a] y" {
		t.Errorf("unused options = %v", got)
	}
}

func TestIncludeAndMerge(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "axes.ini"), []byte("[axis 0]\nvm = 5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "main.ini")
	if err := os.WriteFile(main, []byte("[include axes.ini]\n[axis 0]\nacc = 50\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	ax, _ := cfg.GetSection("axis 0")
	if v, _ := ax.GetFloat("vm"); v != 5 {
		t.Errorf("included vm = %v", v)
	}
	if v, _ := ax.GetFloat("acc"); v != 50 {
		t.Errorf("merged acc = %v", v)
	}

	other, _ := LoadString("[axis 0]\nvm = 9\n[device]\ntype = 1\n")
	cfg.Merge(other)
	ax, _ = cfg.GetSection("axis 0")
	if v, _ := ax.GetFloat("vm"); v != 9 {
		t.Errorf("Merge did not override vm: %v", v)
	}
	if !cfg.HasSection("device") {
		t.Error("Merge did not add [device]")
	}
}

func TestRecursiveInclude(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "self.ini")
	os.WriteFile(p, []byte("[include self.ini]\n"), 0644)
	if _, err := Load(p); err == nil {
		t.Fatal("expected recursive include error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.ini"))
	ce, ok := err.(*ConfigError)
	if !ok || ce.Code != nmcerrors.FileNotFound {
		t.Fatalf("expected FileNotFound, got %v", err)
	}
}
