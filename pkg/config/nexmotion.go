// NexMotion library configuration
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	nmcerrors "nexmotion-go/pkg/errors"
)

// IniFileName is the library configuration file looked up by FindIni.
const IniFileName = "NexMotionLibConfig.ini"

// IniPathEnv overrides the search directory when no explicit path is set.
const IniPathEnv = "NMC_INI_PATH"

// Device types
const (
	DevTypeSimulator = 0
	DevTypeEtherCAT  = 1
)

// DeviceConfig is the [device] section.
type DeviceConfig struct {
	Type             int
	Index            int
	Description      string
	CycleTimeUs      int
	InputSize        int
	OutputSize       int
	IOLoopback       bool
	CPUAffinity      int // -1 leaves the cycle thread unpinned
	MotionBufferSize int
	MsgOutputLevel   int
}

// AxisConfig is one [axis N] section.
type AxisConfig struct {
	Index       int
	Description string
	VM          float64
	Acc         float64
	Dec         float64
	StopDec     float64
	HomeVel     float64
	HomePos     float64
	ProfType    int

	SwLimitEnable bool
	SwLimitPos    float64
	SwLimitNeg    float64

	// Simulator fault injection: a non-zero drive alarm raised on enable.
	DriveAlarm int32
}

// GroupConfig is one [group N] section.
type GroupConfig struct {
	Index       int
	Description string
	Kinematics  string
	Axes        []int
	KinParams   map[string]float64
	VM          float64
	Acc         float64
	Dec         float64
	StopDec     float64
	ProfType    int

	// Tools and Bases are sparse frame tables keyed by index, each a
	// pose x, y, z, roll, pitch, yaw.
	Tools map[int][6]float64
	Bases map[int][6]float64
}

// LibConfig is the typed content of NexMotionLibConfig.ini.
type LibConfig struct {
	Path   string
	Unused []string // options present in the file but never read
	Device DeviceConfig
	Axes   []AxisConfig
	Groups []GroupConfig
}

// DefaultDevice returns the device settings used for missing options.
func DefaultDevice() DeviceConfig {
	return DeviceConfig{
		Type:             DevTypeSimulator,
		CycleTimeUs:      1000,
		InputSize:        64,
		OutputSize:       64,
		CPUAffinity:      -1,
		MotionBufferSize: 32,
	}
}

// DefaultAxis returns the axis settings used for missing options.
func DefaultAxis(index int) AxisConfig {
	return AxisConfig{
		Index:       index,
		Description: "Axis" + strconv.Itoa(index),
		VM:          100,
		Acc:         1000,
		Dec:         1000,
		StopDec:     10000,
		HomeVel:     10,
		SwLimitPos:  1e9,
		SwLimitNeg:  -1e9,
	}
}

// DefaultLibConfig describes the simulator used when no file is found:
// four axes and one cartesian group over the first three.
func DefaultLibConfig() *LibConfig {
	lc := &LibConfig{Device: DefaultDevice()}
	for i := 0; i < 4; i++ {
		lc.Axes = append(lc.Axes, DefaultAxis(i))
	}
	lc.Groups = []GroupConfig{{
		Index:       0,
		Description: "Group0",
		Kinematics:  "cartesian",
		Axes:        []int{0, 1, 2},
		KinParams:   map[string]float64{},
		VM:          100,
		Acc:         1000,
		Dec:         1000,
		StopDec:     10000,
		Tools:       map[int][6]float64{},
		Bases:       map[int][6]float64{},
	}}
	return lc
}

// FindIni resolves the library configuration path. explicit may name a
// file or a directory. Without it the search order is NMC_INI_PATH, the
// executable directory, /etc/nexmotion and the working directory.
func FindIni(explicit string) (string, error) {
	var dirs []string
	if explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", ErrFileNotFound(explicit, err).AsError()
		}
		if !info.IsDir() {
			return explicit, nil
		}
		dirs = append(dirs, explicit)
	} else {
		if env := os.Getenv(IniPathEnv); env != "" {
			dirs = append(dirs, env)
		}
		if exe, err := os.Executable(); err == nil {
			dirs = append(dirs, filepath.Dir(exe))
		}
		dirs = append(dirs, "/etc/nexmotion")
		if wd, err := os.Getwd(); err == nil {
			dirs = append(dirs, wd)
		}
	}
	for _, d := range dirs {
		p := filepath.Join(d, IniFileName)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", ErrFileNotFound(IniFileName, nil).AsError()
}

// LoadLibConfig parses a library configuration file.
func LoadLibConfig(path string) (*LibConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, toCoded(err)
	}
	lc, err := ParseLibConfig(cfg)
	if err != nil {
		return nil, toCoded(err)
	}
	lc.Path = path
	lc.Unused = cfg.UnusedOptions()
	return lc, nil
}

func toCoded(err error) error {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.AsError()
	}
	return nmcerrors.Wrap(err, nmcerrors.FileLoadFailed, "configuration")
}

// ParseLibConfig maps a parsed config onto typed settings.
func ParseLibConfig(cfg *Config) (*LibConfig, error) {
	lc := &LibConfig{Device: DefaultDevice()}
	if sec := cfg.GetSectionOptional("device"); sec != nil {
		dev, err := parseDevice(sec)
		if err != nil {
			return nil, err
		}
		lc.Device = dev
	}

	axes, err := indexedSections(cfg, "axis")
	if err != nil {
		return nil, err
	}
	for _, idx := range sortedKeys(axes) {
		if idx != len(lc.Axes) {
			return nil, NewConfigError("axis "+strconv.Itoa(idx), "", "axis indexes must be contiguous from 0")
		}
		ac, err := parseAxis(idx, axes[idx])
		if err != nil {
			return nil, err
		}
		lc.Axes = append(lc.Axes, ac)
	}

	groups, err := indexedSections(cfg, "group")
	if err != nil {
		return nil, err
	}
	owner := make(map[int]int)
	for _, idx := range sortedKeys(groups) {
		if idx != len(lc.Groups) {
			return nil, NewConfigError("group "+strconv.Itoa(idx), "", "group indexes must be contiguous from 0")
		}
		gc, err := parseGroup(idx, groups[idx], len(lc.Axes))
		if err != nil {
			return nil, err
		}
		for _, a := range gc.Axes {
			if g, ok := owner[a]; ok {
				return nil, NewConfigError("group "+strconv.Itoa(idx), "axes",
					"axis "+strconv.Itoa(a)+" already belongs to group "+strconv.Itoa(g))
			}
			owner[a] = idx
		}
		lc.Groups = append(lc.Groups, gc)
	}
	return lc, nil
}

// indexedSections collects "[prefix N]" sections keyed by N.
func indexedSections(cfg *Config, prefix string) (map[int]*Section, error) {
	out := make(map[int]*Section)
	for _, sec := range cfg.GetPrefixSections(prefix + " ") {
		rest := strings.TrimSpace(strings.TrimPrefix(sec.GetName(), prefix))
		idx, err := strconv.Atoi(rest)
		if err != nil || idx < 0 {
			return nil, NewConfigError(sec.GetName(), "", "invalid "+prefix+" index")
		}
		out[idx] = sec
	}
	return out, nil
}

func sortedKeys(m map[int]*Section) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func parseDevice(sec *Section) (DeviceConfig, error) {
	d := DefaultDevice()
	typ, err := sec.GetChoice("type", []string{"simulator", "ethercat", "0", "1"}, "simulator")
	if err != nil {
		return d, err
	}
	if typ == "ethercat" || typ == "1" {
		d.Type = DevTypeEtherCAT
	}
	if d.Index, err = sec.GetIntWithBounds("index", 0, 15, 0); err != nil {
		return d, err
	}
	if d.Description, err = sec.Get("description", ""); err != nil {
		return d, err
	}
	if d.CycleTimeUs, err = sec.GetIntWithBounds("cycle_time_us", 100, 100000, d.CycleTimeUs); err != nil {
		return d, err
	}
	if d.InputSize, err = sec.GetIntWithBounds("input_size", 0, 65536, d.InputSize); err != nil {
		return d, err
	}
	if d.OutputSize, err = sec.GetIntWithBounds("output_size", 0, 65536, d.OutputSize); err != nil {
		return d, err
	}
	if d.IOLoopback, err = sec.GetBool("io_loopback", false); err != nil {
		return d, err
	}
	if d.CPUAffinity, err = sec.GetIntWithBounds("cpu_affinity", -1, 1023, -1); err != nil {
		return d, err
	}
	if d.MotionBufferSize, err = sec.GetIntWithBounds("motion_buffer_size", 1, 4096, d.MotionBufferSize); err != nil {
		return d, err
	}
	if d.MsgOutputLevel, err = sec.GetIntWithBounds("msg_output_level", 0, 3, 0); err != nil {
		return d, err
	}
	return d, nil
}

func parseAxis(idx int, sec *Section) (AxisConfig, error) {
	a := DefaultAxis(idx)
	var err error
	if a.Description, err = sec.Get("description", a.Description); err != nil {
		return a, err
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"vm", &a.VM},
		{"acc", &a.Acc},
		{"dec", &a.Dec},
		{"stop_dec", &a.StopDec},
		{"home_vel", &a.HomeVel},
	} {
		if *f.dst, err = sec.GetFloatWithBounds(f.name, Positive, *f.dst); err != nil {
			return a, err
		}
	}
	if a.HomePos, err = sec.GetFloat("home_pos", 0); err != nil {
		return a, err
	}
	if a.ProfType, err = sec.GetIntWithBounds("prof_type", 0, 1, 0); err != nil {
		return a, err
	}
	if a.SwLimitEnable, err = sec.GetBool("sw_limit_enable", false); err != nil {
		return a, err
	}
	if a.SwLimitPos, err = sec.GetFloat("sw_limit_pos", a.SwLimitPos); err != nil {
		return a, err
	}
	if a.SwLimitNeg, err = sec.GetFloat("sw_limit_neg", a.SwLimitNeg); err != nil {
		return a, err
	}
	if a.SwLimitEnable && a.SwLimitNeg >= a.SwLimitPos {
		return a, NewConfigError(sec.GetName(), "sw_limit_neg", "must be below sw_limit_pos")
	}
	alarm, err := sec.GetInt("drive_alarm", 0)
	if err != nil {
		return a, err
	}
	a.DriveAlarm = int32(alarm)
	return a, nil
}

func parseGroup(idx int, sec *Section, axisCount int) (GroupConfig, error) {
	g := GroupConfig{
		Index:     idx,
		KinParams: make(map[string]float64),
		Tools:     make(map[int][6]float64),
		Bases:     make(map[int][6]float64),
	}
	var err error
	if g.Description, err = sec.Get("description", "Group"+strconv.Itoa(idx)); err != nil {
		return g, err
	}
	if g.Kinematics, err = sec.Get("kinematics", "cartesian"); err != nil {
		return g, err
	}
	if g.Axes, err = sec.GetIntList("axes"); err != nil {
		return g, err
	}
	if len(g.Axes) == 0 || len(g.Axes) > 8 {
		return g, NewConfigError(sec.GetName(), "axes", "a group has 1 to 8 axes")
	}
	seen := make(map[int]bool)
	for _, a := range g.Axes {
		if a < 0 || a >= axisCount || seen[a] {
			return g, NewConfigError(sec.GetName(), "axes", "invalid axis mapping "+strconv.Itoa(a))
		}
		seen[a] = true
	}
	for _, f := range []struct {
		name string
		dst  *float64
		def  float64
	}{
		{"vm", &g.VM, 100},
		{"acc", &g.Acc, 1000},
		{"dec", &g.Dec, 1000},
		{"stop_dec", &g.StopDec, 10000},
	} {
		if *f.dst, err = sec.GetFloatWithBounds(f.name, Positive, f.def); err != nil {
			return g, err
		}
	}
	if g.ProfType, err = sec.GetIntWithBounds("prof_type", 0, 1, 0); err != nil {
		return g, err
	}
	for _, opt := range sec.GetPrefixOptions("kin_") {
		v, err := sec.GetFloat(opt)
		if err != nil {
			return g, err
		}
		g.KinParams[strings.TrimPrefix(opt, "kin_")] = v
	}
	if err := parseFrames(sec, "tool_", g.Tools); err != nil {
		return g, err
	}
	if err := parseFrames(sec, "base_", g.Bases); err != nil {
		return g, err
	}
	return g, nil
}

// parseFrames reads "tool_N = x, y, z, a, b, c" style options.
func parseFrames(sec *Section, prefix string, dst map[int][6]float64) error {
	for _, opt := range sec.GetPrefixOptions(prefix) {
		idx, err := strconv.Atoi(strings.TrimPrefix(opt, prefix))
		if err != nil || idx < 0 || idx >= 16 {
			return NewConfigError(sec.GetName(), opt, "frame index must be 0..15")
		}
		vals, err := sec.GetFloatList(opt)
		if err != nil {
			return err
		}
		if len(vals) != 6 {
			return NewConfigError(sec.GetName(), opt, "a frame has 6 components")
		}
		var pose [6]float64
		copy(pose[:], vals)
		dst[idx] = pose
	}
	return nil
}
