// Typed parameter tables for devices, axes, groups and group axes
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package params

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"nexmotion-go/pkg/errors"
)

// Kind is the storage type of a parameter
type Kind int

const (
	I32 Kind = iota
	F64
)

func (k Kind) String() string {
	if k == I32 {
		return "i32"
	}
	return "f64"
}

// Key addresses one parameter slot
type Key struct {
	Num int32
	Sub int32
}

// Def declares a parameter
type Def struct {
	Num      int32
	Name     string
	Kind     Kind
	Subs     int32 // number of sub-indexes, 1 when scalar
	Default  float64
	Min, Max float64
	ReadOnly bool
}

func (d Def) check(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.InvalidValue("%s: value %v not finite", d.Name, v)
	}
	if d.Kind == I32 && v != math.Trunc(v) {
		return errors.InvalidValue("%s: %v is not an integer", d.Name, v)
	}
	if v < d.Min || v > d.Max {
		return errors.InvalidValue("%s: %v outside [%v, %v]", d.Name, v, d.Min, d.Max)
	}
	return nil
}

// Table holds the parameter values of one object. Values are stored as
// float64 and narrowed on I32 reads.
type Table struct {
	mu     sync.RWMutex
	defs   map[int32]Def
	values map[Key]float64
	notify func(Key, float64)
}

// NewTable builds a table with every slot at its default
func NewTable(defs []Def) *Table {
	t := &Table{
		defs:   make(map[int32]Def, len(defs)),
		values: make(map[Key]float64),
	}
	for _, d := range defs {
		if d.Subs <= 0 {
			d.Subs = 1
		}
		t.defs[d.Num] = d
		for s := int32(0); s < d.Subs; s++ {
			t.values[Key{d.Num, s}] = d.Default
		}
	}
	return t
}

// OnChange registers a callback run after every successful write
func (t *Table) OnChange(fn func(Key, float64)) {
	t.mu.Lock()
	t.notify = fn
	t.mu.Unlock()
}

func (t *Table) lookup(num, sub int32) (Def, error) {
	d, ok := t.defs[num]
	if !ok {
		return d, errors.Newf(errors.ParameterNumberInvalid, "parameter 0x%X not defined", num)
	}
	if sub < 0 || sub >= d.Subs {
		return d, errors.InvalidValue("%s: sub-index %d out of range", d.Name, sub)
	}
	return d, nil
}

// Def returns the definition of a parameter number
func (t *Table) Def(num int32) (Def, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.defs[num]
	return d, ok
}

// GetF64 reads a parameter as float64
func (t *Table) GetF64(num, sub int32) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, err := t.lookup(num, sub); err != nil {
		return 0, err
	}
	return t.values[Key{num, sub}], nil
}

// GetI32 reads a parameter as int32, rounding F64 values
func (t *Table) GetI32(num, sub int32) (int32, error) {
	v, err := t.GetF64(num, sub)
	if err != nil {
		return 0, err
	}
	r := math.Round(v)
	if r > math.MaxInt32 || r < math.MinInt32 {
		return 0, errors.InvalidValue("parameter 0x%X: %v does not fit in i32", num, v)
	}
	return int32(r), nil
}

// SetF64 writes a parameter from a float64
func (t *Table) SetF64(num, sub int32, v float64) error {
	return t.set(num, sub, v, false)
}

// SetI32 writes a parameter from an int32
func (t *Table) SetI32(num, sub int32, v int32) error {
	return t.set(num, sub, float64(v), false)
}

// Force writes a parameter even when it is read-only. The owner uses it to
// publish derived values.
func (t *Table) Force(num, sub int32, v float64) error {
	return t.set(num, sub, v, true)
}

// Check validates a write without applying it
func (t *Table) Check(num, sub int32, v float64) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, err := t.lookup(num, sub)
	if err != nil {
		return err
	}
	if d.ReadOnly {
		return errors.Newf(errors.ParameterReadOnly, "%s is read only", d.Name)
	}
	return d.check(v)
}

func (t *Table) set(num, sub int32, v float64, force bool) error {
	t.mu.Lock()
	d, err := t.lookup(num, sub)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if d.ReadOnly && !force {
		t.mu.Unlock()
		return errors.Newf(errors.ParameterReadOnly, "%s is read only", d.Name)
	}
	if err := d.check(v); err != nil {
		t.mu.Unlock()
		return err
	}
	t.values[Key{num, sub}] = v
	fn := t.notify
	t.mu.Unlock()
	if fn != nil {
		fn(Key{num, sub}, v)
	}
	return nil
}

// F64 reads a scalar parameter, ignoring errors. For internal use with
// numbers the owner defined.
func (t *Table) F64(num int32) float64 {
	v, _ := t.GetF64(num, 0)
	return v
}

// I32 reads a scalar parameter, ignoring errors.
func (t *Table) I32(num int32) int32 {
	v, _ := t.GetI32(num, 0)
	return v
}

// Dump returns every slot keyed by "NAME[sub]"
func (t *Table) Dump() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.values))
	for k, v := range t.values {
		d := t.defs[k.Num]
		name := d.Name
		if d.Subs > 1 {
			name = fmt.Sprintf("%s[%d]", d.Name, k.Sub)
		}
		out[name] = v
	}
	return out
}

// Numbers lists the defined parameter numbers in ascending order
func (t *Table) Numbers() []int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nums := make([]int32, 0, len(t.defs))
	for n := range t.defs {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}
