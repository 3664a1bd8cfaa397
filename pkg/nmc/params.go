package nmc

import (
	"nexmotion-go/pkg/group"
	"nexmotion-go/pkg/params"
)

// Parameters can be read and written once the device is configured,
// in operation or not.

func (d *Device) axisParam(i int, fn func(t *params.Table) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.configured(); err != nil {
		return err
	}
	a, err := d.axisLocked(i)
	if err != nil {
		return err
	}
	return fn(a.Params())
}

func (d *Device) groupParam(g int, fn func(gr *group.Group) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.configured(); err != nil {
		return err
	}
	gr, err := d.groupLocked(g)
	if err != nil {
		return err
	}
	err = fn(gr)
	d.publish()
	return err
}

func (d *Device) groupAxisParam(g, member int, fn func(t *params.Table) error) error {
	return d.groupParam(g, func(gr *group.Group) error {
		t, err := gr.AxisParams(member)
		if err != nil {
			return err
		}
		return fn(t)
	})
}

// DeviceSetParam writes a device parameter
func (d *Device) DeviceSetParam(num, sub, value int32) (err error) {
	defer d.traced("DeviceSetParam", d.begin(), &err)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params.SetI32(num, sub, value)
}

// DeviceGetParam reads a device parameter
func (d *Device) DeviceGetParam(num, sub int32) (value int32, err error) {
	defer d.traced("DeviceGetParam", d.begin(), &err)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params.GetI32(num, sub)
}

// AxisSetParamI32 writes an axis parameter
func (d *Device) AxisSetParamI32(i int, num, sub, value int32) (err error) {
	defer d.traced("AxisSetParamI32", d.begin(), &err)
	return d.axisParam(i, func(t *params.Table) error { return t.SetI32(num, sub, value) })
}

// AxisGetParamI32 reads an axis parameter
func (d *Device) AxisGetParamI32(i int, num, sub int32) (value int32, err error) {
	defer d.traced("AxisGetParamI32", d.begin(), &err)
	err = d.axisParam(i, func(t *params.Table) (err error) {
		value, err = t.GetI32(num, sub)
		return err
	})
	return value, err
}

// AxisSetParamF64 writes an axis parameter
func (d *Device) AxisSetParamF64(i int, num, sub int32, value float64) (err error) {
	defer d.traced("AxisSetParamF64", d.begin(), &err)
	return d.axisParam(i, func(t *params.Table) error { return t.SetF64(num, sub, value) })
}

// AxisGetParamF64 reads an axis parameter
func (d *Device) AxisGetParamF64(i int, num, sub int32) (value float64, err error) {
	defer d.traced("AxisGetParamF64", d.begin(), &err)
	err = d.axisParam(i, func(t *params.Table) (err error) {
		value, err = t.GetF64(num, sub)
		return err
	})
	return value, err
}

// GroupSetParamI32 writes a group parameter
func (d *Device) GroupSetParamI32(g int, num, sub, value int32) (err error) {
	defer d.traced("GroupSetParamI32", d.begin(), &err)
	return d.groupParam(g, func(gr *group.Group) error { return gr.Params().SetI32(num, sub, value) })
}

// GroupGetParamI32 reads a group parameter
func (d *Device) GroupGetParamI32(g int, num, sub int32) (value int32, err error) {
	defer d.traced("GroupGetParamI32", d.begin(), &err)
	err = d.groupParam(g, func(gr *group.Group) (err error) {
		value, err = gr.Params().GetI32(num, sub)
		return err
	})
	return value, err
}

// GroupSetParamF64 writes a group parameter
func (d *Device) GroupSetParamF64(g int, num, sub int32, value float64) (err error) {
	defer d.traced("GroupSetParamF64", d.begin(), &err)
	return d.groupParam(g, func(gr *group.Group) error { return gr.Params().SetF64(num, sub, value) })
}

// GroupGetParamF64 reads a group parameter
func (d *Device) GroupGetParamF64(g int, num, sub int32) (value float64, err error) {
	defer d.traced("GroupGetParamF64", d.begin(), &err)
	err = d.groupParam(g, func(gr *group.Group) (err error) {
		value, err = gr.Params().GetF64(num, sub)
		return err
	})
	return value, err
}

// GroupAxisSetParamI32 writes a per-member group parameter
func (d *Device) GroupAxisSetParamI32(g, member int, num, sub, value int32) (err error) {
	defer d.traced("GroupAxisSetParamI32", d.begin(), &err)
	return d.groupAxisParam(g, member, func(t *params.Table) error { return t.SetI32(num, sub, value) })
}

// GroupAxisGetParamI32 reads a per-member group parameter
func (d *Device) GroupAxisGetParamI32(g, member int, num, sub int32) (value int32, err error) {
	defer d.traced("GroupAxisGetParamI32", d.begin(), &err)
	err = d.groupAxisParam(g, member, func(t *params.Table) (err error) {
		value, err = t.GetI32(num, sub)
		return err
	})
	return value, err
}

// GroupAxisSetParamF64 writes a per-member group parameter
func (d *Device) GroupAxisSetParamF64(g, member int, num, sub int32, value float64) (err error) {
	defer d.traced("GroupAxisSetParamF64", d.begin(), &err)
	return d.groupAxisParam(g, member, func(t *params.Table) error { return t.SetF64(num, sub, value) })
}

// GroupAxisGetParamF64 reads a per-member group parameter
func (d *Device) GroupAxisGetParamF64(g, member int, num, sub int32) (value float64, err error) {
	defer d.traced("GroupAxisGetParamF64", d.begin(), &err)
	err = d.groupAxisParam(g, member, func(t *params.Table) (err error) {
		value, err = t.GetF64(num, sub)
		return err
	})
	return value, err
}
