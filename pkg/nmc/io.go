package nmc

import (
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/iomem"
)

// I/O access goes straight to the regions, which lock per call

func (d *Device) io() (*iomem.Image, error) {
	img := d.image.Load()
	if img == nil {
		return nil, errors.Newf(errors.SystemNotInitialization, "device %d has no I/O image", d.id)
	}
	return img, nil
}

func (d *Device) input() (*iomem.Region, error) {
	img, err := d.io()
	if err != nil {
		return nil, err
	}
	return img.In, nil
}

func (d *Device) output() (*iomem.Region, error) {
	img, err := d.io()
	if err != nil {
		return nil, err
	}
	return img.Out, nil
}

// GetInputMemorySize returns the input image size in bytes
func (d *Device) GetInputMemorySize() (n int, err error) {
	defer d.traced("GetInputMemorySize", d.begin(), &err)
	r, err := d.input()
	if err != nil {
		return 0, err
	}
	return r.Size(), nil
}

// GetOutputMemorySize returns the output image size in bytes
func (d *Device) GetOutputMemorySize() (n int, err error) {
	defer d.traced("GetOutputMemorySize", d.begin(), &err)
	r, err := d.output()
	if err != nil {
		return 0, err
	}
	return r.Size(), nil
}

// ReadInputMemory copies len(dst) input bytes from offset
func (d *Device) ReadInputMemory(offset int, dst []byte) (err error) {
	defer d.traced("ReadInputMemory", d.begin(), &err)
	r, err := d.input()
	if err != nil {
		return err
	}
	return r.Read(offset, dst)
}

// ReadOutputMemory copies len(dst) output bytes from offset
func (d *Device) ReadOutputMemory(offset int, dst []byte) (err error) {
	defer d.traced("ReadOutputMemory", d.begin(), &err)
	r, err := d.output()
	if err != nil {
		return err
	}
	return r.Read(offset, dst)
}

// WriteOutputMemory writes src to the outputs at offset
func (d *Device) WriteOutputMemory(offset int, src []byte) (err error) {
	defer d.traced("WriteOutputMemory", d.begin(), &err)
	r, err := d.output()
	if err != nil {
		return err
	}
	return r.Write(offset, src)
}

func (d *Device) ReadInputBit(offset, bit int) (on bool, err error) {
	defer d.traced("ReadInputBit", d.begin(), &err)
	r, err := d.input()
	if err != nil {
		return false, err
	}
	return r.ReadBit(offset, bit)
}

func (d *Device) ReadInputI8(offset int) (v int8, err error) {
	defer d.traced("ReadInputI8", d.begin(), &err)
	r, err := d.input()
	if err != nil {
		return 0, err
	}
	return r.ReadI8(offset)
}

func (d *Device) ReadInputI16(offset int) (v int16, err error) {
	defer d.traced("ReadInputI16", d.begin(), &err)
	r, err := d.input()
	if err != nil {
		return 0, err
	}
	return r.ReadI16(offset)
}

func (d *Device) ReadInputI32(offset int) (v int32, err error) {
	defer d.traced("ReadInputI32", d.begin(), &err)
	r, err := d.input()
	if err != nil {
		return 0, err
	}
	return r.ReadI32(offset)
}

func (d *Device) ReadOutputBit(offset, bit int) (on bool, err error) {
	defer d.traced("ReadOutputBit", d.begin(), &err)
	r, err := d.output()
	if err != nil {
		return false, err
	}
	return r.ReadBit(offset, bit)
}

func (d *Device) ReadOutputI8(offset int) (v int8, err error) {
	defer d.traced("ReadOutputI8", d.begin(), &err)
	r, err := d.output()
	if err != nil {
		return 0, err
	}
	return r.ReadI8(offset)
}

func (d *Device) ReadOutputI16(offset int) (v int16, err error) {
	defer d.traced("ReadOutputI16", d.begin(), &err)
	r, err := d.output()
	if err != nil {
		return 0, err
	}
	return r.ReadI16(offset)
}

func (d *Device) ReadOutputI32(offset int) (v int32, err error) {
	defer d.traced("ReadOutputI32", d.begin(), &err)
	r, err := d.output()
	if err != nil {
		return 0, err
	}
	return r.ReadI32(offset)
}

func (d *Device) WriteOutputBit(offset, bit int, on bool) (err error) {
	defer d.traced("WriteOutputBit", d.begin(), &err)
	r, err := d.output()
	if err != nil {
		return err
	}
	return r.WriteBit(offset, bit, on)
}

func (d *Device) WriteOutputI8(offset int, v int8) (err error) {
	defer d.traced("WriteOutputI8", d.begin(), &err)
	r, err := d.output()
	if err != nil {
		return err
	}
	return r.WriteI8(offset, v)
}

func (d *Device) WriteOutputI16(offset int, v int16) (err error) {
	defer d.traced("WriteOutputI16", d.begin(), &err)
	r, err := d.output()
	if err != nil {
		return err
	}
	return r.WriteI16(offset, v)
}

func (d *Device) WriteOutputI32(offset int, v int32) (err error) {
	defer d.traced("WriteOutputI32", d.begin(), &err)
	r, err := d.output()
	if err != nil {
		return err
	}
	return r.WriteI32(offset, v)
}
