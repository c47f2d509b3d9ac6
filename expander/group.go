// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"fmt"

	"github.com/pkg/errors"
)

// Group is a set of pins of one device written or read together. Bit n of
// the values passed to Out and returned by Read is the level of the n-th pin
// of the group.
type Group struct {
	dev         *Dev
	pins        []*Pin
	defaultMask uint16
}

// Group returns a Group made up of the specified pins, which must be
// attached to d.
func (d *Dev) Group(pins ...*Pin) (*Group, error) {
	if len(pins) == 0 || len(pins) > 16 {
		return nil, errors.Wrapf(ErrInvalidConfig, "group of %d pins", len(pins))
	}
	for _, p := range pins {
		if p == nil || p.dev != d {
			return nil, errors.Wrapf(ErrInvalidConfig, "pin not attached to %s", d)
		}
	}
	return &Group{dev: d, pins: pins, defaultMask: uint16(1<<len(pins) - 1)}, nil
}

// Pins returns the set of pins that make up the group.
func (g *Group) Pins() []*Pin {
	return append([]*Pin(nil), g.pins...)
}

// Out writes value to the pins selected by mask. If mask is 0, all pins of
// the group are written. Levels are physical. Pins sharing a port are
// written in a single transaction.
func (g *Group) Out(value, mask uint16) error {
	if mask == 0 {
		mask = g.defaultMask
	} else {
		mask &= g.defaultMask
	}
	value &= mask

	// Convert the write value which is relative to the pins to the
	// absolute value for each port.
	var wr, wrMask [2]uint8
	var touched [2][]*Pin
	for bit, p := range g.pins {
		if mask&(1<<bit) == 0 {
			continue
		}
		if p.dir != Output {
			return errors.Wrapf(ErrInvalidDirection, "%s is an input", p.name)
		}
		if p.isClosed() {
			return errors.Wrap(ErrDetached, p.name)
		}
		if value&(1<<bit) != 0 {
			wr[p.port] |= p.mask
		}
		wrMask[p.port] |= p.mask
		touched[p.port] = append(touched[p.port], p)
	}

	d := g.dev
	if !d.enter() {
		return ErrDetached
	}
	defer d.leave()
	for port := range wrMask {
		if wrMask[port] == 0 {
			continue
		}
		pins := touched[port]
		err := d.co.apply(RegLatch, port, wrMask[port], wr[port], func(v uint8) {
			for _, p := range pins {
				p.report(v&p.mask != 0)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Read returns the line levels of the pins selected by mask (0 for all) with
// a single read of the input register.
func (g *Group) Read(mask uint16) (uint16, error) {
	if mask == 0 {
		mask = g.defaultMask
	} else {
		mask &= g.defaultMask
	}
	for ix, p := range g.pins {
		if mask&(1<<ix) != 0 && p.isClosed() {
			return 0, errors.Wrap(ErrDetached, p.name)
		}
	}
	d := g.dev
	if !d.enter() {
		return 0, ErrDetached
	}
	defer d.leave()
	var in [2]uint8
	err := d.co.transact(func() error {
		var err error
		in, err = d.regs[RegInput].readValue(false)
		return err
	})
	if err != nil {
		return 0, err
	}
	var result uint16
	for ix, p := range g.pins {
		if mask&(1<<ix) != 0 && in[p.port]&p.mask != 0 {
			result |= 1 << ix
		}
	}
	return result, nil
}

// String returns the device name and the pin numbers of the group.
func (g *Group) String() string {
	s := fmt.Sprintf("%s - [ ", g.dev)
	for _, p := range g.pins {
		s += fmt.Sprintf("%d ", p.number)
	}
	s += "]"
	return s
}
