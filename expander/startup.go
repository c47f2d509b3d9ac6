// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// attach configures the pin on the device and reports its initial value
// before returning. The whole sequence runs under one transaction lock hold
// so no poll tick can observe a half configured pin.
func (d *Dev) attach(r *Registry, cfg *PinConfig) (*Pin, error) {
	if cfg.Pin < 0 || cfg.Pin >= d.v.pins {
		return nil, errors.Wrapf(ErrInvalidPin, "%d on %s", cfg.Pin, d)
	}
	if cfg.PullUp && d.regs[RegPullUp] == nil {
		return nil, errors.Wrapf(ErrPullUpNotSupported, "%s", d.variant)
	}
	if !d.enter() {
		return nil, ErrDetached
	}
	defer d.leave()

	p := newPin(d, r, cfg)
	p.mu.Lock()
	p.attached = true
	p.mu.Unlock()

	err := d.co.transact(func() error {
		if d.pins[p.number] != nil {
			return errors.Wrapf(ErrPinInUse, "%s", p.name)
		}
		var err error
		if p.dir == Output {
			err = d.syncOutput(p, cfg.Initial)
		} else {
			err = d.syncInput(p)
		}
		if err != nil {
			d.poll.forget(p.number)
			return err
		}
		d.pins[p.number] = p
		return nil
	})
	if err != nil {
		p.mu.Lock()
		p.attached = false
		p.closed = true
		p.mu.Unlock()
		return nil, err
	}

	if gpioreg.Register(p) == nil {
		p.registered = true
	}
	d.log.WithField("pin", p.number).Infof("%s pin %q attached", p.dir, p.label)
	return p, nil
}

// syncOutput makes p an output. Without a fixed initial value the reported
// value is the current latch bit, read before anything is written. With one,
// the latch is written before the direction so the line never shows another
// level.
func (d *Dev) syncOutput(p *Pin, initial *bool) error {
	var level bool
	if initial != nil {
		level = *initial != p.invert.Load()
		var bits uint8
		if level {
			bits = p.mask
		}
		if err := d.co.applyLocked(RegLatch, p.port, p.mask, bits, nil); err != nil {
			return err
		}
	} else {
		v, err := d.regs[RegLatch].readPort(p.port, true)
		if err != nil {
			return err
		}
		level = v&p.mask != 0
	}
	if err := d.co.applyLocked(RegDirection, p.port, p.mask, 0, nil); err != nil {
		return err
	}
	v := level != p.invert.Load()
	p.value.Store(v)
	d.publish(p, v, true)
	return nil
}

// syncInput makes p an input and seeds the poller with its current level.
// Inversion is done in software so the polarity bit is cleared.
func (d *Dev) syncInput(p *Pin) error {
	if err := d.co.applyLocked(RegDirection, p.port, p.mask, p.mask, nil); err != nil {
		return err
	}
	if d.regs[RegPullUp] != nil {
		var bits uint8
		if p.pullUp.Load() {
			bits = p.mask
		}
		if err := d.co.applyLocked(RegPullUp, p.port, p.mask, bits, nil); err != nil {
			return err
		}
	}
	if err := d.co.applyLocked(RegPolarity, p.port, p.mask, 0, nil); err != nil {
		return err
	}
	in, err := d.regs[RegInput].readPort(p.port, false)
	if err != nil {
		return err
	}
	level := in&p.mask != 0
	d.poll.seed(p.number, level)
	v := level != p.invert.Load()
	p.value.Store(v)
	d.publish(p, v, true)
	return nil
}
