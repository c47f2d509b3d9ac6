// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
)

// DefaultPollInterval is the input sampling period used when none is given.
const DefaultPollInterval = 100 * time.Millisecond

// Opts holds the configuration options shared by the devices of a Registry.
type Opts struct {
	// PollInterval is the default input sampling period. Default is 100ms.
	PollInterval time.Duration
	// FailureThreshold is the number of consecutive failed polls after which
	// a device is reported unavailable. Default is 3.
	FailureThreshold int
	// MaxBackoff bounds the poll period of an unavailable device. Default is 5s.
	MaxBackoff time.Duration
	// Logger receives the driver's log. Default is logrus.StandardLogger().
	Logger logrus.FieldLogger
	// OnAvailability is called, in event order, when a device becomes
	// unavailable or recovers.
	OnAvailability func(AvailabilityEvent)
}

// DefaultOpts holds the default configuration options.
var DefaultOpts = Opts{
	PollInterval:     DefaultPollInterval,
	FailureThreshold: 3,
	MaxBackoff:       5 * time.Second,
}

// PinConfig describes a pin to attach.
type PinConfig struct {
	Address uint16
	Variant Variant
	// PollInterval of the device. Only used by the attach that creates the
	// device; 0 selects Opts.PollInterval.
	PollInterval time.Duration

	Pin       int // 0..7 or 0..15 depending on the variant
	Name      string
	Direction Direction
	// Invert makes the logical value the inverse of the line level.
	Invert bool
	// PullUp enables the internal pull-up of an input.
	PullUp bool
	// Initial, if set, is written to an output on attach instead of
	// reading the current latch.
	Initial *bool
	// Pulse turns an output into a momentary one: a true value is reset
	// to false after Pulse.
	Pulse time.Duration
	// OnChange receives every confirmed change, starting with the initial
	// value.
	OnChange func(ChangeEvent)
}

func (c *PinConfig) validate() error {
	if c.Direction == Input && (c.Initial != nil || c.Pulse != 0) {
		return errors.Wrap(ErrInvalidConfig, "initial value and pulse are for outputs only")
	}
	if c.Direction == Output && c.PullUp {
		return errors.Wrap(ErrInvalidConfig, "pull-up is for inputs only")
	}
	if c.Pulse < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative pulse")
	}
	return nil
}

type entry struct {
	dev     *Dev
	refs    int
	closing chan struct{}
}

// Registry owns the devices of one I²C bus. There is at most one Dev per
// address; it is created by the first Attach and destroyed by the last
// Detach.
type Registry struct {
	bus  i2c.Bus
	opts Opts

	mu      sync.Mutex
	devices map[uint16]*entry
	create  singleflight.Group
}

// NewRegistry returns a Registry for the devices on bus. The Opts can be nil.
func NewRegistry(bus i2c.Bus, opts *Opts) *Registry {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultOpts.FailureThreshold
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultOpts.MaxBackoff
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return &Registry{bus: bus, opts: o, devices: map[uint16]*entry{}}
}

// Attach links a pin to the shared device at cfg.Address, creating the device
// if needed, and reports the pin's initial value before returning.
func (r *Registry) Attach(cfg PinConfig) (*Pin, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	// A bad variant or address must not join the construction of a valid
	// device at the same address.
	if _, err := lookup(cfg.Variant, cfg.Address); err != nil {
		return nil, err
	}
	d, err := r.acquire(cfg.Address, cfg.Variant, cfg.PollInterval)
	if err != nil {
		return nil, err
	}
	p, err := d.attach(r, &cfg)
	if err != nil {
		r.release(d)
		return nil, err
	}
	return p, nil
}

// Detach unlinks the pin. No callback is dispatched for it once Detach
// returns. Detach does not wait for a callback that was already dispatched,
// so it can be called from the pin's own callback. The device is torn down
// when its last pin is detached. Detaching twice is a no-op.
func (r *Registry) Detach(p *Pin) {
	if p == nil || !p.detach() {
		return
	}
	if p.registered {
		_ = gpioreg.Unregister(p.name)
	}
	p.dev.log.WithField("pin", p.number).Infof("%s pin %q removed", p.dir, p.label)
	r.release(p.dev)
}

// Available reports whether the device at addr exists and answers polls.
func (r *Registry) Available(addr uint16) bool {
	r.mu.Lock()
	e := r.devices[addr]
	r.mu.Unlock()
	if e == nil {
		return false
	}
	return e.dev.Available()
}

// Device returns the device at addr, or nil.
func (r *Registry) Device(addr uint16) *Dev {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.devices[addr]; e != nil && e.closing == nil {
		return e.dev
	}
	return nil
}

// Close detaches every pin, which tears down all devices.
func (r *Registry) Close() error {
	r.mu.Lock()
	var devs []*Dev
	for _, e := range r.devices {
		devs = append(devs, e.dev)
	}
	r.mu.Unlock()
	for _, d := range devs {
		for _, p := range d.Pins() {
			r.Detach(p)
		}
	}
	return nil
}

// acquire returns the device at addr with one more reference.
func (r *Registry) acquire(addr uint16, v Variant, interval time.Duration) (*Dev, error) {
	for {
		r.mu.Lock()
		if e, ok := r.devices[addr]; ok {
			if e.closing != nil {
				// Wait for the previous owner of the address to let go.
				ch := e.closing
				r.mu.Unlock()
				<-ch
				continue
			}
			if e.dev.variant != v {
				r.mu.Unlock()
				return nil, errors.Wrapf(ErrAddressConflict, "0x%02x is a %s, not a %s", addr, e.dev.variant, v)
			}
			e.refs++
			r.mu.Unlock()
			return e.dev, nil
		}
		r.mu.Unlock()

		_, err, _ := r.create.Do(strconv.Itoa(int(addr)), func() (interface{}, error) {
			r.mu.Lock()
			_, ok := r.devices[addr]
			r.mu.Unlock()
			if ok {
				return nil, nil
			}
			d, err := newDev(r.bus, addr, v, interval, &r.opts)
			if err != nil {
				return nil, err
			}
			r.mu.Lock()
			r.devices[addr] = &entry{dev: d}
			r.mu.Unlock()
			return d, nil
		})
		if err != nil {
			return nil, err
		}
	}
}

// release drops one reference and tears the device down at zero.
func (r *Registry) release(d *Dev) {
	r.mu.Lock()
	e := r.devices[d.addr]
	if e == nil || e.dev != d {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	e.closing = make(chan struct{})
	r.mu.Unlock()

	d.halt()

	r.mu.Lock()
	delete(r.devices, d.addr)
	close(e.closing)
	r.mu.Unlock()
}
