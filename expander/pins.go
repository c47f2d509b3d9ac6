// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"
)

// Direction of a pin, fixed when it is attached.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Pin is one GPIO line of a shared device, owned by the caller of
// Registry.Attach. It implements gpio.PinIO.
type Pin struct {
	dev    *Dev
	reg    *Registry
	number int
	port   int
	mask   uint8
	name   string
	label  string
	dir    Direction
	pulse  time.Duration

	invert atomic.Bool
	value  atomic.Bool // last reported logical value; written with tx held
	pullUp atomic.Bool

	mu         sync.Mutex
	attached   bool
	closed     bool
	registered bool
	cb         func(ChangeEvent)
	edge       gpio.Edge
	edges      chan struct{}
	timer      *time.Timer
}

func newPin(d *Dev, r *Registry, cfg *PinConfig) *Pin {
	p := &Pin{
		dev:    d,
		reg:    r,
		number: cfg.Pin,
		port:   cfg.Pin / 8,
		mask:   1 << uint(cfg.Pin%8),
		name:   d.name + "_GPIO" + strconv.Itoa(cfg.Pin),
		label:  cfg.Name,
		dir:    cfg.Direction,
		pulse:  cfg.Pulse,
		cb:     cfg.OnChange,
		edges:  make(chan struct{}, 1),
	}
	p.invert.Store(cfg.Invert)
	p.pullUp.Store(cfg.PullUp)
	return p
}

// Dev returns the device the pin is attached to.
func (p *Pin) Dev() *Dev {
	return p.dev
}

// Direction returns the direction set on attach.
func (p *Pin) Direction() Direction {
	return p.dir
}

// Label returns the user supplied name of the pin, if any.
func (p *Pin) Label() string {
	return p.label
}

// Value returns the last reported logical value without bus I/O.
func (p *Pin) Value() bool {
	return p.value.Load()
}

// OnChange replaces the change callback. The current value is delivered to
// the new callback as an Initial event, ordered with the other events of
// the device.
func (p *Pin) OnChange(cb func(ChangeEvent)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrDetached
	}
	p.cb = cb
	p.mu.Unlock()
	return p.dev.co.transact(func() error {
		p.dev.publish(p, p.value.Load(), true)
		return nil
	})
}

// Set writes the logical value v, applying polarity inversion. On a
// momentary pin a true value is reverted to false after the pulse time.
func (p *Pin) Set(v bool) error {
	if err := p.write(v != p.invert.Load()); err != nil {
		return err
	}
	if p.pulse > 0 && v {
		p.mu.Lock()
		if !p.closed {
			p.timer = time.AfterFunc(p.pulse, p.release)
		}
		p.mu.Unlock()
	}
	return nil
}

// Submit hands the write of logical value v to another goroutine and
// returns a channel that receives its result.
func (p *Pin) Submit(v bool) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- p.Set(v)
	}()
	return ch
}

// release ends a momentary pulse.
func (p *Pin) release() {
	if err := p.Set(false); err != nil && !errors.Is(err, ErrDetached) {
		p.dev.log.WithError(err).WithField("pin", p.number).Warn("failed to end pulse")
	}
}

// write drives the physical level of an output pin.
func (p *Pin) write(level bool) error {
	if p.dir != Output {
		return errors.Wrapf(ErrInvalidDirection, "%s is an input", p.name)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrDetached
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	d := p.dev
	if !d.enter() {
		return ErrDetached
	}
	defer d.leave()
	var bits uint8
	if level {
		bits = p.mask
	}
	return d.co.apply(RegLatch, p.port, p.mask, bits, func(v uint8) {
		p.report(v&p.mask != 0)
	})
}

// report publishes the physical level if it changes the logical value.
// Called with the transaction lock held.
func (p *Pin) report(level bool) {
	v := level != p.invert.Load()
	if p.value.Load() == v {
		return
	}
	p.value.Store(v)
	p.dev.publish(p, v, false)
}

func (p *Pin) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// deliver runs on the bridge goroutine. The attached check and the capture
// of the callback happen under p.mu, so once detach has released it no new
// invocation is dispatched.
func (p *Pin) deliver(ev ChangeEvent) {
	p.mu.Lock()
	if !p.attached {
		p.mu.Unlock()
		return
	}
	cb := p.cb
	if !ev.Initial && p.edgeMatches(ev.Value != p.invert.Load()) {
		select {
		case p.edges <- struct{}{}:
		default:
		}
	}
	p.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func (p *Pin) edgeMatches(level bool) bool {
	switch p.edge {
	case gpio.BothEdges:
		return true
	case gpio.RisingEdge:
		return level
	case gpio.FallingEdge:
		return !level
	}
	return false
}

// Close detaches the pin. It is the same as Registry.Detach.
func (p *Pin) Close() error {
	p.reg.Detach(p)
	return nil
}

// detach unlinks the pin from its device and reports whether this call did
// it.
func (p *Pin) detach() bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.closed = true
	p.attached = false
	p.cb = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	d := p.dev
	_ = d.co.transact(func() error {
		if d.pins[p.number] == p {
			d.pins[p.number] = nil
		}
		d.poll.forget(p.number)
		return nil
	})
	return true
}

// SetPolarityInverted changes the software inversion of the pin. An output
// keeps its logical value: the latch is driven to the new physical level. An
// input keeps its line level and the new logical value is reported if it
// differs.
func (p *Pin) SetPolarityInverted(inv bool) error {
	if p.isClosed() {
		return ErrDetached
	}
	d := p.dev
	if p.dir == Input {
		return d.co.transact(func() error {
			if p.invert.Load() == inv {
				return nil
			}
			physical := p.value.Load() != p.invert.Load()
			p.invert.Store(inv)
			p.report(physical)
			return nil
		})
	}
	if !d.enter() {
		return ErrDetached
	}
	defer d.leave()
	return d.co.transact(func() error {
		if p.invert.Load() == inv {
			return nil
		}
		var bits uint8
		if p.value.Load() != inv {
			bits = p.mask
		}
		if err := d.co.applyLocked(RegLatch, p.port, p.mask, bits, nil); err != nil {
			return err
		}
		p.invert.Store(inv)
		return nil
	})
}

// IsPolarityInverted returns true if the logical value is the inverse of the
// line level.
func (p *Pin) IsPolarityInverted() (bool, error) {
	return p.invert.Load(), nil
}

// String implements conn.Resource.
func (p *Pin) String() string {
	return p.name
}

// Halt cancels a pending pulse. The line keeps its state.
func (p *Pin) Halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return nil
}

// Name implements pin.Pin.
func (p *Pin) Name() string {
	return p.name
}

// Number implements pin.Pin.
func (p *Pin) Number() int {
	return p.number
}

// Function implements pin.Pin.
func (p *Pin) Function() string {
	return string(p.Func())
}

// In implements gpio.PinIn. Only the pull-up of an input pin can be changed;
// PullDown is not supported by any variant. Edges are detected by polling.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if p.dir != Input {
		return errors.Wrapf(ErrInvalidDirection, "%s is an output", p.name)
	}
	switch pull {
	case gpio.PullDown:
		return errors.New("expander: PullDown is not supported")
	case gpio.PullUp, gpio.Float:
		if err := p.setPullUp(pull == gpio.PullUp); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.edge = edge
	p.mu.Unlock()
	return nil
}

func (p *Pin) setPullUp(on bool) error {
	d := p.dev
	if d.regs[RegPullUp] == nil {
		if on {
			return errors.Wrapf(ErrPullUpNotSupported, "%s", d.variant)
		}
		return nil
	}
	if !d.enter() {
		return ErrDetached
	}
	defer d.leave()
	var bits uint8
	if on {
		bits = p.mask
	}
	if err := d.co.apply(RegPullUp, p.port, p.mask, bits, nil); err != nil {
		return err
	}
	p.pullUp.Store(on)
	return nil
}

// Read implements gpio.PinIn. Inputs are read from the device; outputs
// return the cached latch.
func (p *Pin) Read() gpio.Level {
	d := p.dev
	if p.dir == Output {
		return gpio.Level(p.value.Load() != p.invert.Load())
	}
	if !d.enter() {
		return gpio.Low
	}
	defer d.leave()
	var v uint8
	_ = d.co.transact(func() error {
		var err error
		v, err = d.regs[RegInput].readPort(p.port, false)
		return err
	})
	return gpio.Level(v&p.mask != 0)
}

// WaitForEdge implements gpio.PinIn. It returns on the next change matching
// the edge set with In, with the latency of the poll interval. A negative
// timeout waits forever.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	var after <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		after = t.C
	}
	select {
	case <-p.edges:
		return true
	case <-after:
		return false
	}
}

// Pull implements gpio.PinIn.
func (p *Pin) Pull() gpio.Pull {
	if p.pullUp.Load() {
		return gpio.PullUp
	}
	return gpio.Float
}

// DefaultPull implements gpio.PinIn.
func (p *Pin) DefaultPull() gpio.Pull {
	return gpio.Float
}

// Out implements gpio.PinOut. The level is physical, inversion is not
// applied.
func (p *Pin) Out(l gpio.Level) error {
	return p.write(bool(l))
}

// PWM implements gpio.PinOut.
func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return errors.New("expander: PWM is not supported")
}

// Func implements pin.PinFunc.
func (p *Pin) Func() pin.Func {
	if p.dir == Output {
		return gpio.OUT
	}
	return gpio.IN
}

// SupportedFuncs implements pin.PinFunc.
func (p *Pin) SupportedFuncs() []pin.Func {
	return []pin.Func{p.Func()}
}

// SetFunc implements pin.PinFunc. The direction is fixed on attach; detach
// and attach again to change it.
func (p *Pin) SetFunc(f pin.Func) error {
	if f == p.Func() {
		return nil
	}
	return errors.Wrapf(ErrInvalidDirection, "%s is fixed to %s", p.name, p.Func())
}

var _ gpio.PinIO = &Pin{}
