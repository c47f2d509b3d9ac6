// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
)

// Dev is one expander chip shared by all pins attached to its address.
//
// A Dev is only created and destroyed by a Registry.
type Dev struct {
	addr    uint16
	variant Variant
	v       variant
	name    string
	d       i2c.Dev
	regs    [numRegisters]*registerCache
	co      *coordinator
	poll    *poller
	bridge  *bridge
	log     logrus.FieldLogger
	onAvail func(AvailabilityEvent)

	// Guarded by co.tx.
	pins [16]*Pin
	seq  uint64

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// newDev configures the chip and pre-caches its configuration registers,
// which also verifies that the device answers.
func newDev(bus i2c.Bus, addr uint16, vr Variant, interval time.Duration, opts *Opts) (*Dev, error) {
	v, err := lookup(vr, addr)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = opts.PollInterval
	}

	d := &Dev{
		addr:    addr,
		variant: vr,
		v:       v,
		name:    string(vr) + "_" + strconv.FormatInt(int64(addr), 16),
		d:       i2c.Dev{Bus: bus, Addr: addr},
		bridge:  newBridge(),
		onAvail: opts.OnAvailability,
	}
	d.log = opts.Logger.WithField("device", d.name)
	d.regs = v.registerFile(&d.d)
	d.co = newCoordinator(&d.regs)
	d.poll = newPoller(d, interval, opts.MaxBackoff, opts.FailureThreshold)

	if len(v.init) != 0 {
		if err := d.d.Tx(v.init, nil); err != nil {
			return nil, &TransportError{Op: "write", Addr: addr, Register: RegControl, Err: err}
		}
	}
	for _, r := range []Register{RegDirection, RegPullUp, RegPolarity, RegLatch} {
		if d.regs[r] == nil {
			continue
		}
		if _, err := d.regs[r].readValue(false); err != nil {
			return nil, err
		}
	}

	d.bridge.start()
	d.poll.start()
	d.log.WithField("interval", interval).Info("device created")
	return d, nil
}

// String returns the variant and address of the device, e.g. "MCP23017_20".
func (d *Dev) String() string {
	return d.name
}

// Address returns the I²C address of the device.
func (d *Dev) Address() uint16 {
	return d.addr
}

// Variant returns the chip variant.
func (d *Dev) Variant() Variant {
	return d.variant
}

// Available is false while polling the device keeps failing.
func (d *Dev) Available() bool {
	return d.poll.available.Load()
}

// Pins returns the pins currently attached to the device, by number.
func (d *Dev) Pins() []*Pin {
	var pins []*Pin
	_ = d.co.transact(func() error {
		for _, p := range d.pins[:d.v.pins] {
			if p != nil {
				pins = append(pins, p)
			}
		}
		return nil
	})
	return pins
}

// publish queues a ChangeEvent for p. Called with the transaction lock held
// so that sequence numbers and queue order agree.
func (d *Dev) publish(p *Pin, value, initial bool) {
	d.seq++
	ev := ChangeEvent{
		Address: d.addr,
		Pin:     p.number,
		Value:   value,
		Seq:     d.seq,
		Time:    time.Now(),
		Initial: initial,
	}
	d.bridge.publish(func() { p.deliver(ev) })
}

// publishAvailability is called with the transaction lock held.
func (d *Dev) publishAvailability(available bool) {
	d.seq++
	if d.onAvail == nil {
		return
	}
	ev := AvailabilityEvent{Address: d.addr, Available: available, Seq: d.seq, Time: time.Now()}
	hook := d.onAvail
	d.bridge.publish(func() {
		if d.isClosed() {
			return
		}
		hook(ev)
	})
}

// enter registers an operation that needs the bus. It returns false once
// the device is being torn down.
func (d *Dev) enter() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.inflight.Add(1)
	return true
}

func (d *Dev) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dev) leave() {
	d.inflight.Done()
}

// halt waits for in-flight transactions, then stops polling and delivery.
func (d *Dev) halt() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.inflight.Wait()
	d.poll.halt()
	d.bridge.halt()
	d.log.Info("device destroyed")
}
