// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

var errBus = errors.New("fake bus: no ack")

// fakeBus emulates the register file of expanders with auto-incrementing
// addressing. It counts transactions per register so tests can check bus
// traffic.
type fakeBus struct {
	mu     sync.Mutex
	regs   map[uint16]*[32]uint8
	reads  map[uint16]map[uint8]int
	writes map[uint16]map[uint8]int
	log    []string
	fail   int  // number of upcoming transactions to fail
	down   bool // fail every transaction
	delay  time.Duration
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		regs:   map[uint16]*[32]uint8{},
		reads:  map[uint16]map[uint8]int{},
		writes: map[uint16]map[uint8]int{},
	}
}

func (f *fakeBus) String() string { return "fake" }

func (f *fakeBus) SetSpeed(physic.Frequency) error { return nil }

func (f *fakeBus) file(addr uint16) *[32]uint8 {
	r := f.regs[addr]
	if r == nil {
		r = &[32]uint8{}
		// Power-on state: all pins are inputs.
		r[0x00], r[0x01] = 0xFF, 0xFF
		f.regs[addr] = r
		f.reads[addr] = map[uint8]int{}
		f.writes[addr] = map[uint8]int{}
	}
	return r
}

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errBus
	}
	if f.fail > 0 {
		f.fail--
		return errBus
	}
	if len(w) == 0 {
		return errors.New("fake bus: missing register address")
	}
	regs := f.file(addr)
	reg := w[0]
	if len(r) > 0 {
		f.reads[addr][reg]++
		for i := range r {
			r[i] = regs[int(reg)+i]
		}
		f.log = append(f.log, fmt.Sprintf("R%02x", reg))
		return nil
	}
	for i, v := range w[1:] {
		regs[int(reg)+i] = v
	}
	if len(w) > 1 {
		f.writes[addr][reg]++
		f.log = append(f.log, fmt.Sprintf("W%02x=%02x", reg, w[1]))
	}
	return nil
}

func (f *fakeBus) set(addr uint16, reg, value uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.file(addr)[reg] = value
}

func (f *fakeBus) get(addr uint16, reg uint8) uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file(addr)[reg]
}

func (f *fakeBus) readCount(addr uint16, reg uint8) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.file(addr)
	return f.reads[addr][reg]
}

func (f *fakeBus) writeCount(addr uint16, reg uint8) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.file(addr)
	return f.writes[addr][reg]
}

func (f *fakeBus) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeBus) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

// quietOpts returns options with a poll interval long enough that tests
// drive sampling by hand.
func quietOpts() *Opts {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return &Opts{
		PollInterval:     time.Hour,
		FailureThreshold: 3,
		MaxBackoff:       time.Hour,
		Logger:           l,
	}
}

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *recorder) record(ev ChangeEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChangeEvent(nil), r.events...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
