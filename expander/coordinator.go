// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import "sync"

// bitRequest is a masked update of one port of one register.
type bitRequest struct {
	reg  Register
	port int
	mask uint8
	bits uint8
	// onCommit is called with the transaction lock held once the port holds
	// its final value.
	onCommit func(value uint8)
	done     chan error
}

// coordinator serializes all register traffic of a device. Every bit level
// change is turned into a read-modify-write of the whole port byte so bits
// owned by other pins are never clobbered.
//
// Requests that queue up while the transaction lock is held are combined by
// the next holder: all pending requests for the same register port are
// merged in submission order and written in a single transaction.
type coordinator struct {
	regs *[numRegisters]*registerCache

	// tx is the device transaction lock. The poller holds it while sampling.
	tx sync.Mutex

	mu      sync.Mutex
	pending []*bitRequest
}

func newCoordinator(regs *[numRegisters]*registerCache) *coordinator {
	return &coordinator{regs: regs}
}

// apply sets the bits selected by mask to bits and blocks until the
// transaction carrying the request completed.
func (c *coordinator) apply(reg Register, port int, mask, bits uint8, onCommit func(uint8)) error {
	req := &bitRequest{
		reg:      reg,
		port:     port,
		mask:     mask,
		bits:     bits,
		onCommit: onCommit,
		done:     make(chan error, 1),
	}
	c.mu.Lock()
	c.pending = append(c.pending, req)
	c.mu.Unlock()

	c.tx.Lock()
	select {
	case err := <-req.done:
		// A previous lock holder already carried the request.
		c.tx.Unlock()
		return err
	default:
	}
	c.flushLocked()
	c.tx.Unlock()
	return <-req.done
}

// applyLocked is apply for callers already holding tx.
func (c *coordinator) applyLocked(reg Register, port int, mask, bits uint8, onCommit func(uint8)) error {
	return c.commit([]*bitRequest{{reg: reg, port: port, mask: mask, bits: bits, onCommit: onCommit}})
}

// transact runs fn with the transaction lock held.
func (c *coordinator) transact(fn func() error) error {
	c.tx.Lock()
	defer c.tx.Unlock()
	return fn()
}

// flushLocked drains the pending queue, one transaction per register port.
func (c *coordinator) flushLocked() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	for len(batch) > 0 {
		head := batch[0]
		var group, rest []*bitRequest
		for _, req := range batch {
			if req.reg == head.reg && req.port == head.port {
				group = append(group, req)
			} else {
				rest = append(rest, req)
			}
		}
		err := c.commit(group)
		for _, req := range group {
			req.done <- err
		}
		batch = rest
	}
}

// commit merges group, which must target a single register port, into the
// cached byte and writes it out.
func (c *coordinator) commit(group []*bitRequest) error {
	r := c.regs[group[0].reg]
	port := group[0].port
	v, err := r.readPort(port, true)
	if err != nil {
		return err
	}
	for _, req := range group {
		v = v&^req.mask | req.bits&req.mask
	}
	if _, err := r.writePort(port, v); err != nil {
		return err
	}
	for _, req := range group {
		if req.onCommit != nil {
			req.onCommit(v)
		}
	}
	return nil
}
