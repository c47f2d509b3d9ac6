// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import "periph.io/x/conn/v3/i2c"

// registerCache mirrors one logical register across all ports of a device.
// Port n lives at address+n, so a single auto-incrementing read returns all
// ports. It is not safe for concurrent use; callers hold the device
// transaction lock.
type registerCache struct {
	i2c     *i2c.Dev
	reg     Register
	address uint8
	got     bool
	cache   [2]uint8
	width   int
}

func newRegister(i2c *i2c.Dev, reg Register, address uint8, width int) *registerCache {
	return &registerCache{
		i2c:     i2c,
		reg:     reg,
		address: address,
		width:   width,
	}
}

// readValue returns the register contents, one byte per port. With cached
// set and a known-valid cache no transaction is issued.
func (r *registerCache) readValue(cached bool) ([2]uint8, error) {
	if cached && r.got {
		return r.cache, nil
	}
	var rx [2]uint8
	if err := r.i2c.Tx([]byte{r.address}, rx[:r.width]); err != nil {
		r.got = false
		return rx, &TransportError{Op: "read", Addr: r.i2c.Addr, Register: r.reg, Err: err}
	}
	r.got = true
	r.cache = rx
	return rx, nil
}

// readPort returns the byte of a single port, reading the whole register if
// the cache is not valid.
func (r *registerCache) readPort(port int, cached bool) (uint8, error) {
	v, err := r.readValue(cached)
	return v[port], err
}

// writePort writes value to the port unless the cache already holds it.
// The cache is only updated once the transaction succeeds.
func (r *registerCache) writePort(port int, value uint8) (bool, error) {
	if r.got && r.cache[port] == value {
		return false, nil
	}
	if err := r.i2c.Tx([]byte{r.address + uint8(port), value}, nil); err != nil {
		return false, &TransportError{Op: "write", Addr: r.i2c.Addr, Register: r.reg, Err: err}
	}
	r.cache[port] = value
	return true, nil
}

// invalidate forces the next cached read to hit the bus.
func (r *registerCache) invalidate() {
	r.got = false
}

// word returns the cached register indexed by pin number.
func (r *registerCache) word() uint16 {
	return uint16(r.cache[0]) | uint16(r.cache[1])<<8
}
