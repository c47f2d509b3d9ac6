// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
)

// Variant is the type denoting a specific chip of the supported families.
type Variant string

const (
	MCP23008 Variant = "MCP23008" // MCP23008 8-bit I²C extender. Datasheet: https://ww1.microchip.com/downloads/en/DeviceDoc/21919e.pdf
	MCP23017 Variant = "MCP23017" // MCP23017 16-bit I²C extender. Datasheet: https://ww1.microchip.com/downloads/en/DeviceDoc/20001952C.pdf
	TCA9534  Variant = "TCA9534"  // TCA9534  8-bit I²C extender. Datasheet: https://www.ti.com/lit/gpn/tca9534
	TCA9555  Variant = "TCA9555"  // TCA9555  16-bit I²C extender. Datasheet: https://www.ti.com/lit/gpn/tca9555
)

// Register identifies one of the logical registers mirrored by the driver.
type Register int

const (
	RegDirection Register = iota // 1 = input
	RegPullUp
	RegPolarity
	RegLatch
	RegInput
	RegControl // chip configuration, only written on creation
	numRegisters
)

var registerNames = [numRegisters]string{"IODIR", "GPPU", "IPOL", "OLAT", "GPIO", "IOCON"}

func (r Register) String() string {
	if r < 0 || r >= numRegisters {
		return "REG?"
	}
	return registerNames[r]
}

type variant struct {
	addStart uint16
	addEnd   uint16
	pins     int
	// addresses of port 0 of each register; port 1 is at +1. A zero entry
	// together with has[r] == false means the chip lacks the register.
	regs [numRegisters]uint8
	has  [numRegisters]bool
	// init is written once when the device is created.
	init []byte
}

var variants = map[Variant]variant{
	MCP23008: {
		addStart: 0x20, addEnd: 0x27, pins: 8,
		regs: [numRegisters]uint8{RegDirection: 0x00, RegPolarity: 0x01, RegPullUp: 0x06, RegInput: 0x09, RegLatch: 0x0A},
		has:  [numRegisters]bool{true, true, true, true, true, false},
	},
	MCP23017: {
		addStart: 0x20, addEnd: 0x27, pins: 16,
		regs: [numRegisters]uint8{RegDirection: 0x00, RegPolarity: 0x02, RegPullUp: 0x0C, RegInput: 0x12, RegLatch: 0x14},
		has:  [numRegisters]bool{true, true, true, true, true, false},
		// 0x05 is IOCON when IOCON.BANK=1 and GPINTENB otherwise; writing
		// zero selects the paired (BANK=0) register map in both cases.
		init: []byte{0x05, 0x00},
	},
	TCA9534: {
		addStart: 0x20, addEnd: 0x27, pins: 8,
		regs: [numRegisters]uint8{RegInput: 0x00, RegLatch: 0x01, RegPolarity: 0x02, RegDirection: 0x03},
		has:  [numRegisters]bool{RegDirection: true, RegPolarity: true, RegLatch: true, RegInput: true},
	},
	TCA9555: {
		addStart: 0x20, addEnd: 0x27, pins: 16,
		regs: [numRegisters]uint8{RegInput: 0x00, RegLatch: 0x02, RegPolarity: 0x04, RegDirection: 0x06},
		has:  [numRegisters]bool{RegDirection: true, RegPolarity: true, RegLatch: true, RegInput: true},
	},
}

// Pins returns the number of GPIO lines of the variant, or 0 if unknown.
func (v Variant) Pins() int {
	return variants[v].pins
}

// lookup returns the description of variant vr at addr.
func lookup(vr Variant, addr uint16) (variant, error) {
	v, found := variants[vr]
	if !found {
		return v, errors.Wrapf(ErrUnsupportedVariant, "%q", string(vr))
	}
	if v.isAddrInvalid(addr) {
		return v, errors.Wrapf(ErrInvalidAddress, "0x%02x for %s", addr, vr)
	}
	return v, nil
}

// isAddrInvalid checks to see if the address is used by the chip.
func (v variant) isAddrInvalid(addr uint16) bool {
	if addr < v.addStart || v.addEnd < addr {
		return true
	}
	return false
}

func (v variant) ports() int {
	return (v.pins + 7) / 8
}

// registerFile returns the register caches of the variant. Missing registers
// are nil.
func (v variant) registerFile(d *i2c.Dev) [numRegisters]*registerCache {
	var f [numRegisters]*registerCache
	for r := Register(0); r < numRegisters; r++ {
		if v.has[r] {
			f[r] = newRegister(d, r, v.regs[r], v.ports())
		}
	}
	return f
}
