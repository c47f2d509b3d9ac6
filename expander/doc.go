// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package expander provides a shared driver for I²C GPIO expanders of the
// MCP230xx and TCA95xx families, in 8 and 16 pin variants.
//
// Many independent owners can attach single pins of the same chip. The
// driver keeps one Dev per address, mirrors the chip registers so that
// identical writes never reach the bus, merges concurrent bit changes into
// whole register read-modify-write transactions, and polls the input
// register once per interval, pushing level changes to the owners of input
// pins through a per device ordered queue.
//
// # Usage
//
//	reg := expander.NewRegistry(bus, nil)
//	p, err := reg.Attach(expander.PinConfig{
//		Address:   0x20,
//		Variant:   expander.MCP23017,
//		Pin:       8,
//		Direction: expander.Input,
//		PullUp:    true,
//		OnChange:  func(ev expander.ChangeEvent) { fmt.Println(ev) },
//	})
//
// Callbacks run on a goroutine owned by the device and must not block for
// long; they may call Detach.
//
// # Datasheets
//
// https://ww1.microchip.com/downloads/en/DeviceDoc/20001952C.pdf
//
// https://www.ti.com/lit/gpn/tca9555
package expander
