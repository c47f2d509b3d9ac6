// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrAddressConflict    = errors.New("expander: address already in use by a different variant")
	ErrInvalidDirection   = errors.New("expander: operation not valid for pin direction")
	ErrUnsupportedVariant = errors.New("expander: unsupported variant")
	ErrInvalidAddress     = errors.New("expander: address not supported by variant")
	ErrInvalidPin         = errors.New("expander: pin number out of range")
	ErrPinInUse           = errors.New("expander: pin already attached")
	ErrPullUpNotSupported = errors.New("expander: pull-up not supported by variant")
	ErrInvalidConfig      = errors.New("expander: invalid pin configuration")
	ErrDetached           = errors.New("expander: pin is detached")
)

// TransportError is returned when a bus transaction fails.
type TransportError struct {
	Op       string // "read" or "write"
	Addr     uint16
	Register Register
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("expander: %s %s@0x%02x: %v", e.Op, e.Register, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err was caused by a failed bus transaction.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
