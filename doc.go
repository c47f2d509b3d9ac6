// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sharedio is a container for the shared I²C GPIO expander driver.
//
// The driver itself lives in package expander; cmd/expanderd runs it from a
// configuration file and pinstrip draws pin levels on a terminal.
package sharedio
