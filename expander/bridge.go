// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"fmt"
	"sync"
	"time"
)

// ChangeEvent is a confirmed change of the logical value of a pin.
type ChangeEvent struct {
	Address uint16
	Pin     int
	Value   bool
	// Seq increases monotonically per device; events of one device are
	// delivered in Seq order.
	Seq  uint64
	Time time.Time
	// Initial is set for the value reported on attach and on OnChange.
	Initial bool
}

func (e ChangeEvent) String() string {
	return fmt.Sprintf("0x%02x/%d=%t #%d", e.Address, e.Pin, e.Value, e.Seq)
}

// AvailabilityEvent reports that polling a device started failing, or
// recovered.
type AvailabilityEvent struct {
	Address   uint16
	Available bool
	Seq       uint64
	Time      time.Time
}

// bridge hands work produced while the transaction lock is held to a
// dedicated delivery goroutine. The queue is unbounded so publish never
// blocks; messages run in the order they were published.
type bridge struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	done    chan struct{}
	started bool
}

func newBridge() *bridge {
	b := &bridge{done: make(chan struct{})}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *bridge) start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	go b.run()
}

// publish queues fn for delivery. It is dropped once the bridge is halted.
func (b *bridge) publish(fn func()) {
	b.mu.Lock()
	if !b.closed {
		b.queue = append(b.queue, fn)
		b.cond.Signal()
	}
	b.mu.Unlock()
}

func (b *bridge) run() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		batch := b.queue
		b.queue = nil
		b.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
	}
}

// halt stops accepting messages. Already queued messages are still run.
// It does not wait for the delivery goroutine so it may be called from a
// callback.
func (b *bridge) halt() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cond.Broadcast()
	started := b.started
	b.mu.Unlock()
	if !started {
		close(b.done)
	}
}
