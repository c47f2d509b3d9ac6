// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
)

// poller samples the input register of a device once per interval and turns
// level changes of attached input pins into ChangeEvents.
type poller struct {
	d         *Dev
	interval  time.Duration
	threshold int
	backoff   backoff.Backoff

	// Guarded by the device transaction lock.
	baseline uint16
	inputs   uint16 // pins whose changes are reported
	failures int

	available atomic.Bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

func newPoller(d *Dev, interval, maxBackoff time.Duration, threshold int) *poller {
	if maxBackoff < interval {
		maxBackoff = interval
	}
	p := &poller{
		d:         d,
		interval:  interval,
		threshold: threshold,
		backoff: backoff.Backoff{
			Min:    interval,
			Max:    maxBackoff,
			Factor: 2,
			Jitter: false,
		},
	}
	p.available.Store(true)
	return p
}

func (p *poller) start() {
	p.stop = make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTimer(p.interval)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-t.C:
				t.Reset(p.sample())
			}
		}
	}()
}

// halt stops the loop and waits for a sample in progress to finish.
func (p *poller) halt() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	p.wg.Wait()
	p.stop = nil
}

// sample runs one tick and returns the delay until the next one.
func (p *poller) sample() time.Duration {
	d := p.d
	d.co.tx.Lock()
	defer d.co.tx.Unlock()

	in, err := d.regs[RegInput].readValue(false)
	if err != nil {
		p.failures++
		switch {
		case p.failures < p.threshold:
			d.log.WithError(err).Debugf("poll failed (%d/%d)", p.failures, p.threshold)
			return p.interval
		case p.failures == p.threshold:
			p.available.Store(false)
			d.log.WithError(err).Warnf("unavailable after %d failed polls", p.failures)
			d.publishAvailability(false)
		}
		return p.backoff.Duration()
	}
	if p.failures >= p.threshold {
		p.available.Store(true)
		d.log.Info("available again")
		d.publishAvailability(true)
	}
	p.failures = 0
	p.backoff.Reset()

	word := uint16(in[0]) | uint16(in[1])<<8
	changed := (word ^ p.baseline) & p.inputs
	p.baseline = word
	for n := 0; changed != 0; n++ {
		if changed&1 != 0 {
			if pin := d.pins[n]; pin != nil {
				pin.report(word&(1<<n) != 0)
			}
		}
		changed >>= 1
	}
	return p.interval
}

// seed records level as the reference for pin n and starts reporting its
// changes. Called with the transaction lock held.
func (p *poller) seed(n int, level bool) {
	bit := uint16(1) << n
	if level {
		p.baseline |= bit
	} else {
		p.baseline &^= bit
	}
	p.inputs |= bit
}

// forget stops reporting pin n. Called with the transaction lock held.
func (p *poller) forget(n int) {
	p.inputs &^= uint16(1) << n
}
