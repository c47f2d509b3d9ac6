// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"strconv"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sharedio/expander"
	"github.com/fxamacker/cbor/v2"
	"github.com/garyburd/redigo/redis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// record is the payload published for a pin change.
type record struct {
	Name      string    `cbor:"1,keyasint"`
	Address   uint16    `cbor:"2,keyasint"`
	Pin       int       `cbor:"3,keyasint"`
	Value     bool      `cbor:"4,keyasint"`
	Available bool      `cbor:"5,keyasint"`
	Seq       uint64    `cbor:"6,keyasint"`
	Time      time.Time `cbor:"7,keyasint"`
}

type encoder func(r *record) ([]byte, error)

func encodeText(r *record) ([]byte, error) {
	if !r.Available {
		return []byte(r.Name + "=unavailable"), nil
	}
	return []byte(r.Name + "=" + strconv.FormatBool(r.Value)), nil
}

func encodeCBOR(r *record) ([]byte, error) {
	return cbor.Marshal(r)
}

func encoderFor(format string) (encoder, error) {
	switch format {
	case "", "text":
		return encodeText, nil
	case "cbor":
		return encodeCBOR, nil
	}
	return nil, errors.Errorf("unknown format %q", format)
}

// publisher mirrors pin values into a redis hash, one field per pin, and
// publishes every change on a channel named after the hash. Writes run on
// their own goroutine, off the device event queues.
type publisher struct {
	pool   *redis.Pool
	key    string
	encode encoder

	mu     sync.Mutex
	closed bool
	queue  chan *record
	done   chan struct{}
}

func newPublisher(addr, key, format string) (*publisher, error) {
	enc, err := encoderFor(format)
	if err != nil {
		return nil, err
	}
	p := &publisher{
		pool: &redis.Pool{
			MaxIdle:     2,
			IdleTimeout: time.Minute,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", addr,
					redis.DialConnectTimeout(time.Second),
					redis.DialWriteTimeout(time.Second),
					redis.DialReadTimeout(time.Second))
			},
		},
		key:    key,
		encode: enc,
		queue:  make(chan *record, 256),
		done:   make(chan struct{}),
	}
	c := p.pool.Get()
	defer c.Close()
	if _, err := c.Do("PING"); err != nil {
		return nil, errors.Wrapf(err, "redis %s", addr)
	}
	go p.run()
	return p, nil
}

// change queues a pin value. A full queue drops the record.
func (p *publisher) change(name string, ev expander.ChangeEvent) {
	p.push(&record{
		Name:      name,
		Address:   ev.Address,
		Pin:       ev.Pin,
		Value:     ev.Value,
		Available: true,
		Seq:       ev.Seq,
		Time:      ev.Time,
	})
}

// unavailable queues the loss of a pin's device.
func (p *publisher) unavailable(name string, pin int, ev expander.AvailabilityEvent) {
	p.push(&record{Name: name, Address: ev.Address, Pin: pin, Seq: ev.Seq, Time: ev.Time})
}

func (p *publisher) push(r *record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- r:
	default:
		log.WithField("pin", r.Name).Warn("redis queue full, dropping update")
	}
}

func (p *publisher) run() {
	defer close(p.done)
	for r := range p.queue {
		if err := p.send(r); err != nil {
			log.WithError(err).WithField("pin", r.Name).Warn("redis publish failed")
		}
	}
}

func (p *publisher) send(r *record) error {
	b, err := p.encode(r)
	if err != nil {
		return err
	}
	c := p.pool.Get()
	defer c.Close()
	if err := c.Send("HSET", p.key, r.Name, b); err != nil {
		return err
	}
	if err := c.Send("PUBLISH", p.key, b); err != nil {
		return err
	}
	_, err = c.Do("")
	return err
}

// Close flushes the queue and closes the pool.
func (p *publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	<-p.done
	return p.pool.Close()
}
