// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"sync"

	"github.com/GermanBionicSystems/sharedio/expander"
	"github.com/GermanBionicSystems/sharedio/pinstrip"
	log "github.com/sirupsen/logrus"
)

// session fans the events of the attached pins out to the log, the redis
// publisher and the terminal strip. pub and strip may be nil.
type session struct {
	cfgs  []expander.PinConfig
	pub   *publisher
	strip *pinstrip.Strip

	mu       sync.Mutex
	attached []*expander.Pin
	byDevice map[uint16][]int // strip indexes per address
}

func newSession(cfgs []expander.PinConfig, pub *publisher, strip *pinstrip.Strip) *session {
	s := &session{
		cfgs:     cfgs,
		pub:      pub,
		strip:    strip,
		byDevice: map[uint16][]int{},
	}
	for i, c := range cfgs {
		s.byDevice[c.Address] = append(s.byDevice[c.Address], i)
	}
	return s
}

// attach attaches every configured pin, stopping at the first error.
func (s *session) attach(reg *expander.Registry) error {
	for i := range s.cfgs {
		cfg := s.cfgs[i]
		cfg.OnChange = func(ev expander.ChangeEvent) { s.changed(i, ev) }
		p, err := reg.Attach(cfg)
		if err != nil {
			log.WithError(err).WithField("pin", cfg.Name).Error("attach failed")
			return err
		}
		s.mu.Lock()
		s.attached = append(s.attached, p)
		s.mu.Unlock()
	}
	return nil
}

func (s *session) changed(i int, ev expander.ChangeEvent) {
	name := s.cfgs[i].Name
	log.WithFields(log.Fields{"pin": name, "seq": ev.Seq, "initial": ev.Initial}).Infof("%s = %t", name, ev.Value)
	if s.pub != nil {
		s.pub.change(name, ev)
	}
	if s.strip != nil {
		st := pinstrip.Low
		if ev.Value {
			st = pinstrip.High
		}
		if err := s.strip.Set(i, st); err != nil {
			log.WithError(err).Debug("strip")
		}
	}
}

func (s *session) availability(ev expander.AvailabilityEvent) {
	fields := log.Fields{"address": ev.Address, "seq": ev.Seq}
	if ev.Available {
		log.WithFields(fields).Info("device available")
	} else {
		log.WithFields(fields).Warn("device unavailable")
	}
	idx := s.byDevice[ev.Address]
	if s.pub != nil && !ev.Available {
		for _, i := range idx {
			s.pub.unavailable(s.cfgs[i].Name, s.cfgs[i].Pin, ev)
		}
	}
	if s.strip == nil {
		return
	}
	if !ev.Available {
		_ = s.strip.SetAll(idx, pinstrip.Unavailable)
		return
	}
	s.mu.Lock()
	pins := append([]*expander.Pin(nil), s.attached...)
	s.mu.Unlock()
	for _, i := range idx {
		if i >= len(pins) {
			continue
		}
		st := pinstrip.Low
		if pins[i].Value() {
			st = pinstrip.High
		}
		_ = s.strip.Set(i, st)
	}
}
