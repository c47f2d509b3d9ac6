// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pinstrip draws the levels of a set of pins as a one line strip on
// the terminal (stdout) using ANSI color codes.
//
// Useful to watch a shared expander while the real wiring is not there yet.
package pinstrip

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"sync"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

// State of one pin in the strip.
type State int

const (
	Unavailable State = iota
	Low
	High
)

func (s State) String() string {
	switch s {
	case Low:
		return "low"
	case High:
		return "high"
	}
	return "unavailable"
}

// Opts represents the options available for the strip.
type Opts struct {
	// Pins is the number of blocks.
	Pins    int
	Palette *ansi256.Palette
	// W replaces stdout when set.
	W io.Writer

	_ struct{}
}

var colors = [...]color.NRGBA{
	Unavailable: {0xC0, 0x00, 0x00, 0xFF},
	Low:         {0x30, 0x30, 0x30, 0xFF},
	High:        {0x00, 0xC0, 0x00, 0xFF},
}

// Strip renders pin states to the console. It is safe for concurrent use.
type Strip struct {
	w       io.Writer
	palette ansi256.Palette

	mu     sync.Mutex
	states []State
	buf    bytes.Buffer
}

// New returns a Strip that displays at the console. All pins start
// unavailable.
func New(opts *Opts) *Strip {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Strip{
		w:       w,
		palette: *p,
		states:  make([]State, opts.Pins),
	}
}

func (s *Strip) String() string {
	return fmt.Sprintf("PinStrip{%d}", len(s.states))
}

// Halt resets the terminal colors and moves to the next line.
func (s *Strip) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write([]byte("\n\033[0m"))
	return err
}

// Set changes the state of block i and redraws the strip.
func (s *Strip) Set(i int, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.states) {
		return fmt.Errorf("pinstrip: block %d out of range [0, %d)", i, len(s.states))
	}
	if s.states[i] == st {
		return nil
	}
	s.states[i] = st
	return s.refresh()
}

// SetAll sets the listed blocks to st and redraws the strip once. Indexes out
// of range are ignored.
func (s *Strip) SetAll(blocks []int, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range blocks {
		if i >= 0 && i < len(s.states) {
			s.states[i] = st
		}
	}
	return s.refresh()
}

// States returns a copy of the current states.
func (s *Strip) States() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.states...)
}

func (s *Strip) refresh() error {
	s.buf.Reset()
	_, _ = s.buf.WriteString("\r\033[0m")
	for _, st := range s.states {
		_, _ = io.WriteString(&s.buf, s.palette.Block(colors[st]))
	}
	_, _ = s.buf.WriteString("\033[0m ")
	_, err := s.buf.WriteTo(s.w)
	return err
}

var _ fmt.Stringer = &Strip{}
