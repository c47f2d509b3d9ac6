// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/GermanBionicSystems/sharedio/expander"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type pinConfig struct {
	Pin       int           `mapstructure:"pin"`
	Name      string        `mapstructure:"name"`
	Direction string        `mapstructure:"direction"`
	Invert    bool          `mapstructure:"invert"`
	PullUp    bool          `mapstructure:"pull_up"`
	HWSync    *bool         `mapstructure:"hw_sync"`
	Initial   *bool         `mapstructure:"initial"`
	Pulse     time.Duration `mapstructure:"pulse"`
}

type deviceConfig struct {
	Address      uint16        `mapstructure:"address"`
	Variant      string        `mapstructure:"variant"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Pins         []pinConfig   `mapstructure:"pins"`
}

type config struct {
	Bus              string         `mapstructure:"bus"`
	Debug            bool           `mapstructure:"debug"`
	PollInterval     time.Duration  `mapstructure:"poll_interval"`
	FailureThreshold int            `mapstructure:"failure_threshold"`
	MaxBackoff       time.Duration  `mapstructure:"max_backoff"`
	Devices          []deviceConfig `mapstructure:"devices"`
}

// loadConfig reads the file at path. The format is taken from the
// extension (yaml, toml or json).
func loadConfig(path string) (*config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("poll_interval", expander.DefaultOpts.PollInterval)
	v.SetDefault("failure_threshold", expander.DefaultOpts.FailureThreshold)
	v.SetDefault("max_backoff", expander.DefaultOpts.MaxBackoff)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	c := &config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	if len(c.Devices) == 0 {
		return nil, errors.Errorf("%s: no devices", path)
	}
	return c, nil
}

// opts returns the registry options of the configuration.
func (c *config) opts() *expander.Opts {
	return &expander.Opts{
		PollInterval:     c.PollInterval,
		FailureThreshold: c.FailureThreshold,
		MaxBackoff:       c.MaxBackoff,
	}
}

// pins expands the configuration into one PinConfig per configured pin, in
// file order. Names default to "<variant>_<address>_<pin>".
func (c *config) pins() ([]expander.PinConfig, error) {
	var out []expander.PinConfig
	seen := map[string]bool{}
	for _, d := range c.Devices {
		vr := expander.Variant(strings.ToUpper(d.Variant))
		if vr.Pins() == 0 {
			return nil, errors.Wrapf(expander.ErrUnsupportedVariant, "%q at 0x%02x", d.Variant, d.Address)
		}
		for _, p := range d.Pins {
			pc := expander.PinConfig{
				Address:      d.Address,
				Variant:      vr,
				PollInterval: d.PollInterval,
				Pin:          p.Pin,
				Name:         p.Name,
				Invert:       p.Invert,
				PullUp:       p.PullUp,
				Pulse:        p.Pulse,
			}
			if pc.Name == "" {
				pc.Name = fmt.Sprintf("%s_%02x_%d", strings.ToLower(string(vr)), d.Address, p.Pin)
			}
			if seen[pc.Name] {
				return nil, errors.Wrapf(expander.ErrInvalidConfig, "duplicate pin name %q", pc.Name)
			}
			seen[pc.Name] = true

			switch strings.ToLower(p.Direction) {
			case "", "input", "in":
				pc.Direction = expander.Input
				if p.HWSync != nil || p.Initial != nil {
					return nil, errors.Wrapf(expander.ErrInvalidConfig, "%s: hw_sync and initial are for outputs", pc.Name)
				}
			case "output", "out":
				pc.Direction = expander.Output
				// Outputs adopt the latch of the chip unless told otherwise.
				switch {
				case p.Initial != nil && p.HWSync != nil && *p.HWSync:
					return nil, errors.Wrapf(expander.ErrInvalidConfig, "%s: hw_sync and initial are exclusive", pc.Name)
				case p.Initial != nil:
					pc.Initial = p.Initial
				case p.HWSync != nil && !*p.HWSync:
					off := false
					pc.Initial = &off
				}
			default:
				return nil, errors.Wrapf(expander.ErrInvalidConfig, "%s: direction %q", pc.Name, p.Direction)
			}
			out = append(out, pc)
		}
	}
	return out, nil
}
