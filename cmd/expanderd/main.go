// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// expanderd attaches the pins listed in a configuration file to their shared
// I²C expanders and reports every change: on the log, optionally to redis
// and optionally as a live strip on the terminal.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/GermanBionicSystems/sharedio/expander"
	"github.com/GermanBionicSystems/sharedio/pinstrip"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func main() {
	app := cli.NewApp()

	app.Name = "expanderd"
	app.Version = "0.1.0"
	app.Usage = "share I²C GPIO expander pins"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "./expanderd.yaml",
			Usage: "load configuration from `FILE`",
		},
		cli.StringFlag{
			Name:  "redis",
			Usage: "publish pin values to the redis server at `ADDR`",
		},
		cli.StringFlag{
			Name:  "key",
			Value: "expander",
			Usage: "redis hash and channel name",
		},
		cli.StringFlag{
			Name:  "format",
			Value: "text",
			Usage: "redis payload format, text or cbor",
		},
		cli.BoolFlag{
			Name:  "watch, w",
			Usage: "draw the pin levels on the terminal",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "enable debug log",
		},
	}

	app.Action = serve
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLog(debug bool) {
	colors := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	log.SetOutput(colorable.NewColorableStdout())
	log.SetFormatter(&log.TextFormatter{
		ForceColors:   colors,
		DisableColors: !colors,
		FullTimestamp: true,
	})
	if debug {
		log.SetLevel(log.DebugLevel)
	}
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	setupLog(cfg.Debug || c.Bool("debug"))

	pins, err := cfg.pins()
	if err != nil {
		return err
	}

	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "host init")
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return errors.Wrapf(err, "failed to open I²C %q", cfg.Bus)
	}
	defer bus.Close()

	var pub *publisher
	if addr := c.String("redis"); addr != "" {
		if pub, err = newPublisher(addr, c.String("key"), c.String("format")); err != nil {
			return err
		}
		defer pub.Close()
	}
	var strip *pinstrip.Strip
	if c.Bool("watch") {
		strip = pinstrip.New(&pinstrip.Opts{Pins: len(pins)})
		defer strip.Halt()
	}

	s := newSession(pins, pub, strip)
	opts := cfg.opts()
	opts.OnAvailability = s.availability
	reg := expander.NewRegistry(bus, opts)
	defer reg.Close()

	if err := s.attach(reg); err != nil {
		return err
	}
	log.WithField("bus", bus.String()).Infof("%d pins attached", len(pins))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	log.Infof("got signal %s, exiting", <-sig)
	return nil
}
