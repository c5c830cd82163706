// Command server runs the trace viewer API on its own.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/roffe/elevtrace/pkg/config"
	"github.com/roffe/elevtrace/pkg/debug"
	"github.com/roffe/elevtrace/pkg/eventbus"
	"github.com/roffe/elevtrace/pkg/server"
	"github.com/roffe/elevtrace/pkg/session"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "elevtrace-server",
		Usage: "serve the trace viewer API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "settings",
				Usage: "settings file",
				Value: config.DefaultFile,
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen address, overrides the settings file",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		debug.Logger.Fatal(err)
	}
}

func run(c *cli.Context) error {
	log := debug.Logger
	st, err := config.Load(c.String("settings"), !c.IsSet("settings"))
	if err != nil {
		return err
	}
	if c.IsSet("listen") {
		st.Listen = c.String("listen")
	}
	if err := debug.Setup(st.Log); err != nil {
		return err
	}
	defer debug.Close()

	bus := eventbus.New(eventbus.DefaultConfig)
	defer bus.Close()

	sess, err := session.Open(c.Context, st, bus, log)
	if err != nil {
		return err
	}
	defer sess.Close()

	s := server.New(server.Config{Session: sess, Bus: bus, Logger: log})
	if err := s.Listen(st.Listen); err != nil {
		return err
	}
	defer s.Close()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	ss := <-sig
	log.WithField("signal", ss.String()).Info("shutting down")
	return nil
}
