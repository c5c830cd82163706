package main

import (
	"fmt"
	"os"

	"github.com/roffe/elevtrace/pkg/config"
	"github.com/roffe/elevtrace/pkg/debug"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	a := &app{}
	cliApp := &cli.App{
		Name:    "elevtrace",
		Usage:   "inspect and export elevator controller trace dumps",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "settings",
				Aliases: []string{"s"},
				Usage:   "settings file",
				Value:   config.DefaultFile,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "panic, fatal, error, warn, info, debug or trace",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "append log entries to this file as well",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "signal config XML, replaces the built in one",
			},
		},
		Before: a.before,
		After: func(*cli.Context) error {
			debug.Close()
			return nil
		},
		Commands: []*cli.Command{
			parseCommand(a),
			exportCommand(a),
			describeCommand(a),
			serveCommand(a),
			settingsCommand(a),
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
