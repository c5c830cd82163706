package main

import (
	"github.com/roffe/elevtrace/pkg/config"
	"github.com/roffe/elevtrace/pkg/debug"
	"github.com/roffe/elevtrace/pkg/eventbus"
	"github.com/roffe/elevtrace/pkg/session"
	"github.com/urfave/cli/v2"
)

type app struct {
	settings *config.Settings
}

// before loads the settings file, which only has to exist when it was
// named explicitly, and applies the logging flags on top.
func (a *app) before(c *cli.Context) error {
	st, err := config.Load(c.String("settings"), !c.IsSet("settings"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		st.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-file") {
		st.Log.File = c.String("log-file")
	}
	if err := debug.Setup(st.Log); err != nil {
		return err
	}
	a.settings = st
	return nil
}

func (a *app) openSession(c *cli.Context, bus *eventbus.Controller) (*session.Session, error) {
	sess, err := session.Open(c.Context, a.settings, bus, debug.Logger)
	if err != nil {
		return nil, err
	}
	if path := c.String("config"); path != "" {
		if err := sess.LoadConfigFile(path); err != nil {
			sess.Close()
			return nil, err
		}
	}
	return sess, nil
}

// loadTrace opens a session and loads the trace named by the first argument.
func (a *app) loadTrace(c *cli.Context) (*session.Session, error) {
	path := c.Args().First()
	if path == "" {
		return nil, cli.Exit("no trace file given", 2)
	}
	sess, err := a.openSession(c, nil)
	if err != nil {
		return nil, err
	}
	if err := sess.LoadTrace(c.Context, path); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}
