package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/roffe/elevtrace/pkg/auxtable"
	"github.com/roffe/elevtrace/pkg/debug"
	"github.com/roffe/elevtrace/pkg/eventbus"
	"github.com/roffe/elevtrace/pkg/export"
	"github.com/roffe/elevtrace/pkg/server"
	"github.com/roffe/elevtrace/pkg/source"
	"github.com/roffe/elevtrace/pkg/trace"
	"github.com/roffe/elevtrace/pkg/view"
	"github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func parseCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "parse a trace file and print a summary",
		ArgsUsage: "<trace.txt>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the whole document as JSON",
			},
			&cli.StringFlag{
				Name:  "section",
				Usage: "print only this section as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			sess, err := a.loadTrace(c)
			if err != nil {
				return err
			}
			defer sess.Close()
			doc := sess.Document()

			switch {
			case c.IsSet("section"):
				recs, err := doc.Section(trace.SectionKind(c.String("section")))
				if err != nil {
					return err
				}
				return printJSON(recs)
			case c.Bool("json"):
				return printJSON(doc)
			}
			printSummary(doc)
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(doc *trace.Document) {
	fmt.Printf("file:    %s (%s)\n", doc.FileName, source.FormatSize(doc.FileSize))
	fmt.Printf("parsed:  %s\n", doc.ParseDuration)
	for k, v := range doc.Control {
		fmt.Printf("control: %s = %s\n", k, v)
	}
	if doc.Driver != nil {
		fmt.Printf("driver:  %s\n", doc.Driver.Timestamp)
	}
	for _, kind := range trace.SectionKinds {
		fmt.Printf("%-20s %d\n", kind, doc.SectionLen(kind))
	}
}

func exportCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "write views of a trace file as CSV or an Excel workbook",
		ArgsUsage: "<trace.txt>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "view",
				Usage: "view to export, repeatable; xlsx writes every view to one workbook",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "output directory",
				Value:   ".",
			},
		},
		Action: func(c *cli.Context) error {
			sess, err := a.loadTrace(c)
			if err != nil {
				return err
			}
			defer sess.Close()
			set, err := sess.Views()
			if err != nil {
				return err
			}

			names := c.StringSlice("view")
			if len(names) == 0 {
				for _, n := range view.Names {
					if set.Len(n) > 0 {
						names = append(names, string(n))
					}
				}
			}
			now := time.Now()
			for _, raw := range names {
				if err := exportOne(c.String("out"), raw, set, now); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func exportOne(dir, raw string, set *view.Set, now time.Time) error {
	var (
		path  string
		write func(*os.File) error
	)
	if raw == "xlsx" {
		path = filepath.Join(dir, export.WorkbookName(now))
		write = func(f *os.File) error { return export.WriteWorkbook(f, set) }
	} else {
		n, err := view.ParseName(raw)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		path = filepath.Join(dir, export.FileName(n, now))
		write = func(f *os.File) error { return export.WriteCSV(f, set, n) }
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	debug.Logger.WithField("file", path).Info("exported")
	return nil
}

func describeCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "describe",
		Usage:     "look up the description of a signal",
		ArgsUsage: "<signal name>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "order",
				Usage: "position of the signal in its table, -1 for none",
				Value: auxtable.NoOrder,
			},
			&cli.StringFlag{
				Name:  "table",
				Usage: "table code, inferred from the name when empty",
			},
		},
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			if name == "" {
				return cli.Exit("no signal name given", 2)
			}
			sess, err := a.openSession(c, nil)
			if err != nil {
				return err
			}
			defer sess.Close()
			fmt.Println(sess.Describe(name, c.Int("order"), c.String("table")))
			return nil
		},
	}
}

func serveCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen address, overrides the settings file",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "open the API in the default browser",
			},
		},
		Action: func(c *cli.Context) error {
			st := a.settings
			if c.IsSet("listen") {
				st.Listen = c.String("listen")
			}
			bus := eventbus.New(eventbus.DefaultConfig)
			defer bus.Close()

			sess, err := a.openSession(c, bus)
			if err != nil {
				return err
			}
			defer sess.Close()

			s := server.New(server.Config{Session: sess, Bus: bus, Logger: debug.Logger})
			if err := s.Listen(st.Listen); err != nil {
				return err
			}
			defer s.Close()

			if c.Bool("open") || st.OpenBrowser {
				u := "http://" + s.Addr() + "/api/trace"
				if err := open.Run(u); err != nil {
					debug.Logger.WithError(err).WithField("url", u).Warn("failed to open browser")
				}
			}

			sig := make(chan os.Signal, 2)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			select {
			case ss := <-sig:
				debug.Logger.WithFields(logrus.Fields{"signal": ss.String()}).Info("shutting down")
			case <-c.Done():
			}
			return nil
		},
	}
}

func settingsCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "print the effective settings",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "write",
				Usage: "save them to the settings file",
			},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("write") {
				path := c.String("settings")
				if err := a.settings.Save(path); err != nil {
					return err
				}
				debug.Logger.WithField("file", path).Info("settings written")
				return nil
			}
			b, err := yaml.Marshal(a.settings)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(b)
			return err
		},
	}
}
