// Package trace parses elevator controller diagnostic dumps.
package trace

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roffe/elevtrace/pkg/debug"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Progress is called from the parser goroutines each time a section is
	// done. It must be safe for concurrent use.
	Progress func(done, total int)
	Now      func() time.Time
	Logger   logrus.FieldLogger
}

// Parse builds a Document from the decoded text of a trace file. The driver
// region is best effort: if it cannot be parsed the document is returned
// without it.
func Parse(name string, size int64, text string, opts *Options) (*Document, error) {
	if opts == nil {
		opts = &Options{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = debug.Logger
	}

	start := now()
	stamp := start.Format(time.RFC3339)

	primary := text
	driverStart, hasDriver := DetectDriver(text)
	if hasDriver {
		primary = text[:driverStart]
	}
	sec := splitPrimary(primary)

	doc := &Document{
		FileName: name,
		FileSize: size,
		LoadedAt: start,
	}

	total := 5
	if hasDriver {
		total++
	}
	var done atomic.Int32
	step := func() {
		n := done.Add(1)
		if opts.Progress != nil {
			opts.Progress(int(n), total)
		}
	}

	var g errgroup.Group
	run := func(section string, fn func()) {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &ParseError{Section: section, Err: fmt.Errorf("%v", r)}
				}
			}()
			fn()
			step()
			return nil
		})
	}

	run("control", func() { doc.Control = parseControl(sec.control, start) })
	run("bit", func() { doc.Bits = ParseBits(sec.bit) })
	run(DataType25ms, func() { doc.PeriodicA = ParseNumeric(sec.periodicA, DataType25ms) })
	run(DataType50ms, func() { doc.PeriodicB = ParseNumeric(sec.periodicB, DataType50ms) })
	run("snapshot", func() { doc.Snapshot = ParseSnapshot(sec.snapshot, Category, stamp) })

	if hasDriver {
		g.Go(func() error {
			drv, err := safeParseDriver(text[driverStart:], start)
			if err != nil {
				log.WithError(err).WithField("file", name).Warn("driver trace dropped")
			}
			doc.Driver = drv
			step()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	doc.ParseDuration = now().Sub(start)

	log.WithFields(logrus.Fields{
		"file":     name,
		"bits":     len(doc.Bits),
		"25ms":     len(doc.PeriodicA),
		"50ms":     len(doc.PeriodicB),
		"snapshot": len(doc.Snapshot),
		"driver":   doc.Driver != nil,
		"took":     doc.ParseDuration,
	}).Debug("trace parsed")
	return doc, nil
}
