// Package debug holds the process wide logger.
package debug

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const TimestampFormat = "2006-01-02 15:04:05.000"

var Logger = logrus.New()

var (
	mu sync.Mutex
	fh *os.File
)

type Options struct {
	Level  string // panic, fatal, error, warn, info, debug, trace
	Format string // text, json
	// File, when set, receives a copy of every entry. It is opened for
	// appending.
	File string
}

func init() {
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: TimestampFormat,
	})
}

// Setup configures Logger. It may be called again to reconfigure.
func Setup(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	Logger.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		Logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: TimestampFormat,
		})
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: TimestampFormat,
		})
	default:
		return fmt.Errorf("unknown log format %q", opts.Format)
	}

	closeFile()
	if opts.File == "" {
		Logger.SetOutput(os.Stderr)
		return nil
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		Logger.SetOutput(os.Stderr)
		return fmt.Errorf("error opening file: %w", err)
	}
	fh = f
	Logger.SetOutput(io.MultiWriter(os.Stderr, fh))
	return nil
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeFile()
	Logger.SetOutput(os.Stderr)
}

func closeFile() {
	if fh == nil {
		return
	}
	fh.Sync()
	fh.Close()
	fh = nil
}
