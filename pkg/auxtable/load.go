package auxtable

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/roffe/elevtrace/pkg/debug"
	"github.com/roffe/elevtrace/pkg/source"
	"github.com/sirupsen/logrus"
)

// BuiltinName is the name the bundled config is known by.
const BuiltinName = "AuxSubTableItem.xml"

//go:embed AuxSubTableItem.xml
var builtinXML []byte

// Builtin parses the config bundled with the binary.
func Builtin() (*Index, error) {
	return parseNamed(BuiltinName, builtinXML)
}

// LoadFile validates and parses a config file from disk.
func LoadFile(path string) (*Index, error) {
	b, err := source.ReadFile(path, source.ConfigRule)
	if err != nil {
		return nil, err
	}
	return parseNamed(filepath.Base(path), b)
}

// LoadBytes validates and parses config contents received under name.
func LoadBytes(name string, b []byte) (*Index, error) {
	if err := source.Validate(name, int64(len(b)), source.ConfigRule); err != nil {
		return nil, err
	}
	return parseNamed(name, b)
}

func parseNamed(name string, b []byte) (*Index, error) {
	idx, err := Parse(bytes.NewReader(b))
	if err != nil {
		var pe *ConfigParseError
		if errors.As(err, &pe) {
			pe.Name = name
		}
		return nil, err
	}
	return idx, nil
}

type FetchOptions struct {
	Client   *http.Client
	Attempts uint
	Delay    time.Duration
	Logger   logrus.FieldLogger
}

var DefaultFetchOptions = FetchOptions{
	Attempts: 4,
	Delay:    1500 * time.Millisecond,
}

// Fetch downloads and parses a config. Transport failures and 5xx responses
// are retried, 4xx responses are not.
func Fetch(ctx context.Context, url string, opts *FetchOptions) (*Index, error) {
	if opts == nil {
		o := DefaultFetchOptions
		opts = &o
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	log := opts.Logger
	if log == nil {
		log = debug.Logger
	}
	attempts := opts.Attempts
	if attempts == 0 {
		attempts = DefaultFetchOptions.Attempts
	}

	var body []byte
	err := retry.Do(func() error {
		b, err := fetchOnce(ctx, client, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	},
		retry.Context(ctx),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(opts.Delay),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).WithField("url", url).Warnf("retry %d", n+1)
		}),
	)
	if err != nil {
		var le *ConfigLoadError
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, &ConfigLoadError{URL: url, Err: err}
	}
	return parseNamed(url, body)
}

func fetchOnce(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Unrecoverable(&ConfigLoadError{URL: url, Err: err})
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &ConfigLoadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		le := &ConfigLoadError{URL: url, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, retry.Unrecoverable(le)
		}
		return nil, le
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, source.MaxConfigSize+1))
	if err != nil {
		return nil, &ConfigLoadError{URL: url, Err: err}
	}
	if len(b) > source.MaxConfigSize {
		return nil, retry.Unrecoverable(&ConfigLoadError{URL: url, Err: fmt.Errorf("%w: over %s", source.ErrFileTooLarge, source.FormatSize(source.MaxConfigSize))})
	}
	if len(b) == 0 {
		return nil, retry.Unrecoverable(&ConfigLoadError{URL: url, Err: source.ErrEmptyFile})
	}
	return b, nil
}
