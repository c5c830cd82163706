// Package config holds the application settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/roffe/elevtrace/pkg/debug"
	"gopkg.in/yaml.v3"
)

const DefaultFile = "elevtrace.yaml"

type Settings struct {
	Listen      string `yaml:"listen"`
	OpenBrowser bool   `yaml:"open_browser"`
	// ConfigURL replaces the built in signal config when set.
	ConfigURL string `yaml:"config_url"`

	Log debug.Options `yaml:"log"`

	DescribeCacheTTL time.Duration `yaml:"describe_cache_ttl"`
	FetchAttempts    uint          `yaml:"fetch_attempts"`
	FetchDelay       time.Duration `yaml:"fetch_delay"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
}

func Default() *Settings {
	return &Settings{
		Listen: "127.0.0.1:8421",
		Log: debug.Options{
			Level:  "info",
			Format: "text",
		},
		DescribeCacheTTL: 10 * time.Minute,
		FetchAttempts:    4,
		FetchDelay:       1500 * time.Millisecond,
		FetchTimeout:     30 * time.Second,
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (*Settings, error) {
	s := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %q: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings %q: %w", path, err)
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.Listen == "" {
		return errors.New("listen address is empty")
	}
	if s.FetchAttempts == 0 {
		return errors.New("fetch_attempts must be at least 1")
	}
	if s.DescribeCacheTTL < 0 || s.FetchDelay < 0 || s.FetchTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

func (s *Settings) Save(path string) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
