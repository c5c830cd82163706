package auxtable

import "fmt"

// ConfigParseError is returned for malformed XML. No index is built.
type ConfigParseError struct {
	Name string
	Err  error
}

func (e *ConfigParseError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("parse config: %v", e.Err)
	}
	return fmt.Sprintf("parse config %q: %v", e.Name, e.Err)
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}

// ConfigLoadError is a transport failure while fetching a config.
type ConfigLoadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ConfigLoadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("load config %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("load config %s: %v", e.URL, e.Err)
}

func (e *ConfigLoadError) Unwrap() error {
	return e.Err
}
