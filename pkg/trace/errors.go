package trace

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSection = errors.New("unknown section")
	ErrDriverNotFound = errors.New("driver region not found")
)

// ParseError reports a section parser that failed outright. Sections that
// are merely missing or malformed parse to empty slices instead.
type ParseError struct {
	Section string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s section: %v", e.Section, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
