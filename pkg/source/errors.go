package source

import (
	"errors"
	"fmt"
)

var (
	ErrWrongExtension = errors.New("wrong file extension")
	ErrFileTooLarge   = errors.New("file too large")
	ErrEmptyFile      = errors.New("file is empty")
)

// ValidationError is returned before any read is attempted.
type ValidationError struct {
	Name string
	Kind string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type ReadError struct {
	Name string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %q: %v", e.Name, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
