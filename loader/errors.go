package loader

import (
	"errors"
	"fmt"
)

// ErrRead indicates the source file exists but could not be opened or read.
type ErrRead struct {
	Path string
	Err  error
}

func (e ErrRead) Error() string {
	return fmt.Errorf("read %s: %w", e.Path, e.Err).Error()
}

func (e ErrRead) Unwrap() error {
	return e.Err
}

// ErrEncoding indicates the source file is not valid UTF-8.
type ErrEncoding struct {
	Path string
	Err  error
}

func (e ErrEncoding) Error() string {
	return fmt.Errorf("encoding %s: %w", e.Path, e.Err).Error()
}

func (e ErrEncoding) Unwrap() error {
	return e.Err
}

// ErrFormat indicates the delimited text could not be parsed.
type ErrFormat struct {
	Path string
	Line int
	Err  error
}

func (e ErrFormat) Error() string {
	return fmt.Errorf("format %s line %d: %w", e.Path, e.Line, e.Err).Error()
}

func (e ErrFormat) Unwrap() error {
	return e.Err
}

// ErrorLabel returns a short metric label for a loader failure.
func ErrorLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var encoding ErrEncoding
	if errors.As(err, &encoding) {
		return "encoding"
	}
	var format ErrFormat
	if errors.As(err, &format) {
		return "format"
	}
	var read ErrRead
	if errors.As(err, &read) {
		return "read"
	}
	return "other"
}
