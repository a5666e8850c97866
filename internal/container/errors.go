package container

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrIO is returned when the file cannot be opened, read or written.
	ErrIO = errors.New("container i/o error")

	// ErrFormat is returned when the bytes do not follow the container layout.
	ErrFormat = errors.New("malformed container")
)

// Error describes a failed container operation.
type Error struct {
	Op   string // operation being performed
	Path string // file path, empty for stream operations
	Kind error  // ErrIO or ErrFormat
	Err  error  // underlying error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func ioError(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Kind: ErrIO, Err: err}
}

func formatError(op string, err error) *Error {
	return &Error{Op: op, Kind: ErrFormat, Err: err}
}
