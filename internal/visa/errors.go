package visa

import (
	"errors"
	"fmt"
)

var (
	ErrIO               = errors.New("visa: i/o error")
	ErrTimeout          = errors.New("visa: timeout expired before operation completed")
	ErrInvalidAddress   = errors.New("visa: invalid resource address")
	ErrUnknownInterface = errors.New("visa: unsupported interface type")
	ErrResourceNotFound = errors.New("visa: resource not found")
	ErrClosed           = errors.New("visa: resource closed")
	ErrLineTooLong      = errors.New("visa: response line too long")
)

// IOError is the instrument-I/O error kind: any failure while opening,
// writing to or reading from a resource. It matches ErrIO with errors.Is.
type IOError struct {
	Op      string
	Address string
	Err     error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("visa: %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

func ioError(op, address string, err error) error {
	var existing *IOError
	if errors.As(err, &existing) {
		return err
	}
	return &IOError{Op: op, Address: address, Err: err}
}

// IsIOError reports whether err is an instrument-I/O failure.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
