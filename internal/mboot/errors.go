package mboot

import (
	"errors"
	"fmt"

	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

var (
	// ErrNotOpen is returned by operations on a closed session.
	ErrNotOpen = errors.New("device not opened")

	// ErrInvalidResponse is returned when the device answers with an unexpected frame.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrVerify is returned when read-back data differs from what was written.
	ErrVerify = errors.New("verification failed")
)

// CommandError is a non-success status reported for a command.
type CommandError struct {
	Command string
	Status  protocol.StatusCode
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed: %s (%s)", e.Command, e.Status.Description(), e.Status.Label())
}

// ConnectionError is a failure of the link to the device.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsStatus reports whether err is a CommandError with the given status.
func IsStatus(err error, status protocol.StatusCode) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.Status == status
}
