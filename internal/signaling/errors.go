package signaling

import (
	"errors"
	"fmt"
)

var (
	ErrUnreachable       = errors.New("relay unreachable")
	ErrNotConnected      = errors.New("relay not connected")
	ErrClosed            = errors.New("relay connection closed")
	ErrSubscribeRejected = errors.New("relay rejected subscription")
	ErrReceiptTimeout    = errors.New("relay receipt timeout")
)

// Error records the relay operation and room that failed.
type Error struct {
	Op   string
	Room string
	Err  error
}

func (e *Error) Error() string {
	if e.Room != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Room, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op, room string, err error) error {
	return &Error{Op: op, Room: room, Err: err}
}
