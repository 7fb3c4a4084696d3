package messaging

import "errors"

var (
	// ErrSetup wraps failures to allocate the context or socket, or an
	// endpoint that cannot be parsed
	ErrSetup = errors.New("messaging setup failed")
	// ErrTimeout is returned when the exchange deadline passes before the reply
	ErrTimeout = errors.New("exchange timed out")
	// ErrRequestOutstanding is returned while an earlier request still waits
	// for its reply
	ErrRequestOutstanding = errors.New("request outstanding")
	// ErrClosed is returned by operations on a closed client
	ErrClosed = errors.New("messaging client closed")
	// ErrAlreadyOpen is returned by a second Open
	ErrAlreadyOpen = errors.New("messaging client already open")
	// ErrNotOpen is returned by Exchange before Open
	ErrNotOpen = errors.New("messaging client not open")
)
