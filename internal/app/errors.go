package app

import "errors"

var (
	// ErrReadingNotFound indicates the reading does not exist or is not
	// owned by the caller.
	ErrReadingNotFound   = errors.New("reading not found")
	ErrSelectionNotFound = errors.New("selection not found")
	// ErrSendInFlight rejects a send while another send on the same
	// session is still running.
	ErrSendInFlight = errors.New("a message is already being processed")
)
