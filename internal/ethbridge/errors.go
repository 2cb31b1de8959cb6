package ethbridge

import "errors"

// ErrShortFrame is returned when a buffer is too small to hold the header
// it is claimed to contain.
var ErrShortFrame = errors.New("ethbridge: frame too short")
