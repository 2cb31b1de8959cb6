package dot11

import "errors"

var (
	// ErrShortBuffer is returned when an Encode target or Decode source is
	// smaller than the frame it must hold.
	ErrShortBuffer = errors.New("dot11: buffer too short")
	// ErrTruncated is returned when a variable-length body ends before an
	// information element it declares is fully present.
	ErrTruncated = errors.New("dot11: frame truncated")
	// ErrBadSubtype is returned when a parser is handed a header whose
	// Subtype does not match the body it is asked to decode.
	ErrBadSubtype = errors.New("dot11: subtype mismatch")
)
