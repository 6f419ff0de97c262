package protocol

import "errors"

// Sentinel errors for the transport/protocol error taxonomy. Mirrors the
// teacher's fmt.Errorf-wrapping style; callers compare with errors.Is.
var (
	// ErrMalformedReport is returned (for logging only — callers should
	// not treat this as fatal) when an output report fails the basic
	// well-formedness check: wrong length, or first byte != 0xA2.
	ErrMalformedReport = errors.New("protocol: malformed output report")
)
