package pipeline

import "errors"

var (
	// ErrDecode marks a source byte stream the decoder could not read.
	ErrDecode = errors.New("undecodable source image")

	// ErrResample marks a resize that cannot be computed.
	ErrResample = errors.New("resample failed")

	// ErrEncode marks an encode the active backend cannot perform.
	ErrEncode = errors.New("encode failed")
)
