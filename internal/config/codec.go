package config

import (
	"github.com/Zereker/timer"
)

// NewCodec returns the codec for a framing name. Unknown names fall back to raw;
// Validate rejects them before this is reached.
func NewCodec(framing string, readBufferSize int) timer.Codec {
	if framing == FramingLength {
		return timer.NewLengthPrefixedCodec(0)
	}
	return timer.NewRawCodec(readBufferSize)
}
