package mmwave

import (
	"errors"
	"fmt"
)

// Sentinel errors for the decoder. Protocol errors discard the failing frame
// but never stop the stream; the decoder resynchronizes one byte past the
// failed marker and keeps scanning.
var (
	// ErrInvalidHeader indicates a frame header whose totalPacketLen is
	// smaller than the minimum legal frame or larger than the configured
	// maximum frame size.
	ErrInvalidHeader = errors.New("invalid frame header")

	// ErrTruncatedTLV indicates fewer than 8 bytes remained in the frame
	// body where a TLV header was declared.
	ErrTruncatedTLV = errors.New("truncated TLV header")

	// ErrInvalidTLVLength indicates a TLV whose declared length is below 8
	// or extends past the end of the frame body.
	ErrInvalidTLVLength = errors.New("invalid TLV length")

	// ErrMalformedObjectArray indicates a detected-object TLV whose length
	// does not match the header's declared object count.
	ErrMalformedObjectArray = errors.New("malformed object array")

	// ErrBufferOverflow indicates the reassembly buffer exceeded its cap and
	// the oldest unattributed bytes were dropped to make room.
	ErrBufferOverflow = errors.New("reassembly buffer overflow")

	// ErrOutOfRange is returned by buffer views that would read past the
	// logical end of the buffered data.
	ErrOutOfRange = errors.New("buffer view out of range")

	// errIncomplete is a soft failure meaning "wait for more bytes". It is
	// internal to the decoder and never surfaced to callers.
	errIncomplete = errors.New("incomplete")
)

// ProtocolError reports a malformed frame encountered in the stream. It wraps
// one of the protocol sentinels so callers can test with errors.Is while
// still seeing where in the stream the frame failed.
type ProtocolError struct {
	// FrameNumber is the header-declared frame number, when the header was
	// readable, else zero.
	FrameNumber uint32

	// Detail describes the specific inconsistency.
	Detail string

	// Err is the wrapped sentinel.
	Err error
}

func (e *ProtocolError) Error() string {
	if e.FrameNumber != 0 {
		return fmt.Sprintf("frame %d: %v: %s", e.FrameNumber, e.Err, e.Detail)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// withFrame attributes a frame number to an error raised below the header
// level, where the number was not yet known.
func (e *ProtocolError) withFrame(n uint32) *ProtocolError {
	e.FrameNumber = n
	return e
}

func protocolErrorf(sentinel error, frameNumber uint32, format string, args ...any) *ProtocolError {
	return &ProtocolError{
		FrameNumber: frameNumber,
		Detail:      fmt.Sprintf(format, args...),
		Err:         sentinel,
	}
}
