// Package mmwave decodes the binary output stream of TI mmWave-style ranging
// radars into validated frames of detected objects.
//
// The device writes frames back-to-back on its data UART: an 8-byte magic
// word, a 32-byte header, then a sequence of type-length-value sub-records.
// The transport chunks that stream arbitrarily, so the decoder reassembles
// chunks in an internal buffer and extracts frames as they complete. All
// lengths taken from the wire are validated against the bytes actually
// available before any read — corrupt or truncated input produces protocol
// errors, never out-of-bounds access.
package mmwave

import (
	"encoding/binary"
	"time"
)

// Wire layout constants. All multi-byte fields are little-endian.
const (
	MagicLen  = 8                    // magic word bytes
	HeaderLen = 32                   // 8 uint32 header fields
	FrameMin  = MagicLen + HeaderLen // smallest legal totalPacketLen

	TLVHeaderLen = 8  // type + length, both uint32
	ObjectLen    = 16 // 4 float32 per detected object

	// TypeDetectedObjects is the TLV type carrying the detected-object
	// array. All other TLV types are retained opaque and skipped by their
	// declared length.
	TypeDetectedObjects = 6
)

// FrameHeader is the fixed header following the magic word.
type FrameHeader struct {
	Version        uint32 `json:"version"`
	TotalPacketLen uint32 `json:"total_packet_len"`
	Platform       uint32 `json:"platform"`
	FrameNumber    uint32 `json:"frame_number"`
	TimeCPUCycles  uint32 `json:"time_cpu_cycles"`
	NumDetectedObj uint32 `json:"num_detected_obj"`
	NumTLVs        uint32 `json:"num_tlvs"`
	SubFrameNumber uint32 `json:"sub_frame_number"`
}

// DetectedObject is one ranged detection: Cartesian position in meters and
// radial velocity in m/s. The decoder performs no semantic validation of the
// values; NaN and Inf pass through for the caller to handle.
type DetectedObject struct {
	X        float32 `json:"x"`
	Y        float32 `json:"y"`
	Z        float32 `json:"z"`
	Velocity float32 `json:"velocity"`
}

// TLV is a sub-record the decoder does not interpret. Length is the wire
// value and includes the 8-byte TLV header; Payload holds the remaining
// Length-8 bytes, copied out of the reassembly buffer.
type TLV struct {
	Type    uint32 `json:"type"`
	Length  uint32 `json:"length"`
	Payload []byte `json:"-"`
}

// Frame is one complete, validated protocol message. It is read-only output:
// the decoder never mutates a frame after handing it to the caller.
type Frame struct {
	Header   FrameHeader      `json:"header"`
	Objects  []DetectedObject `json:"objects"`
	Unknown  []TLV            `json:"unknown_tlvs,omitempty"`
	Received time.Time        `json:"received"`

	// TrailingBytes counts body bytes left over after the declared TLV
	// count was consumed. Trailing padding is tolerated, not an error.
	TrailingBytes int `json:"trailing_bytes,omitempty"`
}

// decodeHeader parses the fixed header from the 32 bytes following a
// confirmed magic word. Fewer than 32 bytes is the soft errIncomplete,
// meaning wait for more data.
func decodeHeader(b []byte) (FrameHeader, error) {
	if len(b) < HeaderLen {
		return FrameHeader{}, errIncomplete
	}
	return FrameHeader{
		Version:        binary.LittleEndian.Uint32(b[0:4]),
		TotalPacketLen: binary.LittleEndian.Uint32(b[4:8]),
		Platform:       binary.LittleEndian.Uint32(b[8:12]),
		FrameNumber:    binary.LittleEndian.Uint32(b[12:16]),
		TimeCPUCycles:  binary.LittleEndian.Uint32(b[16:20]),
		NumDetectedObj: binary.LittleEndian.Uint32(b[20:24]),
		NumTLVs:        binary.LittleEndian.Uint32(b[24:28]),
		SubFrameNumber: binary.LittleEndian.Uint32(b[28:32]),
	}, nil
}

// validate checks the header-declared packet length against the minimum
// legal frame and the configured maximum. The maximum guards against a
// corrupted length field stalling the decoder waiting for gigabytes that
// will never arrive.
func (h FrameHeader) validate(maxFrameLen int) error {
	if h.TotalPacketLen < FrameMin {
		return protocolErrorf(ErrInvalidHeader, h.FrameNumber,
			"totalPacketLen %d below minimum frame size %d", h.TotalPacketLen, FrameMin)
	}
	if maxFrameLen > 0 && int(h.TotalPacketLen) > maxFrameLen {
		return protocolErrorf(ErrInvalidHeader, h.FrameNumber,
			"totalPacketLen %d exceeds maximum frame size %d", h.TotalPacketLen, maxFrameLen)
	}
	return nil
}
