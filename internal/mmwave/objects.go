package mmwave

import (
	"encoding/binary"
	"math"
)

// decodeObjects decodes count fixed-size detected-object records from a
// type-6 TLV payload. The payload must be exactly count*16 bytes — the
// device writes the object array sized by the header's numDetectedObj, so
// any other length means the header and TLV disagree and the frame is
// malformed.
func decodeObjects(payload []byte, count uint32) ([]DetectedObject, *ProtocolError) {
	if len(payload) != int(count)*ObjectLen {
		return nil, protocolErrorf(ErrMalformedObjectArray, 0,
			"object payload is %d bytes, want %d for %d objects", len(payload), int(count)*ObjectLen, count)
	}
	objects := make([]DetectedObject, 0, count)
	for off := 0; off < len(payload); off += ObjectLen {
		objects = append(objects, DetectedObject{
			X:        math.Float32frombits(binary.LittleEndian.Uint32(payload[off : off+4])),
			Y:        math.Float32frombits(binary.LittleEndian.Uint32(payload[off+4 : off+8])),
			Z:        math.Float32frombits(binary.LittleEndian.Uint32(payload[off+8 : off+12])),
			Velocity: math.Float32frombits(binary.LittleEndian.Uint32(payload[off+12 : off+16])),
		})
	}
	return objects, nil
}
