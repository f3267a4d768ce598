package mmwave

import "encoding/binary"

// walkBody consumes the frame body (the totalPacketLen-40 bytes after the
// header) one TLV at a time, for exactly hdr.NumTLVs records. The body bound
// comes from totalPacketLen, so a TLV count that disagrees with the packet
// length surfaces here as a truncated or oversized TLV rather than a read
// past the end. One pass, not restartable.
//
// The detected-object TLV is decoded; every other type is retained opaque
// with its payload copied out, so unrecognized types never abort the frame.
// Bytes left after the declared count are reported via trailing and
// tolerated.
func walkBody(body []byte, hdr FrameHeader) (objects []DetectedObject, unknown []TLV, trailing int, err error) {
	off := 0
	for i := uint32(0); i < hdr.NumTLVs; i++ {
		remain := len(body) - off
		if remain < TLVHeaderLen {
			return nil, nil, 0, protocolErrorf(ErrTruncatedTLV, hdr.FrameNumber,
				"TLV %d/%d: %d bytes remain, need %d", i+1, hdr.NumTLVs, remain, TLVHeaderLen)
		}
		tlvType := binary.LittleEndian.Uint32(body[off : off+4])
		tlvLen := binary.LittleEndian.Uint32(body[off+4 : off+8])

		if tlvLen < TLVHeaderLen {
			return nil, nil, 0, protocolErrorf(ErrInvalidTLVLength, hdr.FrameNumber,
				"TLV %d/%d type %d: declared length %d below header size", i+1, hdr.NumTLVs, tlvType, tlvLen)
		}
		if int(tlvLen) > remain {
			return nil, nil, 0, protocolErrorf(ErrInvalidTLVLength, hdr.FrameNumber,
				"TLV %d/%d type %d: declared length %d exceeds %d remaining body bytes",
				i+1, hdr.NumTLVs, tlvType, tlvLen, remain)
		}

		payload := body[off+TLVHeaderLen : off+int(tlvLen)]
		switch tlvType {
		case TypeDetectedObjects:
			objs, derr := decodeObjects(payload, hdr.NumDetectedObj)
			if derr != nil {
				return nil, nil, 0, derr.withFrame(hdr.FrameNumber)
			}
			objects = append(objects, objs...)
		default:
			unknown = append(unknown, TLV{
				Type:    tlvType,
				Length:  tlvLen,
				Payload: append([]byte(nil), payload...),
			})
		}
		off += int(tlvLen)
	}
	return objects, unknown, len(body) - off, nil
}
