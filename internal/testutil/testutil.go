// Package testutil provides shared test utilities and fixtures.
//
// Alongside the generic assertion helpers it can build wire-format sensor
// frames, so integration-level tests do not have to hand-encode the binary
// layout.
package testutil

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ObjectPayload encodes detected objects into the wire layout of the
// point-cloud TLV: four little-endian float32 values per object.
func ObjectPayload(objects []mmwave.DetectedObject) []byte {
	payload := make([]byte, 0, len(objects)*mmwave.ObjectLen)
	for _, o := range objects {
		for _, f := range []float32{o.X, o.Y, o.Z, o.Velocity} {
			payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(f))
		}
	}
	return payload
}

// BuildFrame encodes a complete wire frame: magic word, header, and a single
// point-cloud TLV carrying the given objects.
func BuildFrame(frameNumber uint32, objects []mmwave.DetectedObject) []byte {
	payload := ObjectPayload(objects)
	tlvLen := uint32(mmwave.TLVHeaderLen + len(payload))
	total := uint32(mmwave.MagicLen+mmwave.HeaderLen) + tlvLen

	frame := make([]byte, 0, total)
	frame = append(frame, 0x02, 0x01, 0x04, 0x03, 0x06, 0x05, 0x08, 0x07)
	for _, v := range []uint32{
		0x03060000,           // version
		total,                // totalPacketLen
		0xA6843,              // platform
		frameNumber,          // frameNumber
		123456,               // timeCpuCycles
		uint32(len(objects)), // numDetectedObj
		1,                    // numTLVs
		0,                    // subFrameNumber
	} {
		frame = binary.LittleEndian.AppendUint32(frame, v)
	}
	frame = binary.LittleEndian.AppendUint32(frame, mmwave.TypeDetectedObjects)
	frame = binary.LittleEndian.AppendUint32(frame, tlvLen)
	frame = append(frame, payload...)
	return frame
}
