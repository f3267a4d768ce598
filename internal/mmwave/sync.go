package mmwave

import "bytes"

// magicWord is the fixed 8-byte sentinel that opens every frame on the wire.
var magicWord = []byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05, 0x08, 0x07}

// findMarker returns the lowest offset at which the full magic word occurs in
// buf, or -1 when no complete match exists. A marker only partially present
// at the tail is deliberately not a match: the remaining bytes arrive with
// the next chunk and the persisted buffer will then contain the full
// sequence. Scanning only persisted bytes is what makes the search immune to
// arbitrary chunking by the transport.
func findMarker(buf []byte) int {
	return bytes.Index(buf, magicWord)
}
