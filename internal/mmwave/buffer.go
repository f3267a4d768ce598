package mmwave

import "fmt"

// reassemblyBuffer accumulates serial chunks until complete frames can be
// parsed. It holds exactly the bytes not yet attributed to a completed or
// discarded frame, in arrival order. The decoder is its sole mutator; every
// other component only ever sees bounds-checked views.
//
// Trimming is amortized: consumed bytes advance a start offset and the
// backing array is compacted only once the dead prefix dominates, so per-frame
// consumption does not repeatedly copy the whole buffer.
type reassemblyBuffer struct {
	data []byte
	off  int // consumed prefix inside data
	max  int // cap on logical length; <=0 means unbounded
}

func newReassemblyBuffer(max int) *reassemblyBuffer {
	return &reassemblyBuffer{max: max}
}

// Len returns the number of unconsumed bytes.
func (b *reassemblyBuffer) Len() int {
	return len(b.data) - b.off
}

// Bytes returns the unconsumed bytes. Callers must treat the slice as
// read-only and must not retain it across Append or Trim calls.
func (b *reassemblyBuffer) Bytes() []byte {
	return b.data[b.off:]
}

// Append adds a chunk at the tail. If the configured cap would be exceeded it
// drops the oldest unattributed bytes to make room and returns how many were
// dropped; the caller must then force resynchronization. A chunk larger than
// the cap itself keeps only its newest max bytes.
func (b *reassemblyBuffer) Append(chunk []byte) (dropped int) {
	if len(chunk) == 0 {
		return 0
	}
	if b.max > 0 {
		if over := len(chunk) - b.max; over > 0 {
			// The chunk alone busts the cap: everything buffered plus the
			// chunk's oldest bytes go.
			dropped = b.Len() + over
			b.data = b.data[:0]
			b.off = 0
			chunk = chunk[over:]
		} else if over := b.Len() + len(chunk) - b.max; over > 0 {
			dropped = over
			b.Trim(over)
		}
	}
	b.compact()
	b.data = append(b.data, chunk...)
	return dropped
}

// Trim removes the first n bytes. n beyond the logical length clears the
// buffer.
func (b *reassemblyBuffer) Trim(n int) {
	if n <= 0 {
		return
	}
	if n >= b.Len() {
		b.data = b.data[:0]
		b.off = 0
		return
	}
	b.off += n
	b.compact()
}

// View returns a bounds-checked read-only slice of the unconsumed bytes.
func (b *reassemblyBuffer) View(off, length int) ([]byte, error) {
	if off < 0 || length < 0 || off+length > b.Len() {
		return nil, fmt.Errorf("%w: [%d, %d) of %d buffered bytes", ErrOutOfRange, off, off+length, b.Len())
	}
	return b.data[b.off+off : b.off+off+length], nil
}

// compact reclaims the consumed prefix once it outweighs the live bytes.
func (b *reassemblyBuffer) compact() {
	if b.off == 0 || b.off < len(b.data)-b.off {
		return
	}
	n := copy(b.data, b.data[b.off:])
	b.data = b.data[:n]
	b.off = 0
}
