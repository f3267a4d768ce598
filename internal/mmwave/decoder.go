package mmwave

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/mmwave.report/internal/timeutil"
)

// State is the decoder's position in the frame assembly state machine.
type State int

const (
	// StateSearching means no marker has been located in the buffered bytes.
	StateSearching State = iota
	// StateHeaderPending means a marker was found but fewer than 40 bytes
	// are buffered after it.
	StateHeaderPending
	// StateBodyPending means the header parsed but fewer than
	// totalPacketLen bytes are buffered.
	StateBodyPending
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateHeaderPending:
		return "header_pending"
	case StateBodyPending:
		return "body_pending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Default limits. A frame from these sensors is a few KB; the defaults leave
// generous headroom while keeping a corrupted length field from demanding
// unbounded memory.
const (
	DefaultMaxFrameBytes  = 64 * 1024
	DefaultMaxBufferBytes = 4 * DefaultMaxFrameBytes
)

// Options configures a Decoder. Zero values select the defaults.
type Options struct {
	// MaxFrameBytes caps header-declared totalPacketLen.
	MaxFrameBytes int

	// MaxBufferBytes caps the reassembly buffer. When an incoming chunk
	// would exceed it, the oldest unattributed bytes are dropped and the
	// decoder resynchronizes. Values below MaxFrameBytes are raised to it.
	MaxBufferBytes int

	// Clock supplies timestamps for emitted frames and pending-state
	// tracking. Defaults to the real clock.
	Clock timeutil.Clock
}

// Stats counts decoder activity since construction.
type Stats struct {
	BytesIngested  uint64 `json:"bytes_ingested"`
	BytesDropped   uint64 `json:"bytes_dropped"`
	FramesDecoded  uint64 `json:"frames_decoded"`
	ProtocolErrors uint64 `json:"protocol_errors"`
	Overflows      uint64 `json:"overflows"`
}

// Decoder reassembles a chunked sensor byte stream and extracts validated
// frames. It is a pure function of (previous state, new bytes): feed it one
// chunk at a time with Ingest and it either emits completed frames or
// accumulates partial state until more bytes arrive.
//
// A Decoder is not safe for concurrent use. The intended model is a
// single-threaded read loop: one chunk fully processed before the next is
// requested.
type Decoder struct {
	buf     *reassemblyBuffer
	state   State
	pending time.Time // when the current partial frame started waiting
	clock   timeutil.Clock

	maxFrame int
	stats    Stats
}

// NewDecoder creates a Decoder with the given options.
func NewDecoder(opts Options) *Decoder {
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if opts.MaxBufferBytes <= 0 {
		opts.MaxBufferBytes = DefaultMaxBufferBytes
	}
	// The buffer must be able to hold the largest legal frame, or a frame
	// of an allowed size would overflow on every attempt and never decode.
	if opts.MaxBufferBytes < opts.MaxFrameBytes {
		opts.MaxBufferBytes = opts.MaxFrameBytes
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Decoder{
		buf:      newReassemblyBuffer(opts.MaxBufferBytes),
		clock:    opts.Clock,
		maxFrame: opts.MaxFrameBytes,
	}
}

// Ingest appends one transport chunk and returns every frame that completed.
// An empty chunk changes nothing and returns nothing.
//
// The returned error joins all protocol and overflow failures hit while
// processing the chunk. It is informational: returned frames remain valid,
// the decoder has already resynchronized, and subsequent valid frames in the
// stream will still decode. Only the transport layer can produce a fatal
// error, and that happens outside this method.
func (d *Decoder) Ingest(chunk []byte) ([]Frame, error) {
	if len(chunk) == 0 {
		return nil, nil
	}

	var errs []error
	d.stats.BytesIngested += uint64(len(chunk))
	if dropped := d.buf.Append(chunk); dropped > 0 {
		d.stats.BytesDropped += uint64(dropped)
		d.stats.Overflows++
		d.toSearching()
		errs = append(errs, fmt.Errorf("%w: dropped %d oldest bytes", ErrBufferOverflow, dropped))
	}

	var frames []Frame
	for {
		frame, err := d.next()
		if err != nil {
			d.stats.ProtocolErrors++
			errs = append(errs, err)
			continue
		}
		if frame == nil {
			break
		}
		d.stats.FramesDecoded++
		frames = append(frames, *frame)
	}
	return frames, errors.Join(errs...)
}

// next attempts to extract a single frame from the buffered bytes.
// (nil, nil) means more data is needed; a non-nil error means a malformed
// frame was discarded and scanning may continue.
func (d *Decoder) next() (*Frame, error) {
	idx := findMarker(d.buf.Bytes())
	if idx < 0 {
		// Nothing before the final 7 bytes can ever begin a marker, so the
		// prefix is garbage and can go now rather than waiting for the cap.
		if excess := d.buf.Len() - (MagicLen - 1); excess > 0 {
			d.buf.Trim(excess)
			d.stats.BytesDropped += uint64(excess)
		}
		d.toSearching()
		return nil, nil
	}
	if idx > 0 {
		// Discard noise ahead of the marker.
		d.buf.Trim(idx)
		d.stats.BytesDropped += uint64(idx)
	}

	if d.buf.Len() < FrameMin {
		d.toPending(StateHeaderPending)
		return nil, nil
	}

	headerBytes, err := d.buf.View(MagicLen, HeaderLen)
	if err != nil {
		// Unreachable given the length check above; resync defensively.
		return nil, d.resync(err)
	}
	hdr, err := decodeHeader(headerBytes)
	if err != nil {
		return nil, d.resync(err)
	}
	if err := hdr.validate(d.maxFrame); err != nil {
		return nil, d.resync(err)
	}

	total := int(hdr.TotalPacketLen)
	if d.buf.Len() < total {
		d.toPending(StateBodyPending)
		return nil, nil
	}

	body, err := d.buf.View(FrameMin, total-FrameMin)
	if err != nil {
		return nil, d.resync(err)
	}
	objects, unknown, trailing, err := walkBody(body, hdr)
	if err != nil {
		return nil, d.resync(err)
	}

	frame := &Frame{
		Header:        hdr,
		Objects:       objects,
		Unknown:       unknown,
		TrailingBytes: trailing,
		Received:      d.clock.Now(),
	}
	d.buf.Trim(total)
	d.toSearching()
	return frame, nil
}

// resync discards one byte past the failed marker so the same corrupt bytes
// cannot loop forever, while keeping the unexamined tail — it may hold the
// next valid marker overlapping the discarded region's end.
func (d *Decoder) resync(err error) error {
	d.buf.Trim(1)
	d.stats.BytesDropped++
	d.toSearching()
	return err
}

func (d *Decoder) toSearching() {
	d.state = StateSearching
	d.pending = time.Time{}
}

func (d *Decoder) toPending(s State) {
	if d.state != s {
		d.pending = d.clock.Now()
	}
	d.state = s
}

// State reports where the decoder currently is in frame assembly.
func (d *Decoder) State() State { return d.state }

// PendingSince reports when the decoder entered its current pending state.
// ok is false while searching. Callers use this to implement stall policy:
// a frame stuck in HeaderPending or BodyPending too long can be abandoned
// with Reset.
func (d *Decoder) PendingSince() (t time.Time, ok bool) {
	return d.pending, !d.pending.IsZero()
}

// Stats returns a copy of the decoder's counters.
func (d *Decoder) Stats() Stats { return d.stats }

// Buffered returns the number of unconsumed bytes held for reassembly.
func (d *Decoder) Buffered() int { return d.buf.Len() }

// Reset abandons any partial frame: the byte at the current marker offset is
// discarded and the search restarts, keeping the rest of the buffer.
func (d *Decoder) Reset() {
	if d.state == StateSearching {
		return
	}
	d.buf.Trim(1)
	d.stats.BytesDropped++
	d.toSearching()
}
