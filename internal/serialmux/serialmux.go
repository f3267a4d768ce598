// Package serialmux provides an abstraction over the sensor's serial ports
// with the ability for multiple clients to subscribe to the binary chunk
// stream from the data port and send CLI commands to the config port.
package serialmux

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// ErrNoCommandPort is returned when a command is sent but no config port was
// attached.
var ErrNoCommandPort = fmt.Errorf("no command port configured")

// DefaultChunkSize is the read size for the binary data port. The sensor
// emits frames of a few KB at 921600 baud; 4KB reads keep syscall overhead
// low without adding latency.
const DefaultChunkSize = 4096

// SerialMux is a generic serial port multiplexer that allows multiple
// clients to subscribe to raw chunks read from a single sensor data port.
// The stream is binary, so chunks are delivered exactly as read, with no
// line framing; subscribers reassemble frames themselves.
type SerialMux[T SerialPorter] struct {
	port         T
	command      io.Writer // sensor CLI config port, optional
	chunkSize    int
	subscribers  map[string]chan []byte
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving raw data chunks from
	// the serial port. The channel ID is used to identify the unique
	// channel when unsubscribing.
	Subscribe() (string, chan []byte)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes one CLI command line to the sensor's config port.
	SendCommand(string) error
	// Monitor reads chunks from the data port and fans them out to
	// subscribers until the context is cancelled or the port fails.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// Initialize streams a profile configuration to the config port and
	// starts the sensor.
	Initialize([]string) error

	// SetChunkSize overrides the data port read size.
	SetChunkSize(int)

	// AttachAdminRoutes attaches admin debugging endpoints to the given
	// HTTP mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux reading binary chunks from the given data
// port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		chunkSize:   DefaultChunkSize,
		subscribers: make(map[string]chan []byte),
	}
}

// SetCommandPort attaches the sensor's CLI config port. Without it,
// SendCommand and Initialize fail with ErrNoCommandPort.
func (s *SerialMux[T]) SetCommandPort(w io.Writer) {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	s.command = w
}

// SetChunkSize overrides the data port read size.
func (s *SerialMux[T]) SetChunkSize(n int) {
	if n > 0 {
		s.chunkSize = n
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize streams a profile configuration to the sensor's config port,
// line by line. The profile is the sensorStop/flushCfg/.../sensorStart
// sequence the vendor tools emit; the caller supplies it so different chirp
// configurations can be loaded without code changes.
func (s *SerialMux[T]) Initialize(profile []string) error {
	for _, command := range profile {
		command = strings.TrimSpace(command)
		if command == "" || strings.HasPrefix(command, "%") {
			// The vendor profile format uses % for comments.
			continue
		}
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send config command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand sends one CLI command line to the sensor's config port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if s.command == nil {
		return ErrNoCommandPort
	}
	if !strings.HasSuffix(command, "\n") {
		command += "\n" // the sensor CLI is line-oriented
	}
	n, err := s.command.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads binary chunks from the data port and fans them out to
// subscribers. Transport errors are returned unchanged; a clean EOF returns
// nil.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	chunkChan := make(chan []byte)
	readErrChan := make(chan error, 1)

	// Read in a goroutine so the blocking port read cannot starve the outer
	// loop of context cancellation.
	go func() {
		defer close(chunkChan)
		buf := make([]byte, s.chunkSize)
		for {
			n, err := s.port.Read(buf)
			if n > 0 {
				// Hand each subscriber an owned copy; buf is reused.
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunkChan <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					select {
					case readErrChan <- err:
					case <-ctx.Done():
					}
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			return err

		case chunk, ok := <-chunkChan:
			if !ok {
				// Port closed or EOF; report a late read error if one is
				// waiting.
				select {
				case err := <-readErrChan:
					return err
				default:
					return nil
				}
			}

			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- chunk:
				default:
					// a full/blocked subscriber is skipped so as not to
					// stall the read loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

// AttachAdminRoutes mounts debug endpoints: a command writer for the config
// port and an SSE hex tail of the raw data stream.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// API endpoint to write a CLI command to the sensor's config port.
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})

	// SSE tail of the raw binary stream, hex encoded per chunk. Purely a
	// diagnostic view; frame decoding happens elsewhere.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case chunk, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", hex.EncodeToString(chunk)); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
