// Package api exposes decoded sensor data over HTTP: stored frames and
// point clouds, live streaming, summary statistics, and a quick plot view.
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/serialmux"
	"github.com/banshee-data/mmwave.report/internal/stats"
	"github.com/banshee-data/mmwave.report/internal/units"
	"github.com/banshee-data/mmwave.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	m     serialmux.SerialMuxInterface
	db    *db.DB
	hub   *FrameHub
	units string

	// decoderStats reports the live decoder counters; nil when the server
	// fronts a database only (replay tooling).
	decoderStats func() mmwave.Stats
}

func NewServer(m serialmux.SerialMuxInterface, database *db.DB, hub *FrameHub, velocityUnits string) *Server {
	if !units.IsValid(velocityUnits) {
		velocityUnits = units.MPS
	}
	return &Server{
		m:     m,
		db:    database,
		hub:   hub,
		units: velocityUnits,
	}
}

// SetDecoderStats installs a provider for the live decoder counters, shown
// by /api/stats.
func (s *Server) SetDecoderStats(fn func() mmwave.Stats) {
	s.decoderStats = fn
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/api/frames", s.listFrames)
	mux.HandleFunc("/api/objects", s.listObjects)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/stream", s.streamFrames)
	mux.HandleFunc("/api/plot", s.plotObjects)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// parseLimit reads the 'limit' query parameter, falling back to def. A
// non-positive or unparsable value is an error.
func parseLimit(r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 1 {
		return 0, false
	}
	return limit, true
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.m == nil {
		http.Error(w, "No sensor attached", http.StatusServiceUnavailable)
		return
	}

	command := r.FormValue("command")
	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) listFrames(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, ok := parseLimit(r, 100)
	if !ok {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
		return
	}

	frames, err := s.db.RecentFrames(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to query frames")
		return
	}
	if frames == nil {
		frames = []db.StoredFrame{}
	}
	json.NewEncoder(w).Encode(frames)
}

func (s *Server) listObjects(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, ok := parseLimit(r, 500)
	if !ok {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
		return
	}

	targetUnits := s.units
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'units' parameter; valid units: "+units.GetValidUnitsString())
			return
		}
		targetUnits = u
	}

	objects, err := s.db.RecentObjects(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to query objects")
		return
	}
	// Velocities are stored in m/s; convert on the way out.
	for i := range objects {
		objects[i].Velocity = float32(units.ConvertVelocity(float64(objects[i].Velocity), targetUnits))
	}
	if objects == nil {
		objects = []db.StoredObject{}
	}
	json.NewEncoder(w).Encode(struct {
		Units   string            `json:"units"`
		Objects []db.StoredObject `json:"objects"`
	}{targetUnits, objects})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, ok := parseLimit(r, 1000)
	if !ok {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
		return
	}

	stored, err := s.db.RecentObjects(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to query objects")
		return
	}
	objects := make([]mmwave.DetectedObject, len(stored))
	for i, o := range stored {
		objects[i] = mmwave.DetectedObject{X: o.X, Y: o.Y, Z: o.Z, Velocity: o.Velocity}
	}

	response := struct {
		Cloud   stats.CloudSummary `json:"cloud"`
		Decoder *mmwave.Stats      `json:"decoder,omitempty"`
	}{Cloud: stats.Summarize(objects)}

	if s.decoderStats != nil {
		ds := s.decoderStats()
		response.Decoder = &ds
	}
	json.NewEncoder(w).Encode(response)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"units":       s.units,
		"valid_units": units.ValidUnits,
		"version":     version.Version,
	})
}

// streamFrames pushes each decoded frame to the client as a JSON SSE event.
func (s *Server) streamFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.hub == nil {
		http.Error(w, "Live stream not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, frames := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if _, err := io.WriteString(w, "data: "); err != nil {
				return
			}
			if err := enc.Encode(frame); err != nil {
				return
			}
			// Encode already wrote one newline; SSE events end with a blank
			// line.
			if _, err := io.WriteString(w, "\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
