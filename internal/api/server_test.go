package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/serialmux"
	"github.com/banshee-data/mmwave.report/internal/stats"
	"github.com/banshee-data/mmwave.report/internal/testutil"
	"github.com/banshee-data/mmwave.report/internal/units"
)

func setupTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	mux := serialmux.NewSerialMux(serialmux.NewTestableSerialPort())
	var cmd bytes.Buffer
	mux.SetCommandPort(&cmd)

	server := NewServer(mux, database, NewFrameHub(), units.MPS)
	return server, database
}

func seedFrame(t *testing.T, database *db.DB, frameNumber uint32, objects []mmwave.DetectedObject) {
	t.Helper()
	session, err := database.StartSession("")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	frame := mmwave.Frame{
		Header: mmwave.FrameHeader{
			FrameNumber:    frameNumber,
			NumDetectedObj: uint32(len(objects)),
			NumTLVs:        1,
		},
		Objects:  objects,
		Received: time.Now(),
	}
	if err := database.RecordFrame(session, frame); err != nil {
		t.Fatalf("RecordFrame failed: %v", err)
	}
}

func TestListFrames(t *testing.T) {
	server, database := setupTestServer(t)
	seedFrame(t, database, 7, []mmwave.DetectedObject{{X: 1, Y: 2}})

	req := httptest.NewRequest(http.MethodGet, "/api/frames", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", w.Code, w.Body.String())
	}
	var frames []db.StoredFrame
	if err := json.NewDecoder(w.Body).Decode(&frames); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(frames) != 1 || frames[0].FrameNumber != 7 {
		t.Errorf("frames = %+v, want one frame numbered 7", frames)
	}
}

func TestListFramesEmptyIsArray(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/frames", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("empty frame list encoded as %q, want []", got)
	}
}

func TestListFramesInvalidLimit(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/frames?limit=bogus", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestListObjectsConvertsUnits(t *testing.T) {
	server, database := setupTestServer(t)
	seedFrame(t, database, 1, []mmwave.DetectedObject{{X: 1, Velocity: 10}})

	req := httptest.NewRequest(http.MethodGet, "/api/objects?units=mph", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", w.Code, w.Body.String())
	}
	var resp struct {
		Units   string            `json:"units"`
		Objects []db.StoredObject `json:"objects"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Units != "mph" {
		t.Errorf("units = %q, want mph", resp.Units)
	}
	if len(resp.Objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(resp.Objects))
	}
	if math.Abs(float64(resp.Objects[0].Velocity)-22.3694) > 0.01 {
		t.Errorf("velocity = %v, want ~22.3694 mph", resp.Objects[0].Velocity)
	}
}

func TestListObjectsRejectsUnknownUnits(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/objects?units=furlongs", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestShowStats(t *testing.T) {
	server, database := setupTestServer(t)
	seedFrame(t, database, 1, []mmwave.DetectedObject{
		{X: 3, Y: 4, Velocity: 1},
		{X: 6, Y: 8, Velocity: 3},
	})
	server.SetDecoderStats(func() mmwave.Stats {
		return mmwave.Stats{FramesDecoded: 5, BytesIngested: 1024}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", w.Code, w.Body.String())
	}
	var resp struct {
		Cloud   stats.CloudSummary `json:"cloud"`
		Decoder *mmwave.Stats      `json:"decoder"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cloud.Count != 2 {
		t.Errorf("cloud count = %d, want 2", resp.Cloud.Count)
	}
	if math.Abs(resp.Cloud.RangeMin-5) > 1e-6 || math.Abs(resp.Cloud.RangeMax-10) > 1e-6 {
		t.Errorf("range min/max = %v/%v, want 5/10", resp.Cloud.RangeMin, resp.Cloud.RangeMax)
	}
	if resp.Decoder == nil || resp.Decoder.FramesDecoded != 5 {
		t.Errorf("decoder stats = %+v, want FramesDecoded 5", resp.Decoder)
	}
}

func TestSendCommand(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "cmd_test.db"))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	defer database.Close()

	mux := serialmux.NewSerialMux(serialmux.NewTestableSerialPort())
	var cmd bytes.Buffer
	mux.SetCommandPort(&cmd)
	server := NewServer(mux, database, NewFrameHub(), units.MPS)

	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader("command=sensorStart"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", w.Code, w.Body.String())
	}
	if got := cmd.String(); got != "sensorStart\n" {
		t.Errorf("command port received %q, want %q", got, "sensorStart\n")
	}
}

func TestShowConfig(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["units"] != units.MPS {
		t.Errorf("units = %v, want %q", resp["units"], units.MPS)
	}
}

func TestPlotObjects(t *testing.T) {
	server, database := setupTestServer(t)
	seedFrame(t, database, 1, []mmwave.DetectedObject{{X: 1, Y: 2, Velocity: 0.5}})

	req := httptest.NewRequest(http.MethodGet, "/api/plot", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(w.Body.String(), "echarts") {
		t.Error("plot output does not look like an echarts page")
	}
}

func TestStreamFrames(t *testing.T) {
	server, _ := setupTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		server.ServeMux().ServeHTTP(w, req)
		close(done)
	}()

	// Let the handler subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	server.hub.Publish(mmwave.Frame{
		Header:  mmwave.FrameHeader{FrameNumber: 99},
		Objects: []mmwave.DetectedObject{{X: 1}},
	})
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not exit after context cancellation")
	}

	body := w.Body.String()
	if !strings.Contains(body, ": ping") {
		t.Errorf("body missing initial ping: %q", body)
	}
	if !strings.Contains(body, `"frame_number":99`) {
		t.Errorf("body missing published frame: %q", body)
	}
}
