package serialmux

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// localHostRequest builds a request that passes tsweb.AllowDebugAccess,
// which only admits loopback callers.
func localHostRequest(method, target string, body *strings.Reader) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAdminSendCommand(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	var cmd bytes.Buffer
	mux.SetCommandPort(&cmd)

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	form := url.Values{"command": {"sensorStart"}}
	req := localHostRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(form.Encode()))
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	if got := cmd.String(); got != "sensorStart\n" {
		t.Errorf("command port received %q, want %q", got, "sensorStart\n")
	}
}

func TestAdminSendCommandRejectsGet(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	req := localHostRequest(http.MethodGet, "/debug/send-command-api", nil)
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestAdminSendCommandMissingCommand(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	var cmd bytes.Buffer
	mux.SetCommandPort(&cmd)

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	req := localHostRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader("command="))
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if cmd.Len() != 0 {
		t.Errorf("command port received %q, want nothing", cmd.String())
	}
}

func TestAdminSendCommandNoCommandPort(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	form := url.Values{"command": {"sensorStop"}}
	req := localHostRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(form.Encode()))
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestAdminTailStreamsHexChunks(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)
	defer mux.Close()

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	monCtx, monCancel := context.WithCancel(context.Background())
	defer monCancel()
	go mux.Monitor(monCtx)

	reqCtx, reqCancel := context.WithCancel(context.Background())
	req := localHostRequest(http.MethodGet, "/debug/tail", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		httpMux.ServeHTTP(rec, req)
		close(done)
	}()

	// Let the handler subscribe and park before feeding data.
	time.Sleep(20 * time.Millisecond)
	port.AddReadData([]byte{0x02, 0x01, 0x04, 0x03})
	time.Sleep(20 * time.Millisecond)
	reqCancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tail handler did not exit after context cancellation")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, ": ping") {
		t.Errorf("body missing initial ping: %q", body)
	}
	if !strings.Contains(body, "data: 02010403") {
		t.Errorf("body missing hex chunk: %q", body)
	}
}
