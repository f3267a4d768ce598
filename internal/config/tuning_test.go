package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsWhenEmpty(t *testing.T) {
	cfg := &TuningConfig{}
	if got := cfg.GetMaxFrameBytes(); got != DefaultMaxFrameBytes {
		t.Errorf("GetMaxFrameBytes() = %d, want %d", got, DefaultMaxFrameBytes)
	}
	if got := cfg.GetStallTimeout(); got != DefaultStallTimeout {
		t.Errorf("GetStallTimeout() = %v, want %v", got, DefaultStallTimeout)
	}
	if got := cfg.GetDataBaudRate(); got != 921600 {
		t.Errorf("GetDataBaudRate() = %d, want 921600", got)
	}
	if got := cfg.GetUnits(); got != "mps" {
		t.Errorf("GetUnits() = %q, want mps", got)
	}

	var nilCfg *TuningConfig
	if got := nilCfg.GetMaxBufferBytes(); got != DefaultMaxBufferBytes {
		t.Errorf("nil config GetMaxBufferBytes() = %d, want %d", got, DefaultMaxBufferBytes)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, `{"max_frame_bytes": 8192, "stall_timeout": "500ms"}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}
	if got := cfg.GetMaxFrameBytes(); got != 8192 {
		t.Errorf("GetMaxFrameBytes() = %d, want 8192", got)
	}
	if got := cfg.GetStallTimeout(); got != 500*time.Millisecond {
		t.Errorf("GetStallTimeout() = %v, want 500ms", got)
	}
	// Unset fields fall back to defaults.
	if got := cfg.GetReadChunkBytes(); got != DefaultReadChunkBytes {
		t.Errorf("GetReadChunkBytes() = %d, want %d", got, DefaultReadChunkBytes)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"frame below minimum", `{"max_frame_bytes": 10}`},
		{"buffer below frame", `{"max_frame_bytes": 4096, "max_buffer_bytes": 1024}`},
		{"bad stall timeout", `{"stall_timeout": "soon"}`},
		{"negative chunk", `{"read_chunk_bytes": -1}`},
		{"bad units", `{"units": "furlongs"}`},
		{"not json", `max_frame_bytes: 8192`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.contents)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Errorf("LoadTuningConfig accepted %q", tt.contents)
			}
		})
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("LoadTuningConfig accepted a .yaml file")
	}
}
