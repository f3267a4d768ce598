package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/mmwave.report/internal/units"
)

// TuningConfig holds the runtime-tunable decode and transport parameters.
// All fields are pointers so a partial JSON file only overrides what it
// names; the Get* accessors supply defaults for everything else.
type TuningConfig struct {
	// Decoder limits
	MaxFrameBytes  *int `json:"max_frame_bytes,omitempty"`
	MaxBufferBytes *int `json:"max_buffer_bytes,omitempty"`

	// StallTimeout is how long a frame may sit partially assembled before
	// the ingest loop abandons it and resynchronizes. Duration string like
	// "2s".
	StallTimeout *string `json:"stall_timeout,omitempty"`

	// Transport
	ReadChunkBytes  *int `json:"read_chunk_bytes,omitempty"`
	DataBaudRate    *int `json:"data_baud_rate,omitempty"`
	CommandBaudRate *int `json:"command_baud_rate,omitempty"`

	// API
	Units *string `json:"units,omitempty"`
}

// Defaults. The data UART of these sensors runs at 921600 baud; the CLI
// config UART at 115200.
const (
	DefaultMaxFrameBytes   = 64 * 1024
	DefaultMaxBufferBytes  = 256 * 1024
	DefaultStallTimeout    = 2 * time.Second
	DefaultReadChunkBytes  = 4096
	DefaultDataBaudRate    = 921600
	DefaultCommandBaudRate = 115200
	DefaultUnits           = units.MPS
)

func (c *TuningConfig) GetMaxFrameBytes() int {
	if c != nil && c.MaxFrameBytes != nil {
		return *c.MaxFrameBytes
	}
	return DefaultMaxFrameBytes
}

func (c *TuningConfig) GetMaxBufferBytes() int {
	if c != nil && c.MaxBufferBytes != nil {
		return *c.MaxBufferBytes
	}
	return DefaultMaxBufferBytes
}

func (c *TuningConfig) GetStallTimeout() time.Duration {
	if c != nil && c.StallTimeout != nil {
		if d, err := time.ParseDuration(*c.StallTimeout); err == nil {
			return d
		}
	}
	return DefaultStallTimeout
}

func (c *TuningConfig) GetReadChunkBytes() int {
	if c != nil && c.ReadChunkBytes != nil {
		return *c.ReadChunkBytes
	}
	return DefaultReadChunkBytes
}

func (c *TuningConfig) GetDataBaudRate() int {
	if c != nil && c.DataBaudRate != nil {
		return *c.DataBaudRate
	}
	return DefaultDataBaudRate
}

func (c *TuningConfig) GetCommandBaudRate() int {
	if c != nil && c.CommandBaudRate != nil {
		return *c.CommandBaudRate
	}
	return DefaultCommandBaudRate
}

func (c *TuningConfig) GetUnits() string {
	if c != nil && c.Units != nil {
		return *c.Units
	}
	return DefaultUnits
}

// Validate rejects values that would break the decoder or transport.
func (c *TuningConfig) Validate() error {
	if c.MaxFrameBytes != nil && *c.MaxFrameBytes < 40 {
		return fmt.Errorf("max_frame_bytes %d below minimum frame size", *c.MaxFrameBytes)
	}
	if c.MaxBufferBytes != nil && c.MaxFrameBytes != nil && *c.MaxBufferBytes < *c.MaxFrameBytes {
		return fmt.Errorf("max_buffer_bytes %d smaller than max_frame_bytes %d", *c.MaxBufferBytes, *c.MaxFrameBytes)
	}
	if c.StallTimeout != nil {
		if _, err := time.ParseDuration(*c.StallTimeout); err != nil {
			return fmt.Errorf("invalid stall_timeout: %w", err)
		}
	}
	if c.ReadChunkBytes != nil && *c.ReadChunkBytes <= 0 {
		return fmt.Errorf("read_chunk_bytes must be positive, got %d", *c.ReadChunkBytes)
	}
	if c.DataBaudRate != nil && *c.DataBaudRate <= 0 {
		return fmt.Errorf("data_baud_rate must be positive, got %d", *c.DataBaudRate)
	}
	if c.CommandBaudRate != nil && *c.CommandBaudRate <= 0 {
		return fmt.Errorf("command_baud_rate must be positive, got %d", *c.CommandBaudRate)
	}
	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("invalid units %q: valid values are %s", *c.Units, units.GetValidUnitsString())
	}
	return nil
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted from
// the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
