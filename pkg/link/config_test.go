package link

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ReconnectInterval != DefaultReconnectInterval {
		t.Errorf("ReconnectInterval = %v, want %v", cfg.ReconnectInterval, DefaultReconnectInterval)
	}
	if cfg.RecvBlockSize != DefaultRecvBlockSize {
		t.Errorf("RecvBlockSize = %d, want %d", cfg.RecvBlockSize, DefaultRecvBlockSize)
	}
	if cfg.PollTimeout != DefaultPollTimeout {
		t.Errorf("PollTimeout = %v, want %v", cfg.PollTimeout, DefaultPollTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	if cfg.ReconnectInterval == 0 || cfg.RecvBlockSize == 0 || cfg.PollTimeout == 0 {
		t.Errorf("zero fields left after applyDefaults: %+v", cfg)
	}
	if cfg.ProtocolLogger == nil || cfg.Clock == nil {
		t.Error("ProtocolLogger and Clock must be set")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"poll timeout equals interval", func(c *Config) { c.PollTimeout = c.ReconnectInterval }},
		{"poll timeout above interval", func(c *Config) { c.PollTimeout = 2 * c.ReconnectInterval }},
		{"negative interval", func(c *Config) { c.ReconnectInterval = -time.Second }},
		{"negative block size", func(c *Config) { c.RecvBlockSize = -1 }},
		{"negative capture", func(c *Config) { c.CaptureBytes = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollTimeout = time.Minute
	if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New = %v, want ErrInvalidConfig", err)
	}
}
