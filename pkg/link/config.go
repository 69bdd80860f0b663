package link

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/linkmq/linkmq-go/pkg/log"
	"github.com/linkmq/linkmq-go/pkg/poller"
)

// Defaults.
const (
	DefaultReconnectInterval = 3 * time.Second
	DefaultRecvBlockSize     = 256 * 1024
	DefaultPollTimeout       = 200 * time.Millisecond

	// ListenBacklog is the accept queue length of listeners.
	ListenBacklog = 128

	// maxTLSWrite bounds the plaintext encrypted by a single Send.
	maxTLSWrite = 64 * 1024
)

// Config configures a Link.
type Config struct {
	// ReconnectInterval is the delay between attempts of connectors added
	// without their own interval.
	ReconnectInterval time.Duration

	// RecvBlockSize bounds a single read.
	RecvBlockSize int

	// PollTimeout bounds a single readiness wait. It must be smaller than
	// every reconnect interval in use.
	PollTimeout time.Duration

	// CaptureBytes is how many payload bytes data events carry.
	// Zero records sizes only.
	CaptureBytes int

	// Logger receives operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger receives structured link events (optional).
	ProtocolLogger log.Logger

	// Clock is the time source for scheduling (optional).
	Clock clock.Clock

	// Poller overrides readiness backend selection (optional). The Link
	// takes ownership and closes it in Cleanup.
	Poller poller.Poller
}

// DefaultConfig returns a Config with default intervals and sizes.
func DefaultConfig() Config {
	return Config{
		ReconnectInterval: DefaultReconnectInterval,
		RecvBlockSize:     DefaultRecvBlockSize,
		PollTimeout:       DefaultPollTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.RecvBlockSize == 0 {
		c.RecvBlockSize = DefaultRecvBlockSize
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.ProtocolLogger == nil {
		c.ProtocolLogger = log.NoopLogger{}
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	if c.RecvBlockSize < 0 {
		return fmt.Errorf("%w: negative receive block size", ErrInvalidConfig)
	}
	if c.ReconnectInterval < 0 || c.PollTimeout < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	if c.ReconnectInterval > 0 && c.PollTimeout > 0 && c.PollTimeout >= c.ReconnectInterval {
		return fmt.Errorf("%w: poll timeout %v must be smaller than reconnect interval %v",
			ErrInvalidConfig, c.PollTimeout, c.ReconnectInterval)
	}
	if c.CaptureBytes < 0 {
		return fmt.Errorf("%w: negative capture size", ErrInvalidConfig)
	}
	return nil
}

// RunConfig bounds a call to Run. Zero fields mean no bound.
type RunConfig struct {
	// PollTimeout overrides Config.PollTimeout for this run.
	PollTimeout time.Duration

	// MaxEvents stops the loop after this many passes that saw events.
	MaxEvents int

	// MaxRuntime stops the loop after this much wall-clock time.
	MaxRuntime time.Duration
}
