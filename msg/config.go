package msg

import (
	"errors"
	"time"

	"github.com/arloliu/go-msgcam/logger"
)

const (
	// DefaultReplyTimeout bounds a single command round-trip.
	DefaultReplyTimeout = 10 * time.Second

	// DefaultBulkTimeout bounds a bulk block read.
	DefaultBulkTimeout = 60 * time.Second

	// DefaultMaxBulkSize is the largest bulk block the channel accepts.
	DefaultMaxBulkSize = 64 << 20
)

type channelConfig struct {
	replyTimeout time.Duration
	bulkTimeout  time.Duration
	maxBulkSize  int
	logger       logger.Logger
}

func defaultChannelConfig() *channelConfig {
	return &channelConfig{
		replyTimeout: DefaultReplyTimeout,
		bulkTimeout:  DefaultBulkTimeout,
		maxBulkSize:  DefaultMaxBulkSize,
		logger:       logger.GetLogger(),
	}
}

// Option configures a Channel.
type Option interface {
	apply(*channelConfig) error
}

type optFunc func(*channelConfig) error

func (f optFunc) apply(cfg *channelConfig) error { return f(cfg) }

// WithLogger sets the logger for the channel.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *channelConfig) error {
		if l == nil {
			return errors.New("msg: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithReplyTimeout sets the bound on a command round-trip.
func WithReplyTimeout(d time.Duration) Option {
	return optFunc(func(cfg *channelConfig) error {
		if d <= 0 {
			return errors.New("msg: reply timeout must be positive")
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithBulkTimeout sets the bound on a bulk block read.
func WithBulkTimeout(d time.Duration) Option {
	return optFunc(func(cfg *channelConfig) error {
		if d <= 0 {
			return errors.New("msg: bulk timeout must be positive")
		}
		cfg.bulkTimeout = d

		return nil
	})
}

// WithMaxBulkSize sets the largest bulk block accepted from the server.
func WithMaxBulkSize(n int) Option {
	return optFunc(func(cfg *channelConfig) error {
		if n < 0 {
			return errors.New("msg: max bulk size must not be negative")
		}
		cfg.maxBulkSize = n

		return nil
	})
}
