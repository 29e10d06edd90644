package console

import (
	"time"

	"github.com/docbrown/xbdm/internal/protocol/wire"
)

// BackoffConfig defines dial retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines session reliability defaults. ReadTimeout bounds one
// whole response frame, WriteTimeout one command write.
type Config struct {
	ConnectTimeout       time.Duration
	HandshakeTimeout     time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	MaxConnectAttempts   int // 0 takes the default; negative retries forever
	NotifyBuffer         int // per-subscriber channel depth
	DisableNotifications bool
	Backoff              BackoffConfig
	Limits               wire.Limits
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     5 * time.Second,
		HandshakeTimeout:   5 * time.Second,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		MaxConnectAttempts: 3,
		NotifyBuffer:       64,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		Limits: wire.DefaultLimits(),
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxConnectAttempts == 0 {
		c.MaxConnectAttempts = def.MaxConnectAttempts
	}
	if c.NotifyBuffer <= 0 {
		c.NotifyBuffer = def.NotifyBuffer
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	if c.Limits.MaxLineBytes <= 0 {
		c.Limits.MaxLineBytes = def.Limits.MaxLineBytes
	}
	if c.Limits.MaxBlockBytes <= 0 {
		c.Limits.MaxBlockBytes = def.Limits.MaxBlockBytes
	}
	if c.Limits.MaxBinaryBytes <= 0 {
		c.Limits.MaxBinaryBytes = def.Limits.MaxBinaryBytes
	}
	return c
}
