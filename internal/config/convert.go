package config

import (
	"time"

	"github.com/docbrown/xbdm/internal/console"
)

// ConsoleConfig maps the bridge session block onto the client config.
// Unset fields stay zero so the client defaults fill them.
func ConsoleConfig(cfg SessionConfig) console.Config {
	return console.Config{
		ConnectTimeout:       time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
		HandshakeTimeout:     time.Duration(cfg.HandshakeTimeoutMS) * time.Millisecond,
		ReadTimeout:          time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:         time.Duration(cfg.WriteTimeoutMS) * time.Millisecond,
		MaxConnectAttempts:   cfg.MaxConnectAttempts,
		NotifyBuffer:         cfg.NotifyBuffer,
		DisableNotifications: cfg.DisableNotifications,
	}
}
