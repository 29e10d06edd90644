package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type BridgeConfig struct {
	Name            string        `toml:"name"`
	Addr            string        `toml:"addr"`
	Console         string        `toml:"console"`
	CorsOrigins     []string      `toml:"cors_origins"`
	AuthToken       string        `toml:"auth_token"`
	NotifyRing      int           `toml:"notify_ring"`
	ProbeIntervalMS int64         `toml:"probe_interval_ms"`
	Session         SessionConfig `toml:"session"`
}

// SessionConfig tunes the console session owned by the bridge. Fields
// left at zero fall back to the client defaults.
type SessionConfig struct {
	ConnectTimeoutMS     int64 `toml:"connect_timeout_ms"`
	HandshakeTimeoutMS   int64 `toml:"handshake_timeout_ms"`
	ReadTimeoutMS        int64 `toml:"read_timeout_ms"`
	WriteTimeoutMS       int64 `toml:"write_timeout_ms"`
	MaxConnectAttempts   int   `toml:"max_connect_attempts"`
	NotifyBuffer         int   `toml:"notify_buffer"`
	DisableNotifications bool  `toml:"disable_notifications"`
}

func LoadBridgeConfig(path string) (BridgeConfig, error) {
	var cfg BridgeConfig
	if err := loadToml(path, &cfg); err != nil {
		return BridgeConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "xbdm-bridge"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9710"
	}
	if cfg.NotifyRing == 0 {
		cfg.NotifyRing = 256
	}
	if err := ValidateBridgeConfig(cfg); err != nil {
		return BridgeConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateBridgeConfig(cfg BridgeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("bridge config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("bridge config missing addr")
	}
	if strings.TrimSpace(cfg.Console) == "" {
		return fmt.Errorf("bridge config missing console")
	}
	if cfg.NotifyRing < 0 {
		return fmt.Errorf("bridge config notify_ring must not be negative")
	}
	if cfg.ProbeIntervalMS < 0 {
		return fmt.Errorf("bridge config probe_interval_ms must not be negative")
	}
	return nil
}
