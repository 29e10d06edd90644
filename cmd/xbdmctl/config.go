package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/docbrown/xbdm/internal/console"
)

// targetsFile is the on-disk shape. The session table is optional and
// overlays the session defaults key by key.
type targetsFile struct {
	Default string        `toml:"default"`
	Targets []targetEntry `toml:"targets"`
	Session sessionTuning `toml:"session"`
}

type targetEntry struct {
	Name string `toml:"name"`
	Addr string `toml:"addr"`
}

type sessionTuning struct {
	ConnectTimeout     string `toml:"connect_timeout"`
	ReadTimeout        string `toml:"read_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	NotifyBuffer       int    `toml:"notify_buffer"`
}

// consoleTarget is one named console. An entry without an addr is
// located by name on the local subnet.
type consoleTarget struct {
	Name string
	Addr string
}

// dialTarget is what the resolver gets: the explicit address when the
// entry has one, otherwise the name for a subnet query.
func (t consoleTarget) dialTarget() string {
	if t.Addr != "" {
		return t.Addr
	}
	return t.Name
}

type targetsConfig struct {
	Default string
	Targets []consoleTarget
	Session console.Config
}

func defaultTargetsConfig() targetsConfig {
	return targetsConfig{Session: console.DefaultConfig()}
}

func loadTargetsConfig(path string) (targetsConfig, error) {
	cfg := defaultTargetsConfig()

	var raw targetsFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return targetsConfig{}, fmt.Errorf("load targets config: %w", err)
	}

	if meta.IsDefined("default") {
		cfg.Default = strings.TrimSpace(raw.Default)
	}

	for _, entry := range raw.Targets {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		cfg.Targets = append(cfg.Targets, consoleTarget{
			Name: name,
			Addr: strings.TrimSpace(entry.Addr),
		})
	}

	if meta.IsDefined("session", "connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Session.ConnectTimeout))
		if err != nil {
			return targetsConfig{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.Session.ConnectTimeout = d
	}

	if meta.IsDefined("session", "read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Session.ReadTimeout))
		if err != nil {
			return targetsConfig{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.Session.ReadTimeout = d
	}

	if meta.IsDefined("session", "write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Session.WriteTimeout))
		if err != nil {
			return targetsConfig{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.Session.WriteTimeout = d
	}

	if meta.IsDefined("session", "max_connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.Session.MaxConnectAttempts
	}

	if meta.IsDefined("session", "notify_buffer") {
		cfg.Session.NotifyBuffer = raw.Session.NotifyBuffer
	}

	return cfg, nil
}

// lookup finds a configured target by alias. Aliases compare
// case-insensitively; the entry keeps its canonical name for the wire.
func (c targetsConfig) lookup(name string) (consoleTarget, bool) {
	for _, t := range c.Targets {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return consoleTarget{}, false
}

// chooseTarget picks the console for this invocation: the explicit
// flag first, then the file default. Either may be an alias from the
// targets list; anything else is taken literally.
func chooseTarget(cfg targetsConfig, explicit string) (consoleTarget, error) {
	name := strings.TrimSpace(explicit)
	if name == "" {
		name = cfg.Default
	}
	if name == "" {
		return consoleTarget{}, errors.New("no target: pass -target or set a default in the targets file")
	}
	if t, ok := cfg.lookup(name); ok {
		return t, nil
	}
	return consoleTarget{Name: name}, nil
}
