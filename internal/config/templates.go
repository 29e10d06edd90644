package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "bridge":
		return bridgeTemplate, nil
	case "targets":
		return targetsTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const bridgeTemplate = `name = "xbdm-bridge"
addr = ":9710"
console = "192.168.1.100:730"
cors_origins = ["http://localhost:3000"]
notify_ring = 256
probe_interval_ms = 5000

# auth_token guards POST /command when set
# auth_token = "devkit-secret"

[session]
connect_timeout_ms = 5000
read_timeout_ms = 15000
write_timeout_ms = 15000
max_connect_attempts = 3
notify_buffer = 64
`

const targetsTemplate = `default = "devkit"

[[targets]]
name = "devkit"
addr = "192.168.1.100:730"

# a target without an addr is located by name on the local subnet
[[targets]]
name = "TestKit"
`
