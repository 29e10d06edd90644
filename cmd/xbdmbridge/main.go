package main

import (
	"flag"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docbrown/xbdm/internal/bridge"
	"github.com/docbrown/xbdm/internal/config"
	"github.com/docbrown/xbdm/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "bridge config TOML path")
	consoleTarget := flag.String("console", "", "console override: debug name, IP, or host:port")
	listenAddr := flag.String("addr", "", "HTTP listen address override")
	flag.Parse()

	observability.InitLogger("xbdm-bridge")

	cfg, err := loadConfig(*configPath, *consoleTarget, *listenAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load bridge config")
	}

	svc, err := bridge.NewService(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bridge init failed")
	}

	log.Info().Str("console", cfg.Console).Str("addr", cfg.ListenAddr).Msg("bridge starting")
	if err := svc.Run(); err != nil {
		log.Fatal().Err(err).Msg("bridge stopped")
	}
}

// loadConfig merges the optional TOML file with flag overrides. Flags
// win, so a file-less `xbdmbridge -console 10.0.0.5` works.
func loadConfig(path, consoleTarget, listenAddr string) (bridge.Config, error) {
	var cfg bridge.Config
	if strings.TrimSpace(path) != "" {
		fileCfg, err := config.LoadBridgeConfig(path)
		if err != nil {
			return bridge.Config{}, err
		}
		cfg = bridge.Config{
			Name:          fileCfg.Name,
			ListenAddr:    fileCfg.Addr,
			Console:       fileCfg.Console,
			CorsOrigins:   fileCfg.CorsOrigins,
			AuthToken:     fileCfg.AuthToken,
			NotifyRing:    fileCfg.NotifyRing,
			ProbeInterval: time.Duration(fileCfg.ProbeIntervalMS) * time.Millisecond,
			Session:       config.ConsoleConfig(fileCfg.Session),
		}
	}
	if strings.TrimSpace(consoleTarget) != "" {
		cfg.Console = strings.TrimSpace(consoleTarget)
	}
	if strings.TrimSpace(listenAddr) != "" {
		cfg.ListenAddr = strings.TrimSpace(listenAddr)
	}
	return cfg, nil
}
