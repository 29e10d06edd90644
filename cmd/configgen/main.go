package main

import (
	"flag"
	"log"

	"github.com/docbrown/xbdm/internal/config"
)

func main() {
	kind := flag.String("kind", "bridge", "config kind: bridge|targets")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to the bridge cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "bridge" {
			log.Fatalf("validate supports kind bridge only, got: %s", *kind)
		}
		path := *input
		if path == "" {
			path = "cmd/xbdmbridge/config.toml"
		}
		if _, err := config.LoadBridgeConfig(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "bridge":
			target = "cmd/xbdmbridge/config.toml"
		case "targets":
			target = "cmd/xbdmctl/targets.toml"
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
