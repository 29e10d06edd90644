package main

import (
	"net"
	"testing"

	"github.com/docbrown/xbdm/internal/discovery"
	"github.com/docbrown/xbdm/internal/protocol"
)

func testTargets() targetsConfig {
	cfg := defaultTargetsConfig()
	cfg.Default = "devkit"
	cfg.Targets = []consoleTarget{
		{Name: "devkit", Addr: "192.168.1.100:730"},
		{Name: "TestKit"},
	}
	return cfg
}

func TestChooseTargetPrefersExplicit(t *testing.T) {
	target, err := chooseTarget(testTargets(), "TestKit")
	if err != nil {
		t.Fatalf("choose target: %v", err)
	}
	if target.Name != "TestKit" || target.Addr != "" {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestChooseTargetFallsBackToDefault(t *testing.T) {
	target, err := chooseTarget(testTargets(), "")
	if err != nil {
		t.Fatalf("choose target: %v", err)
	}
	if target.Addr != "192.168.1.100:730" {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestChooseTargetAliasIsCaseInsensitive(t *testing.T) {
	target, err := chooseTarget(testTargets(), "testkit")
	if err != nil {
		t.Fatalf("choose target: %v", err)
	}
	if target.Name != "TestKit" {
		t.Fatalf("alias did not keep canonical name: %+v", target)
	}
}

func TestChooseTargetLiteralWhenUnlisted(t *testing.T) {
	target, err := chooseTarget(testTargets(), "10.0.0.9:730")
	if err != nil {
		t.Fatalf("choose target: %v", err)
	}
	if target.Name != "10.0.0.9:730" || target.Addr != "" {
		t.Fatalf("unexpected target: %+v", target)
	}
	if target.dialTarget() != "10.0.0.9:730" {
		t.Fatalf("unexpected dial target: %q", target.dialTarget())
	}
}

func TestChooseTargetRequiresSomething(t *testing.T) {
	if _, err := chooseTarget(defaultTargetsConfig(), ""); err == nil {
		t.Fatalf("expected error without target or default")
	}
}

func TestDialTargetPrefersAddr(t *testing.T) {
	target := consoleTarget{Name: "devkit", Addr: "192.168.1.100:730"}
	if target.dialTarget() != "192.168.1.100:730" {
		t.Fatalf("unexpected dial target: %q", target.dialTarget())
	}
	target.Addr = ""
	if target.dialTarget() != "devkit" {
		t.Fatalf("unexpected dial target: %q", target.dialTarget())
	}
}

func TestGenerationLabels(t *testing.T) {
	ep := discovery.Endpoint{Addr: net.IPv4(10, 0, 0, 7), Port: protocol.Port360}
	if generation(ep) != "360" {
		t.Fatalf("unexpected generation: %q", generation(ep))
	}
	ep.Port = protocol.PortClassic
	if generation(ep) != "classic" {
		t.Fatalf("unexpected generation: %q", generation(ep))
	}
}
