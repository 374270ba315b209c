package deps

import (
	"os"
	"path/filepath"
	"testing"

	"ferry/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestRequiredUsesConfiguredBinaries(t *testing.T) {
	cfg := config.Default()
	cfg.Push.RsyncBinary = "/opt/bin/rsync"
	cfg.Push.SSHBinary = "/opt/bin/ssh"

	reqs := Required(&cfg)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "/opt/bin/rsync" || reqs[1].Command != "/opt/bin/ssh" {
		t.Fatalf("unexpected commands: %+v", reqs)
	}
	for _, req := range reqs {
		if req.Optional {
			t.Fatalf("%s should be required", req.Name)
		}
	}
}

func TestMissingFiltersOptional(t *testing.T) {
	statuses := []Status{
		{Name: "rsync", Available: false},
		{Name: "ssh", Available: true},
		{Name: "extra", Available: false, Optional: true},
	}

	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "rsync" {
		t.Fatalf("unexpected missing set: %+v", missing)
	}
}
