package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dimmon.conf")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesModulesStarterAndRemainder(t *testing.T) {
	path := writeConfig(t, "# comment\n-- another comment\nmodules/sensor/dummy\nmodules/sink/recorder\n==\nstarter\n==\nnode-graph-goes-here\nsecond line\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.ModulePaths) != 2 || cfg.ModulePaths[0] != "modules/sensor/dummy" {
		t.Fatalf("unexpected module paths: %v", cfg.ModulePaths)
	}
	if cfg.StarterType != "starter" {
		t.Fatalf("unexpected starter type: %q", cfg.StarterType)
	}

	f, err := OpenRemainder(cfg)
	if err != nil {
		t.Fatalf("OpenRemainder: %v", err)
	}
	defer f.Close()
	buf := make([]byte, 64)
	n, _ := f.Read(buf)
	if got := string(buf[:n]); got[:len("node-graph-goes-here")] != "node-graph-goes-here" {
		t.Fatalf("unexpected remainder content: %q", got)
	}
}

func TestLoadRejectsMissingSeparators(t *testing.T) {
	path := writeConfig(t, "modules/sensor/dummy\nstarter\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for config missing == separators")
	}
}

func TestLoadRejectsOverlongStarterName(t *testing.T) {
	long := make([]byte, 40)
	for i := range long {
		long[i] = 'a'
	}
	path := writeConfig(t, "==\n"+string(long)+"\n==\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for overlong starter type name")
	}
}

func TestLoadRejectsGarbageBetweenSeparators(t *testing.T) {
	path := writeConfig(t, "==\nstarter\nnot-a-separator\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when second == is missing")
	}
}

func TestParseStarterSpecRoundTrip(t *testing.T) {
	raw := []byte(`
[[node]]
name = "src"
type = "sensor/dummy"

[[node]]
name = "sink"
type = "sink/recorder"

[[hook]]
src_node = "src"
src_hook = "out"
dst_node = "sink"
dst_hook = "in"

[[timer]]
node = "src"
interval_ms = 100
`)
	spec, err := ParseStarterSpec(raw)
	if err != nil {
		t.Fatalf("ParseStarterSpec: %v", err)
	}
	if len(spec.Nodes) != 2 || len(spec.Hooks) != 1 || len(spec.Timers) != 1 {
		t.Fatalf("unexpected spec shape: %+v", spec)
	}
	if spec.Hooks[0].SrcNode != "src" || spec.Hooks[0].DstNode != "sink" {
		t.Fatalf("unexpected hook: %+v", spec.Hooks[0])
	}
}
