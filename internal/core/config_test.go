package core

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jsbridge.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig_KeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "memory_limit_mb = 16\nlocale = \"de-DE\"\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DefaultConfig()
	want.MemoryLimitMB = 16
	want.Locale = "de-DE"
	if cfg != want {
		t.Fatalf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestLoadConfig_AllKeys(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
memory_limit_mb = 0
collect_every = 10
force_gc = true
drain_after_eval = false
timezone = "UTC"
log_level = "debug"
unknown_key = 1
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MemoryLimitMB != 0 || cfg.CollectEvery != 10 || !cfg.ForceGC || cfg.DrainAfterEval || cfg.Timezone != "UTC" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if lvl, _ := cfg.Level(); lvl != zapcore.DebugLevel {
		t.Fatalf("level = %v", lvl)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := LoadConfig(writeConfig(t, "memory_limit_mb = ")); err == nil {
		t.Error("malformed TOML should fail")
	}
	if _, err := LoadConfig(writeConfig(t, "collect_every = -1")); err == nil {
		t.Error("negative cadence should fail")
	}
	if _, err := LoadConfig(writeConfig(t, `log_level = "loud"`)); err == nil {
		t.Error("unknown level should fail")
	}
}

func TestConfig_EmptyLevelIsInfo(t *testing.T) {
	lvl, err := Config{}.Level()
	if err != nil || lvl != zapcore.InfoLevel {
		t.Fatalf("level = %v, %v", lvl, err)
	}
}
