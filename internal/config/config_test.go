package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/pmat/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")

	cfg, err := config.Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := config.DefaultConfig()
	if cfg != want {
		t.Fatalf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pmat.json")

	contents := `{
		// only override the cache size, everything else keeps its default
		"cache_max": 128,
	}`

	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.CacheMax != 128 {
		t.Fatalf("CacheMax = %d, want 128", cfg.CacheMax)
	}

	defaults := config.DefaultConfig()
	if cfg.WbMax != defaults.WbMax {
		t.Fatalf("WbMax = %d, want default %d", cfg.WbMax, defaults.WbMax)
	}
}

func TestLoadVerifierPathOverrideWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pmat.json")

	if err := os.WriteFile(path, []byte(`{"verifier_path": "/from/file"}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Load(path, "/from/flag")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.VerifierPath != "/from/flag" {
		t.Fatalf("VerifierPath = %q, want the CLI override to win", cfg.VerifierPath)
	}
}

func TestLoadRejectsExplicitlyEmptyVerifierPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pmat.json")

	if err := os.WriteFile(path, []byte(`{"verifier_path": ""}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := config.Load(path, ""); err == nil {
		t.Fatal("expected an error for an explicitly empty verifier_path")
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pmat.json")

	if err := os.WriteFile(path, []byte(`not json at all`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := config.Load(path, ""); err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pmat.json")

	cfg := config.DefaultConfig()
	cfg.CacheMax = 999
	cfg.VerifierPath = "/usr/local/bin/verify"

	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := config.Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got != cfg {
		t.Fatalf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestFormatProducesIndentedJSON(t *testing.T) {
	out, err := config.Format(config.DefaultConfig())
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	if out == "" {
		t.Fatal("expected non-empty formatted config")
	}
}
