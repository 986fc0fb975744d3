// Package config loads pmat's ambient tunables from a hujson (JSON with
// comments) file, merged under built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// FileName is the default config file name, looked up in the working
// directory unless an explicit path is given.
const FileName = ".pmat.json"

// Config holds every tunable the monitor and the facade need. Fields left
// at their zero value after Load fall back to DefaultConfig's values.
type Config struct {
	VerifierPath          string  `json:"verifier_path,omitempty"`
	CacheMax              int     `json:"cache_max,omitempty"`
	WbMax                 int     `json:"wb_max,omitempty"`
	CrashProbability      float64 `json:"crash_probability,omitempty"`
	CacheEvictProbability float64 `json:"cache_evict_probability,omitempty"`
	WbEvictProbability    float64 `json:"wb_evict_probability,omitempty"`
	Seed                  uint64  `json:"seed,omitempty"`
	CrashDisabled         bool    `json:"crash_disabled,omitempty"`
}

// DefaultConfig returns pmat's built-in defaults.
func DefaultConfig() Config {
	return Config{
		CacheMax:              4096,
		WbMax:                 4096,
		CrashProbability:      1.0 / 100.0,
		CacheEvictProbability: 0.5,
		WbEvictProbability:    0.1,
		Seed:                  1,
	}
}

// Load reads path (hujson, so `//` comments are allowed) and merges it over
// DefaultConfig. A missing file is not an error: Load returns the defaults
// unchanged. VerifierPath, if non-empty, overrides whatever Load produced —
// this is how the dispatcher's --pmat-verifier flag takes final precedence
// over the file.
func Load(path, verifierPathOverride string) (Config, error) {
	cfg := DefaultConfig()

	fileCfg, loaded, err := loadFile(path)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, fileCfg)
	}

	if verifierPathOverride != "" {
		cfg.VerifierPath = verifierPathOverride
	}

	return cfg, nil
}

func loadFile(path string) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is a deliberately user-controlled config location
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	if v, exists := raw["verifier_path"]; exists {
		if s, ok := v.(string); ok && s == "" {
			return Config{}, ErrVerifierPathEmpty
		}
	}

	return cfg, nil
}

// merge overlays every non-zero field of overlay onto base.
func merge(base, overlay Config) Config {
	if overlay.VerifierPath != "" {
		base.VerifierPath = overlay.VerifierPath
	}

	if overlay.CacheMax != 0 {
		base.CacheMax = overlay.CacheMax
	}

	if overlay.WbMax != 0 {
		base.WbMax = overlay.WbMax
	}

	if overlay.CrashProbability != 0 {
		base.CrashProbability = overlay.CrashProbability
	}

	if overlay.CacheEvictProbability != 0 {
		base.CacheEvictProbability = overlay.CacheEvictProbability
	}

	if overlay.WbEvictProbability != 0 {
		base.WbEvictProbability = overlay.WbEvictProbability
	}

	if overlay.Seed != 0 {
		base.Seed = overlay.Seed
	}

	// CrashDisabled has no "unset" sentinel distinct from false: an overlay
	// file that sets it true always wins, one that omits it never clears a
	// base value of true.
	if overlay.CrashDisabled {
		base.CrashDisabled = true
	}

	return base
}

// Format renders cfg as indented JSON, for the monitor's "config print"
// command.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}

// Save writes cfg to path atomically, for the monitor's "config save"
// command. Unlike the region backing files (which go through pkg/fs), the
// config file lives on the host's real filesystem, so this uses
// natefinch/atomic's temp-file-then-rename directly against the OS.
func Save(path string, cfg Config) error {
	data, err := Format(cfg)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, strings.NewReader(data)); err != nil {
		return fmt.Errorf("save config %q: %w", path, err)
	}

	return nil
}
