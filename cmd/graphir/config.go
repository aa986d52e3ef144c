package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const configFileName = "graphir.toml"

type projectConfig struct {
	Cache      cacheConfig      `toml:"cache"`
	ShapeCache shapeCacheConfig `toml:"shape_cache"`
	Lower      lowerConfig      `toml:"lower"`

	shapeCacheSet bool
}

type cacheConfig struct {
	Dir      string `toml:"dir"`
	Disabled bool   `toml:"disabled"`
}

type shapeCacheConfig struct {
	Size int `toml:"size"`
}

type lowerConfig struct {
	Jobs       int  `toml:"jobs"`
	NoMetadata bool `toml:"no_metadata"`
}

func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// loadConfig reads explicit when set, otherwise the nearest graphir.toml
// above startDir. A missing file yields the zero config.
func loadConfig(explicit, startDir string) (projectConfig, string, error) {
	path := explicit
	if path == "" {
		found, ok, err := findConfig(startDir)
		if err != nil || !ok {
			return projectConfig{}, "", err
		}
		path = found
	}
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return projectConfig{}, "", fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return projectConfig{}, "", fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if cfg.Lower.Jobs < 0 {
		return projectConfig{}, "", fmt.Errorf("%s: [lower].jobs must not be negative", path)
	}
	cfg.shapeCacheSet = meta.IsDefined("shape_cache", "size")
	return cfg, path, nil
}
