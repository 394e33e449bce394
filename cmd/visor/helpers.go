package main

import (
	"fmt"
	"os"

	"github.com/dpopsuev/visor/internal/config"
)

// loadConfig resolves the engine config: file if given, defaults
// otherwise, then flag overrides on top.
func loadConfig(path string, target float64, maxIterations int) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadFromPath(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if target > 0 {
		cfg.Target = target
	}
	if maxIterations > 0 {
		cfg.MaxIterations = maxIterations
	}
	return cfg, nil
}

// requireFile fails early with a readable message when a flag-named
// input does not exist.
func requireFile(flagName, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("--%s: %s does not exist", flagName, path)
	}
	return nil
}
