package main

import "github.com/opencast/mediagate/internal/config"

// resolveAndLoad loads the configuration from path, or from the gateway's
// search path / MEDIAGATE_CONFIG_PATH when path is empty. It returns the
// path actually used, so callers can watch the same file.
func resolveAndLoad(path string) (config.Config, string, error) {
	if path == "" {
		resolved, err := config.ResolvePath()
		if err != nil {
			return config.Config{}, "", err
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}
