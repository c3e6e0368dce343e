package config

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigDirName = "pcsctl"
	defaultConfigFile    = "config.yaml"
	defaultProfileDir    = "profiles"
)

func configDir() string {
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+defaultConfigDirName)
}

func DefaultConfigPath() string {
	if env := os.Getenv("PCSCTL_CONFIG"); env != "" {
		return env
	}
	return filepath.Join(configDir(), defaultConfigFile)
}

// DefaultProfileStoreDir is where per-profile credential files live.
func DefaultProfileStoreDir() string {
	if env := os.Getenv("PCSCTL_PROFILE_DIR"); env != "" {
		return env
	}
	return filepath.Join(configDir(), defaultProfileDir)
}
