package util

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the per-user config directory for stegodon,
// creating it if necessary. Honors XDG_CONFIG_HOME, falling back to
// ~/.config/stegodon the way most Go CLIs in this ecosystem do.
func GetConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	dir := filepath.Join(base, Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// ResolveFilePath finds name first in the current working directory, then
// falls back to the per-user config directory (creating it if needed).
// This is the "local override, user default" lookup ReadConf already
// documents for config.yaml, generalized to the other per-install files
// (database.db, the SSH host key).
func ResolveFilePath(name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}
	if dir, err := GetConfigDir(); err == nil {
		return filepath.Join(dir, name)
	}
	return name
}

// ResolveFilePathWithSubdir is ResolveFilePath scoped under a named
// subdirectory of the config dir (e.g. "avatars", ".ssh"), creating the
// subdirectory if necessary.
func ResolveFilePathWithSubdir(subdir, name string) string {
	localPath := filepath.Join(subdir, name)
	if _, err := os.Stat(localPath); err == nil {
		return localPath
	}
	dir, err := GetConfigDir()
	if err != nil {
		return localPath
	}
	full := filepath.Join(dir, subdir)
	if err := os.MkdirAll(full, 0755); err != nil {
		return localPath
	}
	return filepath.Join(full, name)
}
