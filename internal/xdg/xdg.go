// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

// Package xdg locates Passline's files under the XDG Base Directory layout.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "passline"

// ConfigFileName is the name of the config file inside ConfigDir.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for passline.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns ConfigDir/config.yaml when that file exists and
// "" when it does not. Other stat failures are returned so that an
// unreadable config is not silently ignored.
func DefaultConfigFile() (string, error) {
	path := filepath.Join(ConfigDir(), ConfigFileName)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	case err != nil:
		return "", oops.Code("CONFIG_FILE_INVALID").With("file", path).Wrap(err)
	case info.IsDir():
		return "", oops.Code("CONFIG_FILE_INVALID").With("file", path).Errorf("config path is a directory")
	}
	return path, nil
}
