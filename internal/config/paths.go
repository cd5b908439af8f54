package config

import (
	"os"
	"path/filepath"
)

// UserConfigPath returns the path to the user-level config file.
// This follows the XDG Base Directory Specification:
// - Linux: ~/.config/stagetrail/config.yml
// - macOS: ~/Library/Application Support/stagetrail/config.yml
// - Windows: %APPDATA%\stagetrail\config.yml
//
// If XDG_CONFIG_HOME is set, it will be respected on Linux.
func UserConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "stagetrail", "config.yml"), nil
}

// ProjectConfigPath returns the path to the project-level config file.
// This is always .stagetrail/config.yml relative to the current directory.
func ProjectConfigPath() string {
	return filepath.Join(ProjectConfigDir(), "config.yml")
}

// ProjectConfigDir returns the path to the project-level config directory.
func ProjectConfigDir() string {
	return ".stagetrail"
}

// LegacyUserConfigPath returns the path to the legacy user-level JSON config file: ~/.stagetrail/config.json
func LegacyUserConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".stagetrail", "config.json"), nil
}

// LegacyProjectConfigPath returns the path to the legacy project-level JSON config file.
func LegacyProjectConfigPath() string {
	return filepath.Join(ProjectConfigDir(), "config.json")
}
