package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MigrationResult describes the outcome of a legacy config migration
type MigrationResult struct {
	SourcePath string
	TargetPath string
	Migrated   bool
	DryRun     bool
	Message    string
}

// MigrateJSONToYAML converts a legacy JSON config file to YAML. It never
// overwrites an existing YAML file, and a dry run only reports the plan.
// On success the JSON file is kept as <path>.bak.
func MigrateJSONToYAML(jsonPath, yamlPath string, dryRun bool) (*MigrationResult, error) {
	result := &MigrationResult{SourcePath: jsonPath, TargetPath: yamlPath, DryRun: dryRun}

	jsonData, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			result.Message = fmt.Sprintf("No JSON config found at %s", jsonPath)
			return result, nil
		}
		return nil, fmt.Errorf("reading JSON config: %w", err)
	}

	var configData map[string]any
	if err := json.Unmarshal(jsonData, &configData); err != nil {
		return nil, fmt.Errorf("parsing JSON config: %w", err)
	}

	if fileExists(yamlPath) {
		result.Message = fmt.Sprintf("YAML config already exists at %s (skipped)", yamlPath)
		return result, nil
	}

	if dryRun {
		result.Message = fmt.Sprintf("Would migrate %s -> %s", jsonPath, yamlPath)
		return result, nil
	}

	yamlData, err := yaml.Marshal(configData)
	if err != nil {
		return nil, fmt.Errorf("converting to YAML: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(yamlPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	header := "# Stagetrail Configuration\n# Migrated from JSON format\n\n"
	if err := os.WriteFile(yamlPath, []byte(header+string(yamlData)), 0o644); err != nil {
		return nil, fmt.Errorf("writing YAML config: %w", err)
	}
	if err := os.Rename(jsonPath, jsonPath+".bak"); err != nil {
		return nil, fmt.Errorf("backing up legacy config: %w", err)
	}

	result.Migrated = true
	result.Message = fmt.Sprintf("Migrated %s -> %s", jsonPath, yamlPath)
	return result, nil
}

// MigrateUserConfig migrates the user-level config from JSON to YAML.
func MigrateUserConfig(dryRun bool) (*MigrationResult, error) {
	jsonPath, err := LegacyUserConfigPath()
	if err != nil {
		return nil, fmt.Errorf("resolving legacy user config path: %w", err)
	}
	yamlPath, err := UserConfigPath()
	if err != nil {
		return nil, fmt.Errorf("resolving user config path: %w", err)
	}
	return MigrateJSONToYAML(jsonPath, yamlPath, dryRun)
}

// MigrateProjectConfig migrates the project-level config from JSON to YAML.
func MigrateProjectConfig(dryRun bool) (*MigrationResult, error) {
	return MigrateJSONToYAML(LegacyProjectConfigPath(), ProjectConfigPath(), dryRun)
}
