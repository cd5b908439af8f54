// Package config provides hierarchical configuration management for stagetrail using koanf.
// Configuration is loaded with priority: environment variables > project config (.stagetrail/config.yml)
// > user config (~/.config/stagetrail/config.yml) > defaults. Legacy JSON config files are still
// read, with a warning pointing at 'stagetrail config migrate'.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "STAGETRAIL_"

// ConfigSource tracks where a configuration value came from
type ConfigSource string

const (
	SourceDefault ConfigSource = "default"
	SourceUser    ConfigSource = "user"
	SourceProject ConfigSource = "project"
	SourceEnv     ConfigSource = "env"
)

// Configuration represents the stagetrail CLI configuration
type Configuration struct {
	// SessionsDir holds one directory per session. Can be set via STAGETRAIL_SESSIONS_DIR.
	SessionsDir string `koanf:"sessions_dir" validate:"required"`
	// Manifest is the default workflow manifest path.
	Manifest string `koanf:"manifest" validate:"required"`
	// Color controls colored output: auto | always | never
	Color string `koanf:"color" validate:"oneof=auto always never"`

	Index   IndexConfig   `koanf:"index"`
	Branch  BranchConfig  `koanf:"branch"`
	Log     LogConfig     `koanf:"log"`
	Status  StatusConfig  `koanf:"status"`
	History HistoryConfig `koanf:"history"`
}

// IndexConfig selects the stage index backend.
type IndexConfig struct {
	// Backend is memory (rebuilt from disk each run) or sqlite (persistent).
	Backend string `koanf:"backend" validate:"oneof=memory sqlite"`
	// Path is the SQLite database file; empty means <sessions_dir>/index.db.
	Path string `koanf:"path"`
}

// BranchConfig controls branch directory naming.
type BranchConfig struct {
	// TimeFormat is the Go time layout used in branch directory names.
	TimeFormat string `koanf:"time_format" validate:"required"`
}

// LogConfig configures the diagnostic logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	File   string `koanf:"file"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// StatusConfig tunes 'stagetrail status --all'.
type StatusConfig struct {
	// MaxParallel bounds how many sessions are resolved concurrently.
	MaxParallel int `koanf:"max_parallel" validate:"min=1,max=64"`
}

// HistoryConfig bounds the per-session activity log.
type HistoryConfig struct {
	// MaxEntries is how many entries are kept; 0 keeps everything.
	MaxEntries int `koanf:"max_entries" validate:"min=0"`
}

// IndexPath returns the SQLite index location.
func (c *Configuration) IndexPath() string {
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return filepath.Join(c.SessionsDir, "index.db")
}

// LoadOptions configures how configuration is loaded
type LoadOptions struct {
	// ProjectConfigPath overrides the project config path (default: .stagetrail/config.yml)
	ProjectConfigPath string
	// UserConfigPath overrides the user config path (default: XDG config dir)
	UserConfigPath string
	// WarningWriter receives deprecation warnings (default: os.Stderr)
	WarningWriter io.Writer
	// SkipWarnings suppresses deprecation warnings
	SkipWarnings bool
}

// Result is a loaded configuration plus the source of every key.
type Result struct {
	Config  *Configuration
	Sources map[string]ConfigSource
	k       *koanf.Koanf
}

// Flat returns every loaded key with its final value.
func (r *Result) Flat() map[string]any {
	return r.k.All()
}

// Load loads configuration from user, project, and environment sources.
// Priority: Environment variables > Project config > User config > Defaults
func Load(projectConfigPath string) (*Configuration, error) {
	res, err := LoadWithOptions(LoadOptions{ProjectConfigPath: projectConfigPath})
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadWithOptions loads configuration with custom options
func LoadWithOptions(opts LoadOptions) (*Result, error) {
	k := koanf.New(".")
	sources := make(map[string]ConfigSource)
	warningWriter := getWarningWriter(opts.WarningWriter)

	loadDefaults(k)
	track(k, sources, SourceDefault, nil)

	before := k.All()
	if err := loadUserConfig(k, opts.UserConfigPath, warningWriter, opts.SkipWarnings); err != nil {
		return nil, err
	}
	track(k, sources, SourceUser, before)

	before = k.All()
	if err := loadProjectConfig(k, opts.ProjectConfigPath, warningWriter, opts.SkipWarnings); err != nil {
		return nil, err
	}
	track(k, sources, SourceProject, before)

	before = k.All()
	if err := loadEnvironmentConfig(k); err != nil {
		return nil, err
	}
	track(k, sources, SourceEnv, before)

	cfg, err := finalizeConfig(k)
	if err != nil {
		return nil, err
	}
	return &Result{Config: cfg, Sources: sources, k: k}, nil
}

// track attributes keys whose value changed since before to src.
func track(k *koanf.Koanf, sources map[string]ConfigSource, src ConfigSource, before map[string]any) {
	for key, value := range k.All() {
		prev, existed := before[key]
		if before == nil || !existed || fmt.Sprint(prev) != fmt.Sprint(value) {
			sources[key] = src
		}
	}
}

// getWarningWriter returns the warning writer or defaults to stderr
func getWarningWriter(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}

// loadDefaults applies default configuration values
func loadDefaults(k *koanf.Koanf) {
	for key, value := range GetDefaults() {
		k.Set(key, value)
	}
}

// loadUserConfig loads user-level config (YAML preferred, legacy JSON supported).
func loadUserConfig(k *koanf.Koanf, customPath string, warningWriter io.Writer, skipWarnings bool) error {
	userYAMLPath := customPath
	if userYAMLPath == "" {
		userYAMLPath, _ = UserConfigPath()
	}
	legacyUserPath, _ := LegacyUserConfigPath()
	if customPath != "" {
		legacyUserPath = ""
	}

	if fileExists(userYAMLPath) {
		if err := loadYAMLConfig(k, userYAMLPath, "user"); err != nil {
			return fmt.Errorf("loading user YAML config: %w", err)
		}
		warnLegacyExists(warningWriter, legacyUserPath, userYAMLPath, fileExists(legacyUserPath), skipWarnings, "--user")
	} else if fileExists(legacyUserPath) {
		if err := loadLegacyJSONConfig(k, legacyUserPath, "user", warningWriter, skipWarnings, "--user"); err != nil {
			return fmt.Errorf("loading legacy user JSON config: %w", err)
		}
	}
	return nil
}

// loadProjectConfig loads project-level config (YAML preferred, legacy JSON supported).
func loadProjectConfig(k *koanf.Koanf, customPath string, warningWriter io.Writer, skipWarnings bool) error {
	projectYAMLPath := ProjectConfigPath()
	if customPath != "" {
		projectYAMLPath = customPath
	}
	legacyProjectPath := LegacyProjectConfigPath()
	if customPath != "" {
		legacyProjectPath = strings.TrimSuffix(customPath, filepath.Ext(customPath)) + ".json"
	}

	if fileExists(projectYAMLPath) {
		if err := loadYAMLConfig(k, projectYAMLPath, "project"); err != nil {
			return fmt.Errorf("loading project YAML config: %w", err)
		}
		warnLegacyExists(warningWriter, legacyProjectPath, projectYAMLPath, fileExists(legacyProjectPath), skipWarnings, "--project")
	} else if fileExists(legacyProjectPath) {
		if err := loadLegacyJSONConfig(k, legacyProjectPath, "project", warningWriter, skipWarnings, "--project"); err != nil {
			return fmt.Errorf("loading legacy project JSON config: %w", err)
		}
	}
	return nil
}

// loadYAMLConfig validates and loads a YAML config file
func loadYAMLConfig(k *koanf.Koanf, path, configType string) error {
	if err := ValidateYAMLSyntax(path); err != nil {
		return fmt.Errorf("validating YAML syntax for %s config: %w", configType, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s config %s: %w", configType, path, err)
	}
	return nil
}

// loadLegacyJSONConfig loads legacy JSON and warns about migration
func loadLegacyJSONConfig(k *koanf.Koanf, path, configType string, warningWriter io.Writer, skipWarnings bool, migrateFlag string) error {
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return fmt.Errorf("failed to load legacy %s config %s: %w", configType, path, err)
	}
	if !skipWarnings {
		fmt.Fprintf(warningWriter, "Warning: Using deprecated JSON config at %s\n", path)
		fmt.Fprintf(warningWriter, "  Run 'stagetrail config migrate %s' to migrate to YAML format.\n\n", migrateFlag)
	}
	return nil
}

// warnLegacyExists warns if legacy JSON exists alongside new YAML
func warnLegacyExists(warningWriter io.Writer, legacyPath, yamlPath string, legacyExists, skipWarnings bool, migrateFlag string) {
	if legacyExists && !skipWarnings {
		fmt.Fprintf(warningWriter, "Warning: Legacy JSON config found at %s (ignored, using %s)\n", legacyPath, yamlPath)
		fmt.Fprintf(warningWriter, "  Run 'stagetrail config migrate %s' to remove the legacy file.\n\n", migrateFlag)
	}
}

// loadEnvironmentConfig loads environment variable overrides
func loadEnvironmentConfig(k *koanf.Koanf) error {
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return fmt.Errorf("failed to load environment config: %w", err)
	}
	return nil
}

// finalizeConfig unmarshals, validates, and expands paths
func finalizeConfig(k *koanf.Koanf) (*Configuration, error) {
	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateConfigValues(&cfg, "config"); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.SessionsDir = expandHomePath(cfg.SessionsDir)
	cfg.Manifest = expandHomePath(cfg.Manifest)
	cfg.Index.Path = expandHomePath(cfg.Index.Path)
	cfg.Log.File = expandHomePath(cfg.Log.File)
	return &cfg, nil
}

// fileExists returns true if the file exists and is readable
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// envTransform converts environment variable names to config keys.
// The first underscore after a section name becomes the key separator.
// Example: STAGETRAIL_INDEX_BACKEND -> index.backend, STAGETRAIL_SESSIONS_DIR -> sessions_dir
func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// sections are the nested config groups.
var sections = []string{"index", "branch", "log", "status", "history"}

// expandHomePath expands ~ to the user's home directory
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
