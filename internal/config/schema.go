package config

import "sort"

// ConfigValueType defines the expected type for a configuration value.
type ConfigValueType int

const (
	TypeBool ConfigValueType = iota
	TypeInt
	TypeString
	TypeEnum
)

// String returns the string representation of ConfigValueType.
func (t ConfigValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// ConfigKeySchema defines a known configuration key with its expected type and validation rules.
type ConfigKeySchema struct {
	Path          string          // Dotted key path (e.g., "index.backend")
	Type          ConfigValueType // Expected value type
	AllowedValues []string        // Valid values for enum types (empty for non-enums)
	Description   string          // Human-readable description for help text
	Default       any             // Default value
}

// DefaultBranchTimeFormat matches the artifact store's branch naming.
const DefaultBranchTimeFormat = "20060102T150405.000Z"

// KnownKeys is the registry of all known configuration keys with their schemas.
var KnownKeys = map[string]ConfigKeySchema{
	"sessions_dir": {
		Path:        "sessions_dir",
		Type:        TypeString,
		Description: "Directory holding one subdirectory per session",
		Default:     "~/.stagetrail/sessions",
	},
	"manifest": {
		Path:        "manifest",
		Type:        TypeString,
		Description: "Default workflow manifest (.yaml, .yml or .toml)",
		Default:     ".stagetrail/workflow.yaml",
	},
	"color": {
		Path:          "color",
		Type:          TypeEnum,
		AllowedValues: []string{"auto", "always", "never"},
		Description:   "Colored output",
		Default:       "auto",
	},
	"index.backend": {
		Path:          "index.backend",
		Type:          TypeEnum,
		AllowedValues: []string{"memory", "sqlite"},
		Description:   "Stage index backend; memory rebuilds by scanning on every run",
		Default:       "memory",
	},
	"index.path": {
		Path:        "index.path",
		Type:        TypeString,
		Description: "SQLite index file (empty = <sessions_dir>/index.db)",
		Default:     "",
	},
	"branch.time_format": {
		Path:        "branch.time_format",
		Type:        TypeString,
		Description: "Go time layout used in branch directory names",
		Default:     DefaultBranchTimeFormat,
	},
	"log.level": {
		Path:          "log.level",
		Type:          TypeEnum,
		AllowedValues: []string{"debug", "info", "warn", "error"},
		Description:   "Diagnostic log level",
		Default:       "info",
	},
	"log.file": {
		Path:        "log.file",
		Type:        TypeString,
		Description: "Write diagnostics to this file instead of stderr",
		Default:     "",
	},
	"log.format": {
		Path:          "log.format",
		Type:          TypeEnum,
		AllowedValues: []string{"text", "json"},
		Description:   "Diagnostic log format",
		Default:       "text",
	},
	"status.max_parallel": {
		Path:        "status.max_parallel",
		Type:        TypeInt,
		Description: "Sessions resolved concurrently by 'status --all' (1-64)",
		Default:     4,
	},
	"history.max_entries": {
		Path:        "history.max_entries",
		Type:        TypeInt,
		Description: "Activity log entries kept per session (0 = unlimited)",
		Default:     500,
	},
}

// ErrUnknownKey is returned when trying to access an unknown configuration key.
type ErrUnknownKey struct {
	Key string
}

func (e ErrUnknownKey) Error() string {
	return "unknown configuration key: " + e.Key
}

// GetKeySchema returns the schema for a known configuration key.
// Returns ErrUnknownKey if the key is not in the registry.
func GetKeySchema(path string) (ConfigKeySchema, error) {
	schema, ok := KnownKeys[path]
	if !ok {
		return ConfigKeySchema{}, ErrUnknownKey{Key: path}
	}
	return schema, nil
}

// SortedKeys returns every known key path in lexical order.
func SortedKeys() []string {
	keys := make([]string, 0, len(KnownKeys))
	for k := range KnownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
