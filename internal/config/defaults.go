package config

// GetDefaultConfigTemplate returns a fully commented config template
// that helps users understand all available options
func GetDefaultConfigTemplate() string {
	return `# Stagetrail Configuration
# See 'stagetrail config -h' for commands, 'stagetrail config keys' for all options

sessions_dir: ~/.stagetrail/sessions  # One directory per session
manifest: .stagetrail/workflow.yaml   # Default workflow manifest (.yaml, .yml, .toml)
color: auto                           # auto | always | never

# Stage index: where the latest artifact of each stage is looked up
index:
  backend: memory                     # memory | sqlite
  path: ""                            # SQLite file (empty = <sessions_dir>/index.db)

# Branch directories
branch:
  time_format: 20060102T150405.000Z   # Go time layout in <stage>_BRANCH_<time>_<suffix>

# Diagnostics
log:
  level: info                         # debug | info | warn | error
  file: ""                            # Log file (empty = stderr)
  format: text                        # text | json

# status --all
status:
  max_parallel: 4                     # Sessions resolved concurrently (1-64)

# Per-session activity log
history:
  max_entries: 500                    # Entries kept (0 = unlimited)
`
}

// GetDefaults returns the default configuration values keyed by dotted path
func GetDefaults() map[string]any {
	defaults := make(map[string]any, len(KnownKeys))
	for path, schema := range KnownKeys {
		defaults[path] = schema.Default
	}
	return defaults
}
