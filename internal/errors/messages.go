package errors

import (
	"fmt"
	"strings"
)

// Common error messages for the stagetrail CLI.

// ManifestNotFound creates an error for a missing manifest file.
func ManifestNotFound(path string, cause error) *CLIError {
	e := New(Configuration, fmt.Sprintf("workflow manifest not found: %s", path),
		"Pass the manifest explicitly: stagetrail --manifest path/to/workflow.yaml <command>",
		"Or set 'manifest' in .stagetrail/config.yml",
	)
	e.Cause = cause
	return e
}

// InvalidManifest reports every validation error of a manifest at once.
func InvalidManifest(path string, errs []error) *CLIError {
	e := New(Manifest, fmt.Sprintf("%s: %d validation error(s)", path, len(errs)),
		"Fix the listed problems and run 'stagetrail validate' again",
	)
	for _, err := range errs {
		e.Details = append(e.Details, err.Error())
	}
	return e
}

// SessionNotFound creates an error for an unknown session ID.
func SessionNotFound(id string, cause error) *CLIError {
	e := NewPrerequisiteError(fmt.Sprintf("session not found: %s", id),
		"List sessions with: stagetrail session list",
		"Or start one with: stagetrail session new",
	)
	e.Cause = cause
	return e
}

// NoSessions is returned when a command needs a session and none exist.
func NoSessions() *CLIError {
	return NewPrerequisiteError("no sessions yet",
		"Start one with: stagetrail session new",
	)
}

// UnknownStage creates an error for a stage ID missing from the manifest.
func UnknownStage(id string, known []string, cause error) *CLIError {
	e := NewArgumentError(fmt.Sprintf("unknown stage: %s", id),
		fmt.Sprintf("Known stages: %s", strings.Join(known, ", ")),
	)
	e.Cause = cause
	return e
}

// NoStageForCommand creates an error for a command that routes nowhere.
func NoStageForCommand(command string, cause error) *CLIError {
	e := NewArgumentError(fmt.Sprintf("no stage handles %q", command),
		"List routable commands with: stagetrail commands",
	)
	e.Cause = cause
	return e
}

// NotOptional creates an error for skipping a required stage.
func NotOptional(stage string, cause error) *CLIError {
	e := NewArgumentError(fmt.Sprintf("stage %s is required and cannot be skipped", stage),
		fmt.Sprintf("Record its output instead: stagetrail write %s --file output.json", stage),
	)
	e.Cause = cause
	return e
}

// InvalidParam creates an error for a malformed --params entry.
func InvalidParam(raw string) *CLIError {
	return NewArgumentErrorWithUsage(fmt.Sprintf("invalid parameter %q", raw),
		"stagetrail write <stage> --params key=value",
		"Parameters must be key=value pairs",
	)
}
