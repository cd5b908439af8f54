package cli

// Exit codes for the stagetrail CLI.
// These codes support programmatic composition and CI integration.
const (
	// ExitSuccess indicates successful command execution
	ExitSuccess = 0

	// ExitFailure indicates a runtime, configuration or manifest error
	ExitFailure = 1

	// ExitSoftBlocked indicates a transition was allowed with a skip warning
	ExitSoftBlocked = 2

	// ExitHardBlocked indicates a transition was refused
	ExitHardBlocked = 3

	// ExitInvalidArguments indicates invalid command arguments
	ExitInvalidArguments = 4
)
