package errors

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	// Color functions honour color.NoColor, so they degrade to plain text
	// when output is not a terminal or --color=never is set.
	errorLabel  = color.New(color.FgRed, color.Bold).SprintFunc()
	errorMsg    = color.New(color.FgRed).SprintFunc()
	fixLabel    = color.New(color.FgGreen, color.Bold).SprintFunc()
	usageLabel  = color.New(color.FgCyan, color.Bold).SprintFunc()
	usageText   = color.New(color.FgCyan).SprintFunc()
	bullet      = color.New(color.FgGreen).SprintFunc()
	detailMark  = color.New(color.FgRed).SprintFunc()
	categoryFmt = color.New(color.FgYellow).SprintFunc()
)

// FormatError formats a CLIError for display in the terminal.
func FormatError(err *CLIError) string {
	if err == nil {
		return ""
	}
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s [%s]: %s\n", errorLabel("Error"), categoryFmt(err.Category.String()), errorMsg(err.Message))

	for _, d := range err.Details {
		fmt.Fprintf(&sb, "  %s %s\n", detailMark("-"), d)
	}

	if err.Usage != "" {
		fmt.Fprintf(&sb, "\n%s%s\n", usageLabel("Usage: "), usageText(err.Usage))
	}

	if len(err.Remediation) > 0 {
		fmt.Fprintf(&sb, "\n%s\n", fixLabel("To fix this:"))
		for _, step := range err.Remediation {
			fmt.Fprintf(&sb, "  %s %s\n", bullet("•"), step)
		}
	}
	return sb.String()
}

// FprintError prints a formatted error to w. Errors that are not CLIErrors
// are shown as runtime errors.
func FprintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	cliErr := AsCLIError(err)
	if cliErr == nil {
		cliErr = Wrap(err, Runtime)
	}
	fmt.Fprint(w, FormatError(cliErr))
}
