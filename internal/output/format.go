// Package output provides terminal output formatting utilities for the stagetrail CLI.
// This package is designed to have minimal dependencies to avoid import cycles.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// GetTerminalWidth returns the terminal width, defaulting to 80 if unavailable.
func GetTerminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}

// ConfigureColor applies a color mode: auto keeps fatih/color's detection,
// always and never force it.
func ConfigureColor(mode string) {
	var noColor bool
	switch mode {
	case "always":
	case "never":
		noColor = true
	default:
		return
	}
	if color.NoColor != noColor {
		color.NoColor = noColor
	}
}

// PrintRule prints a dim separator with a centred label, sized to the terminal.
func PrintRule(out io.Writer, label string) {
	magenta := color.New(color.FgMagenta, color.Faint).SprintFunc()
	label = " " + label + " "
	lineLen := (min(GetTerminalWidth(), 100) - len(label)) / 2
	if lineLen < 3 {
		lineLen = 3
	}
	line := strings.Repeat("─", lineLen)
	fmt.Fprintf(out, "%s%s%s\n", magenta(line), magenta(label), magenta(line))
}

// PrintSuccess prints a green checkmark and a cyan message.
func PrintSuccess(out io.Writer, message string) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(out, "%s %s\n", green("✓"), cyan(message))
}

// PrintWarning prints a yellow warning marker and message.
func PrintWarning(out io.Writer, message string) {
	yellow := color.New(color.FgYellow, color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s %s\n", yellow("!"), message)
}

// PrintBlocked prints a red cross and message.
func PrintBlocked(out io.Writer, message string) {
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s %s\n", red("✗"), message)
}

// PrintField prints an aligned "label: value" line with a dim label.
func PrintField(out io.Writer, label, value string) {
	dim := color.New(color.Faint).SprintFunc()
	fmt.Fprintf(out, "  %s %s\n", dim(fmt.Sprintf("%-12s", label+":")), value)
}
