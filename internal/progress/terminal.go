// Package progress detects terminal capabilities and drives the spinner
// shown while long-running commands such as 'status --all' work.
package progress

import (
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"
)

// TerminalCapabilities describes what the output terminal supports.
type TerminalCapabilities struct {
	IsTTY           bool
	SupportsColor   bool
	SupportsUnicode bool
	Width           int
}

// ProgressSymbols are the glyphs used for status output.
type ProgressSymbols struct {
	Checkmark  string
	Failure    string
	SpinnerSet int
}

// DetectTerminalCapabilities detects terminal features and returns capabilities.
// Checks: stdout isatty, NO_COLOR env, STAGETRAIL_ASCII env, terminal width.
func DetectTerminalCapabilities() TerminalCapabilities {
	return detect(int(os.Stdout.Fd()), os.Getenv)
}

func detect(fd int, getenv func(string) string) TerminalCapabilities {
	isTTY := term.IsTerminal(fd)
	noColor := getenv("NO_COLOR") != ""
	forceASCII := getenv("STAGETRAIL_ASCII") == "1"

	width := 0
	if isTTY {
		if w, _, err := term.GetSize(fd); err == nil {
			width = w
		}
	}

	return TerminalCapabilities{
		IsTTY:           isTTY,
		SupportsColor:   isTTY && !noColor,
		SupportsUnicode: isTTY && !forceASCII,
		Width:           width,
	}
}

// SelectSymbols returns the appropriate symbol set based on terminal capabilities.
// Unicode: ✓/✗ with braille spinner (set 14). ASCII: [OK]/[FAIL] with |/-\ spinner (set 9).
func SelectSymbols(caps TerminalCapabilities) ProgressSymbols {
	if caps.SupportsUnicode {
		return ProgressSymbols{Checkmark: "✓", Failure: "✗", SpinnerSet: 14}
	}
	return ProgressSymbols{Checkmark: "[OK]", Failure: "[FAIL]", SpinnerSet: 9}
}

// Spinner is a start/stop progress indicator. It is inert unless the
// terminal is interactive, so callers never need to check.
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner creates a spinner writing to w with the given suffix.
func NewSpinner(w io.Writer, caps TerminalCapabilities, suffix string) *Spinner {
	if !caps.IsTTY {
		return &Spinner{}
	}
	sym := SelectSymbols(caps)
	s := spinner.New(spinner.CharSets[sym.SpinnerSet], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	return &Spinner{s: s}
}

// Start begins animating.
func (p *Spinner) Start() {
	if p.s != nil {
		p.s.Start()
	}
}

// Update replaces the suffix text.
func (p *Spinner) Update(suffix string) {
	if p.s != nil {
		p.s.Lock()
		p.s.Suffix = " " + suffix
		p.s.Unlock()
	}
}

// Stop halts the animation and clears the line.
func (p *Spinner) Stop() {
	if p.s != nil {
		p.s.Stop()
	}
}
