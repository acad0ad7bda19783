// Package interactive provides interactive prompts for user confirmation.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Response represents the user's response to a prompt.
type Response int

const (
	ResponseYes  Response = iota // Proceed with this step
	ResponseNo                   // Skip this step
	ResponseAll                  // Approve all remaining steps
	ResponseQuit                 // Abort
)

func (r Response) String() string {
	switch r {
	case ResponseYes:
		return "yes"
	case ResponseNo:
		return "no"
	case ResponseAll:
		return "all"
	default:
		return "quit"
	}
}

// Prompter asks the user to confirm the steps of an update.
type Prompter struct {
	in         io.Reader
	out        io.Writer
	scanner    *bufio.Scanner
	approveAll bool
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:      in,
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// prompt displays a question and reads the response.
func (p *Prompter) prompt(format string, args ...any) Response {
	if p.approveAll {
		return ResponseYes
	}

	_, _ = fmt.Fprintf(p.out, format, args...)
	_, _ = fmt.Fprint(p.out, " [y/n/a/q] ")

	if !p.scanner.Scan() {
		return ResponseQuit
	}

	input := strings.ToLower(strings.TrimSpace(p.scanner.Text()))
	switch input {
	case "y", "yes":
		return ResponseYes
	case "n", "no":
		return ResponseNo
	case "a", "all":
		p.approveAll = true
		return ResponseYes
	case "q", "quit":
		return ResponseQuit
	default:
		// Default to no for invalid input
		_, _ = fmt.Fprintln(p.out, "Invalid response, skipping.")
		return ResponseNo
	}
}

// Confirm asks a yes/no question. Anything but an explicit yes (or an
// earlier "all") declines.
func (p *Prompter) Confirm(format string, args ...any) bool {
	return p.prompt(format, args...) == ResponseYes
}

// ConfirmUpdate shows the pending version change and its notes, then asks
// whether to proceed with step ("download", "apply and restart").
func (p *Prompter) ConfirmUpdate(from, to, notes, step string) bool {
	_, _ = fmt.Fprintf(p.out, "\nUpdate %s -> %s\n", from, to)
	if notes = strings.TrimSpace(notes); notes != "" {
		for _, line := range strings.Split(notes, "\n") {
			_, _ = fmt.Fprintf(p.out, "  %s\n", line)
		}
	}
	if p.Confirm("Proceed to %s?", step) {
		return true
	}
	_, _ = fmt.Fprintln(p.out, "Aborted.")
	return false
}
