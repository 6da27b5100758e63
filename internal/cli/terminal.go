package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"golang.org/x/term"
)

const defaultWrapWidth = 100

// colorDisabled honours AICLI_NO_COLOR and NO_COLOR, and turns colour off on
// Windows consoles other than Windows Terminal.
func colorDisabled() bool {
	if strings.TrimSpace(os.Getenv("AICLI_NO_COLOR")) != "" || strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return true
	}
	if runtime.GOOS != "windows" {
		return false
	}
	return strings.TrimSpace(os.Getenv("WT_SESSION")) == "" && strings.TrimSpace(os.Getenv("TERM_PROGRAM")) != "WindowsTerminal"
}

type fdFile interface {
	Fd() uintptr
}

func isTerminal(v any) bool {
	f, ok := v.(fdFile)
	return ok && term.IsTerminal(int(f.Fd()))
}

// wrapWidth is the terminal width for w, or defaultWrapWidth when w is not a
// terminal.
func wrapWidth(w io.Writer) uint {
	if f, ok := w.(fdFile); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 20 {
			return uint(width - 2)
		}
	}
	return defaultWrapWidth
}

var errNotInteractive = errors.New("refusing to run a mutating command without a terminal; re-run with --yes")

// promptConfirmer asks before running a command that may change cluster
// state.
type promptConfirmer struct {
	in          io.Reader
	out         io.Writer
	yes         bool
	interactive func() bool
}

func (p *promptConfirmer) Confirm(_ context.Context, command string) (bool, error) {
	if p.yes {
		return true, nil
	}
	if p.interactive == nil || !p.interactive() {
		return false, errNotInteractive
	}
	fmt.Fprintf(p.out, "About to run: %s\nProceed? [y/N] ", command)
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// readSecret reads one line from in without echo when in is a terminal.
func readSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	if f, ok := in.(fdFile); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
