package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Prompter is the interactive display surface used by long-running
// operations. Alert returns the index of the chosen option; ok is false
// when the prompt was dismissed without a choice.
type Prompter interface {
	Alert(title, message string, choices []string) (choice int, ok bool)
	Show(title, message string)
}

// Terminal prompts on a line-oriented terminal.
type Terminal struct {
	mu     sync.Mutex
	in     *bufio.Reader
	out    io.Writer
	silent bool
}

// NewTerminal returns a Terminal reading from stdin and writing to stderr.
func NewTerminal() *Terminal {
	return NewTerminalIO(os.Stdin, os.Stderr)
}

// NewTerminalIO returns a Terminal over the given streams.
func NewTerminalIO(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Quiet suppresses Show messages; alerts are still displayed.
func (t *Terminal) Quiet() *Terminal {
	t.silent = true
	return t
}

func (t *Terminal) Show(title, message string) {
	if t.silent {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if message == "" {
		fmt.Fprintf(t.out, "%s\n", title)
		return
	}
	fmt.Fprintf(t.out, "%s %s\n", title, message)
}

func (t *Terminal) Alert(title, message string, choices []string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "\n%s\n", title)
	if message != "" {
		fmt.Fprintf(t.out, "%s\n", message)
	}
	if len(choices) == 0 {
		return 0, true
	}

	for i, c := range choices {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, c)
	}

	for {
		fmt.Fprintf(t.out, "Choice [1-%d]: ", len(choices))
		line, err := t.in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" && err != nil {
			return 0, false
		}
		n, convErr := strconv.Atoi(line)
		if convErr == nil && n >= 1 && n <= len(choices) {
			return n - 1, true
		}
		if err != nil {
			return 0, false
		}
		fmt.Fprintf(t.out, "Please enter a number between 1 and %d\n", len(choices))
	}
}

// Silent never blocks: alerts are dismissed and messages dropped. It is the
// prompter used for non-interactive runs.
type Silent struct{}

func (Silent) Alert(string, string, []string) (int, bool) { return 0, false }

func (Silent) Show(string, string) {}
