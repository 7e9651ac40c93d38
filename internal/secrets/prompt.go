package secrets

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the user for the secret. Cancellation is ok=false with a nil
// error.
type Prompter interface {
	Prompt(ctx context.Context, message string) (string, bool, error)
}

// TerminalPrompter reads the secret from a terminal without echoing it.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer

	tty terminal
}

// terminal is the part of golang.org/x/term the prompter needs.
type terminal interface {
	IsTerminal(fd int) bool
	GetState(fd int) (*term.State, error)
	Restore(fd int, state *term.State) error
	ReadPassword(fd int) ([]byte, error)
}

type xterm struct{}

func (xterm) IsTerminal(fd int) bool                  { return term.IsTerminal(fd) }
func (xterm) GetState(fd int) (*term.State, error)    { return term.GetState(fd) }
func (xterm) Restore(fd int, state *term.State) error { return term.Restore(fd, state) }
func (xterm) ReadPassword(fd int) ([]byte, error)     { return term.ReadPassword(fd) }

// NewTerminalPrompter prompts on stderr and reads from stdin.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

type promptResult struct {
	secret []byte
	err    error
}

// Prompt returns ok=false when input is not a terminal, the entry is empty,
// the read hits EOF, or ctx ends first.
//
// When ctx ends first the echo mode is restored, but the pending read is
// abandoned: its goroutine exits only when the terminal delivers a line.
func (p *TerminalPrompter) Prompt(ctx context.Context, message string) (string, bool, error) {
	tty := p.tty
	if tty == nil {
		tty = xterm{}
	}

	fd := int(p.In.Fd())
	if !tty.IsTerminal(fd) {
		return "", false, nil
	}

	state, err := tty.GetState(fd)
	if err != nil {
		return "", false, fmt.Errorf("read terminal state: %w", err)
	}

	fmt.Fprint(p.Out, message)

	done := make(chan promptResult, 1)
	go func() {
		secret, err := tty.ReadPassword(fd)
		done <- promptResult{secret: secret, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.Out)
		if err := tty.Restore(fd, state); err != nil {
			return "", false, fmt.Errorf("restore terminal: %w", err)
		}
		return "", false, nil
	case res := <-done:
		fmt.Fprintln(p.Out) // Add newline after hidden input
		if res.err == io.EOF {
			return "", false, nil
		}
		if res.err != nil {
			return "", false, fmt.Errorf("read secret: %w", res.err)
		}
		secret := strings.TrimSpace(string(res.secret))
		return secret, secret != "", nil
	}
}
