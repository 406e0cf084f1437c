package prompter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks questions on an input/output pair.
type Prompter struct {
	in  io.Reader
	out io.Writer
	// fd is the terminal file descriptor for hidden input, or -1.
	fd int
}

// New returns a prompter on stdin/stdout.
func New() *Prompter {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fd = -1
	}
	return &Prompter{in: os.Stdin, out: os.Stdout, fd: fd}
}

// NewWithIO returns a prompter on arbitrary streams; hidden input is not
// available.
func NewWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out, fd: -1}
}

// Interactive reports whether input comes from a terminal.
func (p *Prompter) Interactive() bool {
	return p.fd >= 0
}

// PromptString prompts user for a string input
func (p *Prompter) PromptString(label string) (string, error) {
	fmt.Fprint(p.out, label)
	input, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// PromptSecret prompts for hidden input such as an access token
func (p *Prompter) PromptSecret(label string) (string, error) {
	if p.fd < 0 {
		return p.PromptString(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// PromptConfirm prompts user for yes/no confirmation
func (p *Prompter) PromptConfirm(label string) (bool, error) {
	response, err := p.PromptString(label + " (y/n) ")
	if err != nil {
		return false, err
	}
	response = strings.ToLower(response)
	return response == "y" || response == "yes", nil
}
