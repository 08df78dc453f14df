package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var ErrAborted = errors.New("prompt aborted")

// Asker supplies the connection parameters that were not configured.
type Asker interface {
	// AskHost asks for the server address, optionally with a port ("1.2.3.4:22")
	AskHost() (string, error)
	// AskUser asks for the SSH user
	AskUser() (string, error)
	// AskPassword asks for the SSH password without echoing it
	AskPassword(user, host string) (string, error)
}

// New returns a survey-backed asker when in is a terminal and a plain line
// reader otherwise (pipes, CI, tests).
func New(in io.Reader, out, errOut io.Writer) Asker {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if o, ok := out.(*os.File); ok {
			return NewSurveyAsker(f, o, errOut)
		}
	}
	return NewLineAsker(in, errOut)
}

const (
	hostMessage = "Server host and port (e.g. 1.2.3.4:22)"
	userMessage = "SSH user (e.g. root)"
)

func passwordMessage(user, host string) string {
	return fmt.Sprintf("SSH password for %s@%s", user, host)
}

// Line reads answers one line at a time.
type Line struct {
	reader *bufio.Reader
	out    io.Writer
}

func NewLineAsker(in io.Reader, out io.Writer) *Line {
	return &Line{reader: bufio.NewReader(in), out: out}
}

func (l *Line) ask(message string) (string, error) {
	fmt.Fprintf(l.out, "%s: ", message)
	value, err := l.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if errors.Is(err, io.EOF) && value == "" {
		return "", ErrAborted
	}
	return strings.TrimRight(value, "\r\n"), nil
}

func (l *Line) AskHost() (string, error) {
	value, err := l.ask(hostMessage)
	return strings.TrimSpace(value), err
}

func (l *Line) AskUser() (string, error) {
	value, err := l.ask(userMessage)
	return strings.TrimSpace(value), err
}

// AskPassword keeps surrounding whitespace, which may be part of the password.
func (l *Line) AskPassword(user, host string) (string, error) {
	return l.ask(passwordMessage(user, host))
}
