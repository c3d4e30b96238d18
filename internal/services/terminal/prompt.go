// Package terminal reads secrets typed by the operator.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads a password without echo when input is a terminal and a
// single line otherwise, so piped input keeps working.
type Prompter struct {
	input    *os.File
	output   io.Writer
	terminal func(fd int) bool
	readRaw  func(fd int) ([]byte, error)
}

// NewPrompter reads from input and writes prompts to output.
func NewPrompter(input *os.File, output io.Writer) *Prompter {
	return &Prompter{
		input:    input,
		output:   output,
		terminal: term.IsTerminal,
		readRaw:  term.ReadPassword,
	}
}

// ReadPassword prints prompt and returns the typed secret.
func (prompter *Prompter) ReadPassword(prompt string) (string, error) {
	if prompter.input == nil {
		return "", errors.New("no input available")
	}
	fmt.Fprint(prompter.output, prompt)
	fileDescriptor := int(prompter.input.Fd())
	if prompter.terminal(fileDescriptor) {
		secret, readErr := prompter.readRaw(fileDescriptor)
		fmt.Fprintln(prompter.output)
		if readErr != nil {
			return "", fmt.Errorf("read password: %w", readErr)
		}
		return string(secret), nil
	}
	return readLine(prompter.input)
}

func readLine(reader io.Reader) (string, error) {
	line, readErr := bufio.NewReader(reader).ReadString('\n')
	if readErr != nil && !(errors.Is(readErr, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", readErr)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
