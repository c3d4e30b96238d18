// Package input validates and resolves the mutually exclusive password and
// message sources.
package input

import (
	"errors"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/temirov/queuesend/internal/progress"
	"github.com/temirov/queuesend/internal/types"
)

// Option names of the two exclusive groups, shared with the command line.
const (
	PasswordOption            = "password"
	InteractivePasswordOption = "interactive-password"
	MessageOption             = "message"
	MessageFileOption         = "message-file"
	MessageClipboardOption    = "message-clipboard"
)

const (
	passwordGroupName        = "password"
	messageGroupName         = "message"
	missingGroupMemberFormat = "specify the %s with exactly one of: %s"
	conflictingMembersFormat = "the %s options are mutually exclusive: %s"
	optionPrefix             = "--"
	optionSeparator          = ", "

	interactivePasswordPrompt = "Enter value for --interactive-password (password for the connecting user): "
	interactivePasswordSource = "interactive password"
	messageFileSource         = "message file"
	clipboardSource           = "clipboard"

	readingFileMessageFormat = "reading message from '%s' file..."
	readingClipboardMessage  = "reading message from the clipboard..."
)

var (
	errNoPrompter  = errors.New("no terminal available for the password prompt")
	errNoClipboard = errors.New("clipboard access is not available")
)

// PasswordSources holds the password group. An empty Literal counts as not supplied.
type PasswordSources struct {
	Literal     string
	Interactive bool
}

// MessageSources holds the message group. Empty strings count as not supplied.
type MessageSources struct {
	Literal   string
	FilePath  string
	Clipboard bool
}

type groupMember struct {
	option   string
	supplied bool
}

// Validate returns a UsageError unless exactly one password source is supplied.
func (sources PasswordSources) Validate() error {
	return requireExactlyOne(passwordGroupName,
		groupMember{option: PasswordOption, supplied: sources.Literal != ""},
		groupMember{option: InteractivePasswordOption, supplied: sources.Interactive},
	)
}

// Validate returns a UsageError unless exactly one message source is supplied.
func (sources MessageSources) Validate() error {
	return requireExactlyOne(messageGroupName,
		groupMember{option: MessageOption, supplied: sources.Literal != ""},
		groupMember{option: MessageFileOption, supplied: sources.FilePath != ""},
		groupMember{option: MessageClipboardOption, supplied: sources.Clipboard},
	)
}

func requireExactlyOne(group string, members ...groupMember) error {
	var all, supplied []string
	for _, member := range members {
		all = append(all, optionPrefix+member.option)
		if member.supplied {
			supplied = append(supplied, optionPrefix+member.option)
		}
	}
	switch len(supplied) {
	case 1:
		return nil
	case 0:
		return types.NewUsageError(missingGroupMemberFormat, group, strings.Join(all, optionSeparator))
	default:
		return types.NewUsageError(conflictingMembersFormat, group, strings.Join(supplied, optionSeparator))
	}
}

// Prompter reads a secret typed by the operator.
type Prompter interface {
	ReadPassword(prompt string) (string, error)
}

// ClipboardReader reads text from the system clipboard.
type ClipboardReader interface {
	Paste() (string, error)
}

// FileReader reads a whole file.
type FileReader func(path string) ([]byte, error)

// Resolver picks the effective password and message body.
type Resolver struct {
	Prompter  Prompter
	Clipboard ClipboardReader
	ReadFile  FileReader
	Progress  progress.Sink
}

// Password returns the literal password, or prompts for one in interactive mode.
func (resolver Resolver) Password(sources PasswordSources) (string, error) {
	if sources.Literal != "" || !sources.Interactive {
		return sources.Literal, nil
	}
	if resolver.Prompter == nil {
		return "", &types.InputError{Source: interactivePasswordSource, Err: errNoPrompter}
	}
	password, promptErr := resolver.Prompter.ReadPassword(interactivePasswordPrompt)
	if promptErr != nil {
		return "", &types.InputError{Source: interactivePasswordSource, Err: promptErr}
	}
	return password, nil
}

// Message returns the message body without trimming it. File content is
// decoded as UTF-8 with invalid byte sequences replaced by U+FFFD.
func (resolver Resolver) Message(sources MessageSources) (string, error) {
	switch {
	case sources.Literal != "":
		return sources.Literal, nil
	case sources.FilePath != "":
		progress.Reportf(resolver.sink(), progress.LevelDebug, readingFileMessageFormat, sources.FilePath)
		readFile := resolver.ReadFile
		if readFile == nil {
			readFile = os.ReadFile
		}
		content, readErr := readFile(sources.FilePath)
		if readErr != nil {
			return "", &types.InputError{Source: messageFileSource, Path: sources.FilePath, Err: readErr}
		}
		return decodeUTF8(content), nil
	case sources.Clipboard:
		resolver.sink().Report(progress.LevelDebug, readingClipboardMessage)
		if resolver.Clipboard == nil {
			return "", &types.InputError{Source: clipboardSource, Err: errNoClipboard}
		}
		text, pasteErr := resolver.Clipboard.Paste()
		if pasteErr != nil {
			return "", &types.InputError{Source: clipboardSource, Err: pasteErr}
		}
		return text, nil
	default:
		return "", nil
	}
}

func (resolver Resolver) sink() progress.Sink {
	if resolver.Progress == nil {
		return progress.Discard
	}
	return resolver.Progress
}

func decodeUTF8(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	var decoded strings.Builder
	decoded.Grow(len(content))
	for len(content) > 0 {
		decodedRune, size := utf8.DecodeRune(content)
		decoded.WriteRune(decodedRune)
		content = content[size:]
	}
	return decoded.String()
}
