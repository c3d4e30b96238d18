// Package clipboard provides access to the system clipboard.
package clipboard

import (
	"fmt"

	"github.com/atotto/clipboard"
)

// Reader reads textual data from the system clipboard.
type Reader interface {
	Paste() (string, error)
}

// Service implements Reader using github.com/atotto/clipboard.
type Service struct {
	read func() (string, error)
}

// NewService constructs a clipboard service backed by the system clipboard.
func NewService() *Service {
	return &Service{read: clipboard.ReadAll}
}

// Paste returns the clipboard text verbatim.
func (service *Service) Paste() (string, error) {
	text, readErr := service.read()
	if readErr != nil {
		return "", fmt.Errorf("read clipboard: %w", readErr)
	}
	return text, nil
}

var _ Reader = (*Service)(nil)
