package ui

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// ErrClipboardUnavailable is returned when no clipboard utility exists
var ErrClipboardUnavailable = errors.New("clipboard not available")

// Clipboard copies text to the system clipboard
type Clipboard struct{}

// NewClipboard builds the clipboard helper
func NewClipboard() *Clipboard {
	return &Clipboard{}
}

// Enabled reports whether a clipboard backend was found
func (c *Clipboard) Enabled() bool {
	return !clipboard.Unsupported
}

// Copy copies text to the system clipboard
func (c *Clipboard) Copy(text string) error {
	if !c.Enabled() {
		return ErrClipboardUnavailable
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}
