// ABOUTME: Renders report markdown for the terminal with glamour

package report

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// Terminal renders md for display in a terminal. style is a glamour
// standard style name ("dark", "light", "notty"); empty picks one from
// the terminal background.
func Terminal(md string, width int, style string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("creating renderer: %w", err)
	}

	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return out, nil
}
