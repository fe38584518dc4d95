package cliui

import "github.com/charmbracelet/glamour"

const (
	defaultWrap = 80
	minWrap     = 20
)

// RenderMarkdown renders a reply for the terminal, wrapping at width
// columns. Widths below a usable minimum fall back to 80. On failure the
// raw content is returned along with the error.
func RenderMarkdown(content string, width int) (string, error) {
	if width < minWrap {
		width = defaultWrap
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return rendered, nil
}
