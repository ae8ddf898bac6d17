package flow

import (
	"fmt"
	"os"
)

// LoadOptions controls how a bot file is read.
type LoadOptions struct {
	// Template renders the file through RenderTemplate with TemplateContext
	// before decoding.
	Template        bool
	TemplateContext map[string]any
}

// LoadFile reads, optionally renders, and parses the bot at path.
func (p *Parser) LoadFile(path string, opts LoadOptions) (*Bot, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is a user-provided bot file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if opts.Template {
		rendered, err := RenderTemplate(string(data), opts.TemplateContext)
		if err != nil {
			return nil, &ParseError{Path: path, Message: err.Error()}
		}
		data = []byte(rendered)
	}

	return p.ParseBytes(data, path)
}
