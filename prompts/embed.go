package prompts

import (
	"embed"
	"io/fs"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Built-in prompt names.
const (
	Extraction = "extraction"
	Report     = "report"
	Codegen    = "codegen"
	Explain    = "explain"
	Insights   = "insights"
)

// Default returns a registry over the embedded prompt templates.
func Default(opts ...Option) (*Registry, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	base := []Option{WithHelpers(template.FuncMap{
		"join": strings.Join,
	})}
	return NewRegistry(sub, append(base, opts...)...)
}
