// Package prompt loads and renders the instruction templates sent to model providers.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Kind names one of the three instructions.
type Kind string

const (
	KindConvert Kind = "convert"
	KindSteps   Kind = "steps"
	KindStory   Kind = "story"
)

//go:embed prompts.yaml
var embedded []byte

// Data is the input a template is rendered with.
type Data struct {
	Task  string
	Steps []string
}

type entry struct {
	Template         string `yaml:"template"`
	FallbackTemplate string `yaml:"fallback_template"`
	System           string `yaml:"system"`
}

// Set holds the parsed templates for every kind.
type Set struct {
	primary  map[Kind]*template.Template
	fallback map[Kind]*template.Template
	system   map[Kind]string
}

var funcs = template.FuncMap{"join": strings.Join}

// Default returns the embedded prompt set.
func Default() (*Set, error) {
	return Parse(embedded)
}

// Load reads a prompt set from path, or the embedded set if path is empty.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML prompt set. Every kind must define a template.
func Parse(data []byte) (*Set, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("prompt: payload is empty")
	}
	var raw map[Kind]entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("prompt: decode: %w", err)
	}

	set := &Set{
		primary:  make(map[Kind]*template.Template),
		fallback: make(map[Kind]*template.Template),
		system:   make(map[Kind]string),
	}
	for _, kind := range []Kind{KindConvert, KindSteps, KindStory} {
		e, ok := raw[kind]
		if !ok || strings.TrimSpace(e.Template) == "" {
			return nil, fmt.Errorf("prompt: missing template for %q", kind)
		}
		tmpl, err := template.New(string(kind)).Funcs(funcs).Parse(e.Template)
		if err != nil {
			return nil, fmt.Errorf("prompt: parse %q: %w", kind, err)
		}
		set.primary[kind] = tmpl

		fb := tmpl
		if strings.TrimSpace(e.FallbackTemplate) != "" {
			fb, err = template.New(string(kind) + "_fallback").Funcs(funcs).Parse(e.FallbackTemplate)
			if err != nil {
				return nil, fmt.Errorf("prompt: parse %q fallback: %w", kind, err)
			}
		}
		set.fallback[kind] = fb
		set.system[kind] = e.System
	}
	return set, nil
}

// Render fills the primary template for kind.
func (s *Set) Render(kind Kind, d Data) (string, error) {
	return render(s.primary[kind], kind, d)
}

// RenderFallback fills the template used by the fallback provider.
func (s *Set) RenderFallback(kind Kind, d Data) (string, error) {
	return render(s.fallback[kind], kind, d)
}

// System returns the system instruction for kind.
func (s *Set) System(kind Kind) string {
	return s.system[kind]
}

func render(tmpl *template.Template, kind Kind, d Data) (string, error) {
	if tmpl == nil {
		return "", fmt.Errorf("prompt: unknown kind %q", kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("prompt: render %q: %w", kind, err)
	}
	return buf.String(), nil
}
