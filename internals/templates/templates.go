// Package templates holds named, parameterisable task commands.
package templates

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Oudwins/wocs/internals/command"
	"github.com/Oudwins/wocs/internals/schemas"
)

const FileName = "templates.yaml"

var ErrUnknownTemplate = errors.New("unknown template")

//go:embed templates.yaml
var defaultTemplates []byte

type Template struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Type        schemas.TaskType  `yaml:"type"`
	Payload     map[string]string `yaml:"payload"`
}

// Command renders the template as a command line.
func (t Template) Command() string {
	return command.Format(t.Type, t.Payload)
}

type file struct {
	Templates []Template `yaml:"templates"`
}

type Registry struct {
	order []string
	byID  map[string]Template
}

// Load reads the embedded templates and merges <dataDir>/templates.yaml over
// them. A template in the override file replaces the default with the same id.
func Load(dataDir string) (*Registry, error) {
	registry, err := Parse(defaultTemplates)
	if err != nil {
		return nil, fmt.Errorf("default templates: %w", err)
	}
	if dataDir == "" {
		return registry, nil
	}

	data, err := os.ReadFile(filepath.Join(dataDir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return registry, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	overrides, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FileName, err)
	}
	for _, id := range overrides.order {
		registry.put(overrides.byID[id])
	}
	return registry, nil
}

func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	registry := &Registry{byID: map[string]Template{}}
	for i, tmpl := range f.Templates {
		if tmpl.ID == "" {
			return nil, fmt.Errorf("template %d has no id", i)
		}
		if !tmpl.Type.Valid() {
			return nil, fmt.Errorf("template %s: unknown type %q", tmpl.ID, tmpl.Type)
		}
		if _, dup := registry.byID[tmpl.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %s", tmpl.ID)
		}
		if tmpl.Payload == nil {
			tmpl.Payload = map[string]string{}
		}
		registry.put(tmpl)
	}
	return registry, nil
}

func (r *Registry) put(tmpl Template) {
	if _, exists := r.byID[tmpl.ID]; !exists {
		r.order = append(r.order, tmpl.ID)
	}
	r.byID[tmpl.ID] = tmpl
}

func (r *Registry) List() []Template {
	out := make([]Template, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Get(id string) (Template, error) {
	tmpl, ok := r.byID[id]
	if !ok {
		return Template{}, fmt.Errorf("template %s: %w", id, ErrUnknownTemplate)
	}
	return tmpl, nil
}

// Render returns the template's task type and its payload with overrides
// merged in. Values are passed through as given, spaces included.
func (r *Registry) Render(id string, overrides map[string]string) (schemas.TaskType, map[string]string, error) {
	tmpl, err := r.Get(id)
	if err != nil {
		return "", nil, err
	}
	payload := maps.Clone(tmpl.Payload)
	maps.Copy(payload, overrides)
	return tmpl.Type, payload, nil
}

// IDs returns template ids in load order.
func (r *Registry) IDs() []string {
	return slices.Clone(r.order)
}
