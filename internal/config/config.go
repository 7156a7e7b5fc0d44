package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yuanying/epub3itizer/internal/opf"
)

// File is the properties file handed to the converter. It carries data
// gathered from the rest of the book by other tools.
type File struct {
	KeepGuide   *bool              `yaml:"keep_guide"`
	KeepEmptyDC *bool              `yaml:"keep_empty_dc"`
	Manifest    map[string]Tokens  `yaml:"manifest"`
	Spine       map[string]Tokens  `yaml:"spine"`
	Overlays    map[string]Overlay `yaml:"overlays"`
	IDs         []string           `yaml:"ids"`
}

// Overlay describes one media overlay document.
type Overlay struct {
	Duration float64  `yaml:"duration"`
	TextIDs  []string `yaml:"text_ids"`
}

// Tokens is a space separated property list. In YAML it may be written
// either as a string or as a sequence of strings.
type Tokens string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (t *Tokens) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = Tokens(strings.Join(strings.Fields(node.Value), " "))
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*t = Tokens(strings.Join(items, " "))
		return nil
	}
	return fmt.Errorf("line %d: property tokens must be a string or a list", node.Line)
}

// Load reads a properties file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read properties file: %w", err)
	}
	return Parse(data)
}

// Parse decodes properties from YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse properties file: %w", err)
	}
	for id, o := range f.Overlays {
		if o.Duration < 0 {
			return nil, fmt.Errorf("overlay %q: negative duration %v", id, o.Duration)
		}
	}
	return &f, nil
}

// Properties converts the file into converter input. A nil File yields
// empty properties.
func (f *File) Properties() opf.Properties {
	props := opf.Properties{
		Manifest: map[string]string{},
		Spine:    map[string]string{},
		Overlays: map[string]opf.MediaOverlay{},
	}
	if f == nil {
		return props
	}
	for id, tokens := range f.Manifest {
		if tokens != "" {
			props.Manifest[id] = string(tokens)
		}
	}
	for id, tokens := range f.Spine {
		if tokens != "" {
			props.Spine[id] = string(tokens)
		}
	}
	for id, o := range f.Overlays {
		props.Overlays[id] = opf.MediaOverlay{Duration: o.Duration, TextIDs: o.TextIDs}
	}
	return props
}

// Apply overrides the conversion flags that the file sets.
func (f *File) Apply(opts *opf.Options) {
	if f == nil {
		return
	}
	if f.KeepGuide != nil {
		opts.KeepGuide = *f.KeepGuide
	}
	if f.KeepEmptyDC != nil {
		opts.KeepEmptyDC = *f.KeepEmptyDC
	}
}
