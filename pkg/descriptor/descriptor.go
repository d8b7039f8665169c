// Package descriptor implements the fixed-schema build descriptor that
// declares a product, its dependencies and the actions available in a
// directory tree. Descriptors are plain YAML; they never execute code.
package descriptor

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FileName is the name every descriptor file has to use, regardless of the
// directory level it sits at.
const FileName = "build.yaml"

// reservedNames lists the action names registered by the resolver itself.
var reservedNames = map[string]bool{
	"install": true,
	"clean":   true,
	"TAGS":    true,
	"dist":    true,
}

// Dependency is an ordered group of alternative product names. The first
// alternative that resolves against the product stack wins.
type Dependency []string

func (d *Dependency) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var name string
		if err := value.Decode(&name); err != nil {
			return err
		}
		*d = Dependency{name}
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*d = names
	default:
		return eris.Errorf("line %d: a dependency must be a name or a list of alternative names", value.Line)
	}

	if len(*d) == 0 {
		return eris.Errorf("line %d: empty dependency group", value.Line)
	}
	return nil
}

// ActionSpec declares a named shell action. Actions without a name are
// hidden and get an auto-generated name.
type ActionSpec struct {
	Name string   `yaml:"name,omitempty"`
	Desc string   `yaml:"desc,omitempty"`
	Deps []string `yaml:"deps,omitempty"`
	Cmds []string `yaml:"cmds"`

	Hidden bool `yaml:"-"`
}

// Descriptor is the parsed form of a build.yaml file.
type Descriptor struct {
	Product string       `yaml:"product"`
	Tag     string       `yaml:"tag,omitempty"`
	Deps    []Dependency `yaml:"deps,omitempty"`
	Subdirs []string     `yaml:"subdirs,omitempty"`
	Ignore  []string     `yaml:"ignore,omitempty"`
	Actions []ActionSpec `yaml:"actions,omitempty"`

	// Dir is the directory the descriptor was loaded from.
	Dir string `yaml:"-"`
}

// Load reads and validates the descriptor found in the given directory.
func Load(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	desc, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	desc.Dir = dir
	return desc, nil
}

// Parse decodes descriptor data. Unknown fields are rejected to keep the
// schema closed.
func Parse(data []byte) (*Descriptor, error) {
	desc := new(Descriptor)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(desc); err != nil {
		return nil, err
	}

	if desc.Subdirs == nil {
		desc.Subdirs = []string{"tests"}
	}

	for idx := range desc.Actions {
		action := &desc.Actions[idx]
		if len(action.Cmds) == 0 {
			return nil, eris.Errorf("action %q declares no commands", action.Name)
		}

		if reservedNames[action.Name] {
			return nil, eris.Errorf(`the action name %q is reserved, please use a different name`, action.Name)
		}

		if action.Name == "" {
			action.Hidden = true
			action.Name = "auto#" + nanoid.New()
		}
	}

	return desc, nil
}
