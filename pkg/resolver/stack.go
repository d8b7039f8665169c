package resolver

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Product describes one resolved dependency: a product known to the stack
// together with its version and install directory.
type Product struct {
	Name    string
	Version string
	Dir     string
}

type stackEntry struct {
	Version string `yaml:"version"`
	Dir     string `yaml:"dir,omitempty"`
}

// Stack is the flat table of products that dependency declarations resolve
// against. It intentionally has no version-constraint solver; each product
// is present in exactly one version.
type Stack struct {
	Root     string
	products map[string]stackEntry
}

// LoadStack reads a stack table from the given YAML file. The directory
// containing the file becomes the stack root.
func LoadStack(path string) (*Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read stack table %s", path)
	}

	var raw struct {
		Products map[string]stackEntry `yaml:"products"`
	}
	err = yaml.Unmarshal(data, &raw)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse stack table %s", path)
	}

	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	if raw.Products == nil {
		raw.Products = map[string]stackEntry{}
	}

	return &Stack{Root: root, products: raw.Products}, nil
}

// Lookup returns the stack's entry for the given product name.
func (s *Stack) Lookup(name string) (Product, bool) {
	entry, ok := s.products[name]
	if !ok {
		return Product{}, false
	}

	dir := entry.Dir
	if dir == "" {
		dir = filepath.Join(s.Root, name, entry.Version)
	}

	return Product{Name: name, Version: entry.Version, Dir: dir}, true
}
