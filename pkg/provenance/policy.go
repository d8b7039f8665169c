package provenance

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultPipefile is the dotted policy path identifying a pipeline
// definition subtree.
const DefaultPipefile = "workflow.pipeline.definition"

// includePrefix marks a policy value as a reference to another policy
// file, resolved against the repository directory.
const includePrefix = "@"

// Param is one leaf entry of a policy file.
type Param struct {
	Name  string
	Type  string
	Value string
}

// Policy is a parsed policy file.
type Policy struct {
	Path   string
	params []Param
}

// Parsed policies are kept in a small cache since include extraction
// revisits the same repository files repeatedly.
var policyCache, _ = lru.New[string, *Policy](64)

// LoadPolicy reads and parses the given policy file, consulting the parse
// cache first.
func LoadPolicy(path string) (*Policy, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	if cached, ok := policyCache.Get(abs); ok {
		return cached, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read policy %s", path)
	}

	var root yaml.Node
	err = yaml.Unmarshal(data, &root)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse policy %s", path)
	}

	policy := &Policy{Path: abs}
	if len(root.Content) > 0 {
		policy.params = flattenNode(root.Content[0], "")
	}

	policyCache.Add(abs, policy)
	return policy, nil
}

// ParamNames returns the dotted names of all leaf entries, sorted.
func (p *Policy) ParamNames() []string {
	names := make([]string, len(p.params))
	for idx, param := range p.params {
		names[idx] = param.Name
	}

	sort.Strings(names)
	return names
}

// Param returns the leaf entry with the given dotted name.
func (p *Policy) Param(name string) (Param, bool) {
	for _, param := range p.params {
		if param.Name == name {
			return param, true
		}
	}
	return Param{}, false
}

// Params returns all leaf entries in document order.
func (p *Policy) Params() []Param {
	params := make([]Param, len(p.params))
	copy(params, p.params)
	return params
}

func flattenNode(node *yaml.Node, base string) []Param {
	params := make([]Param, 0)

	switch node.Kind {
	case yaml.MappingNode:
		for idx := 0; idx+1 < len(node.Content); idx += 2 {
			key := node.Content[idx].Value
			name := key
			if base != "" {
				name = base + "." + key
			}
			params = append(params, flattenNode(node.Content[idx+1], name)...)
		}
	case yaml.SequenceNode:
		// arrays collapse into one entry, matching the "works for
		// arrays, too" stringification of the original
		values := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind == yaml.ScalarNode {
				values = append(values, item.Value)
			} else {
				params = append(params, flattenNode(item, base)...)
			}
		}
		if len(values) > 0 {
			params = append(params, Param{Name: base, Type: "array", Value: strings.Join(values, " ")})
		}
	case yaml.ScalarNode:
		params = append(params, Param{Name: base, Type: scalarTypeName(node), Value: node.Value})
	case yaml.AliasNode:
		if node.Alias != nil {
			params = append(params, flattenNode(node.Alias, base)...)
		}
	}

	return params
}

func scalarTypeName(node *yaml.Node) string {
	switch node.Tag {
	case "!!int":
		return "int"
	case "!!bool":
		return "bool"
	case "!!float":
		return "double"
	default:
		return "string"
	}
}

// ExtractIncludedFilenames returns the (unique, in order of first
// appearance) filenames referenced by the given policy file and,
// recursively, by the files it includes. Filenames below the pipefile
// subtree of the top-level file are skipped; included files are scanned
// in full. Missing or unparseable include targets are logged as warnings
// and otherwise ignored.
func ExtractIncludedFilenames(filename, repository, pipefile string, logger *zerolog.Logger) []string {
	seen := make(map[string]bool)
	result := make([]string, 0)

	var visit func(file string, prune bool)
	visit = func(file string, prune bool) {
		policy, err := LoadPolicy(file)
		if err != nil {
			if logger != nil {
				logger.Warn().Msgf("%s: %s", file, err.Error())
			}
			return
		}

		for _, param := range policy.Params() {
			if !strings.HasPrefix(param.Value, includePrefix) {
				continue
			}
			if prune && pipefile != "" && underPath(param.Name, pipefile) {
				continue
			}

			included := strings.TrimPrefix(param.Value, includePrefix)
			if seen[included] {
				continue
			}
			seen[included] = true
			result = append(result, included)

			visit(filepath.Join(repository, included), false)
		}
	}

	visit(filename, true)
	return result
}

// ExtractPipelineFilenames returns the filenames that make up the
// definition of the named pipeline: every include below a policy node
// whose path contains the pipeline name, expanded recursively.
func ExtractPipelineFilenames(pipeline, filename, repository string, logger *zerolog.Logger) []string {
	seen := make(map[string]bool)
	result := make([]string, 0)

	var collect func(file string, all bool)
	collect = func(file string, all bool) {
		policy, err := LoadPolicy(file)
		if err != nil {
			if logger != nil {
				logger.Warn().Msgf("%s: %s", file, err.Error())
			}
			return
		}

		for _, param := range policy.Params() {
			if !strings.HasPrefix(param.Value, includePrefix) {
				continue
			}
			if !all && !pathContains(param.Name, pipeline) {
				continue
			}

			included := strings.TrimPrefix(param.Value, includePrefix)
			if seen[included] {
				continue
			}
			seen[included] = true
			result = append(result, included)

			// everything below a pipeline include belongs to the pipeline
			collect(filepath.Join(repository, included), true)
		}
	}

	collect(filename, false)
	return result
}

func underPath(name, prefix string) bool {
	return name == prefix || strings.HasPrefix(name, prefix+".")
}

func pathContains(name, segment string) bool {
	for _, part := range strings.Split(name, ".") {
		if part == segment {
			return true
		}
	}
	return false
}
