// Package resolver turns a build descriptor tree into a populated
// Environment and a registry of runnable actions.
package resolver

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/lsst-dm/legacy-ctrl-provenance/pkg/descriptor"
)

// Options tweak the resolution of a descriptor tree.
type Options struct {
	// Prefix overrides the computed install prefix.
	Prefix string
}

// Resolve processes the descriptor found in dir and returns the populated
// environment along with the warnings collected from broken subdirectories.
//
// The sequence is strictly forward-moving: construct the environment,
// recurse into existing subdirectories (best-effort), register the ignore
// set, the install and clean actions, conditionally the TAGS action and
// finally the dist action. A missing or malformed root descriptor and an
// unresolvable dependency are fatal; everything that goes wrong below a
// subdirectory is reported as a warning instead.
func Resolve(ctx context.Context, dir string, stack *Stack, opts Options) (*Environment, []Warning, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, err
	}

	desc, err := descriptor.Load(dir)
	if err != nil {
		return nil, nil, err
	}

	if desc.Product == "" {
		return nil, nil, eris.Errorf("%s does not declare a product", filepath.Join(dir, descriptor.FileName))
	}

	tag := desc.Tag
	if tag == "" {
		tag = "current"
	}

	env := &Environment{
		Product: desc.Product,
		Tag:     tag,
		Root:    dir,
		Ignore:  NewIgnoreSet(desc.Ignore...),
		actions: Registry{},
	}

	env.Deps, err = resolveDeps(desc.Deps, stack)
	if err != nil {
		return nil, nil, err
	}

	env.Prefix = opts.Prefix
	if env.Prefix == "" {
		if stack != nil {
			env.Prefix = filepath.Join(stack.Root, env.Product, env.Tag)
		} else {
			env.Prefix = filepath.Join(dir, "_install", env.Product+"-"+env.Tag)
		}
	}

	// The environment is complete at this point; everything below only
	// fills the action registry.
	warnings := processSubdirs(ctx, env, desc, "")

	registerDescriptorActions(env, desc, "")
	registerInstall(env)
	registerClean(env)

	trackable, err := enumerateTrackable(env)
	if err != nil {
		return nil, nil, eris.Wrap(err, "failed to enumerate trackable files")
	}
	if len(trackable) > 0 {
		registerTags(env, trackable)
	}

	registerDist(env)

	return env, warnings, nil
}

func resolveDeps(groups []descriptor.Dependency, stack *Stack) ([]Product, error) {
	deps := make([]Product, 0, len(groups))

	for _, group := range groups {
		if stack == nil {
			return nil, eris.Errorf("cannot resolve dependency %s without a product stack", strings.Join(group, "|"))
		}

		found := false
		for _, name := range group {
			product, ok := stack.Lookup(name)
			if ok {
				deps = append(deps, product)
				found = true
				break
			}
		}

		if !found {
			return nil, eris.Errorf("none of the dependency alternatives %s is present in the stack", strings.Join(group, "|"))
		}
	}

	return deps, nil
}

// processSubdirs loads the nested descriptor of every candidate
// subdirectory that exists. Failures are collected per subdirectory and
// logged in "<path>: <message>" form; processing always continues with the
// next candidate.
func processSubdirs(ctx context.Context, env *Environment, desc *descriptor.Descriptor, relBase string) []Warning {
	warnings := make([]Warning, 0)

	for _, name := range desc.Subdirs {
		rel := path.Join(relBase, name)
		subdir := filepath.Join(desc.Dir, name)

		info, err := os.Stat(subdir)
		if err != nil {
			// non-existent candidates are silently skipped; any other
			// existence-check failure is reported
			if !eris.Is(err, os.ErrNotExist) {
				warnings = append(warnings, warnSubdir(ctx, rel, err))
			}
			continue
		}
		if !info.IsDir() {
			continue
		}

		nested, err := descriptor.Load(subdir)
		if err != nil {
			warnings = append(warnings, warnSubdir(ctx, rel, err))
			continue
		}

		registerDescriptorActions(env, nested, rel)
		warnings = append(warnings, processSubdirs(ctx, env, nested, rel)...)
	}

	return warnings
}

func warnSubdir(ctx context.Context, rel string, err error) Warning {
	warning := Warning{Path: rel, Message: err.Error()}

	log(ctx).Warn().
		Str("path", rel).
		Msg(warning.String())

	return warning
}

// registerDescriptorActions adds the shell actions declared by a
// descriptor. Actions from nested descriptors are namespaced with their
// subdirectory path.
func registerDescriptorActions(env *Environment, desc *descriptor.Descriptor, relBase string) {
	for _, spec := range desc.Actions {
		name := spec.Name
		deps := spec.Deps

		if relBase != "" {
			name = relBase + ":" + name
			prefixed := make([]string, len(deps))
			for idx, dep := range deps {
				prefixed[idx] = relBase + ":" + dep
			}
			deps = prefixed
		}

		cmds := make([]Cmd, len(spec.Cmds))
		for idx, content := range spec.Cmds {
			cmds[idx] = ScriptCmd{ActionName: name, Content: content, Index: idx}
		}

		env.actions.Register(&Action{
			Name:   name,
			Desc:   spec.Desc,
			Base:   desc.Dir,
			Deps:   deps,
			Cmds:   cmds,
			Hidden: spec.Hidden,
		})
	}
}

func registerTags(env *Environment, files []string) {
	parts := make([]string, 0, len(files)+3)
	parts = append(parts, "etags", "-o", "TAGS")
	for _, file := range files {
		parts = append(parts, shellQuote(file))
	}

	env.actions.Register(&Action{
		Name:    "TAGS",
		Desc:    "generate a tag index for all trackable source files",
		Base:    env.Root,
		Inputs:  files,
		Outputs: []string{"TAGS"},
		Cmds: []Cmd{
			ScriptCmd{ActionName: "TAGS", Content: strings.Join(parts, " ")},
		},
	})
}

func shellQuote(value string) string {
	if strings.ContainsAny(value, " $'\"\\") {
		return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
	}
	return value
}

// enumerateTrackable walks the whole tree below the environment root and
// collects every regular file that is neither ignored nor a descriptor
// file. The result is sorted and relative to the root.
func enumerateTrackable(env *Environment) ([]string, error) {
	files := make([]string, 0)

	err := filepath.WalkDir(env.Root, func(fullPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(env.Root, fullPath)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if env.Ignore.Match(rel) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.IsDir() {
			if rel == "_install" {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.Name() == descriptor.FileName || entry.Name() == CacheFileName {
			return nil
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
