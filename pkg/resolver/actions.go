package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/syntax"
)

// ActionFunc is a built-in action step implemented in Go rather than as a
// shell command.
type ActionFunc func(ctx context.Context, env *Environment, dryRun bool) error

// Cmd is a single step of an action: either a shell script fragment or a
// built-in Go function.
type Cmd interface {
	ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error)
	ToFunc() ActionFunc
}

// ScriptCmd holds a shell command declared by a descriptor action or
// assembled by the resolver (e.g. the tag-index invocation).
type ScriptCmd struct {
	ActionName string
	Content    string
	Index      int
}

func (s ScriptCmd) ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	reader := strings.NewReader(s.Content)
	result, err := parser.Parse(reader, fmt.Sprintf("%s:%d", s.ActionName, s.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", s.Content)
	}

	return result.Stmts, nil
}

func (s ScriptCmd) ToFunc() ActionFunc {
	return nil
}

// FuncCmd wraps a built-in step.
type FuncCmd struct {
	Fn ActionFunc
}

func (f FuncCmd) ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error) {
	return nil, nil
}

func (f FuncCmd) ToFunc() ActionFunc {
	return f.Fn
}

// Action is a named, registered unit of work. Actions are executed by
// RunAction, never during resolution.
type Action struct {
	Name    string
	Desc    string
	Base    string
	Deps    []string
	Inputs  []string
	Outputs []string
	Cmds    []Cmd
	Hidden  bool
}

func (a *Action) String() string {
	return fmt.Sprintf("<Action %s: %s>", a.Name, a.Desc)
}

// Registry maps action names to the registered actions. Insertion order
// does not imply execution order; ordering is derived from Deps.
type Registry map[string]*Action

// Register adds the given action, replacing any previous registration
// under the same name.
func (r Registry) Register(action *Action) {
	r[action.Name] = action
}

// Names returns the names of all visible actions in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name, action := range r {
		if !action.Hidden {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names
}
