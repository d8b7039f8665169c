package resolver

import "fmt"

// Environment is the configuration record accumulated while resolving a
// descriptor tree. It is fully constructed before any subdirectory or
// action processing starts and is never mutated afterwards.
type Environment struct {
	Product string
	Tag     string
	Root    string
	Prefix  string
	Deps    []Product
	Ignore  *IgnoreSet

	actions Registry
}

// Actions returns the action registry populated during resolution.
func (e *Environment) Actions() Registry {
	return e.actions
}

// Action looks up a single registered action by name.
func (e *Environment) Action(name string) (*Action, bool) {
	action, ok := e.actions[name]
	return action, ok
}

// Warning describes a non-fatal failure encountered while processing one
// candidate subdirectory. One broken subdirectory never blocks its
// siblings or the parent.
type Warning struct {
	Path    string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Path, w.Message)
}
