package resolver

import (
	"encoding/gob"
	"os"
)

// CacheFileName is where a resolved environment snapshot is stored.
const CacheFileName = ".provtool.cache"

// Snapshot is the serializable part of a resolved environment. Action
// registrations are rebuilt on every resolution and are deliberately not
// part of the snapshot.
type Snapshot struct {
	Product string
	Tag     string
	Root    string
	Prefix  string
	Deps    []Product
	Ignore  []string
}

func init() {
	gob.Register(Snapshot{})
}

// Snapshot extracts the serializable state of the environment.
func (e *Environment) Snapshot() Snapshot {
	return Snapshot{
		Product: e.Product,
		Tag:     e.Tag,
		Root:    e.Root,
		Prefix:  e.Prefix,
		Deps:    e.Deps,
		Ignore:  e.Ignore.Patterns,
	}
}

// WriteCache stores the environment snapshot in the given file.
func WriteCache(file string, env *Environment) error {
	handle, err := os.Create(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	return encoder.Encode(env.Snapshot())
}

// ReadCache loads a previously stored environment snapshot.
func ReadCache(file string) (Snapshot, error) {
	var snapshot Snapshot

	handle, err := os.Open(file)
	if err != nil {
		return snapshot, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(handle)
	err = decoder.Decode(&snapshot)
	return snapshot, err
}
