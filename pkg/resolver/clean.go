package resolver

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
)

// cleanPatterns marks backup files, core dumps, shared objects and object
// files as removable.
var cleanPatterns = []string{"**/*~", "**/core", "**/*.so", "**/*.o"}

func registerClean(env *Environment) {
	env.actions.Register(&Action{
		Name: "clean",
		Desc: "remove backup files, core dumps and compiled artifacts",
		Base: env.Root,
		Cmds: []Cmd{FuncCmd{Fn: runClean}},
	})
}

func runClean(ctx context.Context, env *Environment, dryRun bool) error {
	targets, err := resolveGlobs(env.Root, cleanPatterns)
	if err != nil {
		return eris.Wrap(err, "failed to resolve clean targets")
	}

	for _, target := range targets {
		log(ctx).Info().
			Str("action", "clean").
			Msgf("removing %s", target)

		if dryRun {
			continue
		}

		err = os.Remove(target)
		if err != nil && !eris.Is(err, os.ErrNotExist) {
			return eris.Wrapf(err, "failed to remove %s", target)
		}
	}

	return nil
}
