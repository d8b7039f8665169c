package resolver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

type (
	runtimeCtxKey struct{}
	runtimeCtx    struct {
		runActions map[string]bool
		root       string
	}
)

func getRuntimeCtx(ctx context.Context) *runtimeCtx {
	return ctx.Value(runtimeCtxKey{}).(*runtimeCtx)
}

func getActionEnv(env *Environment, action *Action) expand.Environ {
	envVars := os.Environ()
	envVars = append(envVars,
		fmt.Sprintf("PRODUCT=%s", env.Product),
		fmt.Sprintf("TAG=%s", env.Tag),
		fmt.Sprintf("PREFIX=%s", env.Prefix),
	)

	return expand.ListEnviron(envVars...)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	return infos, nil
}

// resolveGlobs expands the given glob patterns relative to base. Patterns
// that don't match anything are dropped.
func resolveGlobs(base string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()

	for _, item := range patterns {
		if !filepath.IsAbs(item) {
			item = filepath.Join(base, item)
		}
		item = filepath.ToSlash(item)

		words := make([]*syntax.Word, 0)
		err := parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse pattern %s", item)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// If a pattern didn't match anything, it's returned as a result. Skip those results.
			if !strings.Contains(match, "*") {
				result = append(result, match)
			}
		}
	}
	return result, nil
}

// RunAction executes the named action after running its dependencies.
func RunAction(ctx context.Context, env *Environment, name string, dryRun, force bool) error {
	rctx := runtimeCtx{
		root:       env.Root,
		runActions: make(map[string]bool),
	}

	ctx = context.WithValue(ctx, runtimeCtxKey{}, &rctx)
	action, found := env.actions[name]
	if !found {
		return eris.Errorf("action %s not found", name)
	}

	return runActionInternal(ctx, env, action, dryRun, force)
}

func runActionInternal(ctx context.Context, env *Environment, action *Action, dryRun, force bool) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	rctx := getRuntimeCtx(ctx)
	status, ok := rctx.runActions[action.Name]
	if ok {
		if status {
			// this action has already been run
			log(ctx).Debug().Msgf("Action %s already run", action.Name)
			return nil
		}

		return eris.Errorf("action %s was called recursively", action.Name)
	}

	rctx.runActions[action.Name] = false

	for _, dep := range action.Deps {
		if !rctx.runActions[dep] {
			depAction, ok := env.actions[dep]
			if !ok {
				return eris.Errorf("action %s not found", dep)
			}

			err := runActionInternal(ctx, env, depAction, dryRun, force)
			if err != nil {
				return eris.Wrapf(err, "action %s failed due to its dependency %s", action.Name, dep)
			}
		}
	}

	upToDate, err := outputsFresh(ctx, action)
	if err != nil {
		return err
	}
	if upToDate && !force {
		rctx.runActions[action.Name] = true
		return nil
	}

	runner, err := interp.New(
		interp.Dir(action.Base),
		interp.Env(getActionEnv(env, action)),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, os.Stdout, os.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(
		syntax.Minify(true),
	)
	strBuffer := strings.Builder{}

	for _, item := range action.Cmds {
		stmts, err := item.ToShellStmts(parser)
		if err != nil {
			return eris.Wrap(err, "failed to parse shell script")
		}

		if stmts != nil {
			for _, stm := range stmts {
				strBuffer.Reset()
				printer.Print(&strBuffer, stm)
				log(ctx).Info().
					Str("action", action.Name).
					Bool("command", true).
					Msg(strBuffer.String())

				if !dryRun {
					err = runner.Run(ctx, stm)
					if err != nil {
						return err
					}

					if runner.Exited() {
						return nil
					}
				}
			}
		} else if fn := item.ToFunc(); fn != nil {
			err = fn(ctx, env, dryRun)
			if err != nil {
				return eris.Wrapf(err, "action %s failed", action.Name)
			}
		} else {
			return eris.Errorf("unexpected action command %+v", item)
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	rctx.runActions[action.Name] = true
	return nil
}

// outputsFresh reports whether all of the action's outputs are newer than
// its newest input. Actions without inputs are never considered fresh.
func outputsFresh(ctx context.Context, action *Action) (bool, error) {
	if len(action.Inputs) == 0 {
		return false, nil
	}

	var newestInput time.Time
	for _, item := range action.Inputs {
		if !filepath.IsAbs(item) {
			item = filepath.Join(action.Base, item)
		}

		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "failed to check input %s", item)
		}

		if info.ModTime().Sub(newestInput) > 0 {
			newestInput = info.ModTime()
		}
	}

	var newestOutput time.Time
	for _, item := range action.Outputs {
		if !filepath.IsAbs(item) {
			item = filepath.Join(action.Base, item)
		}

		info, err := os.Stat(item)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, eris.Wrapf(err, "failed to check output %s", item)
		}

		if info.ModTime().Sub(newestOutput) > 0 {
			newestOutput = info.ModTime()
		}
	}

	if newestOutput.Sub(newestInput) > 0 {
		log(ctx).Info().
			Str("action", action.Name).
			Msgf("nothing to do (output is %f seconds newer)", newestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}
