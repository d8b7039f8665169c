package resolver

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
)

// sourceDir is the tree installed directly below the prefix, upsDir the
// metadata tree installed below <prefix>/ups.
const (
	sourceDir = "python"
	upsDir    = "ups"
)

func registerInstall(env *Environment) {
	env.actions.Register(&Action{
		Name: "install",
		Desc: "copy the source and metadata trees into the install prefix",
		Base: env.Root,
		Cmds: []Cmd{FuncCmd{Fn: runInstall}},
	})
}

func runInstall(ctx context.Context, env *Environment, dryRun bool) error {
	log(ctx).Info().
		Str("action", "install").
		Msgf("installing %s %s into %s", env.Product, env.Tag, env.Prefix)

	if dryRun {
		return nil
	}

	err := os.MkdirAll(env.Prefix, 0o755)
	if err != nil {
		return eris.Wrapf(err, "failed to create prefix %s", env.Prefix)
	}

	err = copyTree(ctx, env, filepath.Join(env.Root, sourceDir), filepath.Join(env.Prefix, sourceDir))
	if err != nil {
		return eris.Wrap(err, "failed to install the source tree")
	}

	err = copyTree(ctx, env, filepath.Join(env.Root, upsDir), filepath.Join(env.Prefix, upsDir))
	if err != nil {
		return eris.Wrap(err, "failed to install the metadata tree")
	}

	return nil
}

// copyTree copies src into dest, skipping ignored entries. A missing
// source tree is not an error; the copy is simply empty.
func copyTree(ctx context.Context, env *Environment, src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil
		}
		return eris.Wrapf(err, "failed to check %s", src)
	}
	if !info.IsDir() {
		return eris.Errorf("%s is not a directory", src)
	}

	total, err := treeSize(env, src)
	if err != nil {
		return err
	}

	bar := progressbar.DefaultBytes(total, "installing "+filepath.Base(src))
	defer bar.Close()

	return filepath.WalkDir(src, func(fullPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, fullPath)
		if err != nil {
			return err
		}

		if rel != "." && env.Ignore.Match(rel) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dest, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		return copyFile(fullPath, target, bar)
	})
}

func treeSize(env *Environment, src string) (int64, error) {
	var total int64

	err := filepath.WalkDir(src, func(fullPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(src, fullPath)
		if relErr != nil {
			return relErr
		}

		if rel != "." && env.Ignore.Match(rel) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.Type().IsRegular() {
			info, err := entry.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})

	return total, err
}

func copyFile(src, dest string, bar *progressbar.ProgressBar) error {
	source, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return eris.Wrapf(err, "failed to check %s", src)
	}

	target, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}
	defer target.Close()

	_, err = io.Copy(io.MultiWriter(target, bar), source)
	if err != nil {
		return eris.Wrapf(err, "failed to copy %s", src)
	}

	return target.Close()
}
