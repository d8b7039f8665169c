package resolver

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
)

func registerDist(env *Environment) {
	env.actions.Register(&Action{
		Name: "dist",
		Desc: "pack the installed tree into a tar.xz archive",
		Base: env.Root,
		Deps: []string{"install"},
		Cmds: []Cmd{FuncCmd{Fn: runDist}},
	})
}

// DistName returns the archive filename for the given environment.
func DistName(env *Environment) string {
	return env.Product + "-" + env.Tag + ".tar.xz"
}

func runDist(ctx context.Context, env *Environment, dryRun bool) error {
	archivePath := filepath.Join(env.Root, DistName(env))

	log(ctx).Info().
		Str("action", "dist").
		Msgf("packing %s", archivePath)

	if dryRun {
		return nil
	}

	return Archive(ctx, env.Prefix, env.Product+"-"+env.Tag, archivePath)
}

// Archive packs the tree below root into a tar.xz archive. Every entry is
// placed below the given top-level directory name.
func Archive(ctx context.Context, root, topDir, archivePath string) error {
	handle, err := os.Create(archivePath)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", archivePath)
	}
	defer handle.Close()

	xzWriter, err := xz.NewWriter(handle)
	if err != nil {
		return eris.Wrap(err, "failed to initialize the xz writer")
	}

	tarWriter := tar.NewWriter(xzWriter)

	var total int64
	err = filepath.WalkDir(root, func(fullPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
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
	if err != nil {
		return eris.Wrapf(err, "failed to scan %s", root)
	}

	bar := progressbar.DefaultBytes(total, "packing "+filepath.Base(archivePath))
	defer bar.Close()

	err = filepath.WalkDir(root, func(fullPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, fullPath)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = path.Join(topDir, filepath.ToSlash(rel))

		err = tarWriter.WriteHeader(header)
		if err != nil {
			return err
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		source, err := os.Open(fullPath)
		if err != nil {
			return err
		}
		defer source.Close()

		_, err = io.Copy(io.MultiWriter(tarWriter, bar), source)
		return err
	})
	if err != nil {
		return eris.Wrapf(err, "failed to pack %s", root)
	}

	err = tarWriter.Close()
	if err != nil {
		return eris.Wrap(err, "failed to finalize the archive")
	}

	err = xzWriter.Close()
	if err != nil {
		return eris.Wrap(err, "failed to finalize the xz stream")
	}

	return handle.Close()
}
