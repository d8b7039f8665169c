package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallLayout(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(t.TempDir(), "stack", "p", "current")

	writeFile(t, filepath.Join(dir, "build.yaml"), "product: p\n")
	writeFile(t, filepath.Join(dir, "python", "lsst", "ctrl", "mod.py"), "print('hi')\n")
	writeFile(t, filepath.Join(dir, "python", "lsst", "ctrl", "mod.pyc"), "binary")
	writeFile(t, filepath.Join(dir, "ups", "p.table"), "setupRequired(pex_policy)\n")

	env, _, err := Resolve(testContext(), dir, nil, Options{Prefix: prefix})
	require.NoError(t, err)
	require.Equal(t, prefix, env.Prefix)

	err = RunAction(testContext(), env, "install", false, false)
	require.NoError(t, err)

	// source tree under the prefix, metadata tree under <prefix>/ups
	assert.FileExists(t, filepath.Join(prefix, "python", "lsst", "ctrl", "mod.py"))
	assert.FileExists(t, filepath.Join(prefix, "ups", "p.table"))

	_, err = os.Stat(filepath.Join(prefix, "python", "lsst", "ctrl", "mod.pyc"))
	assert.True(t, os.IsNotExist(err), "ignored files must not be installed")
}

func TestInstallEmptySourceTrees(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(t.TempDir(), "prefix")

	writeFile(t, filepath.Join(dir, "build.yaml"), "product: p\n")

	env, _, err := Resolve(testContext(), dir, nil, Options{Prefix: prefix})
	require.NoError(t, err)

	err = RunAction(testContext(), env, "install", false, false)
	require.NoError(t, err, "install succeeds with an empty source copy")

	info, err := os.Stat(prefix)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestInstallDryRun(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(t.TempDir(), "prefix")

	writeFile(t, filepath.Join(dir, "build.yaml"), "product: p\n")
	writeFile(t, filepath.Join(dir, "python", "mod.py"), "pass\n")

	env, _, err := Resolve(testContext(), dir, nil, Options{Prefix: prefix})
	require.NoError(t, err)

	err = RunAction(testContext(), env, "install", true, false)
	require.NoError(t, err)

	_, err = os.Stat(prefix)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanRemovesArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "build.yaml"), "product: p\n")
	writeFile(t, filepath.Join(dir, "python", "mod.py"), "pass\n")
	writeFile(t, filepath.Join(dir, "python", "mod.py~"), "old")
	writeFile(t, filepath.Join(dir, "src", "obj.o"), "obj")
	writeFile(t, filepath.Join(dir, "lib", "thing.so"), "so")
	writeFile(t, filepath.Join(dir, "core"), "dump")

	env, _, err := Resolve(testContext(), dir, nil, Options{})
	require.NoError(t, err)

	err = RunAction(testContext(), env, "clean", false, false)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "python", "mod.py"))
	for _, gone := range []string{
		filepath.Join(dir, "python", "mod.py~"),
		filepath.Join(dir, "src", "obj.o"),
		filepath.Join(dir, "lib", "thing.so"),
		filepath.Join(dir, "core"),
	} {
		_, err = os.Stat(gone)
		assert.True(t, os.IsNotExist(err), "%s should have been removed", gone)
	}
}
