package provenance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, path, content string) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	require.NoError(t, err)
	err = os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err)
}

func TestLoadPolicyParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prod.yaml")
	writePolicy(t, path, `
shortName: DC3Pipe
eventBrokerHost: lsst8.ncsa.uiuc.edu
repositoryCount: 3
verify: true
threshold: 0.5
database:
  name: provdb
  port: 3306
platforms:
  - abe
  - lonestar
`)

	policy, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"database.name",
		"database.port",
		"eventBrokerHost",
		"platforms",
		"repositoryCount",
		"shortName",
		"threshold",
		"verify",
	}, policy.ParamNames())

	cases := []struct {
		name, typ, value string
	}{
		{"shortName", "string", "DC3Pipe"},
		{"repositoryCount", "int", "3"},
		{"verify", "bool", "true"},
		{"threshold", "double", "0.5"},
		{"database.port", "int", "3306"},
		{"platforms", "array", "abe lonestar"},
	}
	for _, tc := range cases {
		param, ok := policy.Param(tc.name)
		require.True(t, ok, tc.name)
		assert.Equal(t, tc.typ, param.Type, tc.name)
		assert.Equal(t, tc.value, param.Value, tc.name)
	}
}

func TestLoadPolicyMissing(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestPolicyParamsReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	writePolicy(t, path, "a: 1\n")

	policy, err := LoadPolicy(path)
	require.NoError(t, err)

	params := policy.Params()
	require.Len(t, params, 1)
	params[0].Value = "mutated"

	fresh, ok := policy.Param("a")
	require.True(t, ok)
	assert.Equal(t, "1", fresh.Value)
}

func TestExtractIncludedFilenames(t *testing.T) {
	repo := t.TempDir()
	writePolicy(t, filepath.Join(repo, "production.yaml"), `
shortName: prod
database: "@database.yaml"
workflow:
  platform: "@platform/abe.yaml"
  pipeline:
    definition: "@pipelines/main.yaml"
`)
	writePolicy(t, filepath.Join(repo, "database.yaml"), `
host: lsst10.ncsa.uiuc.edu
auth: "@auth.yaml"
`)
	writePolicy(t, filepath.Join(repo, "auth.yaml"), "user: prov\n")
	writePolicy(t, filepath.Join(repo, "platform", "abe.yaml"), "nodes: 8\n")

	logger := zerolog.Nop()
	files := ExtractIncludedFilenames(filepath.Join(repo, "production.yaml"), repo, DefaultPipefile, &logger)

	assert.Equal(t, []string{"database.yaml", "auth.yaml", "platform/abe.yaml"}, files,
		"the pipeline definition subtree is pruned, nested includes follow their parent")
}

func TestExtractIncludedFilenamesPrunesTopLevelOnly(t *testing.T) {
	repo := t.TempDir()
	writePolicy(t, filepath.Join(repo, "production.yaml"), `
workflow:
  pipeline:
    definition: "@pipelines/main.yaml"
platform: "@platform.yaml"
`)
	writePolicy(t, filepath.Join(repo, "platform.yaml"), `
workflow:
  pipeline:
    definition: "@nested.yaml"
`)
	writePolicy(t, filepath.Join(repo, "nested.yaml"), "x: 1\n")

	logger := zerolog.Nop()
	files := ExtractIncludedFilenames(filepath.Join(repo, "production.yaml"), repo, DefaultPipefile, &logger)

	assert.Equal(t, []string{"platform.yaml", "nested.yaml"}, files,
		"only the top-level pipeline definition is pruned")
}

func TestExtractIncludedFilenamesDeduplicates(t *testing.T) {
	repo := t.TempDir()
	writePolicy(t, filepath.Join(repo, "production.yaml"), `
first: "@shared.yaml"
second: "@shared.yaml"
`)
	writePolicy(t, filepath.Join(repo, "shared.yaml"), "x: 1\n")

	logger := zerolog.Nop()
	files := ExtractIncludedFilenames(filepath.Join(repo, "production.yaml"), repo, DefaultPipefile, &logger)
	assert.Equal(t, []string{"shared.yaml"}, files)
}

func TestExtractIncludedFilenamesToleratesBrokenIncludes(t *testing.T) {
	repo := t.TempDir()
	writePolicy(t, filepath.Join(repo, "production.yaml"), `
broken: "@missing.yaml"
ok: "@good.yaml"
`)
	writePolicy(t, filepath.Join(repo, "good.yaml"), "x: 1\n")

	logger := zerolog.Nop()
	files := ExtractIncludedFilenames(filepath.Join(repo, "production.yaml"), repo, DefaultPipefile, &logger)

	// the missing file is still reported as referenced, only its own
	// includes are lost
	assert.Equal(t, []string{"missing.yaml", "good.yaml"}, files)
}

func TestExtractPipelineFilenames(t *testing.T) {
	repo := t.TempDir()
	writePolicy(t, filepath.Join(repo, "production.yaml"), `
database: "@database.yaml"
workflow:
  IPSD:
    definition: "@IPSD/main.yaml"
  nightmops:
    definition: "@nightmops/main.yaml"
`)
	writePolicy(t, filepath.Join(repo, "database.yaml"), "host: h\n")
	writePolicy(t, filepath.Join(repo, "IPSD", "main.yaml"), `
stage: "@IPSD/stages.yaml"
`)
	writePolicy(t, filepath.Join(repo, "IPSD", "stages.yaml"), "count: 4\n")
	writePolicy(t, filepath.Join(repo, "nightmops", "main.yaml"), "stage: x\n")

	logger := zerolog.Nop()
	files := ExtractPipelineFilenames("IPSD", filepath.Join(repo, "production.yaml"), repo, &logger)

	assert.Equal(t, []string{"IPSD/main.yaml", "IPSD/stages.yaml"}, files,
		"only the named pipeline's subtree is collected, expanded recursively")
}
