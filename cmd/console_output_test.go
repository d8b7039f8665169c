package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderEvents(t *testing.T, emit func(logger zerolog.Logger)) string {
	t.Helper()

	buf := bytes.Buffer{}
	emit(zerolog.New(&ConsoleWriter{out: &buf}))
	return buf.String()
}

func TestConsoleWriterSubdirDiagnostic(t *testing.T) {
	out := renderEvents(t, func(logger zerolog.Logger) {
		logger.Warn().Str("path", "tests").Msg("tests: yaml: did not find expected node content")
	})

	assert.Contains(t, out, "tests: yaml: did not find expected node content")
	assert.Equal(t, 1, strings.Count(out, "tests: "), "the path must not be duplicated")
}

func TestConsoleWriterAddsMissingPathPrefix(t *testing.T) {
	out := renderEvents(t, func(logger zerolog.Logger) {
		logger.Warn().Str("path", "examples").Msg("descriptor could not be loaded")
	})

	assert.Contains(t, out, "examples: descriptor could not be loaded")
}

func TestConsoleWriterCommandMarker(t *testing.T) {
	out := renderEvents(t, func(logger zerolog.Logger) {
		logger.Info().Str("action", "TAGS").Bool("command", true).Msg("etags -o TAGS python/mod.py")
	})

	assert.Contains(t, out, "TAGS: $ etags -o TAGS python/mod.py")
}

func TestConsoleWriterErrorDetails(t *testing.T) {
	out := renderEvents(t, func(logger zerolog.Logger) {
		logger.Error().Str("error", "one\ntwo").Msg("resolution failed")
	})

	assert.Contains(t, out, "Error: resolution failed")
	assert.Contains(t, out, "\n    one\n    two")
}

func TestConsoleWriterRejectsNonJSON(t *testing.T) {
	writer := &ConsoleWriter{out: &bytes.Buffer{}}
	_, err := writer.Write([]byte("not json"))
	require.Error(t, err)
}
