// Package provenance collects and brings together providers and consumers
// of provenance information for a production run. A ProvenanceSetup is
// passed to anybody interested in receiving provenance; they register a
// Recorder and/or a command line template for recording on a remote
// platform.
package provenance

import (
	"context"

	"github.com/rs/zerolog"
)

// Recorder sends provenance information to a particular store.
type Recorder interface {
	// Record sends the contents of the given policy file to the store.
	Record(ctx context.Context, filename string) error

	// RecordEnv records the software and/or hardware environment.
	RecordEnv(ctx context.Context) error
}

// LogRecorder is a Recorder that only writes to the log. It doubles as the
// embeddable base for recorders that don't care about the environment.
type LogRecorder struct {
	Logger zerolog.Logger
}

func (r *LogRecorder) Record(ctx context.Context, filename string) error {
	r.Logger.Info().Msgf("recording %s", filename)
	return nil
}

func (r *LogRecorder) RecordEnv(ctx context.Context) error {
	r.Logger.Debug().Msg("no implementation for recording environment")
	return nil
}
