package provenance

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// RecordCmd is a command line template for recording workflow-level
// provenance on a remote platform. Path, when set, points at the
// executable so it can be copied to the platform first; the basename does
// not have to match Cmd.
type RecordCmd struct {
	Cmd  string
	Args []string
	Path string
}

// Setup is a container for the production policy files to record, the
// interested recorders and the workflow record-command templates.
type Setup struct {
	pfiles    []string
	consumers []Recorder
	cmdTmpls  []RecordCmd
}

// NewSetup returns an empty container.
func NewSetup() *Setup {
	return &Setup{
		pfiles:    make([]string, 0),
		consumers: make([]Recorder, 0),
		cmdTmpls:  make([]RecordCmd, 0),
	}
}

// AddProductionPolicyFile adds a policy file to record via the interested
// recorders. Typically the file contains production-level policy data.
func (s *Setup) AddProductionPolicyFile(filename string) {
	s.pfiles = append(s.pfiles, filename)
}

// AddAllProductionPolicyFiles adds the given production policy file along
// with every file it transitively includes. Pipeline definition subtrees
// (identified by pipefile, a dotted policy path) are not followed.
// Problems with missing or bad files are logged as warnings.
func (s *Setup) AddAllProductionPolicyFiles(filename, repository, pipefile string, logger *zerolog.Logger) {
	if repository == "" {
		repository = "."
	}
	if pipefile == "" {
		pipefile = DefaultPipefile
	}

	filenames := ExtractIncludedFilenames(filename, repository, pipefile, logger)
	s.AddProductionPolicyFile(filename)
	for _, file := range filenames {
		s.AddProductionPolicyFile(filepath.Join(repository, file))
	}
}

// Files returns a copy of the production policy filenames registered so
// far.
func (s *Setup) Files() []string {
	files := make([]string, len(s.pfiles))
	copy(files, s.pfiles)
	return files
}

// AddProductionRecorder registers the desire to receive production-level
// provenance.
func (s *Setup) AddProductionRecorder(recorder Recorder) {
	s.consumers = append(s.consumers, recorder)
}

// Recorders returns a copy of the recorders added so far.
func (s *Setup) Recorders() []Recorder {
	recorders := make([]Recorder, len(s.consumers))
	copy(recorders, s.consumers)
	return recorders
}

// AddWorkflowRecordCmd registers a shell-executable command for recording
// workflow-level provenance on the remote execution platform. cmd must not
// include any path as part of its name; the command has to accept the
// policy filenames to record as extra arguments after args.
func (s *Setup) AddWorkflowRecordCmd(cmd string, args []string, path string) {
	tmplArgs := make([]string, len(args))
	copy(tmplArgs, args)
	s.cmdTmpls = append(s.cmdTmpls, RecordCmd{Cmd: cmd, Args: tmplArgs, Path: path})
}

// Cmds returns the commands to run on each workflow platform. Each entry
// starts with the executable name (sans path) followed by its arguments;
// the caller prepends the remote directory path and appends the policy
// filenames.
func (s *Setup) Cmds() [][]string {
	cmds := make([][]string, len(s.cmdTmpls))
	for idx, tmpl := range s.cmdTmpls {
		cmd := make([]string, 0, len(tmpl.Args)+1)
		cmd = append(cmd, tmpl.Cmd)
		cmd = append(cmd, tmpl.Args...)
		cmds[idx] = cmd
	}
	return cmds
}

// CmdPaths returns the paths to the registered record scripts, parallel to
// Cmds. An empty entry means no path was given for that command.
func (s *Setup) CmdPaths() []string {
	paths := make([]string, len(s.cmdTmpls))
	for idx, tmpl := range s.cmdTmpls {
		paths[idx] = tmpl.Path
	}
	return paths
}

// RecordProduction records the production-level policy provenance to all
// interested recorders: every recorder receives every file, followed by
// the environment.
func (s *Setup) RecordProduction(ctx context.Context) error {
	for _, consumer := range s.consumers {
		for _, file := range s.pfiles {
			err := consumer.Record(ctx, file)
			if err != nil {
				return eris.Wrapf(err, "failed to record %s", file)
			}
		}

		err := consumer.RecordEnv(ctx)
		if err != nil {
			return eris.Wrap(err, "failed to record the environment")
		}
	}

	return nil
}
