package cmd

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lsst-dm/legacy-ctrl-provenance/pkg/provenance"
	"github.com/lsst-dm/legacy-ctrl-provenance/pkg/resolver"
)

var recordCmd = &cobra.Command{
	Use:   "record [policyfile...]",
	Short: "Records production provenance into the provenance database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, logger := newContext(cmd)

		flags := cmd.Flags()
		runID, _ := flags.GetString("runid")
		activity, _ := flags.GetString("activityname")
		platform, _ := flags.GetString("platform")
		dbRun, _ := flags.GetString("dbrun")
		dbGlobal, _ := flags.GetString("dbglobal")
		activOffset, _ := flags.GetInt64("activoffset")
		runOffset, _ := flags.GetInt64("runoffset")
		repository, _ := flags.GetString("repository")
		pipefile, _ := flags.GetString("pipefile")
		expandIncludes, _ := flags.GetBool("all")

		if runID == "" || activity == "" || platform == "" {
			return eris.New("--runid, --activityname and --platform are required")
		}

		if dbRun == "" {
			dbRun = os.Getenv("PROV_DB_RUN")
		}
		if dbGlobal == "" {
			dbGlobal = os.Getenv("PROV_DB_GLOBAL")
		}
		if dbRun == "" || dbGlobal == "" {
			return eris.New("no database URLs given (--dbrun/--dbglobal or PROV_DB_RUN/PROV_DB_GLOBAL)")
		}

		setup := provenance.NewSetup()
		for _, file := range args {
			if expandIncludes {
				setup.AddAllProductionPolicyFiles(file, repository, pipefile, logger)
			} else {
				setup.AddProductionPolicyFile(file)
			}
		}

		cfg := provenance.DBConfig{
			RunID:       runID,
			Activity:    activity,
			Platform:    platform,
			RunURL:      dbRun,
			GlobalURL:   dbGlobal,
			ActivOffset: activOffset,
			Packages:    loadPackages(cmd, logger),
			Logger:      *logger,
		}
		if runOffset >= 0 {
			cfg.RunOffset = &runOffset
		}

		recorder, err := provenance.NewDBRecorder(ctx, cfg)
		if err != nil {
			return err
		}
		defer recorder.Close(ctx)

		setup.AddProductionRecorder(recorder)
		return setup.RecordProduction(ctx)
	},
}

// loadPackages retrieves the resolved software environment, preferring a
// cached snapshot from an earlier "resolve --cache" run.
func loadPackages(cmd *cobra.Command, logger *zerolog.Logger) []resolver.Product {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil
	}

	snapshot, err := resolver.ReadCache(filepath.Join(dir, resolver.CacheFileName))
	if err == nil {
		return snapshot.Deps
	}

	ctx, _ := newContext(cmd)
	env, _, err := resolveTree(ctx, cmd)
	if err != nil {
		logger.Warn().Msgf("no software environment available: %s", err.Error())
		return nil
	}

	return env.Deps
}

func init() {
	recordCmd.Flags().StringP("runid", "r", "", "unique production run ID")
	recordCmd.Flags().StringP("activityname", "a", "", "name of the activity provenance is recorded for")
	recordCmd.Flags().StringP("platform", "p", "", "logical name of this platform")
	recordCmd.Flags().String("dbrun", "", "URL of the run-specific database")
	recordCmd.Flags().String("dbglobal", "", "URL of the global database")
	recordCmd.Flags().Int64("activoffset", 0, "workflow index assigned by the orchestration layer")
	recordCmd.Flags().Int64("runoffset", -1, "database-assigned run index; omit on the launch platform")
	recordCmd.Flags().String("repository", ".", "policy repository directory for included files")
	recordCmd.Flags().String("pipefile", provenance.DefaultPipefile, "dotted policy path of pipeline definitions")
	recordCmd.Flags().Bool("all", false, "also record every policy file included by the given ones")
	rootCmd.AddCommand(recordCmd)
}
