// Package cmd implements the provtool CLI on top of the resolver and
// provenance packages.
package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lsst-dm/legacy-ctrl-provenance/pkg/resolver"
)

var rootCmd = &cobra.Command{
	Use:   "provtool",
	Short: "Build descriptor resolver with provenance recording",
	Long: `provtool resolves the build.yaml descriptor tree of a product into a set
of runnable actions (install, clean, TAGS, dist, ...) and can record
production provenance into a database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("dir", "C", ".", "directory containing the root descriptor")
	rootCmd.PersistentFlags().String("stack", "", "path to the product stack table (defaults to $PROV_STACK)")
	rootCmd.PersistentFlags().String("prefix", "", "override the computed install prefix")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug output")
}

func Execute() {
	// a missing .env file is fine
	_ = godotenv.Load()

	cobra.CheckErr(rootCmd.Execute())
}

// newContext builds the logging context shared by all subcommands.
func newContext(cmd *cobra.Command) (context.Context, *zerolog.Logger) {
	logger := zerolog.New(NewConsoleWriter())

	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		logger = logger.Level(zerolog.InfoLevel)
	}

	ctx := resolver.WithLogger(cmd.Context(), &logger)
	return ctx, &logger
}

// resolveTree loads the stack (if any) and resolves the descriptor tree
// selected by the persistent flags.
func resolveTree(ctx context.Context, cmd *cobra.Command) (*resolver.Environment, []resolver.Warning, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, nil, err
	}

	stackPath, err := cmd.Flags().GetString("stack")
	if err != nil {
		return nil, nil, err
	}
	if stackPath == "" {
		stackPath = os.Getenv("PROV_STACK")
	}

	var stack *resolver.Stack
	if stackPath != "" {
		stack, err = resolver.LoadStack(stackPath)
		if err != nil {
			return nil, nil, err
		}
	}

	prefix, err := cmd.Flags().GetString("prefix")
	if err != nil {
		return nil, nil, err
	}

	return resolver.Resolve(ctx, dir, stack, resolver.Options{Prefix: prefix})
}

func cachePath(env *resolver.Environment) string {
	return filepath.Join(env.Root, resolver.CacheFileName)
}
