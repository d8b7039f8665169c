package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lsst-dm/legacy-ctrl-provenance/pkg/resolver"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolves the descriptor tree and lists the registered actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, _ := newContext(cmd)

		env, warnings, err := resolveTree(ctx, cmd)
		if err != nil {
			return err
		}

		fmt.Printf("product: %s\n", env.Product)
		fmt.Printf("tag:     %s\n", env.Tag)
		fmt.Printf("prefix:  %s\n", env.Prefix)

		if len(env.Deps) > 0 {
			fmt.Println("dependencies:")
			for _, dep := range env.Deps {
				fmt.Printf(" * %s %s (%s)\n", dep.Name, dep.Version, dep.Dir)
			}
		}

		fmt.Println("actions:")
		for _, name := range env.Actions().Names() {
			action, _ := env.Action(name)
			fmt.Printf(" * %s: %s\n", name, action.Desc)
		}

		if len(warnings) > 0 {
			fmt.Printf("%d subdirectories failed to resolve (see diagnostics above)\n", len(warnings))
		}

		writeCache, err := cmd.Flags().GetBool("cache")
		if err != nil {
			return err
		}
		if writeCache {
			err = resolver.WriteCache(cachePath(env), env)
			if err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	resolveCmd.Flags().Bool("cache", false, "store the resolved environment for later record runs")
	rootCmd.AddCommand(resolveCmd)
}
