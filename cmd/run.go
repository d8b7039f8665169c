package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lsst-dm/legacy-ctrl-provenance/pkg/resolver"
)

var runCmd = &cobra.Command{
	Use:   "run [action...]",
	Short: "Executes the named actions",
	Long:  `Without arguments, the registered actions are listed instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		ctx, logger := newContext(cmd)

		env, _, err := resolveTree(ctx, cmd)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to resolve the descriptor tree")
		}

		for _, name := range args {
			err = resolver.RunAction(ctx, env, name, dryRun, force)
			if err != nil {
				logger.Fatal().Err(err).Msgf("Failed action %s:", name)
			}
		}

		if len(args) == 0 {
			fmt.Println("Available actions:")
			maxNameLen := 0
			sortedNames := env.Actions().Names()
			for _, name := range sortedNames {
				if len(name) > maxNameLen {
					maxNameLen = len(name)
				}
			}

			sort.Strings(sortedNames)

			lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
			for _, name := range sortedNames {
				action, _ := env.Action(name)
				fmt.Printf(lineFmt, name+":", action.Desc)
			}
		}

		return nil
	},
}

func init() {
	runCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	runCmd.Flags().BoolP("force", "f", false, "always execute the passed actions even if they don't have to run")
	rootCmd.AddCommand(runCmd)
}
