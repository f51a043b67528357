package main

import (
	"github.com/spf13/cobra"
)

var transitionCmd = &cobra.Command{
	Use:   "transition <work-item-id> <target-stage>",
	Short: "Apply an agent-reported transition",
	Long: `Moves a work item to the target stage through the matching descriptor
command, evaluating its post-invariants first. This is the CLI twin of
the POST /v1/transition callback.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, err := buildRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		result := rt.Engine.ProcessTransition(cmd.Context(), args[0], args[1])
		return printResult(result)
	},
}

func init() {
	rootCmd.AddCommand(transitionCmd)
}
