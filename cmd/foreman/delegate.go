package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/foreman/pkg/domain"
)

var delegateCmd = &cobra.Command{
	Use:   "delegate",
	Short: "Run one delegation pass and print the result",
	Long: `Runs a single delegation pass: selects the next eligible work item,
checks its invariants, advances its state, and spawns the agent. With
--work-item, selection is skipped and that item is delegated directly.
The full engine result, including the candidate audit trail, is printed
as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, err := buildRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		workItem, _ := cmd.Flags().GetString("work-item")
		var result domain.EngineResult
		if workItem != "" {
			result = rt.Engine.ProcessDelegationFor(cmd.Context(), workItem)
		} else {
			result = rt.Engine.ProcessDelegation(cmd.Context())
		}

		return printResult(result)
	},
}

func init() {
	delegateCmd.Flags().String("work-item", "", "Delegate this work item instead of selecting one")
	rootCmd.AddCommand(delegateCmd)
}

// printResult writes the engine result as JSON and reflects abnormal
// terminal statuses in the exit code.
func printResult(result domain.EngineResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	switch result.Status {
	case domain.StatusSuccess, domain.StatusSkipped, domain.StatusNoCandidates:
		return nil
	default:
		return fmt.Errorf("pass finished with status %s: %s", result.Status, result.Reason)
	}
}
