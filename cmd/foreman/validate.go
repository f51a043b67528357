package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/foreman/pkg/descriptor"
)

var validateCmd = &cobra.Command{
	Use:   "validate [descriptor]",
	Short: "Check a workflow descriptor for errors",
	Long: `Loads the descriptor, runs structural and semantic validation, and
reports every violation at once. Without an argument the descriptor
named in the configuration is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		} else {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path = cfg.Descriptor
		}

		desc, err := descriptor.Load(path)
		if err != nil {
			if violations := descriptor.ValidationErrors(err); violations != nil {
				fmt.Fprintf(os.Stderr, "%s has %d validation error(s):\n", path, len(violations))
				for _, v := range violations {
					fmt.Fprintf(os.Stderr, "  - %s\n", v)
				}
				return fmt.Errorf("descriptor is invalid")
			}
			return err
		}

		fmt.Printf("%s is valid: %d states, %d commands\n",
			path, len(desc.StateAliases()), len(desc.Commands()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
