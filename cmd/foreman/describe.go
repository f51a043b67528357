package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/foreman/pkg/descriptor"
)

var describeCmd = &cobra.Command{
	Use:   "describe [descriptor]",
	Short: "Render a human-readable summary of the workflow",
	Long: `Prints the workflow descriptor as a readable document: states, commands
with their transitions and guards, and invariant definitions. Output is
styled when stdout is a terminal, plain markdown otherwise.`,
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
			return err
		}

		markdown := describeMarkdown(desc)

		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Print(markdown)
			return nil
		}

		width := 100
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && w < width {
			width = w
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			fmt.Print(markdown)
			return nil
		}
		out, err := renderer.Render(markdown)
		if err != nil {
			fmt.Print(markdown)
			return nil
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

// describeMarkdown flattens the descriptor into a markdown document.
func describeMarkdown(desc *descriptor.Descriptor) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", desc.Metadata.Name)
	if desc.Metadata.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", desc.Metadata.Description)
	}
	fmt.Fprintf(&b, "Version %s", desc.Version)
	if desc.Metadata.Owner != "" {
		fmt.Fprintf(&b, ", owned by %s", desc.Metadata.Owner)
	}
	b.WriteString("\n\n## States\n\n")

	b.WriteString("| State | Status | Stage | Terminal |\n|---|---|---|---|\n")
	for _, alias := range desc.StateAliases() {
		st, _ := desc.ResolveAlias(alias)
		terminal := ""
		if desc.IsTerminal(alias) {
			terminal = "yes"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", alias, st.Status, st.Stage, terminal)
	}

	b.WriteString("\n## Commands\n\n")
	for _, cmd := range desc.Commands() {
		fmt.Fprintf(&b, "### %s\n\n", cmd.Name)
		if cmd.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", cmd.Description)
		}
		if cmd.Actor != "" {
			fmt.Fprintf(&b, "- Actor: %s\n", cmd.Actor)
		}
		fmt.Fprintf(&b, "- From: %s\n", strings.Join(desc.FromStateAliases(cmd), ", "))
		fmt.Fprintf(&b, "- To: %s\n", desc.ResolveStateRef(cmd.To))
		if len(cmd.Pre) > 0 {
			fmt.Fprintf(&b, "- Pre-invariants: %s\n", strings.Join(cmd.Pre, ", "))
		}
		if len(cmd.Post) > 0 {
			fmt.Fprintf(&b, "- Post-invariants: %s\n", strings.Join(cmd.Post, ", "))
		}
		if len(cmd.DispatchMap) > 0 {
			keys := make([]string, 0, len(cmd.DispatchMap))
			for k := range cmd.DispatchMap {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			b.WriteString("- Dispatch templates:\n")
			for _, k := range keys {
				fmt.Fprintf(&b, "  - `%s` -> `%s`\n", k, cmd.DispatchMap[k])
			}
		}
		b.WriteString("\n")
	}

	invariants := desc.Invariants()
	if len(invariants) > 0 {
		b.WriteString("## Invariants\n\n")
		for _, inv := range invariants {
			fmt.Fprintf(&b, "### %s\n\n", inv.Name)
			if inv.Description != "" {
				fmt.Fprintf(&b, "%s\n\n", inv.Description)
			}
			fmt.Fprintf(&b, "- When: %s\n", strings.Join(inv.When, ", "))
			fmt.Fprintf(&b, "- Logic: `%s`\n\n", inv.Logic)
		}
	}

	return b.String()
}
