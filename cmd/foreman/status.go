package main

import (
	"fmt"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pool claims and recent dispatches",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, err := buildRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		p := termenv.ColorProfile()
		ok := func(s string) termenv.Style { return termenv.String(s).Foreground(p.Color("2")) }
		bad := func(s string) termenv.Style { return termenv.String(s).Foreground(p.Color("1")) }
		dim := func(s string) termenv.Style { return termenv.String(s).Faint() }

		if rt.Pool != nil {
			fmt.Println("Pool claims:")
			claims := rt.Pool.Claims()
			if len(claims) == 0 {
				fmt.Printf("  %s\n", dim("all members free"))
			}
			for _, member := range rt.Config.Dispatch.Pool.Members {
				claim, taken := claims[member]
				if !taken {
					fmt.Printf("  %-12s %s\n", member, ok("free"))
					continue
				}
				age := time.Since(claim.ClaimedAt).Round(time.Second)
				line := fmt.Sprintf("held by %s (branch %s, %s ago)", claim.WorkItemID, claim.Branch, age)
				if age > rt.Pool.ClaimTimeout() {
					line += " [stale]"
					fmt.Printf("  %-12s %s\n", member, bad(line))
				} else {
					fmt.Printf("  %-12s %s\n", member, line)
				}
			}
			fmt.Println()
		}

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := rt.Recorder.Tail(limit)
		if err != nil {
			return fmt.Errorf("cannot read audit log: %w", err)
		}

		fmt.Printf("Last %d dispatch(es):\n", len(records))
		if len(records) == 0 {
			fmt.Printf("  %s\n", dim("no dispatches recorded"))
			return nil
		}
		for _, rec := range records {
			when := rec.RecordedAt.Local().Format(time.RFC3339)
			outcome := ok("ok").String()
			detail := ""
			if !rec.Dispatch.Success {
				outcome = bad("failed").String()
				if rec.Dispatch.Error != nil {
					detail = " " + *rec.Dispatch.Error
				}
			}
			fmt.Printf("  %s  %-8s %s%s\n", when, rec.Dispatch.WorkItemID, outcome, detail)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("limit", 10, "Number of dispatch records to show")
	rootCmd.AddCommand(statusCmd)
}
