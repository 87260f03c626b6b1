package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Runs one capacity sweep: resolves stale journal entries and repairs supplier statuses",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close(cmd.Context())

		report, sweepErr := engine.Sweeper.Run(cmd.Context())
		if report != nil {
			if err := printResult(cmd, report, func() string {
				var b strings.Builder
				fmt.Fprintf(&b, "%d status change(s), %d journal entr(ies) resolved in %s",
					len(report.StatusChanges), len(report.Compensations), report.Duration)
				for _, c := range report.StatusChanges {
					fmt.Fprintf(&b, "\n  %s: %s -> %s (%d/%d)", c.SupplierID, c.From, c.To, c.Load.Current, c.Load.Max)
				}
				for _, c := range report.Compensations {
					fmt.Fprintf(&b, "\n  %s %s on %s: %s", c.Entry.Op, c.Entry.ReferralID, c.Entry.SupplierID, c.Action)
				}
				return b.String()
			}); err != nil {
				return err
			}
		}
		return sweepErr
	},
}
