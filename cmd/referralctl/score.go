package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"referral-workers/internal/engine/intent"
)

const (
	orderTypeFlagName = "order-type"
	budgetFlagName    = "budget"
	notesFlagName     = "notes"
	flowFlagName      = "flow"
)

func init() {
	rootCmd.AddCommand(scoreCmd)
	addScoringFlags(scoreCmd)
}

func addScoringFlags(cmd *cobra.Command) {
	cmd.Flags().String(orderTypeFlagName, "None", "Order type: Whole,Half,Quarter,None")
	cmd.Flags().String(budgetFlagName, "", "Budget range, e.g. \"$1000-$2000\"")
	cmd.Flags().String(notesFlagName, "", "Free-text buyer notes")
	cmd.Flags().String(flowFlagName, "backfill", "Scoring flow: backfill,upgrade")
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Computes a buyer intent score without touching any store",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := scoreFromFlags(cmd)
		if err != nil {
			return err
		}
		return printResult(cmd, result, func() string {
			return fmt.Sprintf("score %d (%s)", result.Score, result.Classification)
		})
	},
}

func scoreFromFlags(cmd *cobra.Command) (intent.Result, error) {
	flags := cmd.Flags()
	orderType, _ := flags.GetString(orderTypeFlagName)
	budget, _ := flags.GetString(budgetFlagName)
	notes, _ := flags.GetString(notesFlagName)
	flow, _ := flags.GetString(flowFlagName)

	var base int
	switch flow {
	case "backfill":
		base = intent.BaseBackfill
	case "upgrade":
		base = intent.BaseUpgrade
	default:
		return intent.Result{}, fmt.Errorf("%s flag must be either %q or %q", flowFlagName, "backfill", "upgrade")
	}
	return intent.Score(base, orderType, budget, notes), nil
}
