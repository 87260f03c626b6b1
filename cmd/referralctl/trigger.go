package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"referral-workers/internal/engine/trigger"
	"referral-workers/internal/models"
)

const (
	buyerIDFlagName    = "buyer-id"
	buyerStateFlagName = "state"
	buyerNameFlagName  = "name"
)

func init() {
	rootCmd.AddCommand(triggerCmd)
	triggerCmd.Flags().String(buyerIDFlagName, "", "Buyer id (required)")
	triggerCmd.Flags().String(buyerStateFlagName, "", "Buyer two-letter state code (required)")
	triggerCmd.Flags().String(buyerNameFlagName, "", "Buyer display name")
	addScoringFlags(triggerCmd)
	_ = triggerCmd.MarkFlagRequired(buyerIDFlagName)
	_ = triggerCmd.MarkFlagRequired(buyerStateFlagName)
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Scores a buyer and creates a pending referral for the least loaded eligible supplier",
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := scoreFromFlags(cmd)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		buyerID, _ := flags.GetString(buyerIDFlagName)
		state, _ := flags.GetString(buyerStateFlagName)
		name, _ := flags.GetString(buyerNameFlagName)
		orderType, _ := flags.GetString(orderTypeFlagName)
		budget, _ := flags.GetString(budgetFlagName)
		notes, _ := flags.GetString(notesFlagName)

		engine, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close(cmd.Context())

		result, err := engine.Trigger.TriggerMatch(cmd.Context(), trigger.Request{
			BuyerID:              buyerID,
			BuyerState:           models.NormalizeState(state),
			BuyerName:            name,
			OrderType:            orderType,
			BudgetRange:          budget,
			IntentScore:          score.Score,
			IntentClassification: score.Classification,
			Notes:                notes,
		})
		if err != nil {
			return err
		}

		return printResult(cmd, result, func() string {
			if !result.Matched {
				return fmt.Sprintf("referral %s created without a suggested supplier", result.ReferralID)
			}
			return fmt.Sprintf("referral %s created, suggested supplier %s", result.ReferralID, result.SupplierID)
		})
	},
}
