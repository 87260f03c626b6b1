// Package intent scores how ready a buyer is to purchase.
package intent

import (
	"strings"
	"unicode/utf8"

	"referral-workers/internal/models"
)

// Base scores. Backfill is used when a profile is first imported, upgrade
// when the buyer completed the upgrade questionnaire.
const (
	BaseBackfill = 10
	BaseUpgrade  = 30
)

// Classifications.
const (
	High   = "High"
	Medium = "Medium"
	Low    = "Low"
)

const (
	highThreshold   = 60
	mediumThreshold = 30
	notesMinLength  = 20
	notesBonus      = 15
)

var orderWeights = map[string]int{
	models.OrderWhole:   30,
	models.OrderHalf:    20,
	models.OrderQuarter: 10,
}

var budgetWeights = map[string]int{
	"$2000+":      25,
	"$1000-$2000": 20,
	"$500-$1000":  10,
}

type Result struct {
	Score          int    `json:"intentScore"`
	Classification string `json:"intentClassification"`
}

// Score is pure: the same inputs always produce the same result.
func Score(base int, orderType, budgetRange, notes string) Result {
	score := base
	score += orderWeights[strings.TrimSpace(orderType)]
	score += budgetWeights[NormalizeBudget(budgetRange)]
	if utf8.RuneCountInString(notes) > notesMinLength {
		score += notesBonus
	}
	return Result{Score: score, Classification: Classify(score)}
}

func Classify(score int) string {
	switch {
	case score >= highThreshold:
		return High
	case score >= mediumThreshold:
		return Medium
	default:
		return Low
	}
}

// NormalizeBudget folds the dash and spacing variants seen in form input
// onto the canonical labels.
func NormalizeBudget(budget string) string {
	r := strings.NewReplacer(" ", "", "–", "-", "—", "-", ",", "")
	return r.Replace(strings.TrimSpace(budget))
}
