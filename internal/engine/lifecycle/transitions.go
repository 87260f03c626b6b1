package lifecycle

import (
	"github.com/shopspring/decimal"

	"referral-workers/internal/models"
)

// supplierEdges are the transitions a supplier drives after the intro.
var supplierEdges = map[models.ReferralStatus][]models.ReferralStatus{
	models.StatusIntroSent: {
		models.StatusRancherContacted,
		models.StatusClosedWon,
		models.StatusClosedLost,
	},
	models.StatusRancherContacted: {
		models.StatusNegotiation,
		models.StatusClosedWon,
		models.StatusClosedLost,
	},
	models.StatusNegotiation: {
		models.StatusClosedWon,
		models.StatusClosedLost,
	},
}

// CanTransition reports whether from→to is a supplier edge.
func CanTransition(from, to models.ReferralStatus) bool {
	for _, s := range supplierEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next lists the supplier-driven statuses reachable from s.
func Next(s models.ReferralStatus) []models.ReferralStatus {
	out := make([]models.ReferralStatus, len(supplierEdges[s]))
	copy(out, supplierEdges[s])
	return out
}

// Commission is sale × rate rounded half away from zero to cents.
func Commission(sale float64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(sale).Mul(rate).Round(2)
}
