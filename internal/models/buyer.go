package models

import "strings"

// Order types a buyer can request.
const (
	OrderWhole   = "Whole"
	OrderHalf    = "Half"
	OrderQuarter = "Quarter"
	OrderNone    = "None"
)

type Buyer struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Phone                string `json:"phone"`
	State                string `json:"state"`
	OrderType            string `json:"orderType"`
	BudgetRange          string `json:"budgetRange"`
	Notes                string `json:"notes,omitempty"`
	IntentScore          int    `json:"intentScore"`
	IntentClassification string `json:"intentClassification,omitempty"`
	UpdatedAt            string `json:"updatedAt,omitempty"`
}

// DecodeBuyer builds a Buyer from store attributes.
func DecodeBuyer(id string, fields map[string]interface{}) (*Buyer, error) {
	var b Buyer
	if err := decode(fields, &b); err != nil {
		return nil, err
	}
	b.ID = id
	b.State = NormalizeState(b.State)
	if b.OrderType == "" {
		b.OrderType = OrderNone
	}
	return &b, nil
}

// NormalizeState upper-cases and trims a state code.
func NormalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}
