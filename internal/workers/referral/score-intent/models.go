package scoreintent

// Flow names which base score applies.
const (
	FlowBackfill = "backfill"
	FlowUpgrade  = "upgrade"
)

type Input struct {
	BuyerID     string `json:"buyerId"`
	BuyerState  string `json:"buyerState"`
	BuyerName   string `json:"buyerName"`
	BuyerEmail  string `json:"buyerEmail"`
	BuyerPhone  string `json:"buyerPhone"`
	OrderType   string `json:"orderType"`
	BudgetRange string `json:"budgetRange"`
	Notes       string `json:"notes"`
	Flow        string `json:"flow"`
}

type Output struct {
	IntentScore          int    `json:"intentScore"`
	IntentClassification string `json:"intentClassification"`
	ScorePersisted       bool   `json:"scorePersisted"`
	MatchSubmitted       bool   `json:"matchSubmitted"`
}
