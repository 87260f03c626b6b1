package scoreintent

import "referral-workers/internal/common/validation"

const inputSchemaJSON = `{
	"type": "object",
	"required": ["buyerId"],
	"properties": {
		"buyerId":     {"type": "string", "minLength": 1},
		"buyerState":  {"type": "string"},
		"orderType":   {"type": "string"},
		"budgetRange": {"type": "string"},
		"notes":       {"type": "string"},
		"flow":        {"type": "string", "enum": ["backfill", "upgrade"]}
	}
}`

var inputSchema = validation.MustCompile(TaskType, inputSchemaJSON)
