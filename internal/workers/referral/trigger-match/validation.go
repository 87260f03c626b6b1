package triggermatch

import "referral-workers/internal/common/validation"

const inputSchemaJSON = `{
	"type": "object",
	"required": ["buyerId", "buyerState"],
	"properties": {
		"buyerId":              {"type": "string", "minLength": 1},
		"buyerState":           {"type": "string", "pattern": "^\\s*[A-Za-z]{2}\\s*$"},
		"buyerName":            {"type": "string"},
		"buyerEmail":           {"type": "string"},
		"buyerPhone":           {"type": "string"},
		"orderType":            {"type": "string"},
		"budgetRange":          {"type": "string"},
		"intentScore":          {"type": "integer", "minimum": 0},
		"intentClassification": {"type": "string", "enum": ["High", "Medium", "Low", ""]},
		"notes":                {"type": "string"}
	}
}`

var inputSchema = validation.MustCompile(TaskType, inputSchemaJSON)
