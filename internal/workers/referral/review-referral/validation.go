package reviewreferral

import "referral-workers/internal/common/validation"

const inputSchemaJSON = `{
	"type": "object",
	"required": ["referralId", "decision", "actorRole"],
	"properties": {
		"referralId": {"type": "string", "minLength": 1},
		"decision":   {"type": "string", "enum": ["approve", "reject", "reassign"]},
		"actorRole":  {"type": "string", "enum": ["admin", "supplier"]},
		"actorId":    {"type": "string"},
		"supplierId": {"type": "string"},
		"reason":     {"type": "string", "maxLength": 1000}
	},
	"if": {"properties": {"decision": {"const": "reassign"}}},
	"then": {"required": ["supplierId"], "properties": {"supplierId": {"minLength": 1}}}
}`

var inputSchema = validation.MustCompile(TaskType, inputSchemaJSON)
