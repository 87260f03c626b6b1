package reconcilecapacity

import "referral-workers/internal/common/validation"

const inputSchemaJSON = `{
	"type": "object",
	"properties": {
		"reconcileReason": {"type": "string", "maxLength": 500}
	}
}`

var inputSchema = validation.MustCompile(TaskType, inputSchemaJSON)
