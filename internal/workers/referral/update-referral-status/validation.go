package updatereferralstatus

import "referral-workers/internal/common/validation"

const inputSchemaJSON = `{
	"type": "object",
	"required": ["referralId", "actorRole"],
	"properties": {
		"referralId": {"type": "string", "minLength": 1},
		"action":     {"type": "string", "enum": ["transition", "markCommissionPaid"]},
		"actorRole":  {"type": "string", "enum": ["admin", "supplier"]},
		"actorId":    {"type": "string"},
		"status":     {"type": "string", "enum": ["RancherContacted", "Negotiation", "ClosedWon", "ClosedLost"]},
		"saleAmount": {"type": ["number", "null"]},
		"notes":      {"type": "string", "maxLength": 4000}
	}
}`

var inputSchema = validation.MustCompile(TaskType, inputSchemaJSON)
